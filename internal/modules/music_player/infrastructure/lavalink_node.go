package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
	"golang.org/x/time/rate"
)

// ClientName is sent to nodes in the Client-Name header.
const ClientName = "sgrlink/1.0"

// handshakeTimeout bounds the websocket upgrade.
const handshakeTimeout = 10 * time.Second

// LavalinkConfig contains the connection settings of one Lavalink node.
type LavalinkConfig struct {
	Name     string
	Address  string // host:port
	Password string
	Secure   bool
	UserID   snowflake.ID

	// ResumeTimeout keeps the node session alive for that long after the
	// websocket dropped. Zero disables resuming.
	ResumeTimeout time.Duration

	// RequestsPerSecond limits REST calls. Zero disables the limit.
	RequestsPerSecond float64
	RequestBurst      int
}

// LavalinkNode implements ports.NodeTransport for a Lavalink v4 node.
type LavalinkNode struct {
	config     LavalinkConfig
	httpClient *http.Client
	dialer     *websocket.Dialer
	limiter    *rate.Limiter
	restURL    string
	wsURL      string

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

// NewLavalinkNode creates a new LavalinkNode. It does not connect.
func NewLavalinkNode(config LavalinkConfig, httpClient *http.Client) *LavalinkNode {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.RequestBurst
	if burst <= 0 {
		burst = 1
	}

	httpScheme, wsScheme := "http", "ws"
	if config.Secure {
		httpScheme, wsScheme = "https", "wss"
	}

	return &LavalinkNode{
		config:     config,
		httpClient: httpClient,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		restURL: (&url.URL{Scheme: httpScheme, Host: config.Address}).String(),
		wsURL:   (&url.URL{Scheme: wsScheme, Host: config.Address, Path: "/v4/websocket"}).String(),
	}
}

// Name implements ports.NodeTransport.
func (n *LavalinkNode) Name() string {
	return n.config.Name
}

// SessionID returns the current node session, or "" before the first ready.
func (n *LavalinkNode) SessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionID
}

// Connect implements ports.NodeTransport.
// A previous session is offered for resuming if resuming is enabled.
func (n *LavalinkNode) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", n.config.Password)
	header.Set("User-Id", n.config.UserID.String())
	header.Set("Client-Name", ClientName)

	n.mu.Lock()
	if n.config.ResumeTimeout > 0 && n.sessionID != "" {
		header.Set("Session-Id", n.sessionID)
	}
	n.mu.Unlock()

	conn, resp, err := n.dialer.DialContext(ctx, n.wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to node %s: %s: %w", n.config.Name, resp.Status, err)
		}
		return fmt.Errorf("failed to connect to node %s: %w", n.config.Name, err)
	}

	n.mu.Lock()
	old := n.conn
	n.conn = conn
	n.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Listen implements ports.NodeTransport.
func (n *LavalinkNode) Listen(ctx context.Context, sink ports.EventSink) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("node %s: read failed: %w", n.config.Name, err)
		}

		msg, err := lavalink.UnmarshalMessage(data)
		if err != nil {
			slog.Warn("failed to decode node message", "node", n.config.Name, "error", err)
			continue
		}
		event := convertMessage(n.config.Name, msg)
		if event == nil {
			continue
		}

		if ready, ok := event.(domain.ReadyEvent); ok {
			n.onReady(ctx, ready)
		}
		sink(event)
	}
}

func (n *LavalinkNode) onReady(ctx context.Context, ready domain.ReadyEvent) {
	n.mu.Lock()
	n.sessionID = ready.SessionID
	n.mu.Unlock()

	if n.config.ResumeTimeout <= 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handshakeTimeout)
		defer cancel()
		if err := n.configureResuming(ctx, ready.SessionID); err != nil {
			slog.Warn("failed to enable session resuming", "node", n.config.Name, "error", err)
		}
	}()
}

// Close implements ports.NodeTransport.
func (n *LavalinkNode) Close() error {
	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

// Ensure LavalinkNode implements ports.NodeTransport.
var _ ports.NodeTransport = (*LavalinkNode)(nil)
