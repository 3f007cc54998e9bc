package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/events"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// supportedNodeMajor is the version prefix of the node protocol the client speaks.
const supportedNodeMajor = "4."

// ClientConfig tunes session recovery.
type ClientConfig struct {
	// GracePeriod is how long sessions on a lost node are kept before failover or teardown.
	GracePeriod time.Duration
	// Failover moves sessions to another node once the grace period expired.
	Failover bool
	// RequestTimeout bounds node requests the client issues on its own.
	RequestTimeout time.Duration
}

// ConnectInput contains the input for Connect.
type ConnectInput struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
}

// Client is the entry point of the player: it owns the sessions of every guild
// and routes node and voice events to them.
type Client struct {
	nodes      *NodeManager
	voice      ports.VoiceGateway
	repo       SessionRepository
	dispatcher *events.Dispatcher
	cfg        ClientConfig

	ctx    context.Context
	cancel context.CancelFunc

	timersMu sync.Mutex
	timers   map[snowflake.ID]*time.Timer
}

// NewClient creates a new Client and registers it as the dispatcher's
// interceptor and the voice gateway's listener.
func NewClient(
	nodes *NodeManager,
	voice ports.VoiceGateway,
	repo SessionRepository,
	dispatcher *events.Dispatcher,
	cfg ClientConfig,
) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		nodes:      nodes,
		voice:      voice,
		repo:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		timers:     make(map[snowflake.ID]*time.Timer),
	}
	dispatcher.SetInterceptor(c.intercept)
	voice.SetListener(c)
	return c
}

// Connect returns the player of the guild, creating the voice session if needed.
// A live session is reused; if it sits in another channel it is moved.
func (c *Client) Connect(ctx context.Context, input ConnectInput) (*PlayerContext, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s := NewSession(input.GuildID, c.nodes, c.voice, c.repo)
		actual, loaded := c.repo.LoadOrStore(ctx, s)
		if !loaded {
			s.OnClose(c.stopRecovery)
			if err := s.establish(ctx, input.ChannelID); err != nil {
				return nil, err
			}
			return newPlayerContext(s), nil
		}

		if err := actual.waitReady(ctx); err != nil {
			if errors.Is(err, domain.ErrSessionTerminated) {
				// Disconnected while we waited; start over with a fresh session.
				continue
			}
			return nil, err
		}
		if err := actual.moveTo(ctx, input.ChannelID); err != nil {
			return nil, err
		}
		return newPlayerContext(actual), nil
	}
}

// Player returns the player of a connected guild.
func (c *Client) Player(ctx context.Context, guildID snowflake.ID) (*PlayerContext, error) {
	s, err := c.repo.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !s.Alive() {
		return nil, ErrSessionNotFound
	}
	return newPlayerContext(s), nil
}

// Disconnect tears down the guild's session. It succeeds if there is none.
func (c *Client) Disconnect(ctx context.Context, guildID snowflake.ID) error {
	s, err := c.repo.Get(ctx, guildID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.terminate(ctx, true)
}

// LoadTracks resolves query on the least loaded node.
func (c *Client) LoadTracks(ctx context.Context, query domain.SearchQuery) (domain.TrackList, error) {
	if !query.IsValid() {
		return domain.TrackList{}, fmt.Errorf("%w: empty query", domain.ErrLoadFailed)
	}

	node, err := c.nodes.BestNode()
	if err != nil {
		return domain.TrackList{}, err
	}

	list, err := node.LoadTracks(ctx, query.Identifier())
	if err != nil {
		return domain.TrackList{}, err
	}
	if len(list.Tracks) == 0 {
		return domain.TrackList{}, fmt.Errorf("%w: no matches for %q", domain.ErrLoadFailed, query.Term)
	}
	return list, nil
}

// DecodeTrack decodes an encoded track on the least loaded node.
func (c *Client) DecodeTrack(ctx context.Context, encoded string) (domain.Track, error) {
	node, err := c.nodes.BestNode()
	if err != nil {
		return domain.Track{}, err
	}
	return node.DecodeTrack(ctx, encoded)
}

// Migrate moves the guild's player to the node called nodeName.
func (c *Client) Migrate(ctx context.Context, guildID snowflake.ID, nodeName string) error {
	s, err := c.repo.Get(ctx, guildID)
	if err != nil {
		return err
	}
	target, ok := c.nodes.Node(nodeName)
	if !ok {
		return fmt.Errorf("%w: unknown node %s", domain.ErrNodeUnavailable, nodeName)
	}
	return s.migrateTo(ctx, target)
}

// Nodes returns the status of every configured node.
func (c *Client) Nodes() []NodeStatus {
	return c.nodes.Status()
}

// NodeInfo fetches the build and capabilities of the node called name.
func (c *Client) NodeInfo(ctx context.Context, name string) (*ports.NodeInfo, error) {
	node, ok := c.nodes.Node(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown node %s", domain.ErrNodeUnavailable, name)
	}
	if !c.nodes.IsAvailable(name) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeUnavailable, name)
	}
	return node.Info(ctx)
}

// NodeVersion returns the version the node called name runs.
func (c *Client) NodeVersion(ctx context.Context, name string) (string, error) {
	info, err := c.NodeInfo(ctx, name)
	if err != nil {
		return "", err
	}
	return info.Version, nil
}

// NodeStats returns the last stats the node called name reported.
// The second return value is false until the node reported any.
func (c *Client) NodeStats(name string) (domain.NodeStats, bool) {
	return c.nodes.Stats(name)
}

// Subscribe registers handler for the given event kinds, or for every kind if none are given.
func (c *Client) Subscribe(handler events.Handler, kinds ...domain.EventKind) uuid.UUID {
	return c.dispatcher.Subscribe(handler, kinds...)
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(id uuid.UUID) bool {
	return c.dispatcher.Unsubscribe(id)
}

// Errors returns the channel handler failures are reported on.
func (c *Client) Errors() <-chan events.HandlerError {
	return c.dispatcher.Errors()
}

// Close terminates every session.
func (c *Client) Close(ctx context.Context) error {
	c.cancel()

	c.timersMu.Lock()
	for guildID, t := range c.timers {
		t.Stop()
		delete(c.timers, guildID)
	}
	c.timersMu.Unlock()

	var errs []error
	for _, s := range c.repo.List(ctx) {
		if err := s.terminate(ctx, true); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", s.GuildID(), err))
		}
	}
	return errors.Join(errs...)
}

// VoiceServerUpdated implements ports.VoiceListener.
func (c *Client) VoiceServerUpdated(guildID snowflake.ID, info ports.VoiceInfo) {
	s, err := c.repo.Get(c.ctx, guildID)
	if err != nil || !s.Alive() || s.State() == domain.SessionConnecting {
		return
	}

	ctx, cancel := c.requestContext(c.ctx)
	defer cancel()

	if err := s.applyVoice(ctx, info); err != nil {
		slog.Warn("failed to apply voice server update", "guild", guildID, "error", err)
	}
}

// VoiceDisconnected implements ports.VoiceListener.
func (c *Client) VoiceDisconnected(guildID snowflake.ID) {
	s, err := c.repo.Get(c.ctx, guildID)
	if err != nil {
		return
	}

	ctx, cancel := c.requestContext(c.ctx)
	defer cancel()

	slog.Info("removed from voice channel", "guild", guildID)
	if err := s.terminate(ctx, false); err != nil {
		slog.Warn("failed to clean up session", "guild", guildID, "error", err)
	}
}

// intercept runs before subscribers see an event.
func (c *Client) intercept(ctx context.Context, e domain.Event) domain.Event {
	switch ev := e.(type) {
	case domain.ReadyEvent:
		c.onNodeReady(ctx, ev)
		return e
	case domain.NodeUnavailableEvent:
		c.scheduleRecovery(ev)
		return e
	}

	if e.Guild() == 0 {
		return e
	}
	s, err := c.repo.Get(ctx, e.Guild())
	if err != nil {
		return e
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	return s.handleEvent(ctx, e)
}

func (c *Client) onNodeReady(ctx context.Context, ev domain.ReadyEvent) {
	if !ev.Resumed {
		c.checkNodeVersion(ctx, ev.NodeName)
	}

	for _, s := range c.repo.List(ctx) {
		if s.NodeName() != ev.NodeName {
			continue
		}
		c.stopRecovery(s.GuildID())

		rctx, cancel := c.requestContext(ctx)
		if err := s.resync(rctx, ev.Resumed); err != nil {
			slog.Error("failed to restore player", "guild", s.GuildID(), "node", ev.NodeName, "error", err)
		}
		cancel()
	}
}

// checkNodeVersion logs the build of a node that opened a new session.
func (c *Client) checkNodeVersion(ctx context.Context, name string) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	info, err := c.NodeInfo(ctx, name)
	if err != nil {
		slog.Warn("failed to fetch node info", "node", name, "error", err)
		return
	}
	if !strings.HasPrefix(info.Version, supportedNodeMajor) {
		slog.Warn("node runs an unsupported version", "node", name, "version", info.Version)
		return
	}
	slog.Info("node info", "node", name, "version", info.Version, "plugins", len(info.Plugins))
}

func (c *Client) scheduleRecovery(ev domain.NodeUnavailableEvent) {
	guildID, nodeName := ev.GuildID, ev.NodeName

	c.timersMu.Lock()
	defer c.timersMu.Unlock()

	if c.ctx.Err() != nil {
		return
	}
	if t, ok := c.timers[guildID]; ok {
		t.Stop()
	}
	c.timers[guildID] = time.AfterFunc(c.cfg.GracePeriod, func() {
		c.recover(guildID, nodeName)
	})
}

func (c *Client) stopRecovery(guildID snowflake.ID) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()

	if t, ok := c.timers[guildID]; ok {
		t.Stop()
		delete(c.timers, guildID)
	}
}

// recover runs once the grace period of a guild on a lost node expired.
func (c *Client) recover(guildID snowflake.ID, nodeName string) {
	c.stopRecovery(guildID)

	s, err := c.repo.Get(c.ctx, guildID)
	if err != nil || s.NodeName() != nodeName || c.nodes.IsAvailable(nodeName) {
		return
	}

	ctx, cancel := c.requestContext(c.ctx)
	defer cancel()

	if c.cfg.Failover {
		target, err := c.nodes.BestNode()
		if err == nil {
			err = s.migrateTo(ctx, target)
		}
		if err == nil {
			return
		}
		slog.Warn("failover failed", "guild", guildID, "node", nodeName, "error", err)
	}

	slog.Warn("node did not come back, closing session", "guild", guildID, "node", nodeName)
	if err := s.terminate(ctx, true); err != nil {
		slog.Warn("failed to clean up session", "guild", guildID, "error", err)
	}
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}
