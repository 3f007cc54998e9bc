package music_player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/bot"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/events"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/infrastructure"
)

// shutdownTimeout bounds the teardown of all sessions on Shutdown.
const shutdownTimeout = 10 * time.Second

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*MusicPlayerModule)(nil)

// MusicPlayerModule wires the player client to Lavalink nodes and the Discord voice gateway.
type MusicPlayerModule struct {
	config *Config

	// gateway is read by Discord event handlers, which run before Init returns
	gateway    atomic.Pointer[infrastructure.DiscordVoiceGateway]
	nodes      *usecases.NodeManager
	dispatcher *events.Dispatcher
	client     *usecases.Client

	// Context for node supervisors and the error logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Intents returns the gateway intents the voice gateway depends on.
func (m *MusicPlayerModule) Intents() discordgo.Intent {
	return discordgo.IntentsGuildVoiceStates
}

// Client returns the player client. It is nil before Init.
func (m *MusicPlayerModule) Client() *usecases.Client {
	return m.client
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if _, err := cfg.NodeAddresses(); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil || deps.Session.State == nil || deps.Session.State.User == nil {
		return errors.New("music_player requires an open Discord session")
	}
	if m.config == nil {
		if err := m.LoadConfig(); err != nil {
			return err
		}
	}

	botID, err := snowflake.Parse(deps.Session.State.User.ID)
	if err != nil {
		return fmt.Errorf("failed to parse bot user ID: %w", err)
	}

	transports, err := m.newTransports(botID)
	if err != nil {
		return err
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.done = make(chan struct{})

	// Create the event pipeline: nodes publish into the dispatcher, the client intercepts
	m.dispatcher = events.NewDispatcher(events.DefaultErrorBufferSize)
	m.nodes = usecases.NewNodeManager(
		transports,
		usecases.ParseSelector(m.config.NodeSelection),
		m.dispatcher.Publish,
		usecases.Backoff{Min: m.config.ReconnectMin, Max: m.config.ReconnectMax},
	)
	gateway := infrastructure.NewDiscordVoiceGateway(deps.Session, botID)
	m.client = usecases.NewClient(
		m.nodes,
		gateway,
		infrastructure.NewMemoryRepository(),
		m.dispatcher,
		usecases.ClientConfig{
			GracePeriod:    m.config.GracePeriod,
			Failover:       m.config.Failover,
			RequestTimeout: m.config.RequestTimeout,
		},
	)

	m.gateway.Store(gateway)

	go m.logHandlerErrors()
	m.nodes.Start(m.ctx)

	slog.Info("music_player module initialized", "nodes", len(transports))

	return nil
}

func (m *MusicPlayerModule) newTransports(botID snowflake.ID) ([]ports.NodeTransport, error) {
	addresses, err := m.config.NodeAddresses()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: m.config.RequestTimeout}
	transports := make([]ports.NodeTransport, 0, len(addresses))
	for _, addr := range addresses {
		transports = append(transports, infrastructure.NewLavalinkNode(infrastructure.LavalinkConfig{
			Name:              addr.Name,
			Address:           addr.Address,
			Password:          m.config.LavalinkPassword,
			Secure:            m.config.LavalinkSecure,
			UserID:            botID,
			ResumeTimeout:     m.config.ResumeTimeout,
			RequestsPerSecond: m.config.RequestsPerSecond,
			RequestBurst:      m.config.RequestBurst,
		}, httpClient))
	}
	return transports, nil
}

// logHandlerErrors logs failures of application event handlers until Shutdown.
func (m *MusicPlayerModule) logHandlerErrors() {
	defer close(m.done)

	errs := m.client.Errors()
	for {
		select {
		case <-m.ctx.Done():
			return
		case herr, ok := <-errs:
			if !ok {
				return
			}
			slog.Error("event handler failed",
				"guild", herr.Event.Guild(),
				"node", herr.Event.Node(),
				"event", herr.Event.Kind(),
				"error", herr.Err,
			)
		}
	}
}

// Shutdown cleans up module resources.
func (m *MusicPlayerModule) Shutdown() error {
	var errs []error

	// Tear down sessions while nodes are still reachable
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, m.client.Close(ctx))
		cancel()
	}

	// Cancel context to stop node supervisors and the error logger
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}

	if m.nodes != nil {
		errs = append(errs, m.nodes.Close())
	}
	if m.dispatcher != nil {
		m.dispatcher.Close()
	}

	return errors.Join(errs...)
}

// Event handlers.

func (m *MusicPlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if gateway := m.gateway.Load(); gateway != nil {
		gateway.OnVoiceServerUpdate(event)
	}
}

func (m *MusicPlayerModule) handleVoiceStateUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if gateway := m.gateway.Load(); gateway != nil {
		gateway.OnVoiceStateUpdate(event)
	}
}
