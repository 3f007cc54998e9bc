package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
)

// voiceConnectionTimeout is the maximum time to wait for voice connection to be established.
const voiceConnectionTimeout = 10 * time.Second

// ErrVoiceTimeout is returned when Discord did not send the voice info in time.
var ErrVoiceTimeout = errors.New("timeout waiting for voice connection")

// VoiceStateSender sends voice state updates over the Discord gateway.
// *discordgo.Session implements it.
type VoiceStateSender interface {
	ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error
}

// pendingVoiceConnection tracks a Join waiting for its voice info.
type pendingVoiceConnection struct {
	channelID snowflake.ID
	ready     chan ports.VoiceInfo
}

// voiceEventBuffer holds the latest voice state and voice server data of a guild.
// VoiceStateUpdate and VoiceServerUpdate arrive in either order; the info is
// only usable once both are present.
type voiceEventBuffer struct {
	// From VoiceStateUpdate
	hasVoiceState bool
	channelID     snowflake.ID
	sessionID     string

	// From VoiceServerUpdate
	hasVoiceServer bool
	token          string
	endpoint       string
}

func (b *voiceEventBuffer) info() (ports.VoiceInfo, bool) {
	info := ports.VoiceInfo{
		ChannelID: b.channelID,
		SessionID: b.sessionID,
		Token:     b.token,
		Endpoint:  b.endpoint,
	}
	return info, b.hasVoiceState && b.hasVoiceServer && info.IsComplete()
}

// DiscordVoiceGateway implements ports.VoiceGateway on top of a discordgo session.
type DiscordVoiceGateway struct {
	session VoiceStateSender
	botID   snowflake.ID
	timeout time.Duration

	mu       sync.Mutex
	buffers  map[snowflake.ID]*voiceEventBuffer
	pending  map[snowflake.ID]*pendingVoiceConnection
	leaving  map[snowflake.ID]struct{}
	listener ports.VoiceListener
}

// NewDiscordVoiceGateway creates a new DiscordVoiceGateway for the bot user botID.
func NewDiscordVoiceGateway(session VoiceStateSender, botID snowflake.ID) *DiscordVoiceGateway {
	return &DiscordVoiceGateway{
		session: session,
		botID:   botID,
		timeout: voiceConnectionTimeout,
		buffers: make(map[snowflake.ID]*voiceEventBuffer),
		pending: make(map[snowflake.ID]*pendingVoiceConnection),
		leaving: make(map[snowflake.ID]struct{}),
	}
}

// SetListener implements ports.VoiceGateway.
func (g *DiscordVoiceGateway) SetListener(listener ports.VoiceListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listener = listener
}

// Join implements ports.VoiceGateway.
// It waits for both VoiceStateUpdate and VoiceServerUpdate events before returning.
func (g *DiscordVoiceGateway) Join(ctx context.Context, guildID, channelID snowflake.ID) (ports.VoiceInfo, error) {
	pending := &pendingVoiceConnection{
		channelID: channelID,
		ready:     make(chan ports.VoiceInfo, 1),
	}

	g.mu.Lock()
	g.pending[guildID] = pending
	delete(g.leaving, guildID)
	// Require fresh events for this join.
	g.buffers[guildID] = &voiceEventBuffer{}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending[guildID] == pending {
			delete(g.pending, guildID)
		}
		g.mu.Unlock()
	}()

	if err := g.session.ChannelVoiceJoinManual(guildID.String(), channelID.String(), false, true); err != nil {
		return ports.VoiceInfo{}, fmt.Errorf("failed to send voice state update: %w", err)
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case info := <-pending.ready:
		return info, nil
	case <-ctx.Done():
		return ports.VoiceInfo{}, fmt.Errorf("context cancelled while waiting for voice connection: %w", ctx.Err())
	case <-timer.C:
		return ports.VoiceInfo{}, ErrVoiceTimeout
	}
}

// Leave implements ports.VoiceGateway.
func (g *DiscordVoiceGateway) Leave(_ context.Context, guildID snowflake.ID) error {
	g.mu.Lock()
	g.leaving[guildID] = struct{}{}
	delete(g.buffers, guildID)
	g.mu.Unlock()

	if err := g.session.ChannelVoiceJoinManual(guildID.String(), "", false, false); err != nil {
		g.mu.Lock()
		delete(g.leaving, guildID)
		g.mu.Unlock()
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// OnVoiceStateUpdate handles Discord voice state updates.
// This must be called from the Discord event handler.
func (g *DiscordVoiceGateway) OnVoiceStateUpdate(event *discordgo.VoiceStateUpdate) {
	if event.VoiceState == nil || event.UserID != g.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	// An empty channel means the bot left or was removed.
	if event.ChannelID == "" {
		g.onDisconnect(guildID)
		return
	}

	channelID, err := snowflake.Parse(event.ChannelID)
	if err != nil {
		slog.Error("failed to parse channel ID in voice state update", "error", err)
		return
	}

	g.update(guildID, func(b *voiceEventBuffer) bool {
		changed := !b.hasVoiceState || b.channelID != channelID || b.sessionID != event.SessionID
		b.hasVoiceState = true
		b.channelID = channelID
		b.sessionID = event.SessionID
		return changed
	})
}

// OnVoiceServerUpdate handles Discord voice server updates.
// This must be called from the Discord event handler.
func (g *DiscordVoiceGateway) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	g.update(guildID, func(b *voiceEventBuffer) bool {
		b.hasVoiceServer = true
		b.token = event.Token
		b.endpoint = event.Endpoint
		return true
	})
}

// update applies fn to the guild's buffer and routes complete info either to a
// waiting Join or, if fn reported a change, to the listener.
func (g *DiscordVoiceGateway) update(guildID snowflake.ID, fn func(b *voiceEventBuffer) bool) {
	g.mu.Lock()
	buffer, ok := g.buffers[guildID]
	if !ok {
		buffer = &voiceEventBuffer{}
		g.buffers[guildID] = buffer
	}
	changed := fn(buffer)
	info, complete := buffer.info()
	pending := g.pending[guildID]
	listener := g.listener
	g.mu.Unlock()

	if !complete {
		return
	}

	if pending != nil {
		if info.ChannelID != pending.channelID {
			return
		}
		select {
		case pending.ready <- info:
		default:
		}
		return
	}

	if changed && listener != nil {
		slog.Debug("forwarding voice update", "guild", guildID, "channel", info.ChannelID)
		listener.VoiceServerUpdated(guildID, info)
	}
}

func (g *DiscordVoiceGateway) onDisconnect(guildID snowflake.ID) {
	g.mu.Lock()
	delete(g.buffers, guildID)
	_, leaving := g.leaving[guildID]
	delete(g.leaving, guildID)
	_, joining := g.pending[guildID]
	listener := g.listener
	g.mu.Unlock()

	if leaving || joining || listener == nil {
		return
	}
	listener.VoiceDisconnected(guildID)
}

// Ensure DiscordVoiceGateway implements ports.VoiceGateway.
var _ ports.VoiceGateway = (*DiscordVoiceGateway)(nil)
