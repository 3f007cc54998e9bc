package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// CloseFunc is called once when a session terminated.
type CloseFunc func(guildID snowflake.ID)

// nodeBinding wraps the transport a session is pinned to so it can be swapped atomically.
type nodeBinding struct {
	transport ports.NodeTransport
}

// Session is the voice and playback state of one guild, bound to one node.
//
// mu is the guild's exclusive section: every command and every node event for
// the guild runs under it, including the node round trip of the command.
type Session struct {
	guildID snowflake.ID
	nodes   *NodeManager
	voice   ports.VoiceGateway
	repo    SessionRepository

	alive   atomic.Bool
	binding atomic.Pointer[nodeBinding]

	ready      chan struct{}
	readyOnce  sync.Once
	connectErr error

	mu          sync.Mutex
	state       domain.SessionState
	voiceInfo   ports.VoiceInfo
	voiceStale  bool
	queue       *domain.Queue
	current     *domain.QueueEntry
	position    time.Duration
	positionAt  time.Time
	paused      bool
	volume      int
	filters     json.RawMessage
	loopMode    domain.LoopMode
	skipPending bool
	stopPending bool
	userData    []byte

	closeMu   sync.Mutex
	closed    bool
	onClose   []CloseFunc
	closeOnce sync.Once
}

// NewSession creates a session in the Connecting state. Client.Connect is the
// usual way to obtain one; repositories only store them.
func NewSession(
	guildID snowflake.ID,
	nodes *NodeManager,
	voice ports.VoiceGateway,
	repo SessionRepository,
) *Session {
	s := &Session{
		guildID: guildID,
		nodes:   nodes,
		voice:   voice,
		repo:    repo,
		ready:   make(chan struct{}),
		state:   domain.SessionConnecting,
		queue:   domain.NewQueue(),
		volume:  domain.DefaultVolume,
	}
	s.alive.Store(true)
	return s
}

// GuildID returns the guild the session belongs to.
func (s *Session) GuildID() snowflake.ID {
	return s.guildID
}

// Alive reports whether the session still accepts commands.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NodeName returns the name of the node the session is pinned to, or "" before selection.
func (s *Session) NodeName() string {
	if b := s.binding.Load(); b != nil {
		return b.transport.Name()
	}
	return ""
}

// OnClose registers fn to run once after the session terminated.
// If the session is already terminated fn runs immediately.
func (s *Session) OnClose(fn CloseFunc) {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		fn(s.guildID)
		return
	}
	s.onClose = append(s.onClose, fn)
	s.closeMu.Unlock()
}

// waitReady blocks until the session left Connecting.
func (s *Session) waitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.connectErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) markReady(err error) {
	s.readyOnce.Do(func() {
		s.connectErr = err
		close(s.ready)
	})
}

// setState moves the state machine. Callers hold mu.
func (s *Session) setState(next domain.SessionState) error {
	if !s.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, s.state, next)
	}
	slog.Debug("session state changed", "guild", s.guildID, "from", s.state, "to", next)
	s.state = next
	return nil
}

func (s *Session) transport() ports.NodeTransport {
	if b := s.binding.Load(); b != nil {
		return b.transport
	}
	return nil
}

func (s *Session) nodeAvailable() bool {
	t := s.transport()
	return t != nil && s.nodes.IsAvailable(t.Name())
}

func (s *Session) nodeUnavailableErr() error {
	return fmt.Errorf("%w: %s", domain.ErrNodeUnavailable, s.NodeName())
}

// exec runs fn in the exclusive section once the session is established.
// Liveness and node reachability are checked before waiting for the lock and again
// after acquiring it, so commands against a dead node fail without queueing.
func (s *Session) exec(ctx context.Context, fn func(ctx context.Context, node ports.NodeTransport) error) error {
	if !s.alive.Load() {
		return domain.ErrSessionTerminated
	}
	if err := s.waitReady(ctx); err != nil {
		return err
	}
	if !s.nodeAvailable() {
		return s.nodeUnavailableErr()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive.Load() || !s.state.AcceptsCommands() {
		return domain.ErrSessionTerminated
	}
	if !s.nodeAvailable() {
		return s.nodeUnavailableErr()
	}
	return fn(ctx, s.transport())
}

// local runs fn in the exclusive section without touching the node.
func (s *Session) local(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive.Load() {
		return domain.ErrSessionTerminated
	}
	return fn()
}

// establish selects a node, joins the voice channel and hands the voice info to the node.
func (s *Session) establish(ctx context.Context, channelID snowflake.ID) error {
	node, err := s.nodes.Select(s.guildID)
	if err != nil {
		s.abort(ctx, err, false)
		return err
	}
	s.binding.Store(&nodeBinding{transport: node})
	s.nodes.Bind(s.guildID, node.Name())

	info, err := s.voice.Join(ctx, s.guildID, channelID)
	if err != nil {
		err = fmt.Errorf("failed to join voice channel: %w", err)
		s.abort(ctx, err, true)
		return err
	}

	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		if err := s.voice.Leave(context.WithoutCancel(ctx), s.guildID); err != nil {
			slog.Warn("failed to leave voice channel", "guild", s.guildID, "error", err)
		}
		return domain.ErrSessionTerminated
	}

	s.voiceInfo = info
	_, err = node.UpdatePlayer(ctx, s.guildID, ports.PlayerUpdate{
		Voice:  &info,
		Volume: &s.volume,
	})
	if err != nil {
		s.mu.Unlock()
		err = fmt.Errorf("failed to send voice info to node %s: %w", node.Name(), err)
		s.abort(ctx, err, true)
		return err
	}

	if err := s.setState(domain.SessionConnected); err != nil {
		s.mu.Unlock()
		s.abort(ctx, err, true)
		return err
	}
	s.mu.Unlock()

	s.markReady(nil)
	slog.Info("voice session connected", "guild", s.guildID, "channel", channelID, "node", node.Name())
	return nil
}

// abort tears down a session that never reached Connected.
func (s *Session) abort(ctx context.Context, cause error, leaveVoice bool) {
	s.markReady(cause)
	if err := s.terminate(context.WithoutCancel(ctx), leaveVoice); err != nil {
		slog.Warn("failed to clean up session", "guild", s.guildID, "error", err)
	}
}

// applyVoice hands changed voice info to the node. Commands issued meanwhile
// wait on the exclusive section until the node acknowledged it.
func (s *Session) applyVoice(ctx context.Context, info ports.VoiceInfo) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive.Load() {
		return domain.ErrSessionTerminated
	}
	if err := s.setState(domain.SessionMigrating); err != nil {
		return err
	}
	defer func() {
		if err := s.setState(domain.SessionConnected); err != nil {
			slog.Error("failed to leave migrating state", "guild", s.guildID, "error", err)
		}
	}()

	s.voiceInfo = info
	if !s.nodeAvailable() {
		// The node gets the stored info when it comes back.
		s.voiceStale = true
		return s.nodeUnavailableErr()
	}

	if _, err := s.transport().UpdatePlayer(ctx, s.guildID, ports.PlayerUpdate{Voice: &info}); err != nil {
		s.voiceStale = true
		return fmt.Errorf("failed to update voice server: %w", err)
	}
	s.voiceStale = false
	slog.Info("voice server updated", "guild", s.guildID, "endpoint", info.Endpoint)
	return nil
}

// moveTo rejoins the guild's voice in channelID.
func (s *Session) moveTo(ctx context.Context, channelID snowflake.ID) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	same := s.voiceInfo.ChannelID == channelID
	s.mu.Unlock()
	if same {
		return nil
	}

	info, err := s.voice.Join(ctx, s.guildID, channelID)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	return s.applyVoice(ctx, info)
}

// migrateTo moves the player to target, replaying the current track where it was.
func (s *Session) migrateTo(ctx context.Context, target ports.NodeTransport) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive.Load() {
		return domain.ErrSessionTerminated
	}
	old := s.transport()
	if old.Name() == target.Name() {
		return nil
	}
	if !s.nodes.IsAvailable(target.Name()) {
		return fmt.Errorf("%w: %s", domain.ErrNodeUnavailable, target.Name())
	}

	if err := s.setState(domain.SessionMigrating); err != nil {
		return err
	}
	defer func() {
		if err := s.setState(domain.SessionConnected); err != nil {
			slog.Error("failed to leave migrating state", "guild", s.guildID, "error", err)
		}
	}()

	if _, err := target.UpdatePlayer(ctx, s.guildID, s.fullUpdateLocked(time.Now())); err != nil {
		return fmt.Errorf("failed to move player to node %s: %w", target.Name(), err)
	}

	s.binding.Store(&nodeBinding{transport: target})
	s.nodes.Unbind(s.guildID, old.Name())
	s.nodes.Bind(s.guildID, target.Name())
	s.voiceStale = false
	if s.current == nil {
		s.advanceLocked(ctx)
	}

	if err := s.nodes.Release(ctx, s.guildID, old.Name()); err != nil {
		slog.Warn("failed to destroy player on previous node",
			"guild", s.guildID,
			"node", old.Name(),
			"error", err,
		)
	}

	slog.Info("migrated session", "guild", s.guildID, "from", old.Name(), "to", target.Name())
	return nil
}

// resync brings a node that just became ready up to date. A resumed node still
// has the player, so only voice info it missed is sent; otherwise the whole
// player is rebuilt and an idle player starts its queue.
func (s *Session) resync(ctx context.Context, resumed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive.Load() || s.state != domain.SessionConnected || !s.nodeAvailable() {
		return nil
	}

	if resumed {
		if !s.voiceStale {
			return nil
		}
		voice := s.voiceInfo
		if _, err := s.transport().UpdatePlayer(ctx, s.guildID, ports.PlayerUpdate{Voice: &voice}); err != nil {
			return fmt.Errorf("failed to update voice server: %w", err)
		}
		s.voiceStale = false
		return nil
	}

	if _, err := s.transport().UpdatePlayer(ctx, s.guildID, s.fullUpdateLocked(time.Now())); err != nil {
		return fmt.Errorf("failed to restore player: %w", err)
	}
	s.voiceStale = false
	if s.current == nil {
		s.advanceLocked(ctx)
	}
	return nil
}

// fullUpdateLocked builds an update that recreates the whole player elsewhere.
func (s *Session) fullUpdateLocked(now time.Time) ports.PlayerUpdate {
	voice := s.voiceInfo
	volume := s.volume
	paused := s.paused
	update := ports.PlayerUpdate{
		Voice:   &voice,
		Volume:  &volume,
		Paused:  &paused,
		Filters: s.filters,
	}

	if s.current != nil {
		position := s.snapshotLocked().EstimatedPosition(now)
		update.Track = ports.PlayTrack(s.current.Track.Encoded)
		update.Position = &position
		if s.current.EndTime > 0 {
			end := s.current.EndTime
			update.EndTime = &end
		}
	}
	return update
}

// terminate moves the session to Terminated: alive is cleared first, then the node
// player is released (later, if the node is down), then voice is left, and
// finally close callbacks run once.
// Calling it on a terminated session is a no-op.
func (s *Session) terminate(ctx context.Context, leaveVoice bool) error {
	if !s.alive.CompareAndSwap(true, false) {
		return nil
	}
	s.markReady(domain.ErrSessionTerminated)

	s.mu.Lock()
	if err := s.setState(domain.SessionDisconnecting); err != nil {
		slog.Warn("unexpected state on disconnect", "guild", s.guildID, "error", err)
	}

	var errs []error
	node := s.transport()
	if node != nil {
		s.nodes.Unbind(s.guildID, node.Name())
		if err := s.nodes.Release(ctx, s.guildID, node.Name()); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy player: %w", err))
		}
	}
	if leaveVoice {
		if err := s.voice.Leave(ctx, s.guildID); err != nil {
			errs = append(errs, fmt.Errorf("failed to leave voice channel: %w", err))
		}
	}

	s.current = nil
	s.skipPending = false
	s.stopPending = false
	s.queue.Clear()
	s.state = domain.SessionTerminated
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, s); err != nil && !errors.Is(err, ErrSessionNotFound) {
		errs = append(errs, err)
	}

	s.runCloseCallbacks()
	slog.Info("voice session terminated", "guild", s.guildID)

	return errors.Join(errs...)
}

func (s *Session) runCloseCallbacks() {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		callbacks := s.onClose
		s.onClose = nil
		s.closeMu.Unlock()

		for _, fn := range callbacks {
			fn(s.guildID)
		}
	})
}

// snapshotLocked builds a PlayerState. Callers hold mu.
func (s *Session) snapshotLocked() domain.PlayerState {
	state := domain.PlayerState{
		GuildID:     s.guildID,
		ChannelID:   s.voiceInfo.ChannelID,
		NodeName:    s.NodeName(),
		State:       s.state,
		Position:    s.position,
		Paused:      s.paused,
		Volume:      s.volume,
		LoopMode:    s.loopMode,
		QueueLength: s.queue.Len(),
		UpdatedAt:   s.positionAt,
	}
	if s.current != nil {
		current := *s.current
		state.Current = &current
	}
	return state
}
