package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// PlayerContext is the application's handle to one guild's playback.
// All methods are safe for concurrent use.
type PlayerContext struct {
	session *Session
}

func newPlayerContext(s *Session) *PlayerContext {
	return &PlayerContext{session: s}
}

// GuildID returns the guild the player belongs to.
func (p *PlayerContext) GuildID() snowflake.ID {
	return p.session.GuildID()
}

// Alive reports whether the underlying session is still usable.
func (p *PlayerContext) Alive() bool {
	return p.session.Alive()
}

// State returns the session lifecycle state.
func (p *PlayerContext) State() domain.SessionState {
	return p.session.State()
}

// NodeName returns the node the player lives on.
func (p *PlayerContext) NodeName() string {
	return p.session.NodeName()
}

// OnClose registers fn to run once when the session terminated.
func (p *PlayerContext) OnClose(fn CloseFunc) {
	p.session.OnClose(fn)
}

// Disconnect tears the session down. Calling it again is a no-op.
func (p *PlayerContext) Disconnect(ctx context.Context) error {
	return p.session.terminate(ctx, true)
}

// Play starts entry if nothing is playing, otherwise appends it to the queue.
// It reports whether the entry started.
func (p *PlayerContext) Play(ctx context.Context, entry domain.QueueEntry) (bool, error) {
	var started bool
	err := p.session.exec(ctx, func(ctx context.Context, _ ports.NodeTransport) error {
		s := p.session
		if s.current == nil {
			if err := s.startLocked(ctx, entry); err != nil {
				return fmt.Errorf("failed to play track: %w", err)
			}
			started = true
			return nil
		}

		s.queue.Append(entry)
		if s.stopPending && !s.skipPending {
			// The stopped track ends soon; let its track-end start the new entry.
			s.skipPending = true
		}
		return nil
	})
	return started, err
}

// Skip stops the current track. The next entry starts once the node reports the
// end of the skipped one. A skip issued while another is pending does nothing.
func (p *PlayerContext) Skip(ctx context.Context) error {
	return p.session.exec(ctx, func(ctx context.Context, node ports.NodeTransport) error {
		s := p.session
		if s.current == nil {
			return domain.ErrNoActiveTrack
		}
		if s.skipPending {
			return nil
		}

		s.skipPending = true
		if _, err := node.UpdatePlayer(ctx, s.guildID, ports.PlayerUpdate{Track: ports.StopTrack()}); err != nil {
			s.skipPending = false
			return fmt.Errorf("failed to skip track: %w", err)
		}
		return nil
	})
}

// Stop stops the current track and leaves the queue untouched.
func (p *PlayerContext) Stop(ctx context.Context) error {
	return p.session.exec(ctx, func(ctx context.Context, node ports.NodeTransport) error {
		s := p.session
		if s.current == nil {
			return domain.ErrNoActiveTrack
		}

		if _, err := node.UpdatePlayer(ctx, s.guildID, ports.PlayerUpdate{Track: ports.StopTrack()}); err != nil {
			return fmt.Errorf("failed to stop track: %w", err)
		}
		s.stopPending = true
		s.skipPending = false
		return nil
	})
}

// Pause pauses or resumes the current track.
func (p *PlayerContext) Pause(ctx context.Context, paused bool) error {
	return p.session.exec(ctx, func(ctx context.Context, node ports.NodeTransport) error {
		s := p.session
		if s.current == nil {
			return domain.ErrNoActiveTrack
		}
		if s.paused == paused {
			return nil
		}

		if _, err := node.UpdatePlayer(ctx, s.guildID, ports.PlayerUpdate{Paused: &paused}); err != nil {
			return fmt.Errorf("failed to set paused: %w", err)
		}

		now := time.Now()
		s.position = s.snapshotLocked().EstimatedPosition(now)
		s.positionAt = now
		s.paused = paused
		return nil
	})
}

// Seek moves the current track to position. Negative positions seek to the start.
func (p *PlayerContext) Seek(ctx context.Context, position time.Duration) error {
	position = max(position, 0)
	return p.session.exec(ctx, func(ctx context.Context, node ports.NodeTransport) error {
		s := p.session
		if s.current == nil {
			return domain.ErrNoActiveTrack
		}

		if _, err := node.UpdatePlayer(ctx, s.guildID, ports.PlayerUpdate{Position: &position}); err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}
		s.position = position
		s.positionAt = time.Now()
		return nil
	})
}

// SetVolume sets the player volume, clamped to [0, domain.MaxVolume].
func (p *PlayerContext) SetVolume(ctx context.Context, volume int) error {
	volume = domain.ClampVolume(volume)
	return p.session.exec(ctx, func(ctx context.Context, node ports.NodeTransport) error {
		if _, err := node.UpdatePlayer(ctx, p.session.guildID, ports.PlayerUpdate{Volume: &volume}); err != nil {
			return fmt.Errorf("failed to set volume: %w", err)
		}
		p.session.volume = volume
		return nil
	})
}

// SetFilters replaces the node-side audio filters, given as a Lavalink filters object.
func (p *PlayerContext) SetFilters(ctx context.Context, filters json.RawMessage) error {
	if filters == nil {
		filters = json.RawMessage("{}")
	}
	return p.session.exec(ctx, func(ctx context.Context, node ports.NodeTransport) error {
		if _, err := node.UpdatePlayer(ctx, p.session.guildID, ports.PlayerUpdate{Filters: filters}); err != nil {
			return fmt.Errorf("failed to set filters: %w", err)
		}
		p.session.filters = append(json.RawMessage(nil), filters...)
		return nil
	})
}

// SetLoopMode changes what happens when a track finishes.
func (p *PlayerContext) SetLoopMode(mode domain.LoopMode) error {
	return p.session.local(func() error {
		p.session.loopMode = mode
		return nil
	})
}

// Snapshot returns the locally tracked player state.
func (p *PlayerContext) Snapshot() domain.PlayerState {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	return p.session.snapshotLocked()
}

// FetchPlayer asks the node for its view of the player.
func (p *PlayerContext) FetchPlayer(ctx context.Context) (*ports.PlayerInfo, error) {
	var info *ports.PlayerInfo
	err := p.session.exec(ctx, func(ctx context.Context, node ports.NodeTransport) error {
		var err error
		info, err = node.GetPlayer(ctx, p.session.guildID)
		return err
	})
	return info, err
}

// UserData returns a copy of the application payload attached to the player.
func (p *PlayerContext) UserData() []byte {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	return append([]byte(nil), p.session.userData...)
}

// SetUserData attaches an application payload to the player.
func (p *PlayerContext) SetUserData(data []byte) {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	p.session.userData = append([]byte(nil), data...)
}

// Enqueue appends entries to the queue.
func (p *PlayerContext) Enqueue(entries ...domain.QueueEntry) error {
	return p.session.local(func() error {
		p.session.queue.Append(entries...)
		return nil
	})
}

// InsertAt inserts entry at index; index == QueueLen appends.
func (p *PlayerContext) InsertAt(index int, entry domain.QueueEntry) error {
	return p.session.local(func() error {
		return p.session.queue.InsertAt(index, entry)
	})
}

// RemoveAt removes and returns the queued entry at index.
func (p *PlayerContext) RemoveAt(index int) (domain.QueueEntry, error) {
	var removed domain.QueueEntry
	err := p.session.local(func() error {
		var err error
		removed, err = p.session.queue.RemoveAt(index)
		return err
	})
	return removed, err
}

// Swap exchanges two queued entries.
func (p *PlayerContext) Swap(i, j int) error {
	return p.session.local(func() error {
		return p.session.queue.Swap(i, j)
	})
}

// ReplaceQueue replaces every queued entry with entries.
func (p *PlayerContext) ReplaceQueue(entries []domain.QueueEntry) error {
	return p.session.local(func() error {
		p.session.queue.Replace(entries)
		return nil
	})
}

// ClearQueue empties the queue and returns how many entries were removed.
func (p *PlayerContext) ClearQueue() (int, error) {
	var n int
	err := p.session.local(func() error {
		n = p.session.queue.Clear()
		return nil
	})
	return n, err
}

// ShuffleQueue randomizes the queue order.
func (p *PlayerContext) ShuffleQueue() error {
	return p.session.local(func() error {
		p.session.queue.Shuffle(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		return nil
	})
}

// QueueEntry returns the queued entry at index.
func (p *PlayerContext) QueueEntry(index int) (domain.QueueEntry, error) {
	return p.session.queue.Get(index)
}

// QueueLen returns the number of queued entries.
func (p *PlayerContext) QueueLen() int {
	return p.session.queue.Len()
}

// Queue returns a copy of the queued entries.
func (p *PlayerContext) Queue() []domain.QueueEntry {
	return p.session.queue.List()
}
