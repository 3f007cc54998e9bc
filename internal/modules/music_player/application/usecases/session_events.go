package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// handleEvent applies a node event to the session and returns it enriched with
// the user data of the entry it refers to. Events from a node the session is
// no longer pinned to are passed through untouched.
func (s *Session) handleEvent(ctx context.Context, e domain.Event) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive.Load() || e.Node() != s.NodeName() {
		return e
	}

	switch ev := e.(type) {
	case domain.TrackStartEvent:
		ev.Track = s.enrichLocked(ev.Track)
		return ev

	case domain.TrackEndEvent:
		ev.Track = s.enrichLocked(ev.Track)
		s.onTrackEndLocked(ctx, ev)
		return ev

	case domain.TrackExceptionEvent:
		ev.Track = s.enrichLocked(ev.Track)
		slog.Warn("track exception",
			"guild", s.guildID,
			"track", ev.Track.Info.Title,
			"severity", ev.Exception.Severity,
			"error", ev.Exception.Message,
		)
		return ev

	case domain.TrackStuckEvent:
		ev.Track = s.enrichLocked(ev.Track)
		slog.Warn("track stuck", "guild", s.guildID, "track", ev.Track.Info.Title, "threshold", ev.Threshold)
		return ev

	case domain.PlayerUpdateEvent:
		s.position = ev.Position
		s.positionAt = ev.Time
		return ev

	case domain.WebSocketClosedEvent:
		slog.Warn("node voice connection closed",
			"guild", s.guildID,
			"code", ev.Code,
			"reason", ev.Reason,
			"by_remote", ev.ByRemote,
		)
		return ev
	}

	return e
}

// enrichLocked swaps in the playing entry's track when it is the one the node reports.
func (s *Session) enrichLocked(t domain.Track) domain.Track {
	if s.current != nil && s.current.Track.Encoded == t.Encoded {
		return s.current.Track
	}
	return t
}

func (s *Session) onTrackEndLocked(ctx context.Context, ev domain.TrackEndEvent) {
	if ev.Reason == domain.TrackEndReplaced {
		return
	}

	ended := s.current
	skipped := s.skipPending
	s.current = nil
	s.skipPending = false
	s.stopPending = false
	s.position = 0
	s.positionAt = time.Time{}

	if !ev.Reason.ShouldAdvanceQueue() && !(ev.Reason == domain.TrackEndStopped && skipped) {
		return
	}

	if ended != nil {
		switch s.loopMode {
		case domain.LoopModeTrack:
			if ev.Reason == domain.TrackEndFinished && !skipped {
				if err := s.startLocked(ctx, *ended); err == nil {
					return
				}
			}
		case domain.LoopModeQueue:
			if ev.Reason != domain.TrackEndLoadFailed {
				s.queue.Append(*ended)
			}
		}
	}

	s.advanceLocked(ctx)
}

// advanceLocked starts the queue head. Entries the node rejects are dropped;
// if the node is gone the head is kept for when it returns.
func (s *Session) advanceLocked(ctx context.Context) {
	for {
		entry, ok := s.queue.PopFront()
		if !ok {
			return
		}
		if !s.nodeAvailable() {
			if err := s.queue.InsertAt(0, entry); err != nil {
				slog.Error("failed to requeue entry", "guild", s.guildID, "error", err)
			}
			return
		}

		err := s.startLocked(ctx, entry)
		if err == nil {
			return
		}
		slog.Error("failed to start queued track, skipping",
			"guild", s.guildID,
			"track", entry.Track.Info.Title,
			"error", err,
		)
	}
}

// startLocked sends entry to the node and makes it the current entry.
func (s *Session) startLocked(ctx context.Context, entry domain.QueueEntry) error {
	paused := false
	update := ports.PlayerUpdate{
		Track:  ports.PlayTrack(entry.Track.Encoded),
		Paused: &paused,
		Volume: entry.Volume,
	}
	if entry.StartTime > 0 {
		start := entry.StartTime
		update.Position = &start
	}
	if entry.EndTime > 0 {
		end := entry.EndTime
		update.EndTime = &end
	}
	if entry.Volume == nil && s.volume != domain.DefaultVolume {
		volume := s.volume
		update.Volume = &volume
	}

	if _, err := s.transport().UpdatePlayer(ctx, s.guildID, update); err != nil {
		return err
	}

	s.current = &entry
	s.paused = false
	s.position = entry.StartTime
	s.positionAt = time.Now()
	if entry.Volume != nil {
		s.volume = *entry.Volume
	}
	return nil
}
