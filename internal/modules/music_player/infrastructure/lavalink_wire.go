package infrastructure

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/json"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

func millis(d lavalink.Duration) time.Duration {
	return time.Duration(d.Milliseconds()) * time.Millisecond
}

func toDuration(d time.Duration) lavalink.Duration {
	return lavalink.Duration(d.Milliseconds())
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// convertMessage converts one decoded node message to an event.
// Messages the client has no use for yield nil.
func convertMessage(nodeName string, msg lavalink.Message) domain.Event {
	header := domain.EventHeader{NodeName: nodeName}
	if e, ok := msg.(lavalink.Event); ok {
		header.GuildID = e.GuildID()
	}

	switch m := msg.(type) {
	case lavalink.ReadyMessage:
		return domain.ReadyEvent{
			EventHeader: header,
			SessionID:   m.SessionID,
			Resumed:     m.Resumed,
		}

	case lavalink.PlayerUpdateMessage:
		header.GuildID = m.GuildID
		return domain.PlayerUpdateEvent{
			EventHeader: header,
			Time:        m.State.Time.Time,
			Position:    millis(m.State.Position),
			Connected:   m.State.Connected,
			Ping:        time.Duration(m.State.Ping) * time.Millisecond,
		}

	case lavalink.StatsMessage:
		return domain.StatsEvent{
			EventHeader: header,
			Stats:       convertStats(lavalink.Stats(m)),
		}

	case lavalink.TrackStartEvent:
		return domain.TrackStartEvent{
			EventHeader: header,
			Track:       convertTrack(m.Track),
		}

	case lavalink.TrackEndEvent:
		return domain.TrackEndEvent{
			EventHeader: header,
			Track:       convertTrack(m.Track),
			Reason:      convertEndReason(m.Reason),
		}

	case lavalink.TrackExceptionEvent:
		return domain.TrackExceptionEvent{
			EventHeader: header,
			Track:       convertTrack(m.Track),
			Exception: domain.TrackException{
				Message:  m.Exception.Message,
				Severity: domain.ExceptionSeverity(m.Exception.Severity),
				Cause:    m.Exception.Cause,
			},
		}

	case lavalink.TrackStuckEvent:
		return domain.TrackStuckEvent{
			EventHeader: header,
			Track:       convertTrack(m.Track),
			Threshold:   millis(m.Threshold),
		}

	case lavalink.WebSocketClosedEvent:
		return domain.WebSocketClosedEvent{
			EventHeader: header,
			Code:        m.Code,
			Reason:      m.Reason,
			ByRemote:    m.ByRemote,
		}

	default:
		slog.Debug("ignoring node message", "node", nodeName, "op", msg.Op())
		return nil
	}
}

// convertTrack converts a Lavalink track to a domain track.
// Streams report the maximum length, which is dropped.
func convertTrack(track lavalink.Track) domain.Track {
	info := track.Info
	var length time.Duration
	if !info.IsStream {
		length = millis(info.Length)
	}
	return domain.NewTrack(track.Encoded, domain.TrackInfo{
		Identifier: info.Identifier,
		Title:      info.Title,
		Author:     info.Author,
		Duration:   length,
		URI:        derefString(info.URI),
		ArtworkURL: derefString(info.ArtworkURL),
		ISRC:       derefString(info.ISRC),
		SourceName: info.SourceName,
		IsStream:   info.IsStream,
	})
}

func convertTracks(tracks []lavalink.Track) []domain.Track {
	converted := make([]domain.Track, len(tracks))
	for i, t := range tracks {
		converted[i] = convertTrack(t)
	}
	return converted
}

func convertEndReason(reason lavalink.TrackEndReason) domain.TrackEndReason {
	switch reason {
	case lavalink.TrackEndReasonFinished:
		return domain.TrackEndFinished
	case lavalink.TrackEndReasonLoadFailed:
		return domain.TrackEndLoadFailed
	case lavalink.TrackEndReasonStopped:
		return domain.TrackEndStopped
	case lavalink.TrackEndReasonReplaced:
		return domain.TrackEndReplaced
	case lavalink.TrackEndReasonCleanup:
		return domain.TrackEndCleanup
	default:
		return domain.TrackEndStopped
	}
}

func convertStats(s lavalink.Stats) domain.NodeStats {
	stats := domain.NodeStats{
		Players:        s.Players,
		PlayingPlayers: s.PlayingPlayers,
		Uptime:         millis(s.Uptime),
		Memory: domain.MemoryStats{
			Free:       int64(s.Memory.Free),
			Used:       int64(s.Memory.Used),
			Allocated:  int64(s.Memory.Allocated),
			Reservable: int64(s.Memory.Reservable),
		},
		CPU: domain.CPUStats{
			Cores:        s.CPU.Cores,
			SystemLoad:   s.CPU.SystemLoad,
			LavalinkLoad: s.CPU.LavalinkLoad,
		},
	}
	if s.FrameStats != nil {
		stats.FrameStats = &domain.FrameStats{
			Sent:    s.FrameStats.Sent,
			Nulled:  s.FrameStats.Nulled,
			Deficit: s.FrameStats.Deficit,
		}
	}
	return stats
}

func convertPlayer(p lavalink.Player) (*ports.PlayerInfo, error) {
	filters, err := json.Marshal(p.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}

	info := &ports.PlayerInfo{
		GuildID:   p.GuildID,
		Volume:    p.Volume,
		Paused:    p.Paused,
		Position:  millis(p.State.Position),
		Connected: p.State.Connected,
		Ping:      time.Duration(p.State.Ping) * time.Millisecond,
		Voice: ports.VoiceInfo{
			SessionID: p.Voice.SessionID,
			Token:     p.Voice.Token,
			Endpoint:  p.Voice.Endpoint,
		},
		Filters: filters,
	}
	if p.Track != nil {
		track := convertTrack(*p.Track)
		info.Track = &track
	}
	return info, nil
}

// newPlayerUpdate builds the PATCH body for update.
func newPlayerUpdate(update ports.PlayerUpdate) (lavalink.PlayerUpdate, error) {
	var opts []lavalink.PlayerUpdateOpt
	if update.Track != nil {
		if update.Track.Encoded == nil {
			opts = append(opts, lavalink.WithNullTrack())
		} else {
			opts = append(opts, lavalink.WithEncodedTrack(*update.Track.Encoded))
		}
	}
	if update.Position != nil {
		opts = append(opts, lavalink.WithPosition(toDuration(*update.Position)))
	}
	if update.EndTime != nil {
		opts = append(opts, lavalink.WithEndTime(toDuration(*update.EndTime)))
	}
	if update.Volume != nil {
		opts = append(opts, lavalink.WithVolume(*update.Volume))
	}
	if update.Paused != nil {
		opts = append(opts, lavalink.WithPaused(*update.Paused))
	}
	if update.Voice != nil {
		opts = append(opts, lavalink.WithVoice(lavalink.VoiceState{
			Token:     update.Voice.Token,
			Endpoint:  update.Voice.Endpoint,
			SessionID: update.Voice.SessionID,
		}))
	}
	if len(update.Filters) > 0 {
		var filters lavalink.Filters
		if err := json.Unmarshal(update.Filters, &filters); err != nil {
			return lavalink.PlayerUpdate{}, fmt.Errorf("invalid filters: %w", err)
		}
		opts = append(opts, lavalink.WithFilters(filters))
	}
	opts = append(opts, lavalink.WithNoReplace(update.NoReplace))

	req := lavalink.DefaultPlayerUpdate()
	req.Apply(opts)
	return *req, nil
}
