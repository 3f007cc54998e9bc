package domain

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// PlayerState is a read-only snapshot of a guild session taken under its lock.
type PlayerState struct {
	GuildID     snowflake.ID
	ChannelID   snowflake.ID
	NodeName    string
	State       SessionState
	Current     *QueueEntry
	Position    time.Duration
	Paused      bool
	Volume      int
	LoopMode    LoopMode
	QueueLength int
	UpdatedAt   time.Time // when Position was last reported
}

// IsIdle returns true if nothing is playing.
func (p PlayerState) IsIdle() bool {
	return p.Current == nil
}

// EstimatedPosition extrapolates Position to now for a playing, unpaused track.
func (p PlayerState) EstimatedPosition(now time.Time) time.Duration {
	if p.Current == nil || p.Paused || p.UpdatedAt.IsZero() {
		return p.Position
	}
	pos := p.Position + now.Sub(p.UpdatedAt)
	if d := p.Current.Track.Info.Duration; !p.Current.Track.Info.IsStream && d > 0 && pos > d {
		return d
	}
	return pos
}
