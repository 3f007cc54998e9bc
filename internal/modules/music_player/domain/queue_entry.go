package domain

import (
	"time"
)

// QueueEntry represents a track's placement in the queue together with the
// playback hints that apply when it starts.
type QueueEntry struct {
	Track      Track
	StartTime  time.Duration // zero plays from the beginning
	EndTime    time.Duration // zero plays to the end
	Volume     *int          // overrides the player volume when set
	EnqueuedAt time.Time
}

// NewQueueEntry creates a new QueueEntry with the current time as EnqueuedAt.
func NewQueueEntry(track Track) QueueEntry {
	return QueueEntry{
		Track:      track,
		EnqueuedAt: time.Now().UTC(),
	}
}

// WithStartTime returns a copy of the entry that starts playing at pos.
func (e QueueEntry) WithStartTime(pos time.Duration) QueueEntry {
	e.StartTime = pos
	return e
}

// WithEndTime returns a copy of the entry that stops playing at pos.
func (e QueueEntry) WithEndTime(pos time.Duration) QueueEntry {
	e.EndTime = pos
	return e
}

// WithVolume returns a copy of the entry played at the given volume.
func (e QueueEntry) WithVolume(volume int) QueueEntry {
	v := ClampVolume(volume)
	e.Volume = &v
	return e
}

// MaxVolume is the highest volume a node accepts.
const MaxVolume = 1000

// DefaultVolume is the volume a new player starts with.
const DefaultVolume = 100

// ClampVolume restricts v to [0, MaxVolume].
func ClampVolume(v int) int {
	return min(max(v, 0), MaxVolume)
}
