package usecases

import (
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// Re-export domain types for callers of the player.
// This allows applications to depend only on usecases without importing domain directly.

// Track is an alias for domain.Track.
type Track = domain.Track

// TrackInfo is an alias for domain.TrackInfo.
type TrackInfo = domain.TrackInfo

// TrackList is an alias for domain.TrackList.
type TrackList = domain.TrackList

// QueueEntry is an alias for domain.QueueEntry.
type QueueEntry = domain.QueueEntry

// SearchQuery is an alias for domain.SearchQuery.
type SearchQuery = domain.SearchQuery

// LoopMode is an alias for domain.LoopMode.
type LoopMode = domain.LoopMode

// PlayerState is an alias for domain.PlayerState.
type PlayerState = domain.PlayerState

// Event is an alias for domain.Event.
type Event = domain.Event
