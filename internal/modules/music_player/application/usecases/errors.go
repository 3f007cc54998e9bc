package usecases

import (
	"errors"

	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// Errors for the music player use cases.
var (
	// ErrSessionNotFound is returned when a guild has no live session.
	ErrSessionNotFound = errors.New("no voice session for guild")

	// Re-exported domain errors so callers can match without importing domain.
	ErrIndexOutOfRange   = domain.ErrIndexOutOfRange
	ErrNoActiveTrack     = domain.ErrNoActiveTrack
	ErrNodeUnavailable   = domain.ErrNodeUnavailable
	ErrSessionTerminated = domain.ErrSessionTerminated
	ErrLoadFailed        = domain.ErrLoadFailed
)
