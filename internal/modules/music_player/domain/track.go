package domain

import (
	"strconv"
	"time"
)

// TrackInfo is the display metadata a node reports for a track.
type TrackInfo struct {
	Identifier string
	Title      string
	Author     string
	Duration   time.Duration
	URI        string
	ArtworkURL string
	ISRC       string
	SourceName string // e.g., "youtube", "spotify", "soundcloud"
	IsStream   bool
}

// Track represents a playable audio track as loaded from a node.
// Tracks are values: once loaded they are never modified in place,
// and the attached user data is copied on every way in and out.
type Track struct {
	Encoded  string // node-encoded track data, opaque to the client
	Info     TrackInfo
	userData []byte
}

// NewTrack creates a new Track without user data.
func NewTrack(encoded string, info TrackInfo) Track {
	return Track{
		Encoded: encoded,
		Info:    info,
	}
}

// WithUserData returns a copy of the track carrying the given payload.
// The payload is owned by the caller and is never interpreted.
func (t Track) WithUserData(data []byte) Track {
	t.userData = cloneBytes(data)
	return t
}

// UserData returns a copy of the payload attached by the application, or nil.
func (t Track) UserData() []byte {
	return cloneBytes(t.userData)
}

// HasUserData reports whether an application payload is attached.
func (t Track) HasUserData() bool {
	return t.userData != nil
}

// Source returns the parsed TrackSource for this track.
func (t Track) Source() TrackSource {
	return ParseTrackSource(t.Info.SourceName)
}

// IsValid returns true if the track has the minimum required fields.
func (t Track) IsValid() bool {
	return t.Encoded != ""
}

// FormattedDuration returns the duration as a human-readable string (mm:ss or hh:mm:ss).
func (t Track) FormattedDuration() string {
	if t.Info.IsStream {
		return "LIVE"
	}
	return FormatDuration(t.Info.Duration)
}

// FormatDuration formats d as mm:ss, or hh:mm:ss when it spans an hour or more.
func FormatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
	}
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
