package domain

// TrackListType represents the kind of result a track load produced.
type TrackListType int

const (
	TrackListTypeTrack TrackListType = iota
	TrackListTypePlaylist
	TrackListTypeSearch
)

// String returns a human-readable representation of the list type.
func (t TrackListType) String() string {
	switch t {
	case TrackListTypePlaylist:
		return "playlist"
	case TrackListTypeSearch:
		return "search"
	default:
		return "track"
	}
}

// TrackList is a successful track load.
type TrackList struct {
	Type          TrackListType
	Name          string // playlist name; empty for other types
	SelectedTrack int    // index of the selected playlist track, or -1
	Tracks        []Track
}

// First returns the track that should play when the list is used as a single request.
// For a playlist with a selected track that is the selected one.
func (l TrackList) First() (Track, bool) {
	if len(l.Tracks) == 0 {
		return Track{}, false
	}
	if l.Type == TrackListTypePlaylist && l.SelectedTrack >= 0 && l.SelectedTrack < len(l.Tracks) {
		return l.Tracks[l.SelectedTrack], true
	}
	return l.Tracks[0], true
}

// Entries wraps every track of the list into queue entries carrying userData.
func (l TrackList) Entries(userData []byte) []QueueEntry {
	entries := make([]QueueEntry, len(l.Tracks))
	for i, t := range l.Tracks {
		entries[i] = NewQueueEntry(t.WithUserData(userData))
	}
	return entries
}
