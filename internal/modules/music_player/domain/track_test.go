package domain

import (
	"bytes"
	"testing"
	"time"
)

func TestTrack_UserDataIsCopied(t *testing.T) {
	payload := []byte(`{"requester":"123"}`)
	track := NewTrack("encoded", TrackInfo{Title: "Song"}).WithUserData(payload)

	payload[0] = 'X'
	if got := track.UserData(); !bytes.Equal(got, []byte(`{"requester":"123"}`)) {
		t.Errorf("expected user data to be detached from input, got %s", got)
	}

	out := track.UserData()
	out[0] = 'Y'
	if got := track.UserData(); got[0] != '{' {
		t.Errorf("expected user data to be detached from output, got %s", got)
	}
}

func TestTrack_WithUserDataLeavesOriginal(t *testing.T) {
	base := NewTrack("encoded", TrackInfo{Title: "Song"})
	tagged := base.WithUserData([]byte{1, 2, 3})

	if base.HasUserData() {
		t.Error("expected original track to stay without user data")
	}
	if !tagged.HasUserData() {
		t.Error("expected tagged track to carry user data")
	}
	if tagged.Encoded != base.Encoded {
		t.Errorf("expected encoded %q, got %q", base.Encoded, tagged.Encoded)
	}
}

func TestTrack_FormattedDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		isStream bool
		want     string
	}{
		{name: "seconds only", duration: 45 * time.Second, want: "00:45"},
		{name: "minutes", duration: 3*time.Minute + 30*time.Second, want: "03:30"},
		{name: "hours", duration: time.Hour + 2*time.Minute + 3*time.Second, want: "01:02:03"},
		{name: "stream", duration: time.Hour, isStream: true, want: "LIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := NewTrack("e", TrackInfo{Duration: tt.duration, IsStream: tt.isStream})
			if got := track.FormattedDuration(); got != tt.want {
				t.Errorf("FormattedDuration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrack_Source(t *testing.T) {
	tests := []struct {
		sourceName string
		want       TrackSource
	}{
		{sourceName: "youtube", want: TrackSourceYouTube},
		{sourceName: "bandcamp", want: TrackSourceBandcamp},
		{sourceName: "deezer", want: TrackSourceOther},
	}

	for _, tt := range tests {
		t.Run(tt.sourceName, func(t *testing.T) {
			track := NewTrack("e", TrackInfo{SourceName: tt.sourceName})
			if got := track.Source(); got != tt.want {
				t.Errorf("Source() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueueEntry_WithVolumeClamps(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -5, want: 0},
		{in: 150, want: 150},
		{in: 5000, want: MaxVolume},
	}

	for _, tt := range tests {
		entry := NewQueueEntry(NewTrack("e", TrackInfo{})).WithVolume(tt.in)
		if entry.Volume == nil || *entry.Volume != tt.want {
			t.Errorf("WithVolume(%d) = %v, want %d", tt.in, entry.Volume, tt.want)
		}
	}
}

func TestTrackList_First(t *testing.T) {
	tracks := []Track{NewTrack("a", TrackInfo{}), NewTrack("b", TrackInfo{})}

	tests := []struct {
		name string
		list TrackList
		want string
		ok   bool
	}{
		{name: "empty", list: TrackList{}, ok: false},
		{name: "search picks first", list: TrackList{Type: TrackListTypeSearch, Tracks: tracks}, want: "a", ok: true},
		{
			name: "playlist honours selection",
			list: TrackList{Type: TrackListTypePlaylist, SelectedTrack: 1, Tracks: tracks},
			want: "b",
			ok:   true,
		},
		{
			name: "playlist without selection",
			list: TrackList{Type: TrackListTypePlaylist, SelectedTrack: -1, Tracks: tracks},
			want: "a",
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.list.First()
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && got.Encoded != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Encoded)
			}
		})
	}
}

func TestPlayerState_EstimatedPosition(t *testing.T) {
	now := time.Now()
	entry := NewQueueEntry(NewTrack("e", TrackInfo{Duration: time.Minute}))

	tests := []struct {
		name  string
		state PlayerState
		want  time.Duration
	}{
		{
			name:  "idle keeps reported position",
			state: PlayerState{Position: 5 * time.Second, UpdatedAt: now.Add(-time.Second)},
			want:  5 * time.Second,
		},
		{
			name:  "paused keeps reported position",
			state: PlayerState{Current: &entry, Paused: true, Position: 5 * time.Second, UpdatedAt: now.Add(-time.Second)},
			want:  5 * time.Second,
		},
		{
			name:  "playing extrapolates",
			state: PlayerState{Current: &entry, Position: 5 * time.Second, UpdatedAt: now.Add(-2 * time.Second)},
			want:  7 * time.Second,
		},
		{
			name:  "capped at duration",
			state: PlayerState{Current: &entry, Position: 59 * time.Second, UpdatedAt: now.Add(-10 * time.Second)},
			want:  time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.EstimatedPosition(now); got != tt.want {
				t.Errorf("EstimatedPosition() = %v, want %v", got, tt.want)
			}
		})
	}
}
