package domain

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

func TestTrackEndReason_ShouldAdvanceQueue(t *testing.T) {
	tests := []struct {
		reason TrackEndReason
		want   bool
	}{
		{reason: TrackEndFinished, want: true},
		{reason: TrackEndLoadFailed, want: true},
		{reason: TrackEndStopped, want: false},
		{reason: TrackEndReplaced, want: false},
		{reason: TrackEndCleanup, want: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.ShouldAdvanceQueue(); got != tt.want {
				t.Errorf("ShouldAdvanceQueue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvent_Header(t *testing.T) {
	header := EventHeader{GuildID: snowflake.ID(42), NodeName: "main"}

	events := []Event{
		ReadyEvent{EventHeader: header},
		TrackStartEvent{EventHeader: header},
		TrackEndEvent{EventHeader: header},
		TrackExceptionEvent{EventHeader: header},
		TrackStuckEvent{EventHeader: header},
		WebSocketClosedEvent{EventHeader: header},
		PlayerUpdateEvent{EventHeader: header},
		StatsEvent{EventHeader: header},
		NodeUnavailableEvent{EventHeader: header},
	}

	kinds := make(map[EventKind]bool)
	for _, e := range events {
		if e.Guild() != header.GuildID {
			t.Errorf("%s: expected guild %d, got %d", e.Kind(), header.GuildID, e.Guild())
		}
		if e.Node() != header.NodeName {
			t.Errorf("%s: expected node %q, got %q", e.Kind(), header.NodeName, e.Node())
		}
		kinds[e.Kind()] = true
	}
	if len(kinds) != len(events) {
		t.Errorf("expected %d distinct kinds, got %d", len(events), len(kinds))
	}
}
