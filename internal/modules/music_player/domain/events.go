package domain

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// TrackEndReason represents why a track ended.
type TrackEndReason string

const (
	// TrackEndFinished means the track finished normally.
	TrackEndFinished TrackEndReason = "finished"
	// TrackEndLoadFailed means the track failed to load.
	TrackEndLoadFailed TrackEndReason = "loadFailed"
	// TrackEndStopped means the track was stopped by a command.
	TrackEndStopped TrackEndReason = "stopped"
	// TrackEndReplaced means the track was replaced by another.
	TrackEndReplaced TrackEndReason = "replaced"
	// TrackEndCleanup means the node cleaned up the player.
	TrackEndCleanup TrackEndReason = "cleanup"
)

// ShouldAdvanceQueue returns true if this end reason should advance the queue.
func (r TrackEndReason) ShouldAdvanceQueue() bool {
	return r == TrackEndFinished || r == TrackEndLoadFailed
}

// EventKind names an Event variant.
type EventKind string

const (
	EventReady           EventKind = "ready"
	EventTrackStart      EventKind = "track_start"
	EventTrackEnd        EventKind = "track_end"
	EventTrackException  EventKind = "track_exception"
	EventTrackStuck      EventKind = "track_stuck"
	EventWebSocketClosed EventKind = "websocket_closed"
	EventPlayerUpdate    EventKind = "player_update"
	EventStats           EventKind = "stats"
	EventNodeUnavailable EventKind = "node_unavailable"
)

// Event is a message emitted by a node, or by the client on behalf of a node.
// The set of variants is closed; handlers switch on the concrete type.
type Event interface {
	Kind() EventKind
	// Guild returns the guild the event belongs to, or zero for node-level events.
	Guild() snowflake.ID
	// Node returns the name of the node that produced the event.
	Node() string
	sealed()
}

// EventHeader carries the routing fields shared by every event.
type EventHeader struct {
	GuildID  snowflake.ID
	NodeName string
}

func (h EventHeader) Guild() snowflake.ID { return h.GuildID }
func (h EventHeader) Node() string        { return h.NodeName }
func (EventHeader) sealed()               {}

// ReadyEvent is emitted when a node accepted the client's websocket session.
type ReadyEvent struct {
	EventHeader
	SessionID string
	Resumed   bool
}

// TrackStartEvent is emitted when a track started playing.
type TrackStartEvent struct {
	EventHeader
	Track Track
}

// TrackEndEvent is emitted when a track stopped playing for any reason.
type TrackEndEvent struct {
	EventHeader
	Track  Track
	Reason TrackEndReason
}

// ExceptionSeverity classifies a track exception.
type ExceptionSeverity string

const (
	SeverityCommon     ExceptionSeverity = "common"
	SeveritySuspicious ExceptionSeverity = "suspicious"
	SeverityFault      ExceptionSeverity = "fault"
)

// TrackException describes a playback failure reported by a node.
type TrackException struct {
	Message  string
	Severity ExceptionSeverity
	Cause    string
}

// TrackExceptionEvent is emitted when a track failed during playback.
type TrackExceptionEvent struct {
	EventHeader
	Track     Track
	Exception TrackException
}

// TrackStuckEvent is emitted when a track produced no audio for Threshold.
type TrackStuckEvent struct {
	EventHeader
	Track     Track
	Threshold time.Duration
}

// WebSocketClosedEvent is emitted when the node's voice websocket to Discord closed.
type WebSocketClosedEvent struct {
	EventHeader
	Code     int
	Reason   string
	ByRemote bool
}

// PlayerUpdateEvent carries a periodic player position report.
type PlayerUpdateEvent struct {
	EventHeader
	Time      time.Time
	Position  time.Duration
	Connected bool
	Ping      time.Duration
}

// StatsEvent carries node statistics.
type StatsEvent struct {
	EventHeader
	Stats NodeStats
}

// NodeUnavailableEvent is emitted once per bound guild when its node's transport failed.
type NodeUnavailableEvent struct {
	EventHeader
	Err error
}

func (ReadyEvent) Kind() EventKind           { return EventReady }
func (TrackStartEvent) Kind() EventKind      { return EventTrackStart }
func (TrackEndEvent) Kind() EventKind        { return EventTrackEnd }
func (TrackExceptionEvent) Kind() EventKind  { return EventTrackException }
func (TrackStuckEvent) Kind() EventKind      { return EventTrackStuck }
func (WebSocketClosedEvent) Kind() EventKind { return EventWebSocketClosed }
func (PlayerUpdateEvent) Kind() EventKind    { return EventPlayerUpdate }
func (StatsEvent) Kind() EventKind           { return EventStats }
func (NodeUnavailableEvent) Kind() EventKind { return EventNodeUnavailable }

// Compile-time checks that every variant implements Event.
var (
	_ Event = ReadyEvent{}
	_ Event = TrackStartEvent{}
	_ Event = TrackEndEvent{}
	_ Event = TrackExceptionEvent{}
	_ Event = TrackStuckEvent{}
	_ Event = WebSocketClosedEvent{}
	_ Event = PlayerUpdateEvent{}
	_ Event = StatsEvent{}
	_ Event = NodeUnavailableEvent{}
)
