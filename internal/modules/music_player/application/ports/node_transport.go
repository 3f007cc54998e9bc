package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// EventSink receives events decoded from a node's event stream, in stream order.
type EventSink func(domain.Event)

// NodeTransport defines the connection to one remote audio node.
type NodeTransport interface {
	// Name returns the unique node name.
	Name() string

	// Connect opens the event stream. It returns once the connection is established;
	// the node is usable after it sent a ReadyEvent.
	Connect(ctx context.Context) error

	// Listen reads the event stream and feeds sink until the connection fails
	// or ctx is done. It always returns a non-nil error.
	Listen(ctx context.Context, sink EventSink) error

	// UpdatePlayer applies update to the guild's player, creating it if needed.
	UpdatePlayer(ctx context.Context, guildID snowflake.ID, update PlayerUpdate) (*PlayerInfo, error)

	// DestroyPlayer releases the guild's player on the node.
	DestroyPlayer(ctx context.Context, guildID snowflake.ID) error

	// GetPlayer returns the node-side player state.
	GetPlayer(ctx context.Context, guildID snowflake.ID) (*PlayerInfo, error)

	// LoadTracks resolves an identifier (URL or search term) into tracks.
	LoadTracks(ctx context.Context, identifier string) (domain.TrackList, error)

	// DecodeTrack resolves encoded track data back into a track.
	DecodeTrack(ctx context.Context, encoded string) (domain.Track, error)

	// Info returns the node's version and capabilities.
	Info(ctx context.Context) (*NodeInfo, error)

	// Close drops the event stream. Pending Listen calls return.
	Close() error
}

// TrackUpdate selects the track a player should play.
type TrackUpdate struct {
	Encoded *string // nil stops the current track
}

// PlayTrack returns an update that starts encoded.
func PlayTrack(encoded string) *TrackUpdate {
	return &TrackUpdate{Encoded: &encoded}
}

// StopTrack returns an update that stops the current track.
func StopTrack() *TrackUpdate {
	return &TrackUpdate{}
}

// PlayerUpdate is a partial player update. Nil fields are left unchanged.
type PlayerUpdate struct {
	Track     *TrackUpdate
	Position  *time.Duration
	EndTime   *time.Duration
	Volume    *int
	Paused    *bool
	Filters   json.RawMessage
	Voice     *VoiceInfo
	NoReplace bool // do not replace a playing track
}

// PlayerInfo is the node-side state of a guild player.
type PlayerInfo struct {
	GuildID   snowflake.ID
	Track     *domain.Track
	Volume    int
	Paused    bool
	Position  time.Duration
	Connected bool
	Ping      time.Duration
	Voice     VoiceInfo
	Filters   json.RawMessage
}

// NodeInfo describes a node's build and capabilities.
type NodeInfo struct {
	Version        string
	BuildTime      time.Time
	JVM            string
	Lavaplayer     string
	SourceManagers []string
	Filters        []string
	Plugins        []PluginInfo
}

// PluginInfo names a plugin installed on a node.
type PluginInfo struct {
	Name    string
	Version string
}
