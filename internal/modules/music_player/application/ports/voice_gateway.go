package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// VoiceInfo is the voice connection info a node needs to join a voice server.
type VoiceInfo struct {
	ChannelID snowflake.ID
	SessionID string
	Token     string
	Endpoint  string
}

// IsComplete returns true once both the voice state and the voice server parts are present.
func (v VoiceInfo) IsComplete() bool {
	return v.SessionID != "" && v.Token != "" && v.Endpoint != ""
}

// VoiceGateway defines the interface of the voice gateway provider.
type VoiceGateway interface {
	// Join moves the bot into channelID and returns once the voice info is complete.
	Join(ctx context.Context, guildID, channelID snowflake.ID) (VoiceInfo, error)

	// Leave disconnects the bot from the guild's voice channel.
	Leave(ctx context.Context, guildID snowflake.ID) error

	// SetListener registers the receiver of voice updates that happen after Join.
	SetListener(listener VoiceListener)
}

// VoiceListener receives voice updates for guilds with a live session.
type VoiceListener interface {
	// VoiceServerUpdated is called when the voice server or channel changed.
	VoiceServerUpdated(guildID snowflake.ID, info VoiceInfo)

	// VoiceDisconnected is called when the bot left the voice channel.
	VoiceDisconnected(guildID snowflake.ID)
}
