package domain

// TrackSource represents the origin platform of a track.
type TrackSource string

const (
	TrackSourceYouTube    TrackSource = "youtube"
	TrackSourceSpotify    TrackSource = "spotify"
	TrackSourceSoundCloud TrackSource = "soundcloud"
	TrackSourceTwitch     TrackSource = "twitch"
	TrackSourceBandcamp   TrackSource = "bandcamp"
	TrackSourceHTTP       TrackSource = "http"
	TrackSourceOther      TrackSource = "other"
)

var knownSources = map[string]TrackSource{
	"youtube":    TrackSourceYouTube,
	"spotify":    TrackSourceSpotify,
	"soundcloud": TrackSourceSoundCloud,
	"twitch":     TrackSourceTwitch,
	"bandcamp":   TrackSourceBandcamp,
	"http":       TrackSourceHTTP,
}

// ParseTrackSource converts a node source name to a TrackSource.
func ParseTrackSource(name string) TrackSource {
	if s, ok := knownSources[name]; ok {
		return s
	}
	return TrackSourceOther
}

