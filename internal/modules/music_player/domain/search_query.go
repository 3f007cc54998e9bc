package domain

import (
	"net/url"
	"strings"
)

// SearchSource is the search prefix a node uses to pick a source manager.
type SearchSource string

const (
	SourceYouTube      SearchSource = "ytsearch"
	SourceYouTubeMusic SearchSource = "ytmsearch"
	SourceSoundCloud   SearchSource = "scsearch"
	SourceSpotify      SearchSource = "spsearch"
	// SourceDirect marks an identifier that is passed through unchanged.
	SourceDirect SearchSource = ""
)

// ParseSearchSource converts a source name to a SearchSource, defaulting to YouTube.
func ParseSearchSource(s string) SearchSource {
	switch strings.ToLower(s) {
	case "ytm", "youtube_music", string(SourceYouTubeMusic):
		return SourceYouTubeMusic
	case "sc", "soundcloud", string(SourceSoundCloud):
		return SourceSoundCloud
	case "sp", "spotify", string(SourceSpotify):
		return SourceSpotify
	default:
		return SourceYouTube
	}
}

// SearchQuery is the input of a track load: either a URL or a search term.
type SearchQuery struct {
	Term   string
	Source SearchSource
}

// NewSearchQuery builds a query from user input.
// URLs load directly; anything else searches the given source.
func NewSearchQuery(input string, source SearchSource) SearchQuery {
	input = strings.TrimSpace(input)
	if isURL(input) {
		return SearchQuery{Term: input, Source: SourceDirect}
	}
	return SearchQuery{Term: input, Source: source}
}

// IsURL reports whether the query loads a URL directly.
func (q SearchQuery) IsURL() bool {
	return q.Source == SourceDirect
}

// Identifier returns the string a node's track loader expects.
func (q SearchQuery) Identifier() string {
	if q.IsURL() {
		return q.Term
	}
	return string(q.Source) + ":" + q.Term
}

// IsValid returns true if the query is not empty.
func (q SearchQuery) IsValid() bool {
	return q.Term != ""
}

func isURL(input string) bool {
	if strings.HasPrefix(input, "www.") {
		return true
	}
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
