package domain

import (
	"testing"
)

func TestNewSearchQuery(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		source         SearchSource
		wantIdentifier string
		wantIsURL      bool
	}{
		{
			name:           "search term",
			input:          "never gonna give you up",
			source:         SourceYouTube,
			wantIdentifier: "ytsearch:never gonna give you up",
		},
		{
			name:           "search term with whitespace",
			input:          "  hello world  ",
			source:         SourceSoundCloud,
			wantIdentifier: "scsearch:hello world",
		},
		{
			name:           "https URL ignores source",
			input:          "https://youtube.com/watch?v=dQw4w9WgXcQ",
			source:         SourceYouTubeMusic,
			wantIdentifier: "https://youtube.com/watch?v=dQw4w9WgXcQ",
			wantIsURL:      true,
		},
		{
			name:           "http URL",
			input:          "http://example.com/audio.mp3",
			source:         SourceYouTube,
			wantIdentifier: "http://example.com/audio.mp3",
			wantIsURL:      true,
		},
		{
			name:           "www URL",
			input:          "www.youtube.com/watch?v=abc",
			source:         SourceYouTube,
			wantIdentifier: "www.youtube.com/watch?v=abc",
			wantIsURL:      true,
		},
		{
			name:           "scheme without host is a search",
			input:          "https:nothing",
			source:         SourceSpotify,
			wantIdentifier: "spsearch:https:nothing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewSearchQuery(tt.input, tt.source)

			if got := q.Identifier(); got != tt.wantIdentifier {
				t.Errorf("Identifier() = %q, expected %q", got, tt.wantIdentifier)
			}
			if q.IsURL() != tt.wantIsURL {
				t.Errorf("IsURL() = %v, expected %v", q.IsURL(), tt.wantIsURL)
			}
		})
	}
}

func TestParseSearchSource(t *testing.T) {
	tests := []struct {
		input string
		want  SearchSource
	}{
		{input: "ytm", want: SourceYouTubeMusic},
		{input: "SoundCloud", want: SourceSoundCloud},
		{input: "spsearch", want: SourceSpotify},
		{input: "", want: SourceYouTube},
		{input: "unknown", want: SourceYouTube},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseSearchSource(tt.input); got != tt.want {
				t.Errorf("ParseSearchSource(%q) = %q, expected %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSearchQuery_IsValid(t *testing.T) {
	if NewSearchQuery("   ", SourceYouTube).IsValid() {
		t.Error("expected blank query to be invalid")
	}
	if !NewSearchQuery("test", SourceYouTube).IsValid() {
		t.Error("expected query to be valid")
	}
}
