package sources

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"
)

const (
	SourceYouTube    = "youtube"
	SourceSoundCloud = "soundcloud"
	SourceRadio      = "radio"
)

// Info is the canonical metadata of a validated URL.
type Info struct {
	Title    string
	Duration time.Duration
}

// Provider is one supported media source.
type Provider interface {
	// Name returns the identifier ("youtube", "radio", ...).
	Name() string

	// Match reports whether u belongs to this provider. It must not touch the network.
	Match(u *url.URL) bool

	// FetchInfo retrieves title and duration for rawURL.
	FetchInfo(ctx context.Context, rawURL string) (Info, error)

	// OpenStream starts decoding rawURL into s16le 48kHz stereo PCM. ctx bounds
	// the acquisition only; the returned stream lives until it is closed.
	OpenStream(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Host returns u's lowercased host without port and "www." prefix.
func Host(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// HasScheme reports whether u uses a supported transport scheme.
func HasScheme(u *url.URL) bool {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}
