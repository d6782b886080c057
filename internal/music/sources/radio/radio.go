package radio

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"domme-voice/internal/music/sources"
	"domme-voice/internal/music/stream"
)

// RadioSource plays direct audio files and internet radio streams.
type RadioSource struct {
	resolver *RadioResolver
	ffmpeg   stream.FFmpeg
}

func New(ffmpeg stream.FFmpeg) *RadioSource {
	return &RadioSource{
		resolver: NewRadioResolver(),
		ffmpeg:   ffmpeg,
	}
}

func (r *RadioSource) Name() string {
	return sources.SourceRadio
}

func (r *RadioSource) Match(u *url.URL) bool {
	return sources.HasScheme(u) && u.Host != "" && hasStreamExtension(u)
}

func (r *RadioSource) FetchInfo(ctx context.Context, rawURL string) (sources.Info, error) {
	p, err := r.resolver.Probe(ctx, rawURL)
	if err != nil {
		return sources.Info{}, err
	}
	title := p.StationName
	if title == "" {
		title = titleFromURL(rawURL)
	}
	// live, duration unknown
	return sources.Info{Title: title}, nil
}

func (r *RadioSource) OpenStream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return r.ffmpeg.Link(rawURL)
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return u.Host
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
