package soundcloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"domme-voice/internal/music/sources"
	"domme-voice/internal/music/stream"

	"github.com/lrstanley/go-ytdlp"
)

var ErrNoMetadata = errors.New("yt-dlp returned no metadata")

var hosts = map[string]bool{
	"soundcloud.com":    true,
	"m.soundcloud.com":  true,
	"on.soundcloud.com": true,
}

type Options struct {
	ProxyURL string
	FFmpeg   stream.FFmpeg
}

// SoundCloudSource resolves and streams SoundCloud tracks through yt-dlp.
type SoundCloudSource struct {
	proxy  string
	ffmpeg stream.FFmpeg
}

func New(opts Options) *SoundCloudSource {
	return &SoundCloudSource{proxy: opts.ProxyURL, ffmpeg: opts.FFmpeg}
}

func (s *SoundCloudSource) Name() string {
	return sources.SourceSoundCloud
}

func (s *SoundCloudSource) Match(u *url.URL) bool {
	return hosts[sources.Host(u)] && strings.Trim(u.Path, "/") != ""
}

func (s *SoundCloudSource) FetchInfo(ctx context.Context, rawURL string) (sources.Info, error) {
	res, err := s.command().
		Print("%(title)s\t%(duration)s").
		NoPlaylist().
		Run(ctx, "--skip-download", rawURL)
	if err != nil {
		return sources.Info{}, fmt.Errorf("yt-dlp metadata error: %w", err)
	}
	return parseInfo(res.Stdout)
}

func (s *SoundCloudSource) OpenStream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	// The process must outlive ctx, which only bounds acquisition.
	cmd := s.command().
		Format("bestaudio").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		BuildCommand(context.Background(), rawURL)

	return s.ffmpeg.Pipe(cmd)
}

func (s *SoundCloudSource) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig()
	if s.proxy != "" {
		cmd.Proxy(s.proxy)
	}
	return cmd
}

// parseInfo reads the first "title\tduration" line printed by yt-dlp.
func parseInfo(stdout string) (sources.Info, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
			continue
		}
		info := sources.Info{Title: strings.TrimSpace(parts[0])}
		if secs, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
		return info, nil
	}
	return sources.Info{}, ErrNoMetadata
}
