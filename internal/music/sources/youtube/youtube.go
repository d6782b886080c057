package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"domme-voice/internal/music/sources"
	"domme-voice/internal/music/stream"

	youtube "github.com/kkdai/youtube/v2"
)

var ErrNoAudioFormat = errors.New("no audio formats found for video")

type Options struct {
	ProxyURL    string
	HTTPTimeout time.Duration
	FFmpeg      stream.FFmpeg
}

type YouTubeSource struct {
	client *youtube.Client
	ffmpeg stream.FFmpeg
}

func New(opts Options) (*YouTubeSource, error) {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 15 * time.Second
	}
	httpClient, err := newHTTPClient(opts.ProxyURL, opts.HTTPTimeout)
	if err != nil {
		return nil, err
	}
	return &YouTubeSource{
		client: &youtube.Client{HTTPClient: httpClient},
		ffmpeg: opts.FFmpeg,
	}, nil
}

func (y *YouTubeSource) Name() string {
	return sources.SourceYouTube
}

func (y *YouTubeSource) Match(u *url.URL) bool {
	_, ok := VideoID(u)
	return ok
}

func (y *YouTubeSource) FetchInfo(ctx context.Context, rawURL string) (sources.Info, error) {
	video, err := y.video(ctx, rawURL)
	if err != nil {
		return sources.Info{}, err
	}
	return sources.Info{Title: video.Title, Duration: video.Duration}, nil
}

func (y *YouTubeSource) OpenStream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	video, err := y.video(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, ErrNoAudioFormat
	}
	formats.Sort()

	link, err := y.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return nil, fmt.Errorf("get stream URL error: %w", err)
	}

	return y.ffmpeg.Link(link)
}

func (y *YouTubeSource) video(ctx context.Context, rawURL string) (*youtube.Video, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	id, ok := VideoID(u)
	if !ok {
		return nil, fmt.Errorf("not a YouTube video URL: %s", rawURL)
	}

	video, err := y.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("youtube client error: %w", err)
	}
	return video, nil
}
