package resolver

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"domme-voice/internal/music/musicerr"
	"domme-voice/internal/music/sources"
	"domme-voice/internal/music/stream"
	"domme-voice/internal/music/track"
	"domme-voice/pkg/retrylimit"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStreamTimeout  = 30 * time.Second
	DefaultStreamAttempts = 2
	DefaultInfoTimeout    = 15 * time.Second
)

type Options struct {
	// StreamTimeout bounds each stream acquisition attempt.
	StreamTimeout time.Duration
	// StreamAttempts is the total number of acquisition attempts, first one included.
	StreamAttempts int
	// InfoTimeout bounds each metadata lookup attempt.
	InfoTimeout time.Duration
	// RetryDelay is the pause before a retry.
	RetryDelay time.Duration
	// Limiter throttles provider calls across all guilds. Optional.
	Limiter *retrylimit.AdaptiveLimiter
}

// Resolver validates track references and turns them into metadata and playable streams.
type Resolver struct {
	providers []sources.Provider
	opts      Options
	log       zerolog.Logger
}

// New creates a Resolver. Providers are matched in order; the first match wins.
func New(opts Options, providers ...sources.Provider) *Resolver {
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = DefaultStreamTimeout
	}
	if opts.StreamAttempts < 1 {
		opts.StreamAttempts = DefaultStreamAttempts
	}
	if opts.InfoTimeout <= 0 {
		opts.InfoTimeout = DefaultInfoTimeout
	}
	return &Resolver{
		providers: providers,
		opts:      opts,
		log:       log.With().Str("component", "resolver").Logger(),
	}
}

// Validate reports whether rawURL has a supported scheme and provider.
func (r *Resolver) Validate(rawURL string) bool {
	_, err := r.Match(rawURL)
	return err == nil
}

// Match returns the provider for rawURL or an InvalidSource error.
func (r *Resolver) Match(rawURL string) (sources.Provider, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || !sources.HasScheme(u) || u.Host == "" {
		return nil, musicerr.Newf(musicerr.KindInvalidSource, "validate", "", "not a http(s) URL: %q", rawURL)
	}
	for _, p := range r.providers {
		if p.Match(u) {
			return p, nil
		}
	}
	return nil, musicerr.Newf(musicerr.KindInvalidSource, "validate", "", "unsupported media source: %s", u.Host)
}

// FetchInfo retrieves canonical metadata for a valid URL. A failed lookup is retried once.
func (r *Resolver) FetchInfo(ctx context.Context, rawURL string) (sources.Info, error) {
	p, err := r.Match(rawURL)
	if err != nil {
		return sources.Info{}, err
	}
	rawURL = strings.TrimSpace(rawURL)

	var info sources.Info
	cfg := retrylimit.Config{
		MaxAttempts:    2,
		AttemptTimeout: r.opts.InfoTimeout,
		InitialDelay:   r.opts.RetryDelay,
		OnRetry: func(attempt int, err error) {
			r.log.Warn().Err(err).Str("provider", p.Name()).Int("attempt", attempt).Msg("metadata lookup failed, retrying")
		},
	}
	err = retrylimit.Do(ctx, cfg, r.opts.Limiter, func(ctx context.Context, attempt int) error {
		var err error
		info, err = p.FetchInfo(ctx, rawURL)
		return err
	})
	if err != nil {
		if retrylimit.IsPermanent(err) {
			return sources.Info{}, musicerr.New(musicerr.KindInvalidSource, "fetch info", "", err)
		}
		return sources.Info{}, musicerr.New(musicerr.KindPlaybackFailure, "fetch info", "", err)
	}

	if strings.TrimSpace(info.Title) == "" {
		info.Title = rawURL
	}
	return info, nil
}

// Resolve validates rawURL and builds a Track from its metadata.
func (r *Resolver) Resolve(ctx context.Context, rawURL, requestedBy string) (track.Track, error) {
	p, err := r.Match(rawURL)
	if err != nil {
		return track.Track{}, err
	}
	info, err := r.FetchInfo(ctx, rawURL)
	if err != nil {
		return track.Track{}, err
	}
	return track.Track{
		SourceURL:   strings.TrimSpace(rawURL),
		Title:       info.Title,
		Duration:    info.Duration,
		RequestedBy: requestedBy,
		Provider:    p.Name(),
	}, nil
}

// OpenStream acquires a playable stream for rawURL. Each attempt is bounded by
// the stream timeout and cancelled when it elapses; a failed attempt is retried
// until the configured attempts are used up.
func (r *Resolver) OpenStream(ctx context.Context, rawURL string) (*stream.Handle, error) {
	rawURL = StripTimeOffset(strings.TrimSpace(rawURL))
	p, err := r.Match(rawURL)
	if err != nil {
		return nil, err
	}

	var handle *stream.Handle
	cfg := retrylimit.Config{
		MaxAttempts:    r.opts.StreamAttempts,
		AttemptTimeout: r.opts.StreamTimeout,
		InitialDelay:   r.opts.RetryDelay,
		Retryable: func(err error) bool {
			return !retrylimit.IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		OnRetry: func(attempt int, err error) {
			r.log.Warn().Err(err).Str("provider", p.Name()).Str("url", rawURL).Int("attempt", attempt).
				Msg("stream acquisition failed, retrying")
		},
	}

	err = retrylimit.Do(ctx, cfg, r.opts.Limiter, func(ctx context.Context, attempt int) error {
		rc, err := p.OpenStream(ctx, rawURL)
		if err != nil {
			return err
		}
		h, err := stream.Acquire(ctx, rc, p.Name(), rawURL)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Str("provider", p.Name()).Str("url", rawURL).Msg("stream acquisition failed")
		return nil, musicerr.New(musicerr.KindPlaybackFailure, "open stream", "", err)
	}

	r.log.Debug().Str("provider", p.Name()).Str("url", rawURL).Msg("stream acquired")
	return handle, nil
}
