package player

import (
	"context"
	"sync"
	"time"

	"domme-voice/internal/music/musicerr"
	"domme-voice/internal/music/stream"
	"domme-voice/internal/music/track"
	"domme-voice/internal/music/voice"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultStateTimeout = 5 * time.Second

type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Idle"
	}
}

func (s State) StringEmoji() string {
	m := map[State]string{
		StateIdle:    "⏹",
		StatePlaying: "▶️",
		StatePaused:  "⏸",
	}
	return m[s]
}

// IdleReason tells the idle listener why playback ended.
type IdleReason int

const (
	reasonNone IdleReason = iota
	ReasonFinished
	ReasonSkipped
	ReasonStopped
	ReasonFailed
	ReasonCleanup
)

func (r IdleReason) String() string {
	switch r {
	case ReasonFinished:
		return "finished"
	case ReasonSkipped:
		return "skipped"
	case ReasonStopped:
		return "stopped"
	case ReasonFailed:
		return "failed"
	case ReasonCleanup:
		return "cleanup"
	default:
		return "none"
	}
}

// Natural reports whether playback ran to the end of its stream.
func (r IdleReason) Natural() bool { return r == ReasonFinished }

// Idle describes one finished playback. Generation identifies the playback
// and matches what Generation returned after its Play.
type Idle struct {
	Reason     IdleReason
	Track      track.Track
	Generation uint64
}

type IdleFunc func(idle Idle)

type ErrorFunc func(err error, t track.Track)

type Options struct {
	StateTimeout time.Duration
	NewEncoder   stream.EncoderFactory
	Volume       int
	OnIdle       IdleFunc
	OnError      ErrorFunc
}

type playback struct {
	gen    uint64
	track  track.Track
	handle *stream.Handle
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	// guarded by Player.mu
	reason IdleReason
	silent bool
}

// Player plays one stream at a time for one guild.
type Player struct {
	guildID string
	opts    Options
	log     zerolog.Logger

	mu      sync.Mutex
	state   State
	volume  int
	current *playback
	resume  chan struct{}
	gen     uint64
}

func New(guildID string, opts Options) *Player {
	if opts.StateTimeout <= 0 {
		opts.StateTimeout = DefaultStateTimeout
	}
	if opts.NewEncoder == nil {
		opts.NewEncoder = stream.NewOpusEncoder
	}
	return &Player{
		guildID: guildID,
		opts:    opts,
		log:     log.With().Str("component", "player").Str("guild", guildID).Logger(),
		volume:  stream.ClampVolume(opts.Volume),
	}
}

// Play starts h on conn and waits for the first frame to be delivered. The
// handle is owned by the player from here on, even when Play fails. An aborted
// start does not emit an idle signal.
func (p *Player) Play(ctx context.Context, conn voice.Conn, t track.Track, h *stream.Handle) error {
	p.mu.Lock()
	if p.current != nil {
		p.mu.Unlock()
		_ = h.Close()
		return musicerr.Newf(musicerr.KindPlaybackFailure, "play", p.guildID, "player is %s", p.state)
	}

	enc, err := p.opts.NewEncoder()
	if err != nil {
		p.mu.Unlock()
		_ = h.Close()
		return musicerr.New(musicerr.KindPlaybackFailure, "play", p.guildID, err)
	}

	pctx, cancel := context.WithCancel(context.Background())
	p.gen++
	pb := &playback{
		gen:    p.gen,
		track:  t,
		handle: h,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.current = pb
	p.state = StatePlaying
	p.mu.Unlock()

	started := make(chan struct{})
	var once sync.Once
	firstFrame := func() { once.Do(func() { close(started) }) }

	go p.run(pctx, pb, conn, enc, firstFrame)

	timer := time.NewTimer(p.opts.StateTimeout)
	defer timer.Stop()

	select {
	case <-started:
		p.log.Info().Str("track", t.Title).Str("provider", h.Provider).Msg("playback started")
		return nil
	case <-pb.done:
		select {
		case <-started:
			return nil
		default:
		}
		if pb.err != nil {
			return musicerr.New(musicerr.KindPlaybackFailure, "play", p.guildID, pb.err)
		}
		return musicerr.Newf(musicerr.KindPlaybackFailure, "play", p.guildID, "stream ended before playback started")
	case <-timer.C:
		p.abort(pb)
		return musicerr.Newf(musicerr.KindPlaybackFailure, "play", p.guildID,
			"playback did not start within %v", p.opts.StateTimeout)
	case <-ctx.Done():
		p.abort(pb)
		return musicerr.New(musicerr.KindPlaybackFailure, "play", p.guildID, ctx.Err())
	}
}

func (p *Player) abort(pb *playback) {
	p.mu.Lock()
	pb.silent = true
	p.mu.Unlock()
	pb.cancel()
	_ = pb.handle.Close()
	<-pb.done
}

func (p *Player) run(ctx context.Context, pb *playback, conn voice.Conn, enc stream.Encoder, firstFrame func()) {
	defer pb.cancel()

	if err := conn.Speaking(true); err != nil {
		p.log.Warn().Err(err).Msg("failed to set speaking")
	}

	started := false
	err := stream.Pump(ctx, pb.handle, conn, enc, p, func() {
		started = true
		firstFrame()
	})
	pb.err = err

	_ = pb.handle.Close()
	_ = conn.Speaking(false)

	p.mu.Lock()
	if p.current == pb {
		p.current = nil
		p.state = StateIdle
		p.releasePauseLocked()
	}
	reason, silent := pb.reason, pb.silent || !started
	p.mu.Unlock()

	if silent {
		if err != nil {
			p.log.Debug().Err(err).Str("track", pb.track.Title).Msg("aborted playback ended with error")
		}
		close(pb.done)
		return
	}

	if err != nil && reason == reasonNone {
		reason = ReasonFailed
		p.log.Error().Err(err).Str("track", pb.track.Title).Msg("playback error")
		if p.opts.OnError != nil {
			p.opts.OnError(musicerr.New(musicerr.KindPlaybackFailure, "stream", p.guildID, err), pb.track)
		}
	}
	if reason == reasonNone {
		reason = ReasonFinished
	}

	p.log.Info().Str("track", pb.track.Title).Stringer("reason", reason).Msg("player idle")
	if p.opts.OnIdle != nil {
		p.opts.OnIdle(Idle{Reason: reason, Track: pb.track, Generation: pb.gen})
	}
	close(pb.done)
}

// Stop forces the player to Idle and waits for the stream to be released. The
// idle signal carries reason. It reports whether anything was playing.
func (p *Player) Stop(reason IdleReason) bool {
	p.mu.Lock()
	pb := p.current
	if pb == nil {
		p.mu.Unlock()
		return false
	}
	pb.reason = reason
	p.releasePauseLocked()
	p.mu.Unlock()

	pb.cancel()
	_ = pb.handle.Close()
	<-pb.done
	return true
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return musicerr.New(musicerr.KindNoActiveSession, "pause", p.guildID, nil)
	}
	if p.state == StatePaused {
		return nil
	}
	p.state = StatePaused
	p.resume = make(chan struct{})
	p.log.Info().Msg("paused")
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return musicerr.New(musicerr.KindNoActiveSession, "resume", p.guildID, nil)
	}
	if p.state != StatePaused {
		return nil
	}
	p.state = StatePlaying
	p.releasePauseLocked()
	p.log.Info().Msg("resumed")
	return nil
}

func (p *Player) releasePauseLocked() {
	if p.resume != nil {
		close(p.resume)
		p.resume = nil
	}
}

// SetVolume clamps percent to 0..100 and applies it from the next frame on.
func (p *Player) SetVolume(percent int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return 0, musicerr.New(musicerr.KindNoActiveResource, "volume", p.guildID, nil)
	}
	p.volume = stream.ClampVolume(percent)
	return p.volume, nil
}

// Volume implements stream.Control.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// WaitIfPaused implements stream.Control.
func (p *Player) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	ch := p.resume
	p.mu.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generation returns the generation of the most recent Play call.
func (p *Player) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns the track being played, if any.
func (p *Player) Current() (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return track.Track{}, false
	}
	return p.current.track, true
}
