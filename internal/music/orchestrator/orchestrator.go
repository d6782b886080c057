// Package orchestrator composes the resolver, the voice connections, one player
// and one queue per guild, and exposes the playback commands.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"domme-voice/internal/music/events"
	"domme-voice/internal/music/musicerr"
	"domme-voice/internal/music/player"
	"domme-voice/internal/music/stream"
	"domme-voice/internal/music/track"
	"domme-voice/internal/music/voice"
	"domme-voice/pkg/util"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultEnqueueRate  = rate.Limit(0.5)
	DefaultEnqueueBurst = 5
	DefaultVolume       = 100
	shutdownWorkers     = 4
)

// Resolver turns URLs into tracks and playable streams.
type Resolver interface {
	Validate(rawURL string) bool
	Resolve(ctx context.Context, rawURL, requestedBy string) (track.Track, error)
	OpenStream(ctx context.Context, rawURL string) (*stream.Handle, error)
}

// Prefs persists per-guild settings across sessions.
type Prefs interface {
	Volume(guildID string) (int, bool)
	SetVolume(guildID string, percent int) error
}

type Options struct {
	StateTimeout   time.Duration
	MaxQueueLength int
	EnqueueRate    rate.Limit
	EnqueueBurst   int
	// DefaultVolume applies to guilds without a stored volume. Nil means 100.
	DefaultVolume  *int
	NewEncoder     stream.EncoderFactory
	Bus            *events.Bus
	Prefs          Prefs
}

// VoiceChannel identifies the channel a play request targets.
type VoiceChannel struct {
	GuildID   string
	ChannelID string
}

// Status is the result of a command, ready to be shown to a user.
type Status struct {
	Message string
	Track   track.Track
	// Position is the 1-based queue position of a queued track, 0 otherwise.
	Position int
}

// Snapshot is a read-only view of a guild's queue.
type Snapshot struct {
	Current    *track.Track
	Queue      []track.Track
	RepeatMode track.RepeatMode
}

type Orchestrator struct {
	resolver Resolver
	voices   *voice.Manager
	sessions *Registry
	bus      *events.Bus
	prefs    Prefs
	opts     Options
	log      zerolog.Logger

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(resolver Resolver, voices *voice.Manager, opts Options) *Orchestrator {
	if opts.EnqueueRate <= 0 {
		opts.EnqueueRate = DefaultEnqueueRate
	}
	if opts.EnqueueBurst <= 0 {
		opts.EnqueueBurst = DefaultEnqueueBurst
	}
	volume := DefaultVolume
	if opts.DefaultVolume != nil {
		volume = stream.ClampVolume(*opts.DefaultVolume)
	}
	opts.DefaultVolume = &volume
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}

	o := &Orchestrator{
		resolver: resolver,
		voices:   voices,
		sessions: NewRegistry(),
		bus:      opts.Bus,
		prefs:    opts.Prefs,
		opts:     opts,
		log:      log.With().Str("component", "orchestrator").Logger(),
		limiters: make(map[string]*rate.Limiter),
	}
	voices.OnLost(o.connectionLost)
	return o
}

// Subscribe returns a channel of lifecycle events for every guild.
func (o *Orchestrator) Subscribe(buffer int) (<-chan events.Event, func()) {
	return o.bus.Subscribe(buffer)
}

func (o *Orchestrator) publish(e events.Event) {
	o.bus.Publish(e)
}

// Play resolves rawURL, joins ch if needed and either starts the track or
// appends it to the guild's queue.
func (o *Orchestrator) Play(ctx context.Context, ch VoiceChannel, rawURL, requestedBy string) (Status, error) {
	guildID := ch.GuildID
	if !o.resolver.Validate(rawURL) {
		return Status{}, musicerr.Newf(musicerr.KindInvalidSource, "play", guildID, "unsupported url %q", rawURL)
	}
	if !o.allow(guildID, requestedBy) {
		return Status{}, musicerr.Newf(musicerr.KindRateLimited, "play", guildID, "too many requests from %s", requestedBy)
	}

	t, err := o.resolver.Resolve(ctx, rawURL, requestedBy)
	if err != nil {
		return Status{}, musicerr.Scope(err, musicerr.KindPlaybackFailure, "play", guildID)
	}

	s := o.lockSession(guildID)
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if err := o.ensureConnectedLocked(ctx, s, ch.ChannelID); err != nil {
		o.destroyLocked(s)
		return Status{}, musicerr.Scope(err, musicerr.KindConnectionFailure, "play", guildID)
	}

	pos, err := s.queue.Enqueue(t)
	if err != nil {
		return Status{}, err
	}

	if s.busy() {
		s.log.Info().Str("track", t.Title).Int("position", pos).Msg("track queued")
		o.publish(events.Event{Kind: events.TrackAdd, GuildID: guildID, Track: &t, Position: pos})
		return Status{
			Message:  fmt.Sprintf("Added to queue: %s (position %d)", t.Title, pos),
			Track:    t,
			Position: pos,
		}, nil
	}

	next, _ := s.queue.Next()
	if err := o.startLocked(ctx, s, next); err != nil {
		s.queue.Drop()
		o.publish(events.Event{Kind: events.Error, GuildID: guildID, Track: &next, Err: err})
		return Status{}, musicerr.Scope(err, musicerr.KindPlaybackFailure, "play", guildID)
	}
	return Status{Message: "Now playing: " + next.Title, Track: next}, nil
}

func (o *Orchestrator) ensureConnectedLocked(ctx context.Context, s *Session, channelID string) error {
	if conn, ok := o.voices.Get(s.guildID); ok {
		if conn.ChannelID() == channelID || s.busy() {
			return nil
		}
	}
	if _, err := o.voices.Join(ctx, s.guildID, channelID); err != nil {
		return err
	}
	s.channelID = channelID
	return nil
}

func (o *Orchestrator) startLocked(ctx context.Context, s *Session, t track.Track) error {
	conn, ok := o.voices.Get(s.guildID)
	if !ok {
		return musicerr.New(musicerr.KindConnectionFailure, "play", s.guildID, voice.ErrNotConnected)
	}

	h, err := o.resolver.OpenStream(ctx, t.SourceURL)
	if err != nil {
		return musicerr.Scope(err, musicerr.KindPlaybackFailure, "play", s.guildID)
	}
	if err := s.player.Play(ctx, conn, t, h); err != nil {
		return err
	}
	s.playing = s.player.Generation()

	s.log.Info().Str("track", t.Title).Str("url", t.SourceURL).Msg("now playing")
	o.publish(events.Event{Kind: events.TrackStart, GuildID: s.guildID, Track: &t})
	return nil
}

// Skip stops the current track; the queue decides what plays next.
func (o *Orchestrator) Skip(guildID string) (Status, error) {
	s, err := o.existingSession(guildID, "skip")
	if err != nil {
		return Status{}, err
	}
	defer s.mu.Unlock()

	cur, ok := s.queue.Current()
	if !ok || !s.player.Stop(player.ReasonSkipped) {
		return Status{}, musicerr.New(musicerr.KindNoActiveSession, "skip", guildID, nil)
	}
	return Status{Message: "Skipped: " + cur.Title, Track: cur}, nil
}

// Stop halts playback and empties the queue. The repeat mode is kept.
func (o *Orchestrator) Stop(guildID string) (Status, error) {
	s, err := o.existingSession(guildID, "stop")
	if err != nil {
		return Status{}, err
	}
	defer s.mu.Unlock()

	s.queue.Clear()
	s.player.Stop(player.ReasonStopped)
	s.log.Info().Msg("playback stopped")
	return Status{Message: "Playback stopped"}, nil
}

func (o *Orchestrator) Pause(guildID string) (Status, error) {
	s, err := o.existingSession(guildID, "pause")
	if err != nil {
		return Status{}, err
	}
	defer s.mu.Unlock()

	if err := s.player.Pause(); err != nil {
		return Status{}, err
	}
	cur, _ := s.queue.Current()
	return Status{Message: "Playback paused", Track: cur}, nil
}

func (o *Orchestrator) Resume(guildID string) (Status, error) {
	s, err := o.existingSession(guildID, "resume")
	if err != nil {
		return Status{}, err
	}
	defer s.mu.Unlock()

	if err := s.player.Resume(); err != nil {
		return Status{}, err
	}
	cur, _ := s.queue.Current()
	return Status{Message: "Playback resumed", Track: cur}, nil
}

// SetRepeatMode accepts "off", "song" or "queue".
func (o *Orchestrator) SetRepeatMode(guildID, mode string) (Status, error) {
	m, ok := track.ParseRepeatMode(mode)
	if !ok {
		return Status{}, musicerr.Newf(musicerr.KindInvalidMode, "repeat", guildID, "unknown repeat mode %q", mode)
	}
	s, err := o.existingSession(guildID, "repeat")
	if err != nil {
		return Status{}, err
	}
	defer s.mu.Unlock()

	if err := s.queue.SetMode(m); err != nil {
		return Status{}, err
	}
	return Status{Message: fmt.Sprintf("Repeat mode: %s %s", m, m.StringEmoji())}, nil
}

// GetQueue never fails; a guild without a session gets empty defaults.
func (o *Orchestrator) GetQueue(guildID string) Snapshot {
	snap := Snapshot{Queue: []track.Track{}, RepeatMode: track.RepeatOff}
	s, ok := o.sessions.Get(guildID)
	if !ok {
		return snap
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return snap
	}

	if cur, ok := s.queue.Current(); ok {
		snap.Current = &cur
	}
	if pending := s.queue.Pending(); pending != nil {
		snap.Queue = pending
	}
	snap.RepeatMode = s.queue.Mode()
	return snap
}

// History returns the guild's recently started tracks, oldest first.
func (o *Orchestrator) History(guildID string) []track.Track {
	s, ok := o.sessions.Get(guildID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.History()
}

// SetVolume clamps percent to 0..100, applies it and remembers it for the guild.
func (o *Orchestrator) SetVolume(guildID string, percent int) (int, error) {
	s, ok := o.sessions.Get(guildID)
	if !ok {
		return 0, musicerr.New(musicerr.KindNoActiveResource, "volume", guildID, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, musicerr.New(musicerr.KindNoActiveResource, "volume", guildID, nil)
	}

	v, err := s.player.SetVolume(percent)
	if err != nil {
		return 0, err
	}
	if o.prefs != nil {
		if err := o.prefs.SetVolume(guildID, v); err != nil {
			s.log.Warn().Err(err).Int("volume", v).Msg("failed to store volume")
		}
	}
	s.log.Info().Int("volume", v).Msg("volume changed")
	return v, nil
}

// State reports the guild's player state.
func (o *Orchestrator) State(guildID string) player.State {
	s, ok := o.sessions.Get(guildID)
	if !ok {
		return player.StateIdle
	}
	return s.player.State()
}

// Cleanup tears down the guild's connection and session.
func (o *Orchestrator) Cleanup(guildID string) error {
	if s, ok := o.sessions.Get(guildID); ok {
		s.cancel()
		s.mu.Lock()
		err := o.destroyLocked(s)
		s.mu.Unlock()
		return err
	}
	return o.voices.Close(guildID)
}

func (o *Orchestrator) destroyLocked(s *Session) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	o.sessions.Destroy(s)

	s.queue.Clear()
	s.player.Stop(player.ReasonCleanup)
	o.forgetLimiters(s.guildID)

	err := o.voices.Close(s.guildID)
	s.log.Info().Msg("session cleaned up")
	o.publish(events.Event{Kind: events.Cleanup, GuildID: s.guildID})
	return err
}

// Shutdown cleans up every guild with a session or a connection.
func (o *Orchestrator) Shutdown() error {
	ids := o.sessions.GuildIDs()
	for _, id := range o.voices.GuildIDs() {
		if _, ok := o.sessions.Get(id); !ok {
			ids = append(ids, id)
		}
	}

	err := util.Parallel(context.Background(), ids, shutdownWorkers, func(_ context.Context, id string) error {
		if err := o.Cleanup(id); err != nil {
			return fmt.Errorf("guild %s: %w", id, err)
		}
		return nil
	})
	o.log.Info().Int("guilds", len(ids)).Msg("shutdown complete")
	return err
}

func (o *Orchestrator) connectionLost(guildID string, err error) {
	o.log.Error().Err(err).Str("guild", guildID).Msg("voice connection lost")
	o.publish(events.Event{Kind: events.Error, GuildID: guildID, Err: err})
	if cerr := o.Cleanup(guildID); cerr != nil {
		o.log.Warn().Err(cerr).Str("guild", guildID).Msg("cleanup after connection loss failed")
	}
}

// lockSession returns the guild's session locked, creating it if needed.
func (o *Orchestrator) lockSession(guildID string) *Session {
	for {
		s, _ := o.sessions.GetOrCreate(guildID, func() *Session { return o.newSession(guildID) })
		s.mu.Lock()
		if !s.closed {
			return s
		}
		s.mu.Unlock()
	}
}

// existingSession returns the guild's session locked, or NoActiveSession.
func (o *Orchestrator) existingSession(guildID, op string) (*Session, error) {
	s, ok := o.sessions.Get(guildID)
	if !ok {
		return nil, musicerr.New(musicerr.KindNoActiveSession, op, guildID, nil)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, musicerr.New(musicerr.KindNoActiveSession, op, guildID, nil)
	}
	return s, nil
}

func (o *Orchestrator) allow(guildID, userID string) bool {
	if userID == "" {
		return true
	}
	key := guildID + "/" + userID

	o.limMu.Lock()
	defer o.limMu.Unlock()
	lim, ok := o.limiters[key]
	if !ok {
		lim = rate.NewLimiter(o.opts.EnqueueRate, o.opts.EnqueueBurst)
		o.limiters[key] = lim
	}
	return lim.Allow()
}

func (o *Orchestrator) forgetLimiters(guildID string) {
	prefix := guildID + "/"
	o.limMu.Lock()
	defer o.limMu.Unlock()
	for key := range o.limiters {
		if strings.HasPrefix(key, prefix) {
			delete(o.limiters, key)
		}
	}
}
