package orchestrator

import (
	"context"
	"sync"

	"domme-voice/internal/music/events"
	"domme-voice/internal/music/player"
	"domme-voice/internal/music/queue"
	"domme-voice/internal/music/track"

	"github.com/rs/zerolog"
)

const idleBuffer = 8

type idleSignal = player.Idle

// Session is the playback state of one guild. mu serialises every command and
// every idle transition of the guild.
type Session struct {
	guildID string

	mu        sync.Mutex
	channelID string
	player    *player.Player
	queue     *queue.Controller
	closed    bool
	// playing is the player generation of the current track.
	playing uint64

	idle   chan idleSignal
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// busy reports whether a track is current. It stays true from the moment a
// track starts until its idle signal was handled.
func (s *Session) busy() bool {
	_, ok := s.queue.Current()
	return ok
}

func (o *Orchestrator) newSession(guildID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		guildID: guildID,
		queue:   queue.New(guildID, o.opts.MaxQueueLength),
		idle:    make(chan idleSignal, idleBuffer),
		ctx:     ctx,
		cancel:  cancel,
		log:     o.log.With().Str("guild", guildID).Logger(),
	}

	volume := *o.opts.DefaultVolume
	if o.prefs != nil {
		if v, ok := o.prefs.Volume(guildID); ok {
			volume = v
		}
	}

	s.player = player.New(guildID, player.Options{
		StateTimeout: o.opts.StateTimeout,
		NewEncoder:   o.opts.NewEncoder,
		Volume:       volume,
		OnIdle: func(idle player.Idle) {
			select {
			case s.idle <- idle:
			default:
				s.log.Warn().Stringer("reason", idle.Reason).Msg("idle signal dropped")
			}
		},
		OnError: func(err error, t track.Track) {
			o.publish(events.Event{Kind: events.Error, GuildID: guildID, Track: &t, Err: err})
		},
	})

	go o.watchIdle(s)
	s.log.Info().Int("volume", volume).Msg("session created")
	return s
}

func (o *Orchestrator) watchIdle(s *Session) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case sig := <-s.idle:
			o.handleIdle(s, sig)
		}
	}
}

func (o *Orchestrator) handleIdle(s *Session, sig idleSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	switch sig.Reason {
	case player.ReasonStopped, player.ReasonCleanup:
		return
	}
	cur, ok := s.queue.Current()
	if !ok || sig.Generation != s.playing {
		s.log.Debug().Str("track", sig.Track.Title).Uint64("generation", sig.Generation).Msg("stale idle signal ignored")
		return
	}

	s.log.Debug().Str("track", cur.Title).Stringer("reason", sig.Reason).Msg("advancing queue")
	next, ok := s.queue.Advance(sig.Reason.Natural())
	o.advanceLocked(s, next, ok)
}

// advanceLocked plays next, moving on to the following track while starting
// fails. It publishes QueueEnd once nothing is left.
func (o *Orchestrator) advanceLocked(s *Session, next track.Track, ok bool) {
	for ok {
		err := o.startLocked(s.ctx, s, next)
		if err == nil {
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		failed := next
		s.log.Error().Err(err).Str("track", failed.Title).Msg("failed to start next track")
		o.publish(events.Event{Kind: events.Error, GuildID: s.guildID, Track: &failed, Err: err})
		s.queue.Drop()
		next, ok = s.queue.Next()
	}

	s.log.Info().Msg("queue ended")
	o.publish(events.Event{Kind: events.QueueEnd, GuildID: s.guildID})
}
