package events

import (
	"sync"
	"time"

	"domme-voice/internal/music/track"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Kind int

const (
	TrackStart Kind = iota + 1
	TrackAdd
	QueueEnd
	Error
	Cleanup
)

func (k Kind) String() string {
	switch k {
	case TrackStart:
		return "track_start"
	case TrackAdd:
		return "track_add"
	case QueueEnd:
		return "queue_end"
	case Error:
		return "error"
	case Cleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

func (k Kind) StringEmoji() string {
	m := map[Kind]string{
		TrackStart: "▶️",
		TrackAdd:   "🎶",
		QueueEnd:   "⏹",
		Error:      "❌",
		Cleanup:    "👋",
	}
	return m[k]
}

// Event is a lifecycle notification for one guild. Track is set for TrackStart and
// TrackAdd, Position for TrackAdd, Err for Error. Subscribers receive their own
// copy of Track, taken when the event is published.
type Event struct {
	Kind     Kind
	GuildID  string
	Track    *track.Track
	Position int
	Err      error
	At       time.Time
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	log    zerolog.Logger
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		log:  log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Track != nil {
		t := *e.Track
		e.Track = &t
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.log.Warn().Int("subscriber", id).Str("guild", e.GuildID).Stringer("kind", e.Kind).
				Msg("event dropped (subscriber full)")
		}
	}
}
