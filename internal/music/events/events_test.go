package events

import (
	"testing"

	"domme-voice/internal/music/track"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe(4)
	defer unsubA()
	b, unsubB := bus.Subscribe(4)
	defer unsubB()

	tr := track.Track{Title: "one"}
	bus.Publish(Event{Kind: TrackStart, GuildID: "g1", Track: &tr})

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		assert.Equal(t, TrackStart, e.Kind)
		assert.Equal(t, "g1", e.GuildID)
		require.NotNil(t, e.Track)
		assert.Equal(t, "one", e.Track.Title)
		assert.False(t, e.At.IsZero())
	}
}

func TestPublishSnapshotsTrack(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	tr := track.Track{Title: "broken"}
	bus.Publish(Event{Kind: Error, GuildID: "g1", Track: &tr})
	tr.Title = "third"

	e := <-ch
	require.NotNil(t, e.Track)
	assert.Equal(t, "broken", e.Track.Title)
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(Event{Kind: TrackAdd, GuildID: "g1", Position: 1})
	bus.Publish(Event{Kind: TrackAdd, GuildID: "g1", Position: 2})

	e := <-ch
	assert.Equal(t, 1, e.Position)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	bus.Publish(Event{Kind: QueueEnd, GuildID: "g1"})
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "cleanup", Cleanup.String())
	assert.Equal(t, "❌", Error.StringEmoji())
	assert.Equal(t, "unknown", Kind(0).String())
}
