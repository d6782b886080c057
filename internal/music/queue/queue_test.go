package queue

import (
	"fmt"
	"testing"

	"domme-voice/internal/music/musicerr"
	"domme-voice/internal/music/track"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tr(title string) track.Track {
	return track.Track{SourceURL: "https://valid/" + title, Title: title}
}

func titles(ts []track.Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Title
	}
	return out
}

func TestFIFOWithRepeatOff(t *testing.T) {
	c := New("g1", 0)
	for i := 1; i <= 5; i++ {
		pos, err := c.Enqueue(tr(fmt.Sprintf("t%d", i)))
		require.NoError(t, err)
		assert.Equal(t, i, pos)
	}

	var played []string
	next, ok := c.Next()
	for ok {
		played = append(played, next.Title)
		next, ok = c.Advance(true)
	}

	assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, played)
	_, ok = c.Current()
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestNextWhileCurrent(t *testing.T) {
	c := New("g1", 0)
	_, _ = c.Enqueue(tr("a"))
	_, _ = c.Enqueue(tr("b"))

	first, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, "a", first.Title)

	_, ok = c.Next()
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, titles(c.Pending()))
}

func TestRepeatSongReplaysOnNaturalEnd(t *testing.T) {
	c := New("g1", 0)
	_, _ = c.Enqueue(tr("a"))
	_, _ = c.Enqueue(tr("b"))
	require.NoError(t, c.SetMode(track.RepeatSong))
	_, _ = c.Next()

	for range 4 {
		next, ok := c.Advance(true)
		require.True(t, ok)
		assert.Equal(t, "a", next.Title)
		assert.Equal(t, 1, c.Len())
	}
}

func TestRepeatSongSkipAdvances(t *testing.T) {
	c := New("g1", 0)
	_, _ = c.Enqueue(tr("a"))
	_, _ = c.Enqueue(tr("b"))
	require.NoError(t, c.SetMode(track.RepeatSong))
	_, _ = c.Next()

	next, ok := c.Advance(false)
	require.True(t, ok)
	assert.Equal(t, "b", next.Title)
	assert.Zero(t, c.Len())
}

func TestRepeatQueueSingleTrack(t *testing.T) {
	c := New("g1", 0)
	_, _ = c.Enqueue(tr("t"))
	require.NoError(t, c.SetMode(track.RepeatQueue))

	first, _ := c.Next()
	played := []string{first.Title}
	for range 5 {
		next, ok := c.Advance(true)
		require.True(t, ok)
		played = append(played, next.Title)
		assert.Zero(t, c.Len())
	}
	assert.Equal(t, []string{"t", "t", "t", "t", "t", "t"}, played)
}

func TestRepeatQueueCyclesAndSkipReappends(t *testing.T) {
	c := New("g1", 0)
	for _, s := range []string{"a", "b", "c"} {
		_, _ = c.Enqueue(tr(s))
	}
	require.NoError(t, c.SetMode(track.RepeatQueue))

	first, _ := c.Next()
	played := []string{first.Title}
	for i := range 5 {
		next, ok := c.Advance(i%2 == 0)
		require.True(t, ok)
		played = append(played, next.Title)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, played)
	assert.Equal(t, 2, c.Len())
}

func TestDropSkipsRepeat(t *testing.T) {
	c := New("g1", 0)
	_, _ = c.Enqueue(tr("a"))
	require.NoError(t, c.SetMode(track.RepeatQueue))
	_, _ = c.Next()

	c.Drop()
	_, ok := c.Advance(false)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestClearKeepsMode(t *testing.T) {
	c := New("g1", 0)
	_, _ = c.Enqueue(tr("a"))
	_, _ = c.Enqueue(tr("b"))
	require.NoError(t, c.SetMode(track.RepeatQueue))
	_, _ = c.Next()

	c.Clear()
	_, ok := c.Current()
	assert.False(t, ok)
	assert.Empty(t, c.Pending())
	assert.Equal(t, track.RepeatQueue, c.Mode())
}

func TestSetModeRejectsUnknown(t *testing.T) {
	c := New("g1", 0)
	_, _ = c.Enqueue(tr("a"))

	err := c.SetMode("shuffle")
	assert.ErrorIs(t, err, musicerr.ErrInvalidMode)
	assert.Equal(t, track.RepeatOff, c.Mode())
	assert.Equal(t, 1, c.Len())
}

func TestQueueCap(t *testing.T) {
	c := New("g1", 2)
	_, err := c.Enqueue(tr("a"))
	require.NoError(t, err)
	_, err = c.Enqueue(tr("b"))
	require.NoError(t, err)

	_, err = c.Enqueue(tr("c"))
	assert.ErrorIs(t, err, musicerr.ErrQueueFull)
	assert.Equal(t, []string{"a", "b"}, titles(c.Pending()))
}

func TestHistoryIsBounded(t *testing.T) {
	c := New("g1", 0)
	for i := range 20 {
		_, _ = c.Enqueue(tr(fmt.Sprintf("t%d", i)))
	}
	_, ok := c.Next()
	for ok {
		_, ok = c.Advance(true)
	}

	h := c.History()
	require.Len(t, h, historyLimit)
	assert.Equal(t, "t8", h[0].Title)
	assert.Equal(t, "t19", h[len(h)-1].Title)
}

func TestPendingIsACopy(t *testing.T) {
	c := New("g1", 0)
	_, _ = c.Enqueue(tr("a"))
	p := c.Pending()
	p[0].Title = "changed"
	assert.Equal(t, "a", c.Pending()[0].Title)
}
