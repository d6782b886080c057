// Package queue holds a guild's pending tracks, its current track and the
// repeat policy that decides what plays after the current track goes idle.
//
// A Controller is not safe for concurrent use; the owning session serialises
// access to it.
package queue

import (
	"slices"

	"domme-voice/internal/music/musicerr"
	"domme-voice/internal/music/track"
)

const (
	DefaultMaxLength = 200
	historyLimit     = 12
)

type Controller struct {
	guildID   string
	maxLength int

	mode    track.RepeatMode
	current *track.Track
	pending []track.Track
	history []track.Track
}

// New returns an empty controller with repeat off. maxLength <= 0 uses
// DefaultMaxLength.
func New(guildID string, maxLength int) *Controller {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Controller{
		guildID:   guildID,
		maxLength: maxLength,
		mode:      track.RepeatOff,
	}
}

// Enqueue appends t to the tail and returns its 1-based position.
func (c *Controller) Enqueue(t track.Track) (int, error) {
	if len(c.pending) >= c.maxLength {
		return 0, musicerr.Newf(musicerr.KindQueueFull, "enqueue", c.guildID,
			"queue already holds %d tracks", len(c.pending))
	}
	c.pending = append(c.pending, t)
	return len(c.pending), nil
}

// Next makes the queue head current. It reports false when the queue is empty
// or a track is already current.
func (c *Controller) Next() (track.Track, bool) {
	if c.current != nil || len(c.pending) == 0 {
		return track.Track{}, false
	}
	t := c.pending[0]
	c.pending = slices.Delete(c.pending, 0, 1)
	c.setCurrent(t)
	return t, true
}

// Advance applies the repeat policy to the current track and picks what plays
// next. natural is true when the current track reached its end; song repeat
// only applies then. Queue repeat re-appends the current track either way. It
// reports false once the queue drained; the current track is cleared then.
func (c *Controller) Advance(natural bool) (track.Track, bool) {
	if c.current != nil {
		cur := *c.current
		switch {
		case natural && c.mode == track.RepeatSong:
			c.setCurrent(cur)
			return cur, true
		case c.mode == track.RepeatQueue:
			c.pending = append(c.pending, cur)
		}
		c.current = nil
	}
	return c.Next()
}

// Drop clears the current track without applying any repeat policy.
func (c *Controller) Drop() {
	c.current = nil
}

// Clear drops the current track and every pending one. The repeat mode stays.
func (c *Controller) Clear() {
	c.current = nil
	c.pending = nil
}

func (c *Controller) setCurrent(t track.Track) {
	c.current = &t
	c.history = append(c.history, t)
	if len(c.history) > historyLimit {
		c.history = slices.Delete(c.history, 0, len(c.history)-historyLimit)
	}
}

func (c *Controller) Current() (track.Track, bool) {
	if c.current == nil {
		return track.Track{}, false
	}
	return *c.current, true
}

// Pending returns a copy of the queued tracks, head first.
func (c *Controller) Pending() []track.Track {
	return slices.Clone(c.pending)
}

func (c *Controller) Len() int {
	return len(c.pending)
}

// History returns the most recently started tracks, oldest first.
func (c *Controller) History() []track.Track {
	return slices.Clone(c.history)
}

func (c *Controller) Mode() track.RepeatMode {
	return c.mode
}

func (c *Controller) SetMode(mode track.RepeatMode) error {
	if !mode.Valid() {
		return musicerr.Newf(musicerr.KindInvalidMode, "repeat", c.guildID, "unknown repeat mode %q", mode)
	}
	c.mode = mode
	return nil
}
