package track

import (
	"fmt"
	"strings"
	"time"
)

// Track is an immutable descriptor of one playable item.
type Track struct {
	SourceURL   string
	Title       string
	Duration    time.Duration
	RequestedBy string
	Provider    string
}

// DurationSeconds returns the track length in whole seconds, 0 for live streams.
func (t Track) DurationSeconds() int {
	return int(t.Duration / time.Second)
}

// IsLive reports whether the track has no known length.
func (t Track) IsLive() bool {
	return t.Duration <= 0
}

func (t Track) String() string {
	if t.IsLive() {
		return fmt.Sprintf("%s (live)", t.Title)
	}
	return fmt.Sprintf("%s (%s)", t.Title, t.Duration.Truncate(time.Second))
}

type RepeatMode string

const (
	RepeatOff   RepeatMode = "off"
	RepeatSong  RepeatMode = "song"
	RepeatQueue RepeatMode = "queue"
)

// Valid reports whether m is one of the enumerated repeat modes.
func (m RepeatMode) Valid() bool {
	switch m {
	case RepeatOff, RepeatSong, RepeatQueue:
		return true
	}
	return false
}

func (m RepeatMode) StringEmoji() string {
	switch m {
	case RepeatSong:
		return "🔂"
	case RepeatQueue:
		return "🔁"
	default:
		return "➡️"
	}
}

// ParseRepeatMode converts user input into a RepeatMode. Unknown values report false.
func ParseRepeatMode(s string) (RepeatMode, bool) {
	m := RepeatMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return RepeatOff, false
	}
	return m, true
}
