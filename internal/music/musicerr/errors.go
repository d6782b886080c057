// Package musicerr defines the typed failures returned by the playback core.
//
// Every failure carries a Kind. Callers match kinds with errors.Is against the
// exported sentinels:
//
//	if errors.Is(err, musicerr.ErrNoActiveSession) { ... }
package musicerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInvalidSource Kind = iota + 1
	KindConnectionFailure
	KindPlaybackFailure
	KindNoActiveSession
	KindNoActiveResource
	KindInvalidMode
	KindQueueFull
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSource:
		return "invalid source"
	case KindConnectionFailure:
		return "connection failure"
	case KindPlaybackFailure:
		return "playback failure"
	case KindNoActiveSession:
		return "no active session"
	case KindNoActiveResource:
		return "nothing is playing"
	case KindInvalidMode:
		return "invalid repeat mode"
	case KindQueueFull:
		return "queue is full"
	case KindRateLimited:
		return "too many requests"
	default:
		return "unknown error"
	}
}

var (
	ErrInvalidSource     = &Error{Kind: KindInvalidSource}
	ErrConnectionFailure = &Error{Kind: KindConnectionFailure}
	ErrPlaybackFailure   = &Error{Kind: KindPlaybackFailure}
	ErrNoActiveSession   = &Error{Kind: KindNoActiveSession}
	ErrNoActiveResource  = &Error{Kind: KindNoActiveResource}
	ErrInvalidMode       = &Error{Kind: KindInvalidMode}
	ErrQueueFull         = &Error{Kind: KindQueueFull}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
)

// Error is a guild-scoped failure of one operation.
type Error struct {
	Kind    Kind
	Op      string
	GuildID string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels compare by kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error of the given kind around cause.
func New(kind Kind, op, guildID string, cause error) *Error {
	return &Error{Kind: kind, Op: op, GuildID: guildID, Err: cause}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, op, guildID, format string, args ...any) *Error {
	return New(kind, op, guildID, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Scope re-labels err with op and guildID. Errors that already carry a kind keep it;
// anything else becomes fallback.
func Scope(err error, fallback Kind, op, guildID string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" || e.GuildID == "" {
			cp := *e
			if cp.Op == "" {
				cp.Op = op
			}
			if cp.GuildID == "" {
				cp.GuildID = guildID
			}
			return &cp
		}
		return err
	}
	return New(fallback, op, guildID, err)
}
