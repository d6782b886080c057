package musicerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := New(KindInvalidSource, "play", "g1", errors.New("unsupported host"))

	assert.True(t, errors.Is(err, ErrInvalidSource))
	assert.False(t, errors.Is(err, ErrPlaybackFailure))
	assert.Equal(t, "play: invalid source: unsupported host", err.Error())

	wrapped := fmt.Errorf("command failed: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInvalidSource))
	assert.Equal(t, KindInvalidSource, KindOf(wrapped))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("ffmpeg exited")
	err := New(KindPlaybackFailure, "play", "g1", cause)
	assert.ErrorIs(t, err, cause)
}

func TestScope(t *testing.T) {
	assert.NoError(t, Scope(nil, KindPlaybackFailure, "play", "g1"))

	plain := Scope(errors.New("boom"), KindConnectionFailure, "play", "g1")
	assert.ErrorIs(t, plain, ErrConnectionFailure)

	typed := Scope(&Error{Kind: KindInvalidSource}, KindPlaybackFailure, "play", "g1")
	require.ErrorIs(t, typed, ErrInvalidSource)
	var e *Error
	require.ErrorAs(t, typed, &e)
	assert.Equal(t, "play", e.Op)
	assert.Equal(t, "g1", e.GuildID)

	// sentinels are not mutated
	assert.Empty(t, ErrInvalidSource.Op)
}

func TestKindOfUnknown(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, "unknown error", Kind(0).String())
}
