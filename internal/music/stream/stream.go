package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	Channels   = 2
	SampleRate = 48000
	FrameSize  = 960 // 20ms at 48kHz

	// FrameBytes is one s16le PCM frame.
	FrameBytes = FrameSize * Channels * 2
)

var ErrNoAudio = errors.New("stream ended before the first audio frame")

// Handle is an acquired PCM stream (s16le, 48kHz, stereo) ready for playback.
type Handle struct {
	*bufio.Reader
	Provider string
	URL      string

	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
}

// Close releases the underlying source. Safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if h.closer != nil {
			h.closeErr = h.closer.Close()
		}
	})
	return h.closeErr
}

// NewHandle wraps an already-verified source without probing it.
func NewHandle(rc io.ReadCloser, provider, url string) *Handle {
	return &Handle{
		Reader:   bufio.NewReaderSize(rc, FrameBytes*4),
		Provider: provider,
		URL:      url,
		closer:   rc,
	}
}

// Acquire waits until rc yields its first full frame, so a source that dies
// during startup is reported as an acquisition failure instead of an instant end
// of track. If ctx ends first rc is closed and ctx's error returned.
func Acquire(ctx context.Context, rc io.ReadCloser, provider, url string) (*Handle, error) {
	h := NewHandle(rc, provider, url)

	peeked := make(chan error, 1)
	go func() {
		_, err := h.Peek(FrameBytes)
		peeked <- err
	}()

	select {
	case err := <-peeked:
		if err != nil {
			_ = h.Close()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrNoAudio
			}
			return nil, fmt.Errorf("read first frame: %w", err)
		}
		return h, nil
	case <-ctx.Done():
		_ = h.Close()
		<-peeked
		return nil, fmt.Errorf("waiting for first frame: %w", ctx.Err())
	}
}
