package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Sink accepts encoded opus frames, typically a voice connection.
type Sink interface {
	Send(ctx context.Context, frame []byte) error
}

// Control is consulted between frames.
type Control interface {
	// Volume returns the gain in percent, 0..100.
	Volume() int
	// WaitIfPaused blocks while playback is paused. It returns ctx's error if ctx
	// ends while waiting.
	WaitIfPaused(ctx context.Context) error
}

// Pump reads PCM frames from src, applies the control's volume, encodes and
// sends them to sink until src ends or ctx is cancelled. firstFrame is called
// once after the first frame was accepted by sink. A clean end of src or a
// cancelled ctx returns nil.
func Pump(ctx context.Context, src io.Reader, sink Sink, enc Encoder, ctl Control, firstFrame func()) error {
	pcmBuf := make([]byte, FrameBytes)
	intBuf := make([]int16, FrameSize*Channels)
	sent := false

	for {
		if err := ctl.WaitIfPaused(ctx); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		if _, err := io.ReadFull(src, pcmBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}
		ApplyVolume(intBuf, ctl.Volume())

		opus, err := enc.Encode(intBuf, FrameSize, len(pcmBuf))
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		if err := sink.Send(ctx, opus); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send error: %w", err)
		}

		if !sent {
			sent = true
			if firstFrame != nil {
				firstFrame()
			}
		}
	}
}

// ApplyVolume scales samples in place by percent (clamped to 0..100).
func ApplyVolume(samples []int16, percent int) {
	percent = ClampVolume(percent)
	if percent == 100 {
		return
	}
	gain := float64(percent) / 100
	for i, s := range samples {
		v := math.Round(float64(s) * gain)
		samples[i] = int16(max(math.MinInt16, min(math.MaxInt16, v)))
	}
}

// ClampVolume bounds percent to 0..100.
func ClampVolume(percent int) int {
	return min(max(percent, 0), 100)
}
