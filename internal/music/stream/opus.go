package stream

import (
	"fmt"

	"layeh.com/gopus"
)

// Encoder turns one PCM frame into one opus packet.
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// EncoderFactory creates a fresh encoder per playback; opus encoders are stateful.
type EncoderFactory func() (Encoder, error)

const opusBitrate = 96000

// NewOpusEncoder returns a libopus encoder tuned for music at 48kHz stereo.
func NewOpusEncoder() (Encoder, error) {
	enc, err := gopus.NewEncoder(SampleRate, Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}
	enc.SetBitrate(opusBitrate)
	return enc, nil
}
