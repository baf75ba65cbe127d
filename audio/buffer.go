package audio

import (
	"fmt"
	"time"
)

// AudioBuffer holds decoded planar audio: one float32 slice per channel, all
// of equal length, samples in [-1, 1].
type AudioBuffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewAudioBuffer allocates a silent buffer.
func NewAudioBuffer(channels, frames, sampleRate int) *AudioBuffer {
	planes := make([][]float32, channels)
	for i := range planes {
		planes[i] = make([]float32, frames)
	}
	return &AudioBuffer{SampleRate: sampleRate, Channels: planes}
}

// NumberOfChannels returns the channel count.
func (b *AudioBuffer) NumberOfChannels() int {
	return len(b.Channels)
}

// Frames returns the number of sample frames.
func (b *AudioBuffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length.
func (b *AudioBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Validate checks the buffer shape.
func (b *AudioBuffer) Validate() error {
	if b == nil || len(b.Channels) == 0 {
		return ErrEmptyInput
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, b.SampleRate)
	}
	n := len(b.Channels[0])
	for i, ch := range b.Channels {
		if len(ch) != n {
			return fmt.Errorf("%w: channel %d has %d frames, want %d", ErrMisalignedInput, i, len(ch), n)
		}
	}
	return nil
}

// Interleave writes frames [start, start+count) of every channel into dst in
// interleaved order and returns the number of samples written.
func (b *AudioBuffer) Interleave(dst []float32, start, count int) int {
	channels := len(b.Channels)
	count = min(count, b.Frames()-start, len(dst)/max(channels, 1))
	if count <= 0 {
		return 0
	}
	for f := 0; f < count; f++ {
		for c := 0; c < channels; c++ {
			dst[f*channels+c] = b.Channels[c][start+f]
		}
	}
	return count * channels
}
