// Package limits provides centralized channel, buffer and transfer limits for the
// analysis core. This ensures consistent validation across the worker transport,
// the native processing units and the calculators.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MinChannels is the smallest channel count any processing unit accepts.
	MinChannels = 1

	// MaxChannels is the largest channel count the mixer, loudness analyzer
	// and loudness calculator handle (5.0 surround without LFE).
	MaxChannels = 5

	// BytesPerSample is the size of one float32 sample in native memory.
	BytesPerSample = 4

	// LoudnessBufferFrames is the number of frames preallocated per channel
	// buffer by a loudness calculator. Peak memory of one calculator is
	// MaxChannels * LoudnessBufferFrames * BytesPerSample.
	LoudnessBufferFrames = 1 << 16

	// FingerprintBufferFrames is the number of mono frames sent to the
	// fingerprint accumulator per addFrames call.
	FingerprintBufferFrames = 1 << 15

	// MaxFrameSize is the largest encoded envelope accepted by a stream port.
	// It comfortably holds MaxChannels full loudness buffers plus framing.
	MaxFrameSize = 16 * 1024 * 1024

	// FrameHeaderSize is the length prefix written before every stream frame.
	FrameHeaderSize = 4
)

var (
	// ErrBufferEmpty indicates an empty buffer or frame was provided
	ErrBufferEmpty = errors.New("empty buffer")

	// ErrBufferTooLarge indicates a buffer or frame exceeds its maximum size
	ErrBufferTooLarge = errors.New("buffer too large")

	// ErrChannelCount indicates a channel count outside [MinChannels, MaxChannels]
	ErrChannelCount = errors.New("channel count out of range")
)

// ValidateChannelCount checks that channels lies within [MinChannels, MaxChannels].
func ValidateChannelCount(channels int) error {
	if channels < MinChannels || channels > MaxChannels {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrChannelCount, channels, MinChannels, MaxChannels)
	}
	return nil
}

// ValidateBufferSize validates a byte buffer against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateBufferSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrBufferEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrBufferTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateFrame validates an encoded stream frame against MaxFrameSize.
func ValidateFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrBufferEmpty
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrBufferTooLarge, len(frame), MaxFrameSize)
	}
	return nil
}

// ValidateFrameLength checks a decoded length prefix before any allocation.
func ValidateFrameLength(n uint32) error {
	if n == 0 {
		return ErrBufferEmpty
	}
	if n > MaxFrameSize {
		return fmt.Errorf("%w: frame length %d exceeds limit %d", ErrBufferTooLarge, n, MaxFrameSize)
	}
	return nil
}

// SampleBytes returns the byte length of frames*channels float32 samples.
func SampleBytes(frames, channels int) int {
	return frames * channels * BytesPerSample
}
