package analysis

import (
	"fmt"
	"io"

	"github.com/opd-ai/trackcore/audio"
	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/native"
	"github.com/sirupsen/logrus"
)

// renderQuality selects the anti-aliased resampler path.
const renderQuality = 5

// Renderer turns decoded tracks into mono audio at a fixed analysis rate.
// Channels are folded down by a native ChannelMixer, then a pooled resampler
// converts the rate.
type Renderer struct {
	module *native.Module
	pools  *Pools
	mixer  *audio.ChannelMixer
	rate   int
}

// NewRenderer creates a renderer producing mono audio at rate.
func NewRenderer(module *native.Module, pools *Pools, rate int) (*Renderer, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: %d", audio.ErrInvalidSampleRate, rate)
	}
	mixer, err := audio.NewChannelMixer(module, 1)
	if err != nil {
		return nil, err
	}
	return &Renderer{module: module, pools: pools, mixer: mixer, rate: rate}, nil
}

// Rate returns the output sample rate.
func (r *Renderer) Rate() int {
	return r.rate
}

// Open starts rendering at most maxFrames source frames of buf. The caller
// must Close the rendering to return its resampler to the pool.
func (r *Renderer) Open(buf *audio.AudioBuffer, maxFrames int) (*Rendering, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	channels := buf.NumberOfChannels()
	if err := limits.ValidateChannelCount(channels); err != nil {
		return nil, fmt.Errorf("%w: %d", audio.ErrInvalidChannelCount, channels)
	}

	resampler, key, err := r.pools.AllocResampler(audio.ResamplerConfig{
		InputRate:  uint32(buf.SampleRate),
		OutputRate: uint32(r.rate),
		Channels:   1,
		Quality:    renderQuality,
	})
	if err != nil {
		return nil, err
	}

	return &Rendering{
		renderer:  r,
		buf:       buf,
		resampler: resampler,
		key:       key,
		end:       min(buf.Frames(), maxFrames),
	}, nil
}

// Destroy frees the renderer's native memory.
func (r *Renderer) Destroy() error {
	return r.mixer.Destroy()
}

// Rendering is one pass over a track.
type Rendering struct {
	renderer  *Renderer
	buf       *audio.AudioBuffer
	resampler *audio.Resampler
	key       string
	pos, end  int
	inPtr     native.Ptr
	inSize    uint32
	closed    bool
}

// Next renders up to chunkFrames source frames, appending the mono output
// to dst[:0]. It returns io.EOF once the window is exhausted.
func (s *Rendering) Next(dst []float32, chunkFrames int) ([]float32, error) {
	if s.pos >= s.end {
		return dst[:0], io.EOF
	}
	n := min(chunkFrames, s.end-s.pos)
	channels := s.buf.NumberOfChannels()
	mod := s.renderer.module

	byteLength := uint32(limits.SampleBytes(n, channels))
	if byteLength > s.inSize || s.inPtr == 0 {
		ptr, err := mod.Memory.Realloc(s.inPtr, byteLength)
		if err != nil {
			return dst[:0], fmt.Errorf("render input: %w", err)
		}
		s.inPtr, s.inSize = ptr, byteLength
	}
	view, err := mod.Memory.Float32s(s.inPtr, byteLength)
	if err != nil {
		return dst[:0], err
	}
	s.buf.Interleave(view, s.pos, n)

	mixed, err := s.renderer.mixer.Mix(channels, s.inPtr, byteLength)
	if err != nil {
		return dst[:0], err
	}
	mono, err := mod.Memory.Float32s(mixed.SamplePtr, mixed.ByteLength)
	if err != nil {
		return dst[:0], err
	}

	out, err := s.resampler.Resample(dst[:0], mono)
	if err != nil {
		return dst[:0], err
	}
	s.pos += n
	return out, nil
}

// Position returns the number of source frames rendered so far.
func (s *Rendering) Position() int {
	return s.pos
}

// Close returns the resampler to its pool and frees the input block.
func (s *Rendering) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.renderer.pools.Resamplers.Free(s.key, s.resampler); err != nil {
		firstErr = err
	}
	if s.inPtr != 0 {
		if err := s.renderer.module.Memory.Free(s.inPtr); err != nil && firstErr == nil {
			firstErr = err
		}
		s.inPtr, s.inSize = 0, 0
	}
	if firstErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Rendering.Close",
			"error":    firstErr.Error(),
		}).Warn("Failed to release rendering resources")
	}
	return firstErr
}
