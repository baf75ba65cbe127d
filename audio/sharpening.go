package audio

import (
	"fmt"

	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/native"
)

// MaxSharpeningAmount bounds the emphasis factor.
const MaxSharpeningAmount = 1.0

// NoiseSharpening adds first-order high-frequency emphasis:
//
//	y[n] = x[n] + amount * (x[n] - x[n-1])
//
// The previous sample of every channel carries across calls.
type NoiseSharpening struct {
	module   *native.Module
	amount   float32
	channels int
	previous []float32
}

// NewNoiseSharpening creates a sharpening stage for channels channels.
func NewNoiseSharpening(module *native.Module, channels int, amount float32) (*NoiseSharpening, error) {
	if err := limits.ValidateChannelCount(channels); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, channels)
	}
	if amount < 0 || amount > MaxSharpeningAmount {
		return nil, fmt.Errorf("%w: sharpening amount %.2f", ErrInvalidParameter, amount)
	}
	return &NoiseSharpening{
		module:   module,
		amount:   amount,
		channels: channels,
		previous: make([]float32, channels),
	}, nil
}

// Reset clears the carried samples.
func (n *NoiseSharpening) Reset() {
	clear(n.previous)
}

// Apply processes byteLength bytes of interleaved audio at ptr in place.
func (n *NoiseSharpening) Apply(ptr native.Ptr, byteLength uint32) error {
	if n.amount == 0 {
		return nil
	}
	return n.module.Check(sharpenKernel(n.module, ptr, byteLength, n.channels, n.amount, n.previous))
}

func sharpenKernel(mod *native.Module, ptr native.Ptr, byteLength uint32, channels int, amount float32, previous []float32) int {
	frames := byteLength / uint32(channels*limits.BytesPerSample)
	if frames == 0 {
		return native.CodeOK
	}
	samples, err := mod.Memory.Float32s(ptr, frames*uint32(channels*limits.BytesPerSample))
	if err != nil {
		return mod.Fail(native.CodeInvalidPointer, "sharpening window: %v", err)
	}
	for i, x := range samples {
		ch := i % channels
		y := x + amount*(x-previous[ch])
		previous[ch] = x
		samples[i] = max(-1, min(1, y))
	}
	return native.CodeOK
}
