package audio

import (
	"math"
	"testing"

	"github.com/opd-ai/trackcore/native"
	"github.com/stretchr/testify/require"
)

// putSamples copies samples into a fresh arena block.
func putSamples(t *testing.T, mod *native.Module, samples []float32) (native.Ptr, uint32) {
	t.Helper()
	byteLength := uint32(4 * len(samples))
	ptr, err := mod.Memory.Malloc(byteLength)
	require.NoError(t, err)
	view, err := mod.Memory.Float32s(ptr, byteLength)
	require.NoError(t, err)
	copy(view, samples)
	return ptr, byteLength
}

// getSamples copies byteLength bytes at ptr out of the arena.
func getSamples(t *testing.T, mod *native.Module, ptr native.Ptr, byteLength uint32) []float32 {
	t.Helper()
	view, err := mod.Memory.Float32s(ptr, byteLength)
	require.NoError(t, err)
	out := make([]float32, len(view))
	copy(out, view)
	return out
}

// sine generates an interleaved sine of the given frequency and amplitude on
// every channel.
func sine(freq, amplitude float64, sampleRate, channels, frames int) []float32 {
	out := make([]float32, frames*channels)
	for f := 0; f < frames; f++ {
		v := float32(amplitude * math.Sin(2*math.Pi*freq*float64(f)/float64(sampleRate)))
		for ch := 0; ch < channels; ch++ {
			out[f*channels+ch] = v
		}
	}
	return out
}

func constant(value float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = value
	}
	return out
}
