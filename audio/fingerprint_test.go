package audio

import (
	"encoding/base64"
	"testing"

	"github.com/opd-ai/trackcore/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fingerprintOf(t *testing.T, samples []float32) string {
	t.Helper()
	f, err := NewFingerprinter(native.NewModule())
	require.NoError(t, err)
	defer f.Destroy()

	require.NoError(t, f.NewFrames(samples))
	fp, err := f.CalculateFingerprint()
	require.NoError(t, err)
	return fp
}

func TestFingerprinterInsufficientSamples(t *testing.T) {
	f, err := NewFingerprinter(native.NewModule())
	require.NoError(t, err)
	defer f.Destroy()

	require.NoError(t, f.NewFrames(sine(440, 0.5, FingerprintSampleRate, 1, 3*FingerprintSampleRate)))
	assert.True(t, f.NeedFrames())

	_, err = f.CalculateFingerprint()
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestFingerprinterDeterministic(t *testing.T) {
	samples := sine(440, 0.5, FingerprintSampleRate, 1, 10*FingerprintSampleRate)

	a := fingerprintOf(t, samples)
	b := fingerprintOf(t, samples)
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	wantCodes := (len(samples)-fpFrameSize)/fpHopSize + 1
	assert.Len(t, raw, 4*wantCodes)
}

func TestFingerprinterDistinguishesPitch(t *testing.T) {
	a := fingerprintOf(t, sine(440, 0.5, FingerprintSampleRate, 1, 8*FingerprintSampleRate))
	c := fingerprintOf(t, sine(261.63, 0.5, FingerprintSampleRate, 1, 8*FingerprintSampleRate))
	assert.NotEqual(t, a, c)
}

func TestFingerprinterNeedFrames(t *testing.T) {
	f, err := NewFingerprinter(native.NewModule())
	require.NoError(t, err)
	defer f.Destroy()

	assert.True(t, f.NeedFrames())
	chunk := make([]float32, 10*FingerprintSampleRate)
	for i := 0; i < FingerprintMaxSeconds/10; i++ {
		require.NoError(t, f.NewFrames(chunk))
	}
	assert.False(t, f.NeedFrames())

	// Extra input is ignored once the window is full.
	require.NoError(t, f.NewFrames(chunk))
	assert.False(t, f.NeedFrames())

	require.NoError(t, f.Reinitialize())
	assert.True(t, f.NeedFrames())
	_, err = f.CalculateFingerprint()
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestFingerprinterDestroyOnce(t *testing.T) {
	mod := native.NewModule()
	f, err := NewFingerprinter(mod)
	require.NoError(t, err)
	require.NoError(t, f.NewFrames(make([]float32, 16)))

	require.NoError(t, f.Destroy())
	assert.Equal(t, 0, mod.LiveObjects())
	assert.Equal(t, 0, mod.Memory.LiveBlocks())

	assert.ErrorIs(t, f.Destroy(), native.ErrHandleReleased)
	assert.ErrorIs(t, f.NewFrames(make([]float32, 16)), native.ErrHandleReleased)
	assert.False(t, f.NeedFrames())
	_, err = f.CalculateFingerprint()
	assert.ErrorIs(t, err, native.ErrHandleReleased)
}

func TestChromaCodeBits(t *testing.T) {
	var chroma, prev [pitchClasses]float64
	chroma[0] = 1

	code := chromaCode(chroma, prev)
	assert.Equal(t, uint32(1), code&0xfff, "temporal increase on class 0 only")
	assert.Equal(t, uint32(1), (code>>12)&0xfff, "class 0 exceeds its neighbour")
	assert.Equal(t, uint32(1), code>>24, "class 0 above mean")
}
