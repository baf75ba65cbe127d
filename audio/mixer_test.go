package audio

import (
	"testing"

	"github.com/opd-ai/trackcore/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelMixer(t *testing.T) {
	tests := []struct {
		name      string
		channels  int
		expectErr bool
	}{
		{"zero", 0, true},
		{"mono", 1, false},
		{"three", 3, false},
		{"five", 5, false},
		{"six", 6, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mixer, err := NewChannelMixer(native.NewModule(), tt.channels)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrInvalidChannelCount)
				assert.Nil(t, mixer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.channels, mixer.DestinationChannelCount())
		})
	}
}

func TestChannelMixerOutputLength(t *testing.T) {
	mod := native.NewModule()
	mixer, err := NewChannelMixer(mod, 3)
	require.NoError(t, err)

	ptr, byteLength := putSamples(t, mod, make([]float32, 250))
	res, err := mixer.Mix(2, ptr, byteLength)
	require.NoError(t, err)
	assert.Equal(t, uint32(1500), res.ByteLength)
	assert.NotEqual(t, ptr, res.SamplePtr)
}

func TestOutputByteLength(t *testing.T) {
	tests := []struct {
		in, out int
		length  uint32
		want    uint32
	}{
		{2, 3, 1000, 1500},
		{3, 2, 1000, 667},
		{5, 1, 1000, 200},
		{1, 5, 8, 40},
		{2, 2, 64, 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputByteLength(tt.in, tt.out, tt.length), "%d->%d", tt.in, tt.out)
	}
}

func TestChannelMixerMix(t *testing.T) {
	tests := []struct {
		name  string
		in    int
		out   int
		input []float32
		want  []float32
	}{
		{
			name:  "stereo_to_mono",
			in:    2,
			out:   1,
			input: []float32{1, 0, 0.5, 0.5},
			want:  []float32{0.5, 0.5},
		},
		{
			name:  "mono_to_stereo",
			in:    1,
			out:   2,
			input: []float32{0.25, -0.5},
			want:  []float32{0.25, 0.25, -0.5, -0.5},
		},
		{
			name:  "quad_to_stereo",
			in:    4,
			out:   2,
			input: []float32{0.5, 0.25, 0, 0},
			want:  []float32{0.5, 0.25},
		},
		{
			name:  "stereo_to_three_keeps_fronts",
			in:    2,
			out:   3,
			input: []float32{0.2, 0.4},
			want:  []float32{0.2, 0.4, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := native.NewModule()
			mixer, err := NewChannelMixer(mod, tt.out)
			require.NoError(t, err)

			ptr, byteLength := putSamples(t, mod, tt.input)
			res, err := mixer.Mix(tt.in, ptr, byteLength)
			require.NoError(t, err)

			got := getSamples(t, mod, res.SamplePtr, res.ByteLength)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-6, "sample %d", i)
			}
		})
	}
}

func TestChannelMixerPassthrough(t *testing.T) {
	mod := native.NewModule()
	mixer, err := NewChannelMixer(mod, 2)
	require.NoError(t, err)

	ptr, byteLength := putSamples(t, mod, []float32{0.1, 0.2})
	res, err := mixer.Mix(2, ptr, byteLength)
	require.NoError(t, err)
	assert.Equal(t, MixResult{SamplePtr: ptr, ByteLength: byteLength}, res)
}

func TestChannelMixerNativeError(t *testing.T) {
	mod := native.NewModule()
	mixer, err := NewChannelMixer(mod, 1)
	require.NoError(t, err)

	_, err = mixer.Mix(2, native.Ptr(4096), 64)
	var nerr *native.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, native.CodeInvalidPointer, nerr.Code)
	assert.NotEmpty(t, nerr.Message)
	assert.Equal(t, nerr.Message, mod.GetError())
}

func TestChannelMixerInvalidInputCount(t *testing.T) {
	mixer, err := NewChannelMixer(native.NewModule(), 2)
	require.NoError(t, err)

	_, err = mixer.Mix(6, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidChannelCount)
}

func TestChannelMixerEmptyInput(t *testing.T) {
	mod := native.NewModule()
	mixer, err := NewChannelMixer(mod, 3)
	require.NoError(t, err)

	res, err := mixer.Mix(2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, MixResult{}, res)
	assert.Equal(t, 0, mod.Memory.LiveBlocks())

	// A later non-empty mix still allocates normally.
	ptr, byteLength := putSamples(t, mod, []float32{0.5, 0.5})
	res, err = mixer.Mix(2, ptr, byteLength)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), res.ByteLength)
}

func TestChannelMixerDestroy(t *testing.T) {
	mod := native.NewModule()
	mixer, err := NewChannelMixer(mod, 1)
	require.NoError(t, err)

	ptr, byteLength := putSamples(t, mod, []float32{1, 1})
	_, err = mixer.Mix(2, ptr, byteLength)
	require.NoError(t, err)
	assert.Equal(t, 2, mod.Memory.LiveBlocks())

	require.NoError(t, mixer.Destroy())
	assert.Equal(t, 1, mod.Memory.LiveBlocks())
}
