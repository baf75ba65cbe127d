package audio

import (
	"math"
	"testing"
	"time"

	"github.com/opd-ai/trackcore/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossfaderApply(t *testing.T) {
	tests := []struct {
		name     string
		config   CrossfadeConfig
		channels int
		input    []float32
		position int64
		track    int64
		want     []float32
	}{
		{
			name:     "zero_duration_is_noop",
			config:   CrossfadeConfig{FadeInEnabled: true, FadeOutEnabled: true},
			channels: 1,
			input:    constant(1, 4),
			track:    4,
			want:     constant(1, 4),
		},
		{
			name:     "disabled_fades_are_noop",
			config:   CrossfadeConfig{Duration: time.Second},
			channels: 1,
			input:    constant(1, 4),
			track:    4,
			want:     constant(1, 4),
		},
		{
			name:     "linear_fade_in",
			config:   CrossfadeConfig{Duration: time.Second, FadeInEnabled: true},
			channels: 1,
			input:    constant(1, 6),
			track:    100,
			want:     []float32{0, 0.25, 0.5, 0.75, 1, 1},
		},
		{
			name:     "linear_fade_out_window",
			config:   CrossfadeConfig{Duration: time.Second, FadeOutEnabled: true},
			channels: 1,
			input:    constant(1, 4),
			position: 4,
			track:    8,
			want:     []float32{1, 0.75, 0.5, 0.25},
		},
		{
			name:     "stereo_fade_in_applies_per_frame",
			config:   CrossfadeConfig{Duration: time.Second, FadeInEnabled: true},
			channels: 2,
			input:    constant(1, 4),
			track:    100,
			want:     []float32{0, 0, 0.25, 0.25},
		},
		{
			name:     "equal_power_curve",
			config:   CrossfadeConfig{Duration: time.Second, FadeInEnabled: true, Curve: FadeEqualPower},
			channels: 1,
			input:    constant(1, 3),
			track:    100,
			want:     []float32{0, float32(math.Sin(math.Pi / 8)), float32(math.Sqrt2 / 2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := native.NewModule()
			fader, err := NewCrossfader(mod, tt.config)
			require.NoError(t, err)

			ptr, byteLength := putSamples(t, mod, tt.input)
			require.NoError(t, fader.Apply(ptr, byteLength, tt.channels, 4, tt.position, tt.track))

			got := getSamples(t, mod, ptr, byteLength)
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-6, "sample %d", i)
			}
		})
	}
}

func TestCrossfaderValidation(t *testing.T) {
	mod := native.NewModule()

	_, err := NewCrossfader(mod, CrossfadeConfig{Duration: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	fader, err := NewCrossfader(mod, CrossfadeConfig{Duration: time.Second, FadeInEnabled: true})
	require.NoError(t, err)
	assert.ErrorIs(t, fader.Apply(0, 0, 0, 44100, 0, 0), ErrInvalidChannelCount)
	assert.ErrorIs(t, fader.Apply(0, 0, 2, 0, 0, 0), ErrInvalidSampleRate)

	err = fader.Apply(native.Ptr(1<<20), 16, 1, 44100, 0, 100)
	var nerr *native.Error
	assert.ErrorAs(t, err, &nerr)
}
