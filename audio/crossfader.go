package audio

import (
	"fmt"
	"math"
	"time"

	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/native"
	"github.com/sirupsen/logrus"
)

// FadeCurve selects the gain curve of a fade.
type FadeCurve uint8

const (
	// FadeLinear ramps gain linearly.
	FadeLinear FadeCurve = iota
	// FadeEqualPower ramps along a quarter sine, keeping perceived level
	// constant when two tracks overlap.
	FadeEqualPower
)

// CrossfadeConfig configures fade-in and fade-out at track boundaries.
type CrossfadeConfig struct {
	Duration       time.Duration
	FadeInEnabled  bool
	FadeOutEnabled bool
	Curve          FadeCurve
}

// Crossfader applies fade curves in place to windows of a track.
type Crossfader struct {
	module *native.Module
	config CrossfadeConfig
}

// NewCrossfader creates a crossfader. A negative duration is rejected.
func NewCrossfader(module *native.Module, config CrossfadeConfig) (*Crossfader, error) {
	if config.Duration < 0 {
		return nil, fmt.Errorf("%w: negative crossfade duration %v", ErrInvalidParameter, config.Duration)
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewCrossfader",
		"duration": config.Duration,
		"fade_in":  config.FadeInEnabled,
		"fade_out": config.FadeOutEnabled,
	}).Debug("Creating crossfader")
	return &Crossfader{module: module, config: config}, nil
}

// Config returns the current configuration.
func (c *Crossfader) Config() CrossfadeConfig {
	return c.config
}

// Apply fades byteLength bytes of interleaved audio at ptr. positionFrames is
// the window's first frame within the track and trackFrames the track length.
// A zero duration or both fades disabled leaves the samples untouched.
func (c *Crossfader) Apply(ptr native.Ptr, byteLength uint32, channels, sampleRate int, positionFrames, trackFrames int64) error {
	if c.config.Duration == 0 || (!c.config.FadeInEnabled && !c.config.FadeOutEnabled) {
		return nil
	}
	if err := limits.ValidateChannelCount(channels); err != nil {
		return fmt.Errorf("%w: %d", ErrInvalidChannelCount, channels)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}

	fadeFrames := int64(c.config.Duration.Seconds() * float64(sampleRate))
	if fadeFrames == 0 {
		return nil
	}
	code := crossfadeKernel(c.module, ptr, byteLength, channels, positionFrames, trackFrames, fadeFrames, c.config)
	return c.module.Check(code)
}

func fadeGain(curve FadeCurve, x float64) float32 {
	x = math.Max(0, math.Min(1, x))
	if curve == FadeEqualPower {
		return float32(math.Sin(x * math.Pi / 2))
	}
	return float32(x)
}

func crossfadeKernel(mod *native.Module, ptr native.Ptr, byteLength uint32, channels int, position, total, fadeFrames int64, cfg CrossfadeConfig) int {
	if position < 0 || total < 0 {
		return mod.Fail(native.CodeInvalidArgument, "crossfade position %d / length %d", position, total)
	}
	frames := int64(byteLength) / int64(channels*limits.BytesPerSample)
	if frames == 0 {
		return native.CodeOK
	}
	samples, err := mod.Memory.Float32s(ptr, uint32(frames)*uint32(channels*limits.BytesPerSample))
	if err != nil {
		return mod.Fail(native.CodeInvalidPointer, "crossfade window: %v", err)
	}

	fadeOutStart := total - fadeFrames
	for f := int64(0); f < frames; f++ {
		abs := position + f
		gain := float32(1)
		if cfg.FadeInEnabled && abs < fadeFrames {
			gain *= fadeGain(cfg.Curve, float64(abs)/float64(fadeFrames))
		}
		if cfg.FadeOutEnabled && abs >= fadeOutStart {
			gain *= fadeGain(cfg.Curve, float64(total-abs)/float64(fadeFrames))
		}
		if gain == 1 {
			continue
		}
		for ch := 0; ch < channels; ch++ {
			samples[int(f)*channels+ch] *= gain
		}
	}
	return native.CodeOK
}
