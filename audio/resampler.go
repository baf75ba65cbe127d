// Sample rate conversion. Tracks arrive at whatever rate they were encoded
// with but fingerprinting analyses a fixed 11025Hz mono signal, so every
// track is rendered through a pooled Resampler first.

package audio

import (
	"fmt"
	"math"

	"github.com/opd-ai/trackcore/limits"
	"github.com/sirupsen/logrus"
)

// antiAliasQuality is the lowest quality that enables the box pre-filter when
// downsampling.
const antiAliasQuality = 5

// Resampler provides audio sample rate conversion for interleaved float32 audio.
//
// Uses linear interpolation between adjacent frames. At quality 5 and above a
// moving-average pre-filter spanning one output period is applied when
// downsampling, which suppresses most aliasing for analysis purposes.
type Resampler struct {
	inputRate   uint32
	outputRate  uint32
	channels    int
	quality     int
	lastSamples []float32 // Last frame of the previous call for interpolation
	position    float64   // Current fractional position in input stream
}

// ResamplerConfig holds configuration for creating a resampler.
type ResamplerConfig struct {
	InputRate  uint32 // Input sample rate in Hz
	OutputRate uint32 // Output sample rate in Hz
	Channels   int    // Number of audio channels (1-5)
	Quality    int    // Resampling quality (0-10, default: 4)
}

// normalize validates the configuration and fills in the default quality.
func (c ResamplerConfig) normalize() (ResamplerConfig, error) {
	if c.InputRate == 0 || c.OutputRate == 0 {
		return c, fmt.Errorf("%w: input=%d, output=%d", ErrInvalidSampleRate, c.InputRate, c.OutputRate)
	}
	if err := limits.ValidateChannelCount(c.Channels); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidChannelCount, err)
	}
	if c.Quality == 0 {
		c.Quality = 4
	}
	if c.Quality < 0 || c.Quality > 10 {
		return c, fmt.Errorf("%w: %d (must be 0-10)", ErrInvalidQuality, c.Quality)
	}
	return c, nil
}

// Key returns the pool key identifying this configuration.
func (c ResamplerConfig) Key() string {
	return fmt.Sprintf("%d|%d|%d|%d", c.Channels, c.InputRate, c.OutputRate, c.Quality)
}

// NewResampler creates a new audio resampler instance.
//
// Parameters:
//   - config: Resampler configuration
//
// Returns:
//   - *Resampler: New resampler instance
//   - error: Validation error for rates, channels or quality
func NewResampler(config ResamplerConfig) (*Resampler, error) {
	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  config.InputRate,
		"output_rate": config.OutputRate,
		"channels":    config.Channels,
		"quality":     config.Quality,
	}).Debug("Creating new audio resampler")

	r := &Resampler{}
	if err := r.Reinitialize(config); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewResampler",
			"error":    err.Error(),
		}).Error("Resampler configuration validation failed")
		return nil, err
	}
	return r, nil
}

// Reinitialize reconfigures the resampler and clears all stream state, so a
// recycled instance behaves exactly like a freshly constructed one.
func (r *Resampler) Reinitialize(config ResamplerConfig) error {
	config, err := config.normalize()
	if err != nil {
		return err
	}

	r.inputRate = config.InputRate
	r.outputRate = config.OutputRate
	r.channels = config.Channels
	r.quality = config.Quality
	if cap(r.lastSamples) >= config.Channels {
		r.lastSamples = r.lastSamples[:config.Channels]
	} else {
		r.lastSamples = make([]float32, config.Channels)
	}
	return r.Reset()
}

// validateResamplerInput checks that input is non-empty and frame aligned.
func validateResamplerInput(input []float32, channels int) error {
	if len(input) == 0 {
		return ErrEmptyInput
	}
	if len(input)%channels != 0 {
		return fmt.Errorf("%w: %d samples, %d channels", ErrMisalignedInput, len(input), channels)
	}
	return nil
}

// interpolateSample performs linear interpolation for one channel at the
// given input frame index and fractional offset.
func interpolateSample(input []float32, inputIndex int, frac float64, ch, channels, inputFrames int, lastSamples []float32) float32 {
	if inputIndex < 0 {
		// Between the previous call's last frame and this call's first frame.
		prev := float64(lastSamples[ch])
		next := float64(input[ch])
		return float32(prev*(1-(frac)) + next*frac)
	}
	if inputIndex >= inputFrames-1 {
		return input[(inputFrames-1)*channels+ch]
	}
	s1 := float64(input[inputIndex*channels+ch])
	s2 := float64(input[(inputIndex+1)*channels+ch])
	return float32(s1*(1.0-frac) + s2*frac)
}

// antiAlias applies a moving average of width taps per channel in place.
func antiAlias(samples []float32, channels, taps int) {
	if taps <= 1 {
		return
	}
	frames := len(samples) / channels
	sums := make([]float64, channels)
	history := make([]float32, len(samples))
	copy(history, samples)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			sums[ch] += float64(history[f*channels+ch])
			if f >= taps {
				sums[ch] -= float64(history[(f-taps)*channels+ch])
			}
			n := min(f+1, taps)
			samples[f*channels+ch] = float32(sums[ch] / float64(n))
		}
	}
}

// Resample converts interleaved samples from the input rate to the output
// rate, appending to dst (which may be nil) and returning the extended slice.
//
// Successive calls continue the same stream: fractional position and the last
// frame carry over so chunked input produces a seamless output.
func (r *Resampler) Resample(dst, input []float32) ([]float32, error) {
	if err := validateResamplerInput(input, r.channels); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Resampler.Resample",
			"error":    err.Error(),
		}).Error("Input validation failed")
		return dst, err
	}

	if r.inputRate == r.outputRate {
		return append(dst, input...), nil
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	inputFrames := len(input) / r.channels

	if r.quality >= antiAliasQuality && ratio > 1 {
		filtered := make([]float32, len(input))
		copy(filtered, input)
		antiAlias(filtered, r.channels, int(math.Ceil(ratio)))
		input = filtered
	}

	for {
		inputIndex := int(math.Floor(r.position))
		if inputIndex >= inputFrames-1 {
			// The next chunk interpolates from lastSamples at a negative index.
			break
		}
		frac := r.position - float64(inputIndex)
		for ch := 0; ch < r.channels; ch++ {
			dst = append(dst, interpolateSample(input, inputIndex, frac, ch, r.channels, inputFrames, r.lastSamples))
		}
		r.position += ratio
	}

	r.position -= float64(inputFrames)
	copy(r.lastSamples, input[len(input)-r.channels:])

	logrus.WithFields(logrus.Fields{
		"function":       "Resampler.Resample",
		"input_frames":   inputFrames,
		"output_samples": len(dst),
		"ratio":          ratio,
	}).Debug("Resampled audio chunk")

	return dst, nil
}

// GetInputRate returns the configured input sample rate.
func (r *Resampler) GetInputRate() uint32 {
	return r.inputRate
}

// GetOutputRate returns the configured output sample rate.
func (r *Resampler) GetOutputRate() uint32 {
	return r.outputRate
}

// GetChannels returns the configured number of channels.
func (r *Resampler) GetChannels() int {
	return r.channels
}

// GetQuality returns the configured resampling quality.
func (r *Resampler) GetQuality() int {
	return r.quality
}

// CalculateOutputSize estimates the output frame count for inputFrames frames.
func (r *Resampler) CalculateOutputSize(inputFrames int) int {
	if r.inputRate == r.outputRate {
		return inputFrames
	}
	ratio := float64(r.outputRate) / float64(r.inputRate)
	return int(float64(inputFrames)*ratio + 0.5)
}

// Reset clears the stream state: fractional position and the carried frame.
func (r *Resampler) Reset() error {
	r.position = 0.0
	clear(r.lastSamples)
	return nil
}
