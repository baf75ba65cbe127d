package audio

import (
	"fmt"
	"math"

	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/native"
	"github.com/sirupsen/logrus"
)

const (
	// MaxGainDB bounds the effects gain.
	MaxGainDB = 24.0
	// MinGainDB bounds the effects attenuation.
	MinGainDB = -60.0
)

// Effects applies gain and stereo balance to interleaved float32 audio.
//
// Design decisions:
// - Gain is configured in dB, typically from a loudness normalization result
// - Balance only affects the first two channels of a layout
// - Output is clipped to [-1, 1]
type Effects struct {
	module  *native.Module
	gainDB  float64
	balance float64
}

// NewEffects creates a unity effects stage.
func NewEffects(module *native.Module) *Effects {
	return &Effects{module: module}
}

// SetGainDB updates the gain in decibels.
//
// Parameters:
//   - db: gain between MinGainDB and MaxGainDB
//
// Returns:
//   - error: ErrInvalidParameter when out of range
func (e *Effects) SetGainDB(db float64) error {
	if math.IsNaN(db) || db < MinGainDB || db > MaxGainDB {
		logrus.WithFields(logrus.Fields{
			"function": "Effects.SetGainDB",
			"gain_db":  db,
		}).Error("Gain validation failed")
		return fmt.Errorf("%w: gain %.2f dB outside [%.0f, %.0f]", ErrInvalidParameter, db, MinGainDB, MaxGainDB)
	}
	e.gainDB = db
	return nil
}

// GainDB returns the configured gain.
func (e *Effects) GainDB() float64 {
	return e.gainDB
}

// SetBalance sets stereo balance: -1 is full left, 0 centre, 1 full right.
func (e *Effects) SetBalance(balance float64) error {
	if math.IsNaN(balance) || balance < -1 || balance > 1 {
		return fmt.Errorf("%w: balance %.2f outside [-1, 1]", ErrInvalidParameter, balance)
	}
	e.balance = balance
	return nil
}

// Balance returns the configured balance.
func (e *Effects) Balance() float64 {
	return e.balance
}

// Apply processes byteLength bytes of interleaved audio at ptr in place and
// returns the number of clipped samples.
func (e *Effects) Apply(ptr native.Ptr, byteLength uint32, channels int) (int, error) {
	if err := limits.ValidateChannelCount(channels); err != nil {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannelCount, channels)
	}
	clipped := 0
	code := effectsKernel(e.module, ptr, byteLength, channels, math.Pow(10, e.gainDB/20), e.balance, &clipped)
	if err := e.module.Check(code); err != nil {
		return 0, err
	}
	if clipped > 0 {
		logrus.WithFields(logrus.Fields{
			"function":      "Effects.Apply",
			"clipped_count": clipped,
			"gain_db":       e.gainDB,
		}).Debug("Clipping detected during effects processing")
	}
	return clipped, nil
}

func effectsKernel(mod *native.Module, ptr native.Ptr, byteLength uint32, channels int, gain, balance float64, clipped *int) int {
	frames := byteLength / uint32(channels*limits.BytesPerSample)
	if frames == 0 {
		return native.CodeOK
	}
	samples, err := mod.Memory.Float32s(ptr, frames*uint32(channels*limits.BytesPerSample))
	if err != nil {
		return mod.Fail(native.CodeInvalidPointer, "effects window: %v", err)
	}

	gains := make([]float64, channels)
	for ch := range gains {
		gains[ch] = gain
	}
	if channels >= 2 {
		if balance > 0 {
			gains[0] *= 1 - balance
		} else if balance < 0 {
			gains[1] *= 1 + balance
		}
	}

	for i, s := range samples {
		v := float64(s) * gains[i%channels]
		if v > 1 {
			v = 1
			*clipped++
		} else if v < -1 {
			v = -1
			*clipped++
		}
		samples[i] = float32(v)
	}
	return native.CodeOK
}
