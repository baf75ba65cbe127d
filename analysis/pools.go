package analysis

import (
	"github.com/opd-ai/trackcore/audio"
	"github.com/opd-ai/trackcore/native"
	"github.com/opd-ai/trackcore/pool"
	"github.com/sirupsen/logrus"
)

// fingerprinterKey is the only pool key for fingerprinters: they have no
// configuration.
const fingerprinterKey = "fingerprinter"

// Pools holds the DSP object pools of one execution context.
type Pools struct {
	Resamplers     *pool.Objects[*audio.Resampler]
	Loudness       *pool.Objects[*audio.LoudnessAnalyzer]
	Fingerprinters *pool.Objects[*audio.Fingerprinter]
	Decoders       *pool.Objects[audio.Decoder]
	Buffers        *pool.Buffers
}

// NewPools creates empty pools.
func NewPools() *Pools {
	return &Pools{
		Resamplers:     pool.NewObjects[*audio.Resampler]("resampler"),
		Loudness:       pool.NewObjects[*audio.LoudnessAnalyzer]("loudness"),
		Fingerprinters: pool.NewObjects[*audio.Fingerprinter]("fingerprinter"),
		Decoders:       pool.NewObjects[audio.Decoder]("decoder"),
		Buffers:        pool.NewBuffers(),
	}
}

// AllocResampler checks out a resampler for config.
func (p *Pools) AllocResampler(config audio.ResamplerConfig) (*audio.Resampler, string, error) {
	key := config.Key()
	r, err := p.Resamplers.Alloc(key,
		func() (*audio.Resampler, error) { return audio.NewResampler(config) },
		func(r *audio.Resampler) error { return r.Reinitialize(config) },
	)
	return r, key, err
}

// AllocLoudness checks out a loudness analyzer for the given layout.
func (p *Pools) AllocLoudness(module *native.Module, channels, sampleRate int) (*audio.LoudnessAnalyzer, string, error) {
	key := audio.LoudnessKey(channels, sampleRate)
	a, err := p.Loudness.Alloc(key,
		func() (*audio.LoudnessAnalyzer, error) {
			return audio.NewLoudnessAnalyzer(module, channels, sampleRate)
		},
		func(a *audio.LoudnessAnalyzer) error { return a.Reinitialize(channels, sampleRate) },
	)
	return a, key, err
}

// AllocFingerprinter checks out a cleared fingerprinter.
func (p *Pools) AllocFingerprinter(module *native.Module) (*audio.Fingerprinter, error) {
	return p.Fingerprinters.Alloc(fingerprinterKey,
		func() (*audio.Fingerprinter, error) { return audio.NewFingerprinter(module) },
		(*audio.Fingerprinter).Reinitialize,
	)
}

// AllocDecoder checks out a decoder by format name.
func (p *Pools) AllocDecoder(format string) (audio.Decoder, error) {
	return p.Decoders.Alloc(format,
		func() (audio.Decoder, error) { return audio.NewDecoder(format) },
		audio.Decoder.Reinitialize,
	)
}

// Destroy frees the native objects of every free instance. Checked-out
// instances stay with their holders.
func (p *Pools) Destroy() {
	logFailure := func(pool, key string, err error) {
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pools.Destroy",
				"pool":     pool,
				"key":      key,
				"error":    err.Error(),
			}).Warn("Failed to destroy pooled instance")
		}
	}
	p.Loudness.Drain(func(key string, a *audio.LoudnessAnalyzer) {
		logFailure("loudness", key, a.Destroy())
	})
	p.Fingerprinters.Drain(func(key string, f *audio.Fingerprinter) {
		logFailure("fingerprinter", key, f.Destroy())
	})
	p.Resamplers.Drain(func(string, *audio.Resampler) {})
	p.Decoders.Drain(func(string, audio.Decoder) {})
}
