package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/trackcore/audio"
	"github.com/opd-ai/trackcore/timers"
	"github.com/sirupsen/logrus"
)

// DefaultSlowTrackThreshold is how long one track may take before the
// watchdog logs it as slow.
const DefaultSlowTrackThreshold = 30 * time.Second

// AnalyzerConfig wires an Analyzer.
type AnalyzerConfig struct {
	Fingerprint *FingerprintCalculator
	Loudness    *LoudnessCalculator
	Pools       *Pools
	Timers      *timers.Timers

	// SlowTrackThreshold defaults to DefaultSlowTrackThreshold.
	SlowTrackThreshold time.Duration
	// OnResult, when set, is called after every track in batch order.
	OnResult func(TrackResult)
}

// Analyzer runs fingerprint and loudness analysis over batches of tracks.
// Starting a batch supersedes the one running, which stops at its next
// checkpoint.
type Analyzer struct {
	cfg    AnalyzerConfig
	source CancellationSource
	run    sync.Mutex
}

// NewAnalyzer validates cfg and creates an analyzer.
func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if cfg.Fingerprint == nil || cfg.Loudness == nil || cfg.Pools == nil || cfg.Timers == nil {
		return nil, fmt.Errorf("%w: analyzer needs calculators, pools and timers", ErrIncompleteConfig)
	}
	if cfg.SlowTrackThreshold <= 0 {
		cfg.SlowTrackThreshold = DefaultSlowTrackThreshold
	}
	return &Analyzer{cfg: cfg}, nil
}

// Cancel supersedes the running batch, if any.
func (a *Analyzer) Cancel() {
	a.source.Cancel()
}

// AnalyzeBatch analyzes every source in order. A failing track records its
// error and the batch moves on; once the batch is cancelled the remaining
// tracks are reported with ErrCancelled.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, sources []Source) []TrackResult {
	token := a.source.Supersede()

	a.run.Lock()
	defer a.run.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Analyzer.AnalyzeBatch",
		"tracks":   len(sources),
		"token":    token.ID(),
	}).Info("Starting analysis batch")

	results := make([]TrackResult, 0, len(sources))
	for _, src := range sources {
		var res TrackResult
		if err := checkpoint(ctx, token); err != nil {
			res = TrackResult{Track: src.Track, Err: err}
		} else {
			res = a.analyzeTrack(ctx, src, token)
		}
		results = append(results, res)

		if err := a.cfg.Timers.Tick(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Analyzer.AnalyzeBatch",
				"error":    err.Error(),
			}).Warn("Timer callback failed")
		}
		if a.cfg.OnResult != nil {
			a.cfg.OnResult(res)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Analyzer.AnalyzeBatch",
		"tracks":   len(results),
		"token":    token.ID(),
	}).Info("Analysis batch finished")
	return results
}

func (a *Analyzer) analyzeTrack(ctx context.Context, src Source, token *CancellationToken) TrackResult {
	res := TrackResult{Track: src.Track}
	started := time.Now()

	watchdog := a.cfg.Timers.SetTimeout(func() error {
		logrus.WithFields(logrus.Fields{
			"function": "Analyzer.analyzeTrack",
			"track":    src.Track.ID,
			"elapsed":  time.Since(started).String(),
		}).Warn("Slow track analysis")
		return nil
	}, a.cfg.SlowTrackThreshold)
	defer a.cfg.Timers.ClearTimeout(watchdog)

	buf, err := a.decode(src)
	if err != nil {
		res.Err = err
		return res
	}
	if res.Track.Duration == 0 {
		res.Track.Duration = buf.Duration()
	}

	// Fingerprint failures are folded into the result; only cancellation
	// comes back as an error.
	res.Fingerprint, err = a.cfg.Fingerprint.Calculate(ctx, buf, token)
	if err != nil {
		res.Err = err
		return res
	}

	loudness, err := a.cfg.Loudness.Calculate(ctx, buf, src.Track.Album, token)
	if err != nil {
		res.Err = err
	} else {
		res.Loudness = &loudness
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Analyzer.analyzeTrack",
		"track":       src.Track.ID,
		"fingerprint": res.Fingerprint.Status.String(),
		"elapsed":     time.Since(started).String(),
		"failed":      res.Err != nil,
	}).Debug("Track analyzed")
	return res
}

func (a *Analyzer) decode(src Source) (*audio.AudioBuffer, error) {
	if src.Open == nil {
		return nil, fmt.Errorf("%w: track %s", ErrNoSource, src.Track.ID)
	}
	decoder, err := a.cfg.Pools.AllocDecoder(src.Format)
	if err != nil {
		return nil, err
	}
	defer a.releaseDecoder(src.Format, decoder)

	r, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open track %s: %w", src.Track.ID, err)
	}
	defer r.Close()

	buf, err := decoder.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode track %s: %w", src.Track.ID, err)
	}
	return buf, nil
}

func (a *Analyzer) releaseDecoder(format string, decoder audio.Decoder) {
	if err := a.cfg.Pools.Decoders.Free(format, decoder); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Analyzer.releaseDecoder",
			"format":   format,
			"error":    err.Error(),
		}).Warn("Failed to return decoder to pool")
	}
}
