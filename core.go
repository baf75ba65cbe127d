package trackcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/trackcore/analysis"
	"github.com/opd-ai/trackcore/audio"
	"github.com/opd-ai/trackcore/native"
	"github.com/opd-ai/trackcore/store"
	"github.com/opd-ai/trackcore/timers"
	"github.com/opd-ai/trackcore/worker"
	"github.com/sirupsen/logrus"
)

const (
	mainRuntimeName   = "main"
	workerRuntimeName = "audio-worker"
)

// Core is an analysis instance: a main runtime, an audio worker runtime and
// everything the two need to fingerprint and measure tracks.
type Core struct {
	options *Options

	mainRT   *worker.Runtime
	workerRT *worker.Runtime

	backend  *analysis.AudioBackend
	frontend *worker.Frontend

	mainPools *analysis.Pools
	renderer  *analysis.Renderer
	timers    *timers.Timers
	analyzer  *analysis.Analyzer
	store     *store.Store

	// lifecycle is held shared by batches and exclusively by Close.
	lifecycle sync.RWMutex
	closed    bool
	closeErr  error
}

// New creates a Core and waits for its audio backend to become ready.
func New(options *Options) (*Core, error) {
	if options == nil {
		options = NewOptions()
	}
	c := &Core{
		options:  options,
		mainRT:   worker.NewRuntime(mainRuntimeName),
		workerRT: worker.NewRuntime(workerRuntimeName),
		timers:   timers.New(options.TimeProvider),
	}
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "New",
		"persisted": options.PersistResults,
		"store_dir": options.StoreDir,
	}).Info("Analysis core ready")
	return c, nil
}

func (c *Core) init() error {
	mainPort, workerPort := worker.Pipe()
	if err := c.mainRT.Attach(mainPort); err != nil {
		return err
	}
	if err := c.workerRT.Attach(workerPort); err != nil {
		return err
	}

	if err := c.startBackend(); err != nil {
		return err
	}

	c.mainPools = analysis.NewPools()
	renderer, err := analysis.NewRenderer(native.NewModule(), c.mainPools, audio.FingerprintSampleRate)
	if err != nil {
		return err
	}
	c.renderer = renderer
	fingerprint, err := analysis.NewFingerprintCalculator(c.frontend, renderer, c.mainPools)
	if err != nil {
		return err
	}

	if c.options.PersistResults {
		s, err := store.Open(c.options.StoreDir)
		if err != nil {
			return err
		}
		c.store = s
	}

	c.analyzer, err = analysis.NewAnalyzer(analysis.AnalyzerConfig{
		Fingerprint:        fingerprint,
		Loudness:           analysis.NewLoudnessCalculator(c.frontend),
		Pools:              c.mainPools,
		Timers:             c.timers,
		SlowTrackThreshold: c.options.SlowTrackThreshold,
		OnResult:           c.handleResult,
	})
	return err
}

// startBackend creates the audio backend in the worker runtime and waits for
// the main side frontend to bind to it.
func (c *Core) startBackend() error {
	c.backend = analysis.NewAudioBackend(native.NewModule(), analysis.NewPools())
	backend, err := c.workerRT.CreateBackend(analysis.FrontendName, c.backend)
	if err != nil {
		return err
	}

	c.frontend = c.mainRT.Frontend(analysis.FrontendName, analysis.ProgressFunc(c.options.OnProgress))
	if err := backend.Start(); err != nil {
		return err
	}

	ctx := context.Background()
	if c.options.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.ReadyTimeout)
		defer cancel()
	}
	if err := c.frontend.Ready(ctx); err != nil {
		return fmt.Errorf("audio backend not ready: %w", err)
	}
	return nil
}

func (c *Core) handleResult(res analysis.TrackResult) {
	if c.store != nil {
		if err := c.store.Save(store.RecordFromResult(res, time.Now())); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Core.handleResult",
				"track":    res.Track.ID,
				"error":    err.Error(),
			}).Warn("Result not persisted")
		}
	}
	if c.options.OnResult != nil {
		c.options.OnResult(res)
	}
}

// AnalyzeBatch fingerprints and measures every source in order. Starting a
// batch cancels the one running; its remaining tracks report
// analysis.ErrCancelled.
func (c *Core) AnalyzeBatch(ctx context.Context, sources []analysis.Source) ([]analysis.TrackResult, error) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.analyzer.AnalyzeBatch(ctx, sources), nil
}

// Cancel stops the running batch at its next checkpoint.
func (c *Core) Cancel() {
	if c.analyzer != nil {
		c.analyzer.Cancel()
	}
}

// Lookup returns the stored record of a track.
func (c *Core) Lookup(trackID string) (store.Record, error) {
	if c.store == nil {
		return store.Record{}, ErrStoreDisabled
	}
	return c.store.Get(trackID)
}

// FindDuplicate returns the id of a stored track with the same fingerprint.
func (c *Core) FindDuplicate(fingerprint string) (string, error) {
	if c.store == nil {
		return "", ErrStoreDisabled
	}
	return c.store.LookupFingerprint(fingerprint)
}

// Close cancels the running batch, waits for it to stop, then shuts down both
// runtimes and releases every native object. It is safe to call more than
// once.
func (c *Core) Close() error {
	c.Cancel()
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.closed {
		return c.closeErr
	}
	c.closed = true

	errs := []error{c.mainRT.Close(), c.workerRT.Close()}
	// The worker loop has stopped, so the backend can be torn down.
	if c.backend != nil {
		c.backend.Destroy()
	}
	if c.renderer != nil {
		errs = append(errs, c.renderer.Destroy())
	}
	if c.mainPools != nil {
		c.mainPools.Destroy()
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	c.closeErr = errors.Join(errs...)

	logrus.WithFields(logrus.Fields{
		"function": "Core.Close",
		"failed":   c.closeErr != nil,
	}).Info("Analysis core closed")
	return c.closeErr
}
