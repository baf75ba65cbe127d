package trackcore

import (
	"time"

	"github.com/opd-ai/trackcore/analysis"
	"github.com/opd-ai/trackcore/timers"
)

// Options contains configuration options for creating a Core.
type Options struct {
	// StoreDir is where results are persisted. Empty keeps the store in
	// memory.
	StoreDir string
	// PersistResults enables the result store.
	PersistResults bool
	// ReadyTimeout bounds how long New waits for the audio backend to
	// announce itself.
	ReadyTimeout time.Duration
	// SlowTrackThreshold is passed to the analyzer's watchdog.
	SlowTrackThreshold time.Duration
	// TimeProvider drives the timers. Nil selects the wall clock.
	TimeProvider timers.TimeProvider

	// OnResult is called after every analyzed track, after it was stored.
	OnResult func(analysis.TrackResult)
	// OnProgress receives the loudness frame count pushed by the backend.
	OnProgress func(frames int64)
}

// NewOptions creates a new default options.
func NewOptions() *Options {
	return &Options{
		PersistResults:     true,
		ReadyTimeout:       5 * time.Second,
		SlowTrackThreshold: analysis.DefaultSlowTrackThreshold,
	}
}
