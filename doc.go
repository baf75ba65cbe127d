// Package trackcore wires the audio analysis core of the player together.
//
// A Core owns two worker runtimes connected by an in-process pipe. The
// worker side hosts the audio backend, which keeps the native fingerprint
// and loudness calculators in object pools. The main side renders decoded
// tracks and streams them to the backend through a frontend, one call at a
// time. Results can be persisted in a badger store.
//
// Example:
//
//	options := trackcore.NewOptions()
//	options.StoreDir = "/var/lib/player/analysis"
//
//	core, err := trackcore.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Close()
//
//	src, err := trackcore.SourceFromFile("song.wav")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := core.AnalyzeBatch(ctx, []analysis.Source{src})
//
// # Packages
//
//   - worker: runtimes, backends, frontends and ports
//   - pool: keyed object pools and transferable buffers
//   - native: the emulated native module that owns DSP memory
//   - audio: decoders, resampler, mixer, crossfader, effects and the
//     fingerprint and loudness DSP
//   - analysis: the audio backend, calculators, cancellation and batches
//   - timers: coalesced timeouts driven by Tick
//   - store: badger persistence of results
package trackcore
