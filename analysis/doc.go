// Package analysis computes per-track fingerprints and loudness.
//
// The work is split across two worker runtimes. In the worker context an
// AudioBackend owns the pooled native accumulators (audio.Fingerprinter and
// audio.LoudnessAnalyzer) and answers a fixed set of actions. In the main
// context FingerprintCalculator and LoudnessCalculator render decoded audio
// and stream it to the backend through a worker.Frontend, transferring
// sample buffers rather than copying them.
//
// Analyzer drives both calculators over a batch of tracks. Each track is
// isolated: a decoding or calculation failure is recorded in its
// TrackResult and the batch continues. Starting a new batch supersedes the
// running one through a CancellationSource.
package analysis
