// Package audio provides the sample processing units of the analysis core.
//
// Units fall into two groups. Kernel-backed units operate on interleaved
// float32 samples living in a native.Module arena, addressed by pointer and
// byte length, and report failures through the module's error slot:
//
//	mod := native.NewModule()
//	mixer, err := audio.NewChannelMixer(mod, 2)
//	res, err := mixer.Mix(5, inputPtr, byteLength)
//	// res.SamplePtr / res.ByteLength address the stereo downmix
//
// ChannelMixer, Crossfader, Effects, NoiseSharpening, LoudnessAnalyzer and
// Fingerprinter belong to this group. LoudnessAnalyzer and Fingerprinter keep
// their state in kernel objects owned through a native.Handle, so Destroy
// releases them exactly once.
//
// Go-side units work on plain slices:
//
//   - Resampler: linear interpolation with optional anti-alias pre-filter
//   - WavDecoder, OpusDecoder: decode streams into an AudioBuffer
//
// # Channel layouts
//
// Channel counts 1 through 5 map to fixed speaker layouts:
//
//	1: C
//	2: L R
//	3: L R C
//	4: L R SL SR
//	5: L R C SL SR
//
// # Pooling
//
// Resampler, LoudnessAnalyzer and Decoder instances are expensive to build
// and are recycled through pool.Objects keyed by ResamplerConfig.Key,
// LoudnessKey and the decoder name respectively. Every pooled type exposes a
// Reinitialize method that fully resets accumulated state.
package audio
