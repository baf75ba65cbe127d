// Package limits provides centralized channel, buffer and transfer limits for the
// analysis core.
//
// # Limits
//
//   - MinChannels / MaxChannels (1..5): channel counts accepted by the channel
//     mixer, the loudness analyzer and the loudness calculator.
//
//   - LoudnessBufferFrames: frames per preallocated channel buffer in a loudness
//     calculator. Peak memory per calculator is bounded by
//     MaxChannels * LoudnessBufferFrames * BytesPerSample, independent of the
//     track length.
//
//   - FingerprintBufferFrames: mono frames per fingerprint addFrames call.
//
//   - MaxFrameSize (16MB): the largest encoded envelope a stream port accepts.
//     Length prefixes are validated before allocation.
//
// # Validation Functions
//
//	if err := limits.ValidateChannelCount(n); err != nil {
//	    // errors.Is(err, limits.ErrChannelCount)
//	}
//
//	if err := limits.ValidateFrame(frame); err != nil {
//	    // ErrBufferEmpty or ErrBufferTooLarge
//	}
package limits
