package audio

import "errors"

// Configuration errors.
var (
	// ErrInvalidChannelCount indicates a channel count outside the supported range.
	ErrInvalidChannelCount = errors.New("invalid channel count")

	// ErrInvalidSampleRate indicates a zero or negative sample rate.
	ErrInvalidSampleRate = errors.New("invalid sample rate")

	// ErrInvalidQuality indicates a resampler quality outside 0-10.
	ErrInvalidQuality = errors.New("invalid resampler quality")

	// ErrInvalidParameter indicates an out-of-range effect parameter.
	ErrInvalidParameter = errors.New("invalid effect parameter")
)

// Processing errors.
var (
	// ErrEmptyInput indicates an empty sample buffer or stream.
	ErrEmptyInput = errors.New("empty input")

	// ErrMisalignedInput indicates a sample count not divisible by the channel count.
	ErrMisalignedInput = errors.New("input not aligned to channel count")

	// ErrInsufficientSamples indicates a fingerprint was requested before enough
	// samples were accumulated.
	ErrInsufficientSamples = errors.New("insufficient samples for fingerprint")
)

// Decoder errors.
var (
	// ErrUnknownDecoder indicates a decoder name with no implementation.
	ErrUnknownDecoder = errors.New("unknown decoder")

	// ErrInvalidStream indicates input the decoder cannot parse.
	ErrInvalidStream = errors.New("invalid audio stream")
)
