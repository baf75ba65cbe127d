package audio

import (
	"fmt"
	"math"

	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/native"
	"github.com/sirupsen/logrus"
)

// speaker identifies a channel position in a layout.
type speaker uint8

const (
	speakerL speaker = iota
	speakerR
	speakerC
	speakerSL
	speakerSR
)

// layouts maps a channel count to its speaker positions.
var layouts = map[int][]speaker{
	1: {speakerC},
	2: {speakerL, speakerR},
	3: {speakerL, speakerR, speakerC},
	4: {speakerL, speakerR, speakerSL, speakerSR},
	5: {speakerL, speakerR, speakerC, speakerSL, speakerSR},
}

const sqrtHalf = math.Sqrt2 / 2

// mixMatrix returns coefficients[out][in] for converting between layouts.
func mixMatrix(in, out int) [][]float32 {
	inLayout, outLayout := layouts[in], layouts[out]
	outIndex := make(map[speaker]int, len(outLayout))
	for i, s := range outLayout {
		outIndex[s] = i
	}
	m := make([][]float32, out)
	for i := range m {
		m[i] = make([]float32, in)
	}
	add := func(s speaker, inCh int, gain float32) bool {
		if o, ok := outIndex[s]; ok {
			m[o][inCh] += gain
			return true
		}
		return false
	}

	for inCh, s := range inLayout {
		if add(s, inCh, 1) {
			continue
		}
		switch s {
		case speakerC:
			// Mono source feeds both fronts at unity; a real centre is spread.
			gain := float32(sqrtHalf)
			if in == 1 {
				gain = 1
			}
			add(speakerL, inCh, gain)
			add(speakerR, inCh, gain)
		case speakerL, speakerR:
			gain := float32(sqrtHalf)
			if in == 2 {
				gain = 0.5
			}
			add(speakerC, inCh, gain)
		case speakerSL:
			if !add(speakerL, inCh, sqrtHalf) {
				add(speakerC, inCh, 0.5)
			}
		case speakerSR:
			if !add(speakerR, inCh, sqrtHalf) {
				add(speakerC, inCh, 0.5)
			}
		}
	}
	return m
}

// MixResult addresses the mixer's output inside native memory. The block is
// owned by the mixer and overwritten by the next Mix call.
type MixResult struct {
	SamplePtr  native.Ptr
	ByteLength uint32
}

// ChannelMixer converts interleaved float32 audio between channel counts.
type ChannelMixer struct {
	module                  *native.Module
	destinationChannelCount int
	outPtr                  native.Ptr
	outSize                 uint32
}

// NewChannelMixer creates a mixer producing destinationChannelCount channels.
//
// Parameters:
//   - module: native module holding the sample memory
//   - destinationChannelCount: output channel count (1-5)
//
// Returns:
//   - *ChannelMixer: New mixer instance
//   - error: ErrInvalidChannelCount when the count is out of range
func NewChannelMixer(module *native.Module, destinationChannelCount int) (*ChannelMixer, error) {
	if err := limits.ValidateChannelCount(destinationChannelCount); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewChannelMixer",
			"channels": destinationChannelCount,
			"error":    err.Error(),
		}).Error("Channel mixer validation failed")
		return nil, fmt.Errorf("%w: destination %d", ErrInvalidChannelCount, destinationChannelCount)
	}
	return &ChannelMixer{module: module, destinationChannelCount: destinationChannelCount}, nil
}

// DestinationChannelCount returns the configured output channel count.
func (m *ChannelMixer) DestinationChannelCount() int {
	return m.destinationChannelCount
}

// SetDestinationChannelCount changes the output channel count.
func (m *ChannelMixer) SetDestinationChannelCount(n int) error {
	if err := limits.ValidateChannelCount(n); err != nil {
		return fmt.Errorf("%w: destination %d", ErrInvalidChannelCount, n)
	}
	m.destinationChannelCount = n
	return nil
}

// OutputByteLength returns ceil(destination/input * byteLength).
func OutputByteLength(inputChannelCount, destinationChannelCount int, byteLength uint32) uint32 {
	num := uint64(destinationChannelCount) * uint64(byteLength)
	den := uint64(inputChannelCount)
	return uint32((num + den - 1) / den)
}

// Mix converts byteLength bytes of interleaved audio with inputChannelCount
// channels at inputPtr. When the counts match the input is returned as is.
// An empty input mixes to an empty result without touching the output block.
func (m *ChannelMixer) Mix(inputChannelCount int, inputPtr native.Ptr, byteLength uint32) (MixResult, error) {
	if err := limits.ValidateChannelCount(inputChannelCount); err != nil {
		return MixResult{}, fmt.Errorf("%w: input %d", ErrInvalidChannelCount, inputChannelCount)
	}
	if inputChannelCount == m.destinationChannelCount {
		return MixResult{SamplePtr: inputPtr, ByteLength: byteLength}, nil
	}
	if byteLength == 0 {
		return MixResult{}, nil
	}

	outLength := OutputByteLength(inputChannelCount, m.destinationChannelCount, byteLength)
	if err := m.ensureOutput(outLength); err != nil {
		return MixResult{}, err
	}

	code := mixChannelsKernel(m.module, inputChannelCount, inputPtr, byteLength, m.destinationChannelCount, m.outPtr)
	if err := m.module.Check(code); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "ChannelMixer.Mix",
			"input_count":  inputChannelCount,
			"output_count": m.destinationChannelCount,
			"byte_length":  byteLength,
			"error":        err.Error(),
		}).Error("Channel mixing failed")
		return MixResult{}, err
	}
	return MixResult{SamplePtr: m.outPtr, ByteLength: outLength}, nil
}

// ensureOutput grows the owned output block to hold n bytes.
func (m *ChannelMixer) ensureOutput(n uint32) error {
	if n <= m.outSize && m.outPtr != 0 {
		return nil
	}
	ptr, err := m.module.Memory.Realloc(m.outPtr, n)
	if err != nil {
		return fmt.Errorf("channel mixer output: %w", err)
	}
	m.outPtr, m.outSize = ptr, n
	return nil
}

// Destroy frees the mixer's output block.
func (m *ChannelMixer) Destroy() error {
	if m.outPtr == 0 {
		return nil
	}
	ptr := m.outPtr
	m.outPtr, m.outSize = 0, 0
	return m.module.Memory.Free(ptr)
}

// mixChannelsKernel writes the converted frames of the input block to outPtr.
func mixChannelsKernel(mod *native.Module, in int, inPtr native.Ptr, byteLength uint32, out int, outPtr native.Ptr) int {
	frames := byteLength / uint32(limits.BytesPerSample*in)
	if frames == 0 {
		return native.CodeOK
	}
	src, err := mod.Memory.Float32s(inPtr, frames*uint32(in*limits.BytesPerSample))
	if err != nil {
		return mod.Fail(native.CodeInvalidPointer, "mix input: %v", err)
	}
	dst, err := mod.Memory.Float32s(outPtr, frames*uint32(out*limits.BytesPerSample))
	if err != nil {
		return mod.Fail(native.CodeInvalidPointer, "mix output: %v", err)
	}

	matrix := mixMatrix(in, out)
	for f := 0; f < int(frames); f++ {
		frame := src[f*in : f*in+in]
		for o := 0; o < out; o++ {
			var acc float32
			for i, c := range matrix[o] {
				acc += c * frame[i]
			}
			dst[f*out+o] = acc
		}
	}
	return native.CodeOK
}
