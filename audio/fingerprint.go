package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/mjibson/go-dsp/fft"
	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/native"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/dsp/window"
)

// Fingerprint analysis parameters. Input is mono at FingerprintSampleRate.
const (
	FingerprintSampleRate = 11025
	// FingerprintMaxSeconds bounds how much audio the accumulator keeps.
	FingerprintMaxSeconds = 120
	// FingerprintMinSeconds is the least audio CalculateFingerprint accepts.
	FingerprintMinSeconds = 5

	fpFrameSize  = 4096
	fpHopSize    = 1365
	fpMinFreq    = 28.0
	fpMaxFreq    = 3520.0
	pitchClasses = 12
)

// chromaBins maps each spectrum bin to its pitch class, -1 outside the band.
var chromaBins = func() []int {
	bins := make([]int, fpFrameSize/2+1)
	for k := range bins {
		freq := float64(k) * FingerprintSampleRate / fpFrameSize
		if freq < fpMinFreq || freq > fpMaxFreq {
			bins[k] = -1
			continue
		}
		note := int(math.Round(12*math.Log2(freq/440))) + 69
		bins[k] = ((note % pitchClasses) + pitchClasses) % pitchClasses
	}
	return bins
}()

// hannCoefficients is the analysis window, built once.
var hannCoefficients = func() []float64 {
	ones := make([]float64, fpFrameSize)
	for i := range ones {
		ones[i] = 1
	}
	return window.Hann(ones)
}()

// fingerprintState is the kernel object behind a Fingerprinter.
type fingerprintState struct {
	samples []float32
}

func maxFingerprintSamples() int {
	return FingerprintMaxSeconds * FingerprintSampleRate
}

// Fingerprinter accumulates mono analysis-rate samples and derives a chroma
// fingerprint from them.
type Fingerprinter struct {
	module *native.Module
	handle *native.Handle

	inPtr  native.Ptr
	inSize uint32
}

// NewFingerprinter allocates an empty accumulator.
func NewFingerprinter(module *native.Module) (*Fingerprinter, error) {
	ptr, err := module.NewObject(&fingerprintState{})
	if err != nil {
		return nil, fmt.Errorf("fingerprinter: %w", err)
	}
	f := &Fingerprinter{module: module}
	f.handle = native.NewHandle(ptr, f.release)
	return f, nil
}

func (f *Fingerprinter) release(ptr native.Ptr) error {
	if f.inPtr != 0 {
		if err := f.module.Memory.Free(f.inPtr); err != nil {
			return err
		}
		f.inPtr, f.inSize = 0, 0
	}
	return f.module.DestroyObject(ptr)
}

// NewFrames appends samples to the accumulator. Samples past the maximum
// window are ignored.
func (f *Fingerprinter) NewFrames(samples []float32) error {
	ptr, err := f.handle.Ptr()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	byteLength := uint32(limits.SampleBytes(len(samples), 1))
	if n := byteLength; n > f.inSize || f.inPtr == 0 {
		p, err := f.module.Memory.Realloc(f.inPtr, n)
		if err != nil {
			return fmt.Errorf("fingerprint input: %w", err)
		}
		f.inPtr, f.inSize = p, n
	}
	view, err := f.module.Memory.Float32s(f.inPtr, byteLength)
	if err != nil {
		return err
	}
	copy(view, samples)
	return f.module.Check(fingerprintAddKernel(f.module, ptr, f.inPtr, byteLength))
}

// NeedFrames reports whether the accumulator wants more audio.
func (f *Fingerprinter) NeedFrames() bool {
	ptr, err := f.handle.Ptr()
	if err != nil {
		return false
	}
	st, ok := fingerprintObject(f.module, ptr)
	return ok && len(st.samples) < maxFingerprintSamples()
}

// CalculateFingerprint derives the fingerprint of the accumulated audio.
// Fewer than FingerprintMinSeconds of samples yields ErrInsufficientSamples.
func (f *Fingerprinter) CalculateFingerprint() (string, error) {
	ptr, err := f.handle.Ptr()
	if err != nil {
		return "", err
	}
	var out string
	if err := f.module.Check(fingerprintCalculateKernel(f.module, ptr, &out)); err != nil {
		var nerr *native.Error
		if errors.As(err, &nerr) && nerr.Code == native.CodeInsufficientData {
			return "", fmt.Errorf("%w: %s", ErrInsufficientSamples, nerr.Message)
		}
		return "", err
	}
	return out, nil
}

// Reinitialize discards accumulated samples.
func (f *Fingerprinter) Reinitialize() error {
	ptr, err := f.handle.Ptr()
	if err != nil {
		return err
	}
	st, ok := fingerprintObject(f.module, ptr)
	if !ok {
		return fmt.Errorf("%w: fingerprinter object %d", native.ErrInvalidPointer, ptr)
	}
	st.samples = st.samples[:0]
	return nil
}

// Destroy releases the native object exactly once.
func (f *Fingerprinter) Destroy() error {
	return f.handle.Release()
}

func fingerprintObject(mod *native.Module, ptr native.Ptr) (*fingerprintState, bool) {
	obj, ok := mod.Object(ptr)
	if !ok {
		return nil, false
	}
	st, ok := obj.(*fingerprintState)
	return st, ok
}

func fingerprintAddKernel(mod *native.Module, ptr, inPtr native.Ptr, byteLength uint32) int {
	st, ok := fingerprintObject(mod, ptr)
	if !ok {
		return mod.Fail(native.CodeInvalidPointer, "no fingerprinter at %d", ptr)
	}
	samples, err := mod.Memory.Float32s(inPtr, byteLength)
	if err != nil {
		return mod.Fail(native.CodeInvalidPointer, "fingerprint input: %v", err)
	}
	room := maxFingerprintSamples() - len(st.samples)
	if room <= 0 {
		return native.CodeOK
	}
	st.samples = append(st.samples, samples[:min(room, len(samples))]...)
	return native.CodeOK
}

func fingerprintCalculateKernel(mod *native.Module, ptr native.Ptr, out *string) int {
	st, ok := fingerprintObject(mod, ptr)
	if !ok {
		return mod.Fail(native.CodeInvalidPointer, "no fingerprinter at %d", ptr)
	}
	need := FingerprintMinSeconds * FingerprintSampleRate
	if len(st.samples) < need {
		return mod.Fail(native.CodeInsufficientData, "have %d samples, need %d", len(st.samples), need)
	}

	codes := chromaCodes(st.samples)
	raw := make([]byte, 4*len(codes))
	for i, c := range codes {
		binary.LittleEndian.PutUint32(raw[4*i:], c)
	}
	*out = base64.RawURLEncoding.EncodeToString(raw)

	logrus.WithFields(logrus.Fields{
		"function": "Fingerprinter.CalculateFingerprint",
		"samples":  len(st.samples),
		"codes":    len(codes),
	}).Debug("Fingerprint computed")
	return native.CodeOK
}

// chromaCodes computes one 32-bit sub-fingerprint per analysis frame.
func chromaCodes(samples []float32) []uint32 {
	frames := (len(samples)-fpFrameSize)/fpHopSize + 1
	if frames <= 0 {
		return nil
	}

	codes := make([]uint32, 0, frames)
	frame := make([]float64, fpFrameSize)
	windowed := make([]float64, fpFrameSize)
	bins := fpFrameSize/2 + 1
	re := make([]float64, bins)
	im := make([]float64, bins)
	power := make([]float64, bins)
	var prev [pitchClasses]float64

	for n := 0; n < frames; n++ {
		start := n * fpHopSize
		for i := range frame {
			frame[i] = float64(samples[start+i])
		}
		vecmath.MulBlock(windowed, frame, hannCoefficients)

		spectrum := fft.FFTReal(windowed)
		for k := 0; k < bins; k++ {
			re[k], im[k] = real(spectrum[k]), imag(spectrum[k])
		}
		vecmath.Power(power, re, im)

		chroma := foldChroma(power)
		codes = append(codes, chromaCode(chroma, prev))
		prev = chroma
	}
	return codes
}

// foldChroma sums bin energy per pitch class and L2-normalizes the result.
func foldChroma(power []float64) [pitchClasses]float64 {
	var chroma [pitchClasses]float64
	for k, p := range power {
		if c := chromaBins[k]; c >= 0 {
			chroma[c] += p
		}
	}
	norm := 0.0
	for _, v := range chroma {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range chroma {
			chroma[i] /= norm
		}
	}
	return chroma
}

// chromaCode packs temporal deltas (bits 0-11), the circular spectral
// gradient (bits 12-23) and above-mean flags of the first eight classes
// (bits 24-31).
func chromaCode(chroma, prev [pitchClasses]float64) uint32 {
	var code uint32
	mean := 0.0
	for _, v := range chroma {
		mean += v
	}
	mean /= pitchClasses

	for i := 0; i < pitchClasses; i++ {
		if chroma[i] > prev[i] {
			code |= 1 << i
		}
		if chroma[i] > chroma[(i+1)%pitchClasses] {
			code |= 1 << (12 + i)
		}
		if i < 8 && chroma[i] > mean {
			code |= 1 << (24 + i)
		}
	}
	return code
}
