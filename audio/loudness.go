package audio

import (
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/native"
	"github.com/sirupsen/logrus"
)

// EBU R128 integration parameters.
const (
	gatingBlockSeconds = 0.4
	gatingStepSeconds  = 0.1 // 75% block overlap
	absoluteGateLUFS   = -70.0
	relativeGateLU     = -10.0
	silenceLUFS        = -120.0
)

// LoudnessMeasure is the native result of an EBU R128 integration.
type LoudnessMeasure struct {
	IntegratedLoudness float64 // LUFS, silenceLUFS when every block is gated
	SamplePeak         float64 // linear, max over channels
	Frames             int64
}

// loudnessState is the kernel object behind a LoudnessAnalyzer.
type loudnessState struct {
	channels   int
	sampleRate int
	weights    []float64
	filters    []kWeighting
	stepFrames int

	// per-step energy, summed over channels with their weights
	stepEnergy float64
	stepFill   int
	steps      []float64 // last 4 step energies
	blocks     []float64 // mean-square power of every 400ms block

	peak   float64
	frames int64

	scratch  []float64
	weighted []float64
	energy   []float64
}

// channelWeight returns the BS.1770 weighting of a layout position.
func channelWeight(s speaker) float64 {
	if s == speakerSL || s == speakerSR {
		return 1.41
	}
	return 1
}

func newLoudnessState(channels, sampleRate int) *loudnessState {
	st := &loudnessState{}
	st.configure(channels, sampleRate)
	return st
}

func (st *loudnessState) configure(channels, sampleRate int) {
	st.channels = channels
	st.sampleRate = sampleRate
	st.weights = make([]float64, channels)
	st.filters = make([]kWeighting, channels)
	for i, s := range layouts[channels] {
		st.weights[i] = channelWeight(s)
		st.filters[i] = newKWeighting(float64(sampleRate))
	}
	st.stepFrames = max(int(math.Round(gatingStepSeconds*float64(sampleRate))), 1)
	st.stepEnergy, st.stepFill = 0, 0
	st.steps = st.steps[:0]
	st.blocks = st.blocks[:0]
	st.peak, st.frames = 0, 0
}

// addInterleaved filters and integrates interleaved samples.
func (st *loudnessState) addInterleaved(samples []float32) {
	frames := len(samples) / st.channels
	if cap(st.scratch) < frames {
		st.scratch = make([]float64, frames)
		st.weighted = make([]float64, frames)
		st.energy = make([]float64, frames)
	}
	scratch, weighted, energy := st.scratch[:frames], st.weighted[:frames], st.energy[:frames]
	clear(energy)

	for ch := 0; ch < st.channels; ch++ {
		for i := range scratch {
			scratch[i] = float64(samples[i*st.channels+ch])
		}
		st.peak = max(st.peak, vecmath.MaxAbs(scratch))

		f := &st.filters[ch]
		for i, x := range scratch {
			scratch[i] = f.process(x)
		}
		// energy += weight * y * y
		vecmath.ScaleBlock(weighted, scratch, st.weights[ch])
		vecmath.MulAddBlock(energy, weighted, scratch, energy)
	}

	for _, e := range energy {
		st.stepEnergy += e
		st.stepFill++
		if st.stepFill == st.stepFrames {
			st.closeStep()
		}
	}
	st.frames += int64(frames)
}

// closeStep finishes a 100ms step and, once four steps exist, emits the
// 400ms gating block they span.
func (st *loudnessState) closeStep() {
	st.steps = append(st.steps, st.stepEnergy)
	st.stepEnergy, st.stepFill = 0, 0
	if len(st.steps) > 4 {
		st.steps = st.steps[1:]
	}
	if len(st.steps) == 4 {
		st.blocks = append(st.blocks, vecmath.Sum(st.steps)/float64(4*st.stepFrames))
	}
}

func toLUFS(meanSquare float64) float64 {
	if meanSquare <= 0 {
		return silenceLUFS
	}
	return -0.691 + 10*math.Log10(meanSquare)
}

// integrated applies the absolute and relative gates.
func (st *loudnessState) integrated() float64 {
	var sum float64
	var gated []float64
	for _, b := range st.blocks {
		if toLUFS(b) > absoluteGateLUFS {
			gated = append(gated, b)
			sum += b
		}
	}
	if len(gated) == 0 {
		return silenceLUFS
	}

	threshold := toLUFS(sum/float64(len(gated))) + relativeGateLU
	var relSum float64
	var relCount int
	for _, b := range gated {
		if toLUFS(b) > threshold {
			relSum += b
			relCount++
		}
	}
	if relCount == 0 {
		return silenceLUFS
	}
	return toLUFS(relSum / float64(relCount))
}

// LoudnessAnalyzer integrates EBU R128 loudness over a stream of frames. The
// state lives in a native object owned through a Handle; Destroy releases it
// exactly once.
type LoudnessAnalyzer struct {
	module *native.Module
	handle *native.Handle

	inPtr  native.Ptr
	inSize uint32
}

// NewLoudnessAnalyzer allocates an analyzer for the given layout.
func NewLoudnessAnalyzer(module *native.Module, channels, sampleRate int) (*LoudnessAnalyzer, error) {
	if err := limits.ValidateChannelCount(channels); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	ptr, err := module.NewObject(newLoudnessState(channels, sampleRate))
	if err != nil {
		return nil, fmt.Errorf("loudness analyzer: %w", err)
	}
	a := &LoudnessAnalyzer{module: module}
	a.handle = native.NewHandle(ptr, a.release)

	logrus.WithFields(logrus.Fields{
		"function":    "NewLoudnessAnalyzer",
		"channels":    channels,
		"sample_rate": sampleRate,
		"object":      ptr,
	}).Debug("Created loudness analyzer")
	return a, nil
}

// LoudnessKey is the pool key of an analyzer configuration.
func LoudnessKey(channels, sampleRate int) string {
	return fmt.Sprintf("%d|%d", channels, sampleRate)
}

func (a *LoudnessAnalyzer) release(ptr native.Ptr) error {
	if a.inPtr != 0 {
		if err := a.module.Memory.Free(a.inPtr); err != nil {
			return err
		}
		a.inPtr, a.inSize = 0, 0
	}
	return a.module.DestroyObject(ptr)
}

// Reinitialize resets all accumulated state for a new configuration.
func (a *LoudnessAnalyzer) Reinitialize(channels, sampleRate int) error {
	if err := limits.ValidateChannelCount(channels); err != nil {
		return fmt.Errorf("%w: %d", ErrInvalidChannelCount, channels)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	ptr, err := a.handle.Ptr()
	if err != nil {
		return err
	}
	return a.module.Check(loudnessResetKernel(a.module, ptr, channels, sampleRate))
}

// AddFrames feeds the first frames samples of every channel plane.
func (a *LoudnessAnalyzer) AddFrames(planes [][]float32, frames int) error {
	ptr, err := a.handle.Ptr()
	if err != nil {
		return err
	}
	if frames == 0 {
		return nil
	}
	channels := len(planes)
	if channels == 0 {
		return ErrEmptyInput
	}
	for ch, plane := range planes {
		if len(plane) < frames {
			return fmt.Errorf("%w: channel %d holds %d frames, want %d", ErrMisalignedInput, ch, len(plane), frames)
		}
	}
	byteLength := uint32(limits.SampleBytes(frames, channels))
	if err := a.ensureInput(byteLength); err != nil {
		return err
	}
	view, err := a.module.Memory.Float32s(a.inPtr, byteLength)
	if err != nil {
		return err
	}
	for f := 0; f < frames; f++ {
		for ch, plane := range planes {
			view[f*channels+ch] = plane[f]
		}
	}
	return a.module.Check(loudnessAddKernel(a.module, ptr, channels, a.inPtr, byteLength))
}

func (a *LoudnessAnalyzer) ensureInput(n uint32) error {
	if n <= a.inSize && a.inPtr != 0 {
		return nil
	}
	ptr, err := a.module.Memory.Realloc(a.inPtr, n)
	if err != nil {
		return fmt.Errorf("loudness input: %w", err)
	}
	a.inPtr, a.inSize = ptr, n
	return nil
}

// Measure returns the integration result so far.
func (a *LoudnessAnalyzer) Measure() (LoudnessMeasure, error) {
	ptr, err := a.handle.Ptr()
	if err != nil {
		return LoudnessMeasure{}, err
	}
	var out LoudnessMeasure
	if err := a.module.Check(loudnessMeasureKernel(a.module, ptr, &out)); err != nil {
		return LoudnessMeasure{}, err
	}
	return out, nil
}

// Destroy releases the native object. Further calls return
// native.ErrHandleReleased.
func (a *LoudnessAnalyzer) Destroy() error {
	return a.handle.Release()
}

func loudnessObject(mod *native.Module, ptr native.Ptr) (*loudnessState, bool) {
	obj, ok := mod.Object(ptr)
	if !ok {
		return nil, false
	}
	st, ok := obj.(*loudnessState)
	return st, ok
}

func loudnessResetKernel(mod *native.Module, ptr native.Ptr, channels, sampleRate int) int {
	st, ok := loudnessObject(mod, ptr)
	if !ok {
		return mod.Fail(native.CodeInvalidPointer, "no loudness analyzer at %d", ptr)
	}
	st.configure(channels, sampleRate)
	return native.CodeOK
}

func loudnessAddKernel(mod *native.Module, ptr native.Ptr, channels int, inPtr native.Ptr, byteLength uint32) int {
	st, ok := loudnessObject(mod, ptr)
	if !ok {
		return mod.Fail(native.CodeInvalidPointer, "no loudness analyzer at %d", ptr)
	}
	if channels != st.channels {
		return mod.Fail(native.CodeInvalidArgument, "got %d channels, analyzer configured for %d", channels, st.channels)
	}
	samples, err := mod.Memory.Float32s(inPtr, byteLength)
	if err != nil {
		return mod.Fail(native.CodeInvalidPointer, "loudness input: %v", err)
	}
	st.addInterleaved(samples)
	return native.CodeOK
}

func loudnessMeasureKernel(mod *native.Module, ptr native.Ptr, out *LoudnessMeasure) int {
	st, ok := loudnessObject(mod, ptr)
	if !ok {
		return mod.Fail(native.CodeInvalidPointer, "no loudness analyzer at %d", ptr)
	}
	if st.frames == 0 {
		return mod.Fail(native.CodeInsufficientData, "no frames added")
	}
	*out = LoudnessMeasure{
		IntegratedLoudness: st.integrated(),
		SamplePeak:         st.peak,
		Frames:             st.frames,
	}
	return native.CodeOK
}
