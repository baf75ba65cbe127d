package analysis

import (
	"context"
	"fmt"

	"github.com/opd-ai/trackcore/audio"
	"github.com/opd-ai/trackcore/native"
	"github.com/opd-ai/trackcore/worker"
	"github.com/sirupsen/logrus"
)

// FrontendName is the name the audio backend announces itself under.
const FrontendName = "audio"

// AudioBackend serves fingerprint and loudness calculations in the worker
// context. It holds at most one calculation of each kind; initializing a new
// one abandons the previous.
type AudioBackend struct {
	module *native.Module
	pools  *Pools

	fingerprinter *audio.Fingerprinter

	loudness       *audio.LoudnessAnalyzer
	loudnessKey    string
	loudnessFrames int64
}

// NewAudioBackend creates a handler allocating from pools.
func NewAudioBackend(module *native.Module, pools *Pools) *AudioBackend {
	return &AudioBackend{module: module, pools: pools}
}

// HandleAction implements worker.ActionHandler.
func (a *AudioBackend) HandleAction(_ context.Context, b *worker.Backend, msg worker.Message) (worker.Reply, error) {
	switch msg.Action {
	case worker.ActionInitializeFingerprint:
		return worker.Reply{}, a.initializeFingerprint()
	case worker.ActionAddFingerprintFrames:
		return a.addFingerprintFrames(msg)
	case worker.ActionGetFingerprint:
		return a.getFingerprint()
	case worker.ActionCancelFingerprint:
		a.releaseFingerprinter()
		return worker.Reply{}, nil
	case worker.ActionInitializeLoudness:
		return worker.Reply{}, a.initializeLoudness(msg)
	case worker.ActionAddLoudnessFrames:
		return a.addLoudnessFrames(b, msg)
	case worker.ActionGetLoudness:
		return a.getLoudness(msg)
	case worker.ActionCancelLoudness:
		a.releaseLoudness()
		return worker.Reply{}, nil
	default:
		return worker.Reply{}, fmt.Errorf("%w: %s", worker.ErrUnknownAction, msg.Action)
	}
}

func (a *AudioBackend) initializeFingerprint() error {
	if a.fingerprinter != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AudioBackend.initializeFingerprint",
		}).Warn("Abandoning unfinished fingerprint")
		a.releaseFingerprinter()
	}
	f, err := a.pools.AllocFingerprinter(a.module)
	if err != nil {
		return err
	}
	a.fingerprinter = f
	return nil
}

func (a *AudioBackend) addFingerprintFrames(msg worker.Message) (worker.Reply, error) {
	// Buffers go back to the caller even when the frames are rejected.
	reply := worker.Reply{Transfer: msg.Transfer}
	if a.fingerprinter == nil {
		return reply, ErrNoCalculation
	}
	n, err := argInt(msg.Args, 0)
	if err != nil {
		return reply, err
	}
	if len(msg.Transfer) != 1 || msg.Transfer[0].Len() < n {
		return reply, fmt.Errorf("%w: want one buffer of %d samples", ErrInvalidArgs, n)
	}
	if err := a.fingerprinter.NewFrames(msg.Transfer[0].Data[:n]); err != nil {
		return reply, err
	}
	reply.Args = []any{a.fingerprinter.NeedFrames()}
	return reply, nil
}

func (a *AudioBackend) getFingerprint() (worker.Reply, error) {
	if a.fingerprinter == nil {
		return worker.Reply{}, ErrNoCalculation
	}
	defer a.releaseFingerprinter()
	fp, err := a.fingerprinter.CalculateFingerprint()
	if err != nil {
		return worker.Reply{}, err
	}
	return worker.Reply{Args: []any{fp}}, nil
}

func (a *AudioBackend) releaseFingerprinter() {
	if a.fingerprinter == nil {
		return
	}
	if err := a.pools.Fingerprinters.Free(fingerprinterKey, a.fingerprinter); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AudioBackend.releaseFingerprinter",
			"error":    err.Error(),
		}).Warn("Failed to return fingerprinter to pool")
	}
	a.fingerprinter = nil
}

func (a *AudioBackend) initializeLoudness(msg worker.Message) error {
	channels, err := argInt(msg.Args, 0)
	if err != nil {
		return err
	}
	sampleRate, err := argInt(msg.Args, 1)
	if err != nil {
		return err
	}
	if a.loudness != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AudioBackend.initializeLoudness",
			"key":      a.loudnessKey,
		}).Warn("Abandoning unfinished loudness calculation")
		a.releaseLoudness()
	}

	analyzer, key, err := a.pools.AllocLoudness(a.module, channels, sampleRate)
	if err != nil {
		return err
	}
	a.loudness, a.loudnessKey, a.loudnessFrames = analyzer, key, 0
	return nil
}

func (a *AudioBackend) addLoudnessFrames(b *worker.Backend, msg worker.Message) (worker.Reply, error) {
	reply := worker.Reply{Transfer: msg.Transfer}
	if a.loudness == nil {
		return reply, ErrNoCalculation
	}
	frames, err := argInt(msg.Args, 0)
	if err != nil {
		return reply, err
	}
	planes := make([][]float32, len(msg.Transfer))
	for i, buf := range msg.Transfer {
		if buf.Len() < frames {
			return reply, fmt.Errorf("%w: channel %d holds %d of %d frames", ErrInvalidArgs, i, buf.Len(), frames)
		}
		planes[i] = buf.Data[:frames]
	}
	if err := a.loudness.AddFrames(planes, frames); err != nil {
		return reply, err
	}

	a.loudnessFrames += int64(frames)
	if err := b.PostMessageToFrontend(worker.ActionProgress, []any{a.loudnessFrames}); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AudioBackend.addLoudnessFrames",
			"error":    err.Error(),
		}).Debug("Progress not delivered")
	}
	return reply, nil
}

func (a *AudioBackend) getLoudness(msg worker.Message) (worker.Reply, error) {
	if a.loudness == nil {
		return worker.Reply{}, ErrNoCalculation
	}
	album, err := argString(msg.Args, 0)
	if err != nil {
		return worker.Reply{}, err
	}
	defer a.releaseLoudness()
	m, err := a.loudness.Measure()
	if err != nil {
		return worker.Reply{}, err
	}
	return worker.Reply{Args: []any{m.IntegratedLoudness, m.SamplePeak, album, m.Frames}}, nil
}

func (a *AudioBackend) releaseLoudness() {
	if a.loudness == nil {
		return
	}
	if err := a.pools.Loudness.Free(a.loudnessKey, a.loudness); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AudioBackend.releaseLoudness",
			"key":      a.loudnessKey,
			"error":    err.Error(),
		}).Warn("Failed to return loudness analyzer to pool")
	}
	a.loudness, a.loudnessKey, a.loudnessFrames = nil, "", 0
}

// Destroy releases the current calculations and frees every pooled native
// object. It must not race with message handling.
func (a *AudioBackend) Destroy() {
	a.releaseFingerprinter()
	a.releaseLoudness()
	a.pools.Destroy()
}

var _ worker.ActionHandler = (*AudioBackend)(nil)
