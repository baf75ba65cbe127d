package analysis

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/trackcore/audio"
	"github.com/opd-ai/trackcore/native"
	"github.com/opd-ai/trackcore/timers"
	"github.com/opd-ai/trackcore/worker"
	"github.com/stretchr/testify/require"
)

const testTimeout = 10 * time.Second

var errInjected = errors.New("injected failure")

// recordingHandler counts actions and can fail one of them.
type recordingHandler struct {
	inner worker.ActionHandler

	mu       sync.Mutex
	calls    map[worker.Action]int
	failOn   worker.Action
	failCall int
}

func (h *recordingHandler) HandleAction(ctx context.Context, b *worker.Backend, msg worker.Message) (worker.Reply, error) {
	h.mu.Lock()
	h.calls[msg.Action]++
	fail := msg.Action == h.failOn && h.calls[msg.Action] == h.failCall
	h.mu.Unlock()

	if fail {
		return worker.Reply{Transfer: msg.Transfer}, errInjected
	}
	return h.inner.HandleAction(ctx, b, msg)
}

func (h *recordingHandler) count(a worker.Action) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[a]
}

type harness struct {
	backend     *AudioBackend
	handler     *recordingHandler
	workerPools *Pools
	mainPools   *Pools
	frontend    *worker.Frontend
	fingerprint *FingerprintCalculator
	loudness    *LoudnessCalculator
	timers      *timers.Timers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		workerPools: NewPools(),
		mainPools:   NewPools(),
		timers:      timers.New(nil),
	}

	mainRT := worker.NewRuntime("main")
	workerRT := worker.NewRuntime("audio-worker")
	a, b := worker.Pipe()
	require.NoError(t, mainRT.Attach(a))
	require.NoError(t, workerRT.Attach(b))
	t.Cleanup(func() {
		workerRT.Close()
		mainRT.Close()
	})

	h.backend = NewAudioBackend(native.NewModule(), h.workerPools)
	h.handler = &recordingHandler{inner: h.backend, calls: make(map[worker.Action]int)}
	be, err := workerRT.CreateBackend(FrontendName, h.handler)
	require.NoError(t, err)
	require.NoError(t, be.Start())

	h.frontend = mainRT.Frontend(FrontendName, nil)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, h.frontend.Ready(ctx))

	renderer, err := NewRenderer(native.NewModule(), h.mainPools, audio.FingerprintSampleRate)
	require.NoError(t, err)
	t.Cleanup(func() { renderer.Destroy() })

	h.fingerprint, err = NewFingerprintCalculator(h.frontend, renderer, h.mainPools)
	require.NoError(t, err)
	h.loudness = NewLoudnessCalculator(h.frontend)
	return h
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// sineBuffer returns a planar buffer holding the same sine in every channel.
func sineBuffer(freq, amplitude float64, sampleRate, channels int, d time.Duration) *audio.AudioBuffer {
	frames := int(d.Seconds() * float64(sampleRate))
	buf := audio.NewAudioBuffer(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		v := float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		for ch := range buf.Channels {
			buf.Channels[ch][i] = v
		}
	}
	return buf
}
