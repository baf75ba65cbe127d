package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/opd-ai/trackcore/audio"
	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/pool"
	"github.com/opd-ai/trackcore/worker"
	"github.com/sirupsen/logrus"
)

// LoudnessResult is the EBU R128 measurement of one track.
type LoudnessResult struct {
	IntegratedLoudness float64       `json:"integratedLoudness"`
	SamplePeak         float64       `json:"samplePeak"`
	Album              string        `json:"album,omitempty"`
	Duration           time.Duration `json:"duration"`
}

// LoudnessCalculator streams tracks to the audio backend in fixed-size
// chunks. Its channel buffers are allocated once and travel to the backend
// and back with every chunk, so peak memory does not grow with track length.
type LoudnessCalculator struct {
	frontend *worker.Frontend
	buffers  [limits.MaxChannels]*pool.Buffer
}

// NewLoudnessCalculator preallocates one buffer per supported channel.
func NewLoudnessCalculator(frontend *worker.Frontend) *LoudnessCalculator {
	c := &LoudnessCalculator{frontend: frontend}
	for i := range c.buffers {
		c.buffers[i] = pool.NewBuffer(limits.LoudnessBufferFrames)
	}
	return c
}

// Calculate measures buf. album is carried into the result for album gain
// grouping. On failure after initialization the backend calculation is
// cancelled exactly once and the original error returned.
func (c *LoudnessCalculator) Calculate(ctx context.Context, buf *audio.AudioBuffer, album string, token *CancellationToken) (result LoudnessResult, err error) {
	if err := buf.Validate(); err != nil {
		return LoudnessResult{}, err
	}
	channels := buf.NumberOfChannels()
	if err := limits.ValidateChannelCount(channels); err != nil {
		return LoudnessResult{}, fmt.Errorf("%w: %d", audio.ErrInvalidChannelCount, channels)
	}

	if _, err := c.frontend.Call(ctx, worker.ActionInitializeLoudness, []any{channels, buf.SampleRate}); err != nil {
		return LoudnessResult{}, err
	}
	defer func() {
		if err != nil {
			c.cancel(ctx, err)
		}
	}()

	frames := buf.Frames()
	for start := 0; start < frames; start += limits.LoudnessBufferFrames {
		if err := checkpoint(ctx, token); err != nil {
			return LoudnessResult{}, err
		}
		n := min(limits.LoudnessBufferFrames, frames-start)
		if err := c.send(ctx, buf, start, n); err != nil {
			return LoudnessResult{}, err
		}
	}

	reply, err := c.frontend.Call(ctx, worker.ActionGetLoudness, []any{album})
	if err != nil {
		return LoudnessResult{}, err
	}
	return decodeLoudness(reply.Args, buf.Duration())
}

func (c *LoudnessCalculator) send(ctx context.Context, buf *audio.AudioBuffer, start, n int) error {
	channels := buf.NumberOfChannels()
	transfer := make([]*pool.Buffer, channels)
	for ch := 0; ch < channels; ch++ {
		copy(c.buffers[ch].Data, buf.Channels[ch][start:start+n])
		transfer[ch] = c.buffers[ch]
	}

	reply, err := c.frontend.Call(ctx, worker.ActionAddLoudnessFrames, []any{n}, transfer...)
	c.reclaim(reply.Transfer, channels)
	return err
}

// reclaim puts returned buffers back in their slots and replaces any the
// backend kept.
func (c *LoudnessCalculator) reclaim(returned []*pool.Buffer, channels int) {
	for ch := 0; ch < channels; ch++ {
		if ch < len(returned) && returned[ch] != nil && returned[ch].Len() == limits.LoudnessBufferFrames {
			c.buffers[ch] = returned[ch]
			continue
		}
		logrus.WithFields(logrus.Fields{
			"function": "LoudnessCalculator.reclaim",
			"channel":  ch,
			"error":    ErrBufferNotReturned.Error(),
		}).Warn("Reallocating channel buffer")
		c.buffers[ch] = pool.NewBuffer(limits.LoudnessBufferFrames)
	}
}

func (c *LoudnessCalculator) cancel(ctx context.Context, cause error) {
	logrus.WithFields(logrus.Fields{
		"function": "LoudnessCalculator.cancel",
		"cause":    cause.Error(),
	}).Debug("Cancelling loudness calculation")
	if _, err := c.frontend.Call(context.WithoutCancel(ctx), worker.ActionCancelLoudness, nil); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "LoudnessCalculator.cancel",
			"error":    err.Error(),
		}).Warn("Failed to cancel loudness calculation")
	}
}

func decodeLoudness(args []any, duration time.Duration) (LoudnessResult, error) {
	integrated, err := argFloat(args, 0)
	if err != nil {
		return LoudnessResult{}, err
	}
	peak, err := argFloat(args, 1)
	if err != nil {
		return LoudnessResult{}, err
	}
	album, err := argString(args, 2)
	if err != nil {
		return LoudnessResult{}, err
	}
	return LoudnessResult{
		IntegratedLoudness: integrated,
		SamplePeak:         peak,
		Album:              album,
		Duration:           duration,
	}, nil
}
