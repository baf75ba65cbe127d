package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opd-ai/trackcore/audio"
	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/worker"
	"github.com/sirupsen/logrus"
)

const (
	// MinFingerprintDuration is the shortest track that gets fingerprinted.
	MinFingerprintDuration = 7 * time.Second
	// MaxFingerprintDuration bounds the analyzed window.
	MaxFingerprintDuration = audio.FingerprintMaxSeconds * time.Second
)

// FingerprintStatus separates "not attempted" from "attempted and failed".
type FingerprintStatus uint8

const (
	StatusFailed FingerprintStatus = iota
	StatusTooShort
	StatusComputed
)

func (s FingerprintStatus) String() string {
	switch s {
	case StatusTooShort:
		return "too-short"
	case StatusComputed:
		return "computed"
	default:
		return "failed"
	}
}

// FingerprintResult is the outcome of a fingerprint calculation. It
// marshals to {"fingerprint":"..."} when computed, {"fingerprint":null} when
// the track was too short and {} when the calculation failed.
type FingerprintResult struct {
	Status      FingerprintStatus
	Fingerprint string
}

// MarshalJSON implements json.Marshaler.
func (r FingerprintResult) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusComputed:
		return json.Marshal(map[string]string{"fingerprint": r.Fingerprint})
	case StatusTooShort:
		return []byte(`{"fingerprint":null}`), nil
	default:
		return []byte(`{}`), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *FingerprintResult) UnmarshalJSON(data []byte) error {
	var raw map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fp, present := raw["fingerprint"]
	switch {
	case !present:
		*r = FingerprintResult{Status: StatusFailed}
	case fp == nil:
		*r = FingerprintResult{Status: StatusTooShort}
	default:
		*r = FingerprintResult{Status: StatusComputed, Fingerprint: *fp}
	}
	return nil
}

// FingerprintCalculator renders tracks at the fingerprint rate and streams
// them to the audio backend.
type FingerprintCalculator struct {
	frontend *worker.Frontend
	renderer *Renderer
	pools    *Pools
	scratch  []float32
}

// NewFingerprintCalculator creates a calculator sending through frontend.
// renderer must produce audio at audio.FingerprintSampleRate.
func NewFingerprintCalculator(frontend *worker.Frontend, renderer *Renderer, pools *Pools) (*FingerprintCalculator, error) {
	if renderer.Rate() != audio.FingerprintSampleRate {
		return nil, fmt.Errorf("%w: renderer rate %d, want %d", audio.ErrInvalidSampleRate, renderer.Rate(), audio.FingerprintSampleRate)
	}
	return &FingerprintCalculator{frontend: frontend, renderer: renderer, pools: pools}, nil
}

// Calculate fingerprints buf. A failed calculation is logged and comes back
// as StatusFailed with a nil error; only cancellation returns an error
// (ErrCancelled).
func (c *FingerprintCalculator) Calculate(ctx context.Context, buf *audio.AudioBuffer, token *CancellationToken) (FingerprintResult, error) {
	if err := buf.Validate(); err != nil {
		return c.failed(buf, err), nil
	}
	if buf.Duration() < MinFingerprintDuration {
		return FingerprintResult{Status: StatusTooShort}, nil
	}

	fp, err := c.calculate(ctx, buf, token)
	if errors.Is(err, ErrCancelled) {
		return FingerprintResult{Status: StatusFailed}, err
	}
	if err != nil {
		return c.failed(buf, err), nil
	}
	return FingerprintResult{Status: StatusComputed, Fingerprint: fp}, nil
}

func (c *FingerprintCalculator) failed(buf *audio.AudioBuffer, cause error) FingerprintResult {
	fields := logrus.Fields{
		"function": "FingerprintCalculator.Calculate",
		"error":    cause.Error(),
	}
	if buf != nil {
		fields["duration"] = buf.Duration().String()
	}
	logrus.WithFields(fields).Warn("Fingerprint calculation failed")
	return FingerprintResult{Status: StatusFailed}
}

func (c *FingerprintCalculator) calculate(ctx context.Context, buf *audio.AudioBuffer, token *CancellationToken) (fp string, err error) {
	if _, err := c.frontend.Call(ctx, worker.ActionInitializeFingerprint, nil); err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			c.cancel(ctx)
		}
	}()

	maxFrames := int(MaxFingerprintDuration.Seconds() * float64(buf.SampleRate))
	rendering, err := c.renderer.Open(buf, maxFrames)
	if err != nil {
		return "", err
	}
	defer rendering.Close()

	chunk := limits.FingerprintBufferFrames * buf.SampleRate / audio.FingerprintSampleRate
	for need := true; need; {
		if err := checkpoint(ctx, token); err != nil {
			return "", err
		}
		c.scratch, err = rendering.Next(c.scratch, chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if need, err = c.send(ctx, c.scratch); err != nil {
			return "", err
		}
	}

	if err := checkpoint(ctx, token); err != nil {
		return "", err
	}
	reply, err := c.frontend.Call(ctx, worker.ActionGetFingerprint, nil)
	if err != nil {
		return "", err
	}
	return argString(reply.Args, 0)
}

// send transfers samples to the backend and reports whether it wants more.
func (c *FingerprintCalculator) send(ctx context.Context, samples []float32) (bool, error) {
	if len(samples) == 0 {
		return true, nil
	}
	out := c.pools.Buffers.Get(len(samples))
	copy(out.Data, samples)

	reply, err := c.frontend.Call(ctx, worker.ActionAddFingerprintFrames, []any{len(samples)}, out)
	for _, b := range reply.Transfer {
		c.pools.Buffers.Put(b)
	}
	if err != nil {
		return false, err
	}
	return argBool(reply.Args, 0)
}

// cancel releases the backend's fingerprinter. It runs even when ctx is
// already done.
func (c *FingerprintCalculator) cancel(ctx context.Context) {
	if _, err := c.frontend.Call(context.WithoutCancel(ctx), worker.ActionCancelFingerprint, nil); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "FingerprintCalculator.cancel",
			"error":    err.Error(),
		}).Warn("Failed to cancel fingerprint calculation")
	}
}
