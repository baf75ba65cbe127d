package analysis

import "github.com/opd-ai/trackcore/worker"

// ProgressFunc receives the running frame count the audio backend pushes
// while a loudness calculation streams.
type ProgressFunc func(frames int64)

// ReceiveMessage implements worker.Receiver.
func (f ProgressFunc) ReceiveMessage(msg worker.Message) {
	if msg.Action != worker.ActionProgress || f == nil {
		return
	}
	if frames, err := argInt(msg.Args, 0); err == nil {
		f(int64(frames))
	}
}
