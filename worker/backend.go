package worker

import (
	"context"
	"sync/atomic"

	"github.com/opd-ai/trackcore/pool"
	"github.com/sirupsen/logrus"
)

// Backend is the worker-side end of a channel.
type Backend struct {
	rt           *Runtime
	frontendName string
	channel      Channel
	handler      ActionHandler
	started      atomic.Bool
}

// Channel returns the backend's channel id.
func (b *Backend) Channel() Channel {
	return b.channel
}

// FrontendName returns the name the main context binds to this backend.
func (b *Backend) FrontendName() string {
	return b.frontendName
}

// Start announces the backend to the main context. Until it is called the
// matching Frontend stays unready.
func (b *Backend) Start() error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	port, err := b.rt.parentPort()
	if err == nil {
		err = port.PostMessage(Message{
			Kind:         KindReady,
			FrontendName: b.frontendName,
			Channel:      b.channel,
		})
	}
	if err != nil {
		b.started.Store(false)
		logrus.WithFields(logrus.Fields{
			"function": "Backend.Start",
			"frontend": b.frontendName,
			"error":    err.Error(),
		}).Error("Failed to announce backend")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Backend.Start",
		"frontend": b.frontendName,
		"channel":  b.channel.short(),
	}).Info("Backend started")
	return nil
}

// PostMessageToFrontend pushes a message to the frontend's receiver.
// Transferred buffers are detached from the caller.
func (b *Backend) PostMessageToFrontend(action Action, args []any, transfer ...*pool.Buffer) error {
	port, err := b.rt.parentPort()
	if err != nil {
		return err
	}
	return port.PostMessage(Message{
		Kind:     KindChannel,
		Channel:  b.channel,
		Action:   action,
		Args:     args,
		Transfer: transferAll(transfer),
	})
}

// handle runs the handler for one inbound message and answers calls.
func (b *Backend) handle(ctx context.Context, port Port, msg Message) {
	reply, err := b.handler.HandleAction(ctx, b, msg)
	if msg.CallID == 0 {
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Backend.handle",
				"frontend": b.frontendName,
				"action":   msg.Action.String(),
				"error":    err.Error(),
			}).Error("Action failed")
		}
		return
	}

	// Transferred buffers go back even on failure so callers keep them.
	out := Message{
		Kind:     KindChannel,
		Channel:  b.channel,
		CallID:   msg.CallID,
		Transfer: transferAll(reply.Transfer),
	}
	if err != nil {
		out.Action = ActionError
		out.Error = err.Error()
		logrus.WithFields(logrus.Fields{
			"function": "Backend.handle",
			"frontend": b.frontendName,
			"action":   msg.Action.String(),
			"error":    err.Error(),
		}).Debug("Action failed, replying with error")
	} else {
		out.Action = ActionReply
		out.Args = reply.Args
	}

	if err := port.PostMessage(out); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Backend.handle",
			"frontend": b.frontendName,
			"error":    err.Error(),
		}).Error("Failed to send reply")
	}
}
