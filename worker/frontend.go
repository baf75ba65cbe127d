package worker

import (
	"context"
	"fmt"

	"github.com/opd-ai/trackcore/pool"
	"github.com/sirupsen/logrus"
)

// Frontend is the main-side end of a channel, bound by name to the backend
// that announces itself under that name.
type Frontend struct {
	rt       *Runtime
	name     string
	receiver Receiver
	binding  *binding
	callSem  chan struct{}
}

// Name returns the frontend name.
func (f *Frontend) Name() string {
	return f.name
}

// Ready blocks until the backend has announced itself or ctx is done.
func (f *Frontend) Ready(ctx context.Context) error {
	select {
	case <-f.binding.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-f.rt.ctx.Done():
		return ErrRuntimeClosed
	}
}

// IsReady reports whether the frontend is bound.
func (f *Frontend) IsReady() bool {
	return f.binding.resolved()
}

// Channel returns the bound channel, empty before Ready.
func (f *Frontend) Channel() Channel {
	if !f.IsReady() {
		return ""
	}
	return f.binding.channel
}

// PostMessageToBackend sends a message without waiting for an answer. It
// fails with ErrNotReady before the backend is bound.
func (f *Frontend) PostMessageToBackend(action Action, args []any, transfer ...*pool.Buffer) error {
	if !f.IsReady() {
		logrus.WithFields(logrus.Fields{
			"function": "Frontend.PostMessageToBackend",
			"frontend": f.name,
			"action":   action.String(),
		}).Warn("Post before backend ready")
		return ErrNotReady
	}
	return f.binding.port.PostMessage(Message{
		Kind:     KindChannel,
		Channel:  f.binding.channel,
		Action:   action,
		Args:     args,
		Transfer: transferAll(transfer),
	})
}

// Call sends a message and waits for the backend's reply. Only one call per
// frontend is in flight; concurrent callers queue behind it. A handler error
// comes back as *RemoteError.
func (f *Frontend) Call(ctx context.Context, action Action, args []any, transfer ...*pool.Buffer) (Message, error) {
	if !f.IsReady() {
		return Message{}, ErrNotReady
	}

	select {
	case f.callSem <- struct{}{}:
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
	defer func() { <-f.callSem }()

	id, wait, err := f.rt.registerCall()
	if err != nil {
		return Message{}, err
	}
	err = f.binding.port.PostMessage(Message{
		Kind:     KindChannel,
		Channel:  f.binding.channel,
		Action:   action,
		Args:     args,
		Transfer: transferAll(transfer),
		CallID:   id,
	})
	if err != nil {
		f.rt.dropCall(id)
		return Message{}, fmt.Errorf("call %s: %w", action, err)
	}

	res, err := f.rt.await(ctx, id, wait)
	if err != nil {
		return Message{}, err
	}
	if res.Action == ActionError {
		return res, &RemoteError{Action: action, Message: res.Error}
	}
	return res, nil
}

func (f *Frontend) deliver(msg Message) {
	if f.receiver == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Frontend.deliver",
			"frontend": f.name,
			"action":   msg.Action.String(),
		}).Debug("No receiver, dropping pushed message")
		return
	}
	f.receiver.ReceiveMessage(msg)
}
