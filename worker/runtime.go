package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ActionHandler processes channel messages addressed to a Backend. It runs on
// the owning runtime's event loop. The returned Reply is only sent when the
// message was a Call.
type ActionHandler interface {
	HandleAction(ctx context.Context, b *Backend, msg Message) (Reply, error)
}

// HandlerFunc adapts a function to ActionHandler.
type HandlerFunc func(ctx context.Context, b *Backend, msg Message) (Reply, error)

// HandleAction calls f.
func (f HandlerFunc) HandleAction(ctx context.Context, b *Backend, msg Message) (Reply, error) {
	return f(ctx, b, msg)
}

// Receiver gets messages a Backend pushes to its Frontend.
type Receiver interface {
	ReceiveMessage(msg Message)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(msg Message)

// ReceiveMessage calls f.
func (f ReceiverFunc) ReceiveMessage(msg Message) { f(msg) }

// MainWindowFunc answers CallMainWindow requests on the main runtime.
type MainWindowFunc func(ctx context.Context, args []any) (any, error)

type inbound struct {
	port Port
	msg  Message
}

type callResult struct {
	msg Message
	err error
}

// binding ties a frontend name to the channel and port announced by its
// backend. It is resolved at most once and never revoked.
type binding struct {
	once    sync.Once
	done    chan struct{}
	port    Port
	channel Channel
}

func (b *binding) resolved() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Runtime is one execution context. Inbound messages from all attached ports
// are processed one at a time on a single goroutine.
type Runtime struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	events chan inbound
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	ports      []Port
	backends   map[Channel]*Backend
	bindings   map[string]*binding
	frontends  map[string]*Frontend
	byChannel  map[Channel]string
	mainFuncs  map[string]MainWindowFunc
	pending    map[uint64]chan callResult
	nextCallID uint64
}

// NewRuntime starts the event loop of a new context. name only appears in
// log entries.
func NewRuntime(name string) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		name:      name,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan inbound, 64),
		backends:  make(map[Channel]*Backend),
		bindings:  make(map[string]*binding),
		frontends: make(map[string]*Frontend),
		byChannel: make(map[Channel]string),
		mainFuncs: make(map[string]MainWindowFunc),
		pending:   make(map[uint64]chan callResult),
	}

	r.wg.Add(1)
	go r.loop()

	logrus.WithFields(logrus.Fields{
		"function": "NewRuntime",
		"runtime":  name,
	}).Info("Runtime started")
	return r
}

// Name returns the runtime's log name.
func (r *Runtime) Name() string {
	return r.name
}

// Attach starts receiving from port. The first attached port is the one
// backends and CallMainWindow send through.
func (r *Runtime) Attach(port Port) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRuntimeClosed
	}
	r.ports = append(r.ports, port)
	r.wg.Add(1)
	r.mu.Unlock()

	go r.readPort(port)
	return nil
}

func (r *Runtime) parentPort() (Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRuntimeClosed
	}
	if len(r.ports) == 0 {
		return nil, ErrNoPort
	}
	return r.ports[0], nil
}

// CreateBackend registers a backend serving the frontend called frontendName.
// The backend is invisible to the main context until Start is called.
func (r *Runtime) CreateBackend(frontendName string, handler ActionHandler) (*Backend, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRuntimeClosed
	}

	channel, err := uniqueChannel(func(c Channel) bool {
		_, taken := r.backends[c]
		return taken
	})
	if err != nil {
		return nil, err
	}

	b := &Backend{
		rt:           r,
		frontendName: frontendName,
		channel:      channel,
		handler:      handler,
	}
	r.backends[channel] = b

	logrus.WithFields(logrus.Fields{
		"function": "Runtime.CreateBackend",
		"runtime":  r.name,
		"frontend": frontendName,
		"channel":  channel.short(),
	}).Debug("Backend created")
	return b, nil
}

// Frontend returns the frontend for name, creating it on first use. Later
// calls return the same frontend and ignore receiver. receiver may be nil
// when the backend never pushes messages.
func (r *Runtime) Frontend(name string, receiver Receiver) *Frontend {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.frontends[name]; ok {
		return f
	}
	f := &Frontend{
		rt:       r,
		name:     name,
		receiver: receiver,
		binding:  r.bindingLocked(name),
		callSem:  make(chan struct{}, 1),
	}
	r.frontends[name] = f
	return f
}

func (r *Runtime) bindingLocked(name string) *binding {
	b, ok := r.bindings[name]
	if !ok {
		b = &binding{done: make(chan struct{})}
		r.bindings[name] = b
	}
	return b
}

// RegisterMainWindowFunc makes fn callable from workers under name,
// replacing any earlier registration.
func (r *Runtime) RegisterMainWindowFunc(name string, fn MainWindowFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mainFuncs[name] = fn
}

// CallMainWindow runs the function registered under name in the context on
// the other end of the first attached port and returns its result. There is
// no timeout: the call waits until the reply arrives, ctx is done or the
// runtime is closed.
func (r *Runtime) CallMainWindow(ctx context.Context, name string, args []any) (any, error) {
	port, err := r.parentPort()
	if err != nil {
		return nil, err
	}
	id, wait, err := r.registerCall()
	if err != nil {
		return nil, err
	}

	err = port.PostMessage(Message{
		Kind:   KindCallMainWindow,
		Name:   name,
		Args:   args,
		CallID: id,
	})
	if err != nil {
		r.dropCall(id)
		return nil, fmt.Errorf("call main window %s: %w", name, err)
	}

	res, err := r.await(ctx, id, wait)
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, &RemoteError{Name: name, Message: res.Error}
	}
	return res.Result, nil
}

// PendingCalls reports how many calls await a reply.
func (r *Runtime) PendingCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Runtime) registerCall() (uint64, chan callResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, nil, ErrRuntimeClosed
	}
	r.nextCallID++
	id := r.nextCallID
	wait := make(chan callResult, 1)
	r.pending[id] = wait
	return id, wait, nil
}

func (r *Runtime) dropCall(id uint64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

func (r *Runtime) await(ctx context.Context, id uint64, wait chan callResult) (Message, error) {
	select {
	case res := <-wait:
		return res.msg, res.err
	case <-ctx.Done():
		r.dropCall(id)
		return Message{}, ctx.Err()
	case <-r.ctx.Done():
		r.dropCall(id)
		return Message{}, ErrRuntimeClosed
	}
}

// resolveCall completes the pending call named by msg.CallID. Replies for
// calls that were cancelled or never made are dropped.
func (r *Runtime) resolveCall(msg Message) {
	r.mu.Lock()
	wait, ok := r.pending[msg.CallID]
	delete(r.pending, msg.CallID)
	r.mu.Unlock()

	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Runtime.resolveCall",
			"runtime":  r.name,
			"call_id":  msg.CallID,
			"kind":     msg.Kind,
		}).Debug("Dropping reply for unknown call")
		return
	}
	wait <- callResult{msg: msg}
}

// readPort forwards inbound messages to the event loop. Replies are resolved
// here so a handler blocked in a call on the loop can still be answered.
func (r *Runtime) readPort(port Port) {
	defer r.wg.Done()
	for msg := range port.Messages() {
		if msg.Kind == KindCallMainWindowResult ||
			(msg.Kind == KindChannel && msg.Action.isReply() && msg.CallID != 0) {
			r.resolveCall(msg)
			continue
		}
		select {
		case r.events <- inbound{port: port, msg: msg}:
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runtime) loop() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.events:
			r.dispatch(ev)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runtime) dispatch(ev inbound) {
	switch ev.msg.Kind {
	case KindReady:
		r.handleReady(ev)
	case KindChannel:
		r.handleChannel(ev)
	case KindCallMainWindow:
		r.handleCallMainWindow(ev)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Runtime.dispatch",
			"runtime":  r.name,
			"kind":     ev.msg.Kind,
		}).Warn("Dropping message of unknown kind")
	}
}

func (r *Runtime) handleReady(ev inbound) {
	r.mu.Lock()
	b := r.bindingLocked(ev.msg.FrontendName)
	if b.resolved() {
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Runtime.handleReady",
			"runtime":  r.name,
			"frontend": ev.msg.FrontendName,
			"channel":  ev.msg.Channel.short(),
		}).Warn("Ignoring second ready announcement")
		return
	}
	b.once.Do(func() {
		b.port = ev.port
		b.channel = ev.msg.Channel
		r.byChannel[ev.msg.Channel] = ev.msg.FrontendName
		close(b.done)
	})
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Runtime.handleReady",
		"runtime":  r.name,
		"frontend": ev.msg.FrontendName,
		"channel":  ev.msg.Channel.short(),
	}).Info("Frontend bound to backend")
}

func (r *Runtime) handleChannel(ev inbound) {
	msg := ev.msg

	r.mu.Lock()
	backend := r.backends[msg.Channel]
	var frontend *Frontend
	if name, ok := r.byChannel[msg.Channel]; ok {
		frontend = r.frontends[name]
	}
	r.mu.Unlock()

	switch {
	case backend != nil:
		backend.handle(r.ctx, ev.port, msg)
	case frontend != nil:
		frontend.deliver(msg)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Runtime.handleChannel",
			"runtime":  r.name,
			"channel":  msg.Channel.short(),
			"action":   msg.Action.String(),
		}).Warn("Dropping message for unknown channel")
	}
}

func (r *Runtime) handleCallMainWindow(ev inbound) {
	msg := ev.msg
	r.mu.Lock()
	fn := r.mainFuncs[msg.Name]
	r.mu.Unlock()

	reply := Message{Kind: KindCallMainWindowResult, CallID: msg.CallID, Name: msg.Name}
	if fn == nil {
		reply.Error = fmt.Sprintf("%v: %s", ErrUnknownMainWindowFunc, msg.Name)
	} else if result, err := fn(r.ctx, msg.Args); err != nil {
		reply.Error = err.Error()
	} else {
		reply.Result = result
	}

	if err := ev.port.PostMessage(reply); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Runtime.handleCallMainWindow",
			"runtime":  r.name,
			"name":     msg.Name,
			"error":    err.Error(),
		}).Error("Failed to send main window result")
	}
}

// Close stops the event loop, closes every attached port and fails pending
// calls with ErrRuntimeClosed. Closing twice is a no-op.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ports := r.ports
	pending := r.pending
	r.pending = make(map[uint64]chan callResult)
	r.mu.Unlock()

	r.cancel()
	for _, p := range ports {
		if err := p.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Runtime.Close",
				"runtime":  r.name,
				"error":    err.Error(),
			}).Warn("Failed to close port")
		}
	}
	for _, wait := range pending {
		wait <- callResult{err: ErrRuntimeClosed}
	}
	r.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Runtime.Close",
		"runtime":  r.name,
	}).Info("Runtime closed")
	return nil
}
