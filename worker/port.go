package worker

import "sync"

// Port is one end of a bidirectional message link between two runtimes.
// PostMessage must not block on the receiver; Messages delivers inbound
// envelopes in the order the peer posted them and is closed with the port.
type Port interface {
	PostMessage(msg Message) error
	Messages() <-chan Message
	Close() error
}

// queue is an unbounded FIFO drained by a pump goroutine into out.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
	out    chan T
	done   chan struct{}
	once   sync.Once
}

func newQueue[T any]() *queue[T] {
	q := &queue[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *queue[T]) push(item T) error {
	select {
	case <-q.done:
		return ErrPortClosed
	default:
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

func (q *queue[T]) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.signal:
				continue
			case <-q.done:
				return
			}
		}
		item := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- item:
		case <-q.done:
			return
		}
	}
}

func (q *queue[T]) close() {
	q.once.Do(func() { close(q.done) })
}

type pipePort struct {
	inbox *queue[Message]
	peer  *pipePort
}

// Pipe returns two connected in-process ports. A message posted on one is
// delivered by the other's Messages channel. Closing either end closes both.
func Pipe() (Port, Port) {
	a := &pipePort{inbox: newQueue[Message]()}
	b := &pipePort{inbox: newQueue[Message]()}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipePort) PostMessage(msg Message) error {
	return p.peer.inbox.push(msg)
}

func (p *pipePort) Messages() <-chan Message {
	return p.inbox.out
}

func (p *pipePort) Close() error {
	p.inbox.close()
	p.peer.inbox.close()
	return nil
}
