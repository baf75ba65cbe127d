package worker

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/opd-ai/trackcore/limits"
	"github.com/opd-ai/trackcore/noise"
	"github.com/sirupsen/logrus"
)

// sealOverhead is the AEAD tag added to every encrypted frame.
const sealOverhead = 16

// ConnPort is a Port over a stream connection. Each envelope is gob-encoded,
// encrypted with the Noise session and written as one length-prefixed frame.
type ConnPort struct {
	conn    net.Conn
	session *noise.Session
	outbox  *queue[[]byte]
	inbox   chan Message
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

// NewConnPort runs the handshake hs over conn and starts the port's reader
// and writer. conn is closed when the handshake fails.
func NewConnPort(conn net.Conn, hs *noise.Handshake) (*ConnPort, error) {
	session, err := noise.Establish(conn, hs)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("establish session with %s: %w", conn.RemoteAddr(), err)
	}

	p := &ConnPort{
		conn:    conn,
		session: session,
		outbox:  newQueue[[]byte](),
		inbox:   make(chan Message),
		done:    make(chan struct{}),
	}
	go p.readLoop()
	go p.writeLoop()

	logrus.WithFields(logrus.Fields{
		"function": "NewConnPort",
		"remote":   conn.RemoteAddr().String(),
	}).Info("Secure port established")
	return p, nil
}

// RemoteStaticKey returns the authenticated static key of the peer.
func (p *ConnPort) RemoteStaticKey() []byte {
	return p.session.RemoteStaticKey()
}

// PostMessage encodes msg and queues it for sending. Encoding errors are
// returned to the caller; write errors close the port.
func (p *ConnPort) PostMessage(msg Message) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Kind, err)
	}
	if buf.Len()+sealOverhead > limits.MaxFrameSize {
		return ErrMessageTooLarge
	}
	return p.outbox.push(buf.Bytes())
}

// Messages returns decoded inbound envelopes.
func (p *ConnPort) Messages() <-chan Message {
	return p.inbox
}

// Err returns the error that closed the port, if any.
func (p *ConnPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close shuts the port and its connection.
func (p *ConnPort) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		p.outbox.close()
		err = p.conn.Close()
	})
	return err
}

func (p *ConnPort) fail(err error) {
	select {
	case <-p.done:
		return
	default:
	}

	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "ConnPort.fail",
		"remote":   p.conn.RemoteAddr().String(),
		"error":    err.Error(),
	}).Warn("Closing port after transport error")
	p.Close()
}

func (p *ConnPort) writeLoop() {
	for plain := range p.outbox.out {
		sealed, err := p.session.Encrypt(plain)
		if err == nil {
			err = noise.WriteFrame(p.conn, sealed)
		}
		if err != nil {
			p.fail(fmt.Errorf("write frame: %w", err))
			return
		}
	}
}

func (p *ConnPort) readLoop() {
	defer close(p.inbox)
	for {
		frame, err := noise.ReadFrame(p.conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				p.fail(fmt.Errorf("read frame: %w", err))
			}
			return
		}
		plain, err := p.session.Decrypt(frame)
		if err != nil {
			p.fail(fmt.Errorf("decrypt frame: %w", err))
			return
		}

		var msg Message
		if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ConnPort.readLoop",
				"error":    err.Error(),
			}).Warn("Dropping undecodable message")
			continue
		}

		select {
		case p.inbox <- msg:
		case <-p.done:
			return
		}
	}
}
