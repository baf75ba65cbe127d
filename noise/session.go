package noise

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/flynn/noise"
	"github.com/opd-ai/trackcore/limits"
	"github.com/sirupsen/logrus"
)

// Session encrypts transport messages after a completed handshake. Sending
// and receiving may run on different goroutines.
type Session struct {
	sendMu    sync.Mutex
	send      *noise.CipherState
	recvMu    sync.Mutex
	recv      *noise.CipherState
	remoteKey []byte
}

// Encrypt seals plaintext for the peer.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.send.Encrypt(nil, nil, plaintext)
}

// Decrypt opens a message sealed by the peer.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	return s.recv.Decrypt(nil, nil, ciphertext)
}

// RemoteStaticKey returns the authenticated peer key.
func (s *Session) RemoteStaticKey() []byte {
	return append([]byte(nil), s.remoteKey...)
}

// WriteFrame writes payload with a big-endian uint32 length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	if err := limits.ValidateFrame(payload); err != nil {
		return err
	}
	buf := make([]byte, limits.FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[limits.FrameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [limits.FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if err := limits.ValidateFrameLength(n); err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Establish runs a complete handshake over rw and returns the session.
func Establish(rw io.ReadWriter, h *Handshake) (*Session, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Establish",
		"pattern":  h.pattern,
		"role":     h.role,
	}).Debug("Starting handshake")

	writing := h.role == Initiator
	for !h.IsComplete() {
		if writing {
			msg, _, err := h.WriteMessage(nil)
			if err != nil {
				return nil, err
			}
			if err := WriteFrame(rw, msg); err != nil {
				return nil, fmt.Errorf("handshake send: %w", err)
			}
		} else {
			msg, err := ReadFrame(rw)
			if err != nil {
				return nil, fmt.Errorf("handshake receive: %w", err)
			}
			if _, _, err := h.ReadMessage(msg); err != nil {
				return nil, err
			}
		}
		writing = !writing
	}

	session, err := h.Session()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Establish",
			"pattern":  h.pattern,
			"error":    err.Error(),
		}).Error("Handshake verification failed")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Establish",
		"pattern":  h.pattern,
	}).Info("Secure session established")
	return session, nil
}
