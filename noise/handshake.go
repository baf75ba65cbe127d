package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrPeerKeyMismatch indicates the authenticated peer is not the pinned key
	ErrPeerKeyMismatch = errors.New("peer static key does not match pinned key")
)

// HandshakeRole defines whether we're initiating or responding to handshake
type HandshakeRole uint8

const (
	// Initiator starts the handshake
	Initiator HandshakeRole = iota
	// Responder responds to handshake initiation
	Responder
)

// Pattern names a supported Noise handshake pattern.
type Pattern string

const (
	// PatternXX authenticates both sides without prior key knowledge.
	PatternXX Pattern = "XX"
	// PatternIK requires the initiator to know the responder's static key.
	PatternIK Pattern = "IK"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Handshake drives one Noise handshake.
type Handshake struct {
	role       HandshakeRole
	pattern    Pattern
	state      *noise.HandshakeState
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	complete   bool
	localKey   []byte
	pinned     []byte
}

// NewHandshake creates a handshake for keys. peerStatic, when non-nil, pins
// the peer's static public key: Session fails unless the authenticated peer
// matches. An IK initiator must pin the responder.
func NewHandshake(pattern Pattern, keys *KeyPair, peerStatic []byte, role HandshakeRole) (*Handshake, error) {
	if keys == nil {
		return nil, fmt.Errorf("static key pair required")
	}
	if peerStatic != nil && len(peerStatic) != KeySize {
		return nil, fmt.Errorf("peer public key must be %d bytes, got %d", KeySize, len(peerStatic))
	}

	var hp noise.HandshakePattern
	switch pattern {
	case PatternXX:
		hp = noise.HandshakeXX
	case PatternIK:
		if role == Initiator && peerStatic == nil {
			return nil, fmt.Errorf("IK initiator requires peer public key")
		}
		hp = noise.HandshakeIK
	default:
		return nil, fmt.Errorf("unknown handshake pattern: %s", pattern)
	}

	staticKey := noise.DHKey{
		Private: make([]byte, KeySize),
		Public:  make([]byte, KeySize),
	}
	copy(staticKey.Private, keys.Private[:])
	copy(staticKey.Public, keys.Public[:])

	config := noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       hp,
		Initiator:     role == Initiator,
		StaticKeypair: staticKey,
	}
	if pattern == PatternIK && role == Initiator {
		config.PeerStatic = append([]byte(nil), peerStatic...)
	}

	hs, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s handshake state: %w", pattern, err)
	}

	h := &Handshake{
		role:     role,
		pattern:  pattern,
		state:    hs,
		localKey: append([]byte(nil), keys.Public[:]...),
	}
	if peerStatic != nil {
		h.pinned = append([]byte(nil), peerStatic...)
	}
	return h, nil
}

// Pattern returns the handshake pattern.
func (h *Handshake) Pattern() Pattern {
	return h.pattern
}

// WriteMessage produces the next outbound handshake message.
func (h *Handshake) WriteMessage(payload []byte) ([]byte, bool, error) {
	if h.complete {
		return nil, false, ErrHandshakeComplete
	}
	message, cs1, cs2, err := h.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("%s handshake write failed: %w", h.pattern, err)
	}
	return message, h.finish(cs1, cs2), nil
}

// ReadMessage consumes an inbound handshake message and returns its payload.
func (h *Handshake) ReadMessage(message []byte) ([]byte, bool, error) {
	if h.complete {
		return nil, false, ErrHandshakeComplete
	}
	payload, cs1, cs2, err := h.state.ReadMessage(nil, message)
	if err != nil {
		return nil, false, fmt.Errorf("%s handshake read failed: %w", h.pattern, err)
	}
	return payload, h.finish(cs1, cs2), nil
}

// finish assigns directions once the handshake splits. cs1 always carries
// initiator-to-responder traffic.
func (h *Handshake) finish(cs1, cs2 *noise.CipherState) bool {
	if cs1 == nil || cs2 == nil {
		return false
	}
	if h.role == Initiator {
		h.sendCipher, h.recvCipher = cs1, cs2
	} else {
		h.sendCipher, h.recvCipher = cs2, cs1
	}
	h.complete = true
	return true
}

// IsComplete returns true once cipher states are available.
func (h *Handshake) IsComplete() bool {
	return h.complete
}

// Session returns the transport session of a completed handshake, verifying
// a pinned peer key when one was supplied.
func (h *Handshake) Session() (*Session, error) {
	if !h.complete {
		return nil, ErrHandshakeNotComplete
	}
	remote := h.state.PeerStatic()
	if h.pinned != nil && string(remote) != string(h.pinned) {
		return nil, ErrPeerKeyMismatch
	}
	return &Session{
		send:      h.sendCipher,
		recv:      h.recvCipher,
		remoteKey: append([]byte(nil), remote...),
	}, nil
}

// GetLocalStaticKey returns our static public key.
func (h *Handshake) GetLocalStaticKey() []byte {
	return append([]byte(nil), h.localKey...)
}
