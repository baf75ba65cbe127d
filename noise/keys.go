package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the length of Curve25519 keys.
const KeySize = 32

// ErrZeroKey indicates an all-zero private key.
var ErrZeroKey = errors.New("invalid secret key: all zeros")

// KeyPair is a static Curve25519 identity of one runtime endpoint.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	var secret [KeySize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("failed to read key material: %w", err)
	}
	defer ZeroBytes(secret[:])
	return FromSecretKey(secret)
}

// FromSecretKey derives the public half of secretKey.
func FromSecretKey(secretKey [KeySize]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, ErrZeroKey
	}
	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	kp := &KeyPair{Private: secretKey}
	copy(kp.Public[:], public)
	return kp, nil
}

// ZeroBytes overwrites data with zeros.
func ZeroBytes(data []byte) {
	clear(data)
}

func isZeroKey(key [KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
