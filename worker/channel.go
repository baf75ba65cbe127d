package worker

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Channel identifies one Backend/Frontend pair inside a runtime.
type Channel string

// newChannel draws two independent 64-bit values and concatenates their
// zero-padded hex forms, so every id is 32 characters.
func newChannel(r io.Reader) (Channel, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", fmt.Errorf("draw channel id: %w", err)
	}
	hi := binary.BigEndian.Uint64(buf[:8])
	lo := binary.BigEndian.Uint64(buf[8:])
	return Channel(fmt.Sprintf("%016x%016x", hi, lo)), nil
}

// uniqueChannel redraws until the id is unused by taken.
func uniqueChannel(taken func(Channel) bool) (Channel, error) {
	for {
		ch, err := newChannel(rand.Reader)
		if err != nil {
			return "", err
		}
		if !taken(ch) {
			return ch, nil
		}
	}
}

// short returns a log-friendly prefix of the channel id.
func (c Channel) short() string {
	if len(c) <= 8 {
		return string(c)
	}
	return string(c[:8])
}
