package noise

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKeys(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestFromSecretKey(t *testing.T) {
	_, err := FromSecretKey([KeySize]byte{})
	assert.ErrorIs(t, err, ErrZeroKey)

	kp := mustKeys(t)
	again, err := FromSecretKey(kp.Private)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, again.Public)
	assert.NotEqual(t, [KeySize]byte{}, kp.Public)
}

func TestNewHandshakeValidation(t *testing.T) {
	keys := mustKeys(t)

	_, err := NewHandshake(PatternXX, nil, nil, Initiator)
	assert.Error(t, err)

	_, err = NewHandshake(PatternIK, keys, nil, Initiator)
	assert.Error(t, err, "IK initiator needs the responder key")

	_, err = NewHandshake(PatternXX, keys, make([]byte, 16), Initiator)
	assert.Error(t, err)

	_, err = NewHandshake("NN", keys, nil, Initiator)
	assert.Error(t, err)

	hs, err := NewHandshake(PatternIK, keys, nil, Responder)
	require.NoError(t, err)
	assert.Equal(t, PatternIK, hs.Pattern())
	assert.False(t, hs.IsComplete())
	assert.Equal(t, keys.Public[:], hs.GetLocalStaticKey())

	_, err = hs.Session()
	assert.ErrorIs(t, err, ErrHandshakeNotComplete)
}

// establishPair runs both sides of a handshake over an in-memory pipe.
func establishPair(t *testing.T, initiator, responder *Handshake) (*Session, *Session, error, error) {
	t.Helper()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	type result struct {
		s   *Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := Establish(b, responder)
		if err != nil {
			b.Close()
		}
		done <- result{s, err}
	}()

	si, erri := Establish(a, initiator)
	if erri != nil {
		a.Close()
	}
	r := <-done
	return si, r.s, erri, r.err
}

func TestEstablish(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
	}{
		{"xx", PatternXX},
		{"ik", PatternIK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initKeys, respKeys := mustKeys(t), mustKeys(t)

			var peer []byte
			if tt.pattern == PatternIK {
				peer = respKeys.Public[:]
			}
			ih, err := NewHandshake(tt.pattern, initKeys, peer, Initiator)
			require.NoError(t, err)
			rh, err := NewHandshake(tt.pattern, respKeys, nil, Responder)
			require.NoError(t, err)

			is, rs, ierr, rerr := establishPair(t, ih, rh)
			require.NoError(t, ierr)
			require.NoError(t, rerr)

			assert.Equal(t, respKeys.Public[:], is.RemoteStaticKey())
			assert.Equal(t, initKeys.Public[:], rs.RemoteStaticKey())

			sealed, err := is.Encrypt([]byte("hello backend"))
			require.NoError(t, err)
			opened, err := rs.Decrypt(sealed)
			require.NoError(t, err)
			assert.Equal(t, "hello backend", string(opened))

			sealed, err = rs.Encrypt([]byte("hello frontend"))
			require.NoError(t, err)
			opened, err = is.Decrypt(sealed)
			require.NoError(t, err)
			assert.Equal(t, "hello frontend", string(opened))

			sealed[0] ^= 0xff
			_, err = is.Decrypt(sealed)
			assert.Error(t, err)
		})
	}
}

func TestEstablishPinnedKeyMismatch(t *testing.T) {
	initKeys, respKeys, other := mustKeys(t), mustKeys(t), mustKeys(t)

	ih, err := NewHandshake(PatternXX, initKeys, other.Public[:], Initiator)
	require.NoError(t, err)
	rh, err := NewHandshake(PatternXX, respKeys, nil, Responder)
	require.NoError(t, err)

	_, _, ierr, _ := establishPair(t, ih, rh)
	assert.ErrorIs(t, ierr, ErrPeerKeyMismatch)
}

func TestHandshakeCompleteRejectsMessages(t *testing.T) {
	initKeys, respKeys := mustKeys(t), mustKeys(t)
	ih, err := NewHandshake(PatternXX, initKeys, nil, Initiator)
	require.NoError(t, err)
	rh, err := NewHandshake(PatternXX, respKeys, nil, Responder)
	require.NoError(t, err)

	_, _, ierr, rerr := establishPair(t, ih, rh)
	require.NoError(t, ierr)
	require.NoError(t, rerr)

	_, _, err = ih.WriteMessage(nil)
	assert.ErrorIs(t, err, ErrHandshakeComplete)
	_, _, err = rh.ReadMessage([]byte{1})
	assert.ErrorIs(t, err, ErrHandshakeComplete)
}

func TestFrames(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_ = WriteFrame(a, []byte("one"))
		_ = WriteFrame(a, []byte("two"))
	}()

	first, err := ReadFrame(b)
	require.NoError(t, err)
	second, err := ReadFrame(b)
	require.NoError(t, err)
	assert.Equal(t, "one", string(first))
	assert.Equal(t, "two", string(second))

	assert.Error(t, WriteFrame(a, nil))
}
