// Package noise secures stream transports between runtimes with the Noise
// Protocol Framework, using flynn/noise with Curve25519, ChaCha20-Poly1305 and
// SHA256.
//
// # Pattern Selection
//
//	Pattern │ When to Use                                │ Messages
//	────────┼────────────────────────────────────────────┼─────────
//	XX      │ Neither side knows the other's static key  │ 3
//	IK      │ Initiator knows the responder's static key │ 2
//
// Either side may pin the expected peer key; Session then fails with
// ErrPeerKeyMismatch when the authenticated peer differs.
//
// # Usage
//
//	keys, _ := noise.GenerateKeyPair()
//	hs, _ := noise.NewHandshake(noise.PatternXX, keys, nil, noise.Initiator)
//	session, err := noise.Establish(conn, hs)
//	sealed, _ := session.Encrypt(payload)
//	_ = noise.WriteFrame(conn, sealed)
//
// Establish exchanges handshake messages as length-prefixed frames (see
// WriteFrame and ReadFrame), the same framing the worker stream port uses for
// transport messages.
package noise
