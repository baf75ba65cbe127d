package analysis

import (
	"context"
	"errors"
	"sync"
)

// CancellationSource hands out tokens. Cancel supersedes every token handed
// out so far; tokens issued afterwards are live again.
type CancellationSource struct {
	mu          sync.Mutex
	lastID      uint64
	cancelledTo uint64
}

// Token returns a new live token.
func (s *CancellationSource) Token() *CancellationToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return &CancellationToken{source: s, id: s.lastID}
}

// Cancel marks all outstanding tokens cancelled.
func (s *CancellationSource) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelledTo = s.lastID
}

// Supersede cancels every outstanding token and returns a new live one in a
// single step, so of two concurrent callers exactly one keeps a live token.
func (s *CancellationSource) Supersede() *CancellationToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelledTo = s.lastID
	s.lastID++
	return &CancellationToken{source: s, id: s.lastID}
}

func (s *CancellationSource) cancelled(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id <= s.cancelledTo
}

// CancellationToken is polled between analysis steps.
type CancellationToken struct {
	source *CancellationSource
	id     uint64
}

// ID returns the token's sequence number.
func (t *CancellationToken) ID() uint64 {
	return t.id
}

// IsCancelled reports whether the token was superseded. A nil token is
// never cancelled.
func (t *CancellationToken) IsCancelled() bool {
	return t != nil && t.source.cancelled(t.id)
}

// Check returns ErrCancelled once the token is superseded.
func (t *CancellationToken) Check() error {
	if t.IsCancelled() {
		return ErrCancelled
	}
	return nil
}

// checkpoint fails when either ctx is done or token was superseded.
func checkpoint(ctx context.Context, token *CancellationToken) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrCancelled, err)
	}
	return token.Check()
}
