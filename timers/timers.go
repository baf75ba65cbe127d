// Package timers keeps an ordered registry of timeouts on top of a native
// timer primitive. Hosts that throttle or drop native timers (background
// tabs, suspended mobile apps) can call Tick from an independent liveness
// signal, such as playback progress, to fire whatever is overdue.
package timers

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Threshold is the shortest delay that gets a tracked entry. Shorter
// timeouts go straight to the native primitive.
const Threshold = 100 * time.Millisecond

// ID identifies a timeout.
type ID uint64

type entry struct {
	deadline time.Time
	seq      uint64
	fire     func() error
	native   Stopper
}

// Timers is the timeout registry. It is safe for concurrent use; callbacks
// run without the registry lock held and may schedule new timeouts.
type Timers struct {
	tp TimeProvider

	mu       sync.Mutex
	nextID   ID
	seq      uint64
	entries  map[ID]*entry
	natives  map[ID]Stopper
	earliest time.Time
}

// New creates a registry. A nil provider selects RealTimeProvider.
func New(tp TimeProvider) *Timers {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &Timers{
		tp:      tp,
		entries: make(map[ID]*entry),
		natives: make(map[ID]Stopper),
	}
}

// SetTimeout schedules fn to run once after d. Whichever of the native timer
// and Tick reaches the timeout first runs fn; the other does nothing.
func (t *Timers) SetTimeout(fn func() error, d time.Duration) ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID

	var called atomic.Bool
	fire := func() error {
		if !called.CompareAndSwap(false, true) {
			return nil
		}
		t.forget(id)
		return fn()
	}
	native := t.tp.AfterFunc(d, func() { t.fireNative(id, fire) })

	if d < Threshold {
		t.natives[id] = native
		return id
	}

	t.seq++
	deadline := t.tp.Now().Add(d)
	t.entries[id] = &entry{deadline: deadline, seq: t.seq, fire: fire, native: native}
	if t.earliest.IsZero() || deadline.Before(t.earliest) {
		t.earliest = deadline
	}
	return id
}

// ClearTimeout cancels id. Unknown or already fired ids are ignored.
func (t *Timers) ClearTimeout(id ID) {
	t.mu.Lock()
	var native Stopper
	if e, ok := t.entries[id]; ok {
		native = e.native
		delete(t.entries, id)
	} else if n, ok := t.natives[id]; ok {
		native = n
		delete(t.natives, id)
	}
	t.mu.Unlock()

	if native != nil {
		native.Stop()
	}
}

// Tick fires every tracked timeout whose deadline has passed, in ascending
// deadline order with ties kept in scheduling order. All due callbacks run
// even when some fail; the first error is returned.
func (t *Timers) Tick() error {
	now := t.tp.Now()

	t.mu.Lock()
	if len(t.entries) == 0 || now.Before(t.earliest) {
		t.mu.Unlock()
		return nil
	}

	var due []*entry
	var earliest time.Time
	for id, e := range t.entries {
		if !e.deadline.After(now) {
			due = append(due, e)
			delete(t.entries, id)
			continue
		}
		if earliest.IsZero() || e.deadline.Before(earliest) {
			earliest = e.deadline
		}
	}
	t.earliest = earliest
	t.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})

	var first error
	for _, e := range due {
		e.native.Stop()
		if err := e.fire(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Pending reports how many timeouts have not fired or been cleared.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) + len(t.natives)
}

// EarliestDeadline returns a time no later than the earliest tracked
// deadline, or the zero time when nothing is tracked.
func (t *Timers) EarliestDeadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.earliest
}

// forget drops id from the registry. earliest may become stale-low, which
// only costs Tick a scan.
func (t *Timers) forget(id ID) {
	t.mu.Lock()
	delete(t.entries, id)
	delete(t.natives, id)
	if len(t.entries) == 0 {
		t.earliest = time.Time{}
	}
	t.mu.Unlock()
}

func (t *Timers) fireNative(id ID, fire func() error) {
	if err := fire(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Timers.fireNative",
			"timer_id": id,
			"error":    err.Error(),
		}).Error("Timeout callback failed")
	}
}
