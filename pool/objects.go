package pool

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LeakThreshold is the number of constructions per key above which Alloc logs
// a possible leak.
const LeakThreshold = 4

// Key builds a pool key by joining fields in the given order. Two
// configurations share instances iff their keys are equal.
func Key(fields ...any) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprint(f)
	}
	return strings.Join(parts, "|")
}

type entry[T comparable] struct {
	allocationCount int
	instances       []T
	checkedOut      map[T]struct{}
}

// Objects is a keyed free list of reusable instances.
type Objects[T comparable] struct {
	name    string
	mu      sync.Mutex
	entries map[string]*entry[T]
}

// NewObjects creates an empty pool; name only appears in log entries.
func NewObjects[T comparable](name string) *Objects[T] {
	return &Objects[T]{
		name:    name,
		entries: make(map[string]*entry[T]),
	}
}

func (p *Objects[T]) entry(key string) *entry[T] {
	e, ok := p.entries[key]
	if !ok {
		e = &entry[T]{checkedOut: make(map[T]struct{})}
		p.entries[key] = e
	}
	return e
}

// Alloc checks out an instance for key. A free instance is reinitialized with
// reinit; otherwise construct builds a new one and the key's allocation count
// grows. reinit may be nil when instances need no reset.
func (p *Objects[T]) Alloc(key string, construct func() (T, error), reinit func(T) error) (T, error) {
	var zero T
	if construct == nil {
		return zero, ErrNilConstructor
	}

	p.mu.Lock()
	e := p.entry(key)
	if n := len(e.instances); n > 0 {
		instance := e.instances[n-1]
		e.instances = e.instances[:n-1]
		e.checkedOut[instance] = struct{}{}
		p.mu.Unlock()

		if reinit != nil {
			if err := reinit(instance); err != nil {
				p.mu.Lock()
				delete(e.checkedOut, instance)
				p.mu.Unlock()
				logrus.WithFields(logrus.Fields{
					"function": "Objects.Alloc",
					"pool":     p.name,
					"key":      key,
					"error":    err.Error(),
				}).Error("Reinitialization of pooled instance failed")
				return zero, fmt.Errorf("reinitialize %s instance: %w", p.name, err)
			}
		}

		logrus.WithFields(logrus.Fields{
			"function": "Objects.Alloc",
			"pool":     p.name,
			"key":      key,
		}).Debug("Reused pooled instance")
		return instance, nil
	}
	p.mu.Unlock()

	instance, err := construct()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Objects.Alloc",
			"pool":     p.name,
			"key":      key,
			"error":    err.Error(),
		}).Error("Construction of pooled instance failed")
		return zero, fmt.Errorf("construct %s instance: %w", p.name, err)
	}

	p.mu.Lock()
	e.allocationCount++
	count := e.allocationCount
	e.checkedOut[instance] = struct{}{}
	p.mu.Unlock()

	fields := logrus.Fields{
		"function":         "Objects.Alloc",
		"pool":             p.name,
		"key":              key,
		"allocation_count": count,
	}
	if count > LeakThreshold {
		logrus.WithFields(fields).Warn("Possible memory leak: too many pooled instances constructed for key")
	} else {
		logrus.WithFields(fields).Debug("Constructed new pooled instance")
	}
	return instance, nil
}

// Free returns instance to the free list of key.
func (p *Objects[T]) Free(key string, instance T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s key %q unknown", ErrNotCheckedOut, p.name, key)
	}
	if _, ok := e.checkedOut[instance]; !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Objects.Free",
			"pool":     p.name,
			"key":      key,
		}).Error("Free of instance not checked out under key")
		return fmt.Errorf("%w: %s key %q", ErrNotCheckedOut, p.name, key)
	}
	delete(e.checkedOut, instance)
	e.instances = append(e.instances, instance)
	return nil
}

// AllocationCount reports how many instances were constructed for key.
func (p *Objects[T]) AllocationCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		return e.allocationCount
	}
	return 0
}

// FreeCount reports how many instances of key are waiting on the free list.
func (p *Objects[T]) FreeCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		return len(e.instances)
	}
	return 0
}

// Drain removes every free instance and hands it to fn, typically to release
// native resources at shutdown. Checked-out instances are untouched.
func (p *Objects[T]) Drain(fn func(key string, instance T)) {
	p.mu.Lock()
	drained := make(map[string][]T, len(p.entries))
	for key, e := range p.entries {
		drained[key] = e.instances
		e.instances = nil
	}
	p.mu.Unlock()

	for key, instances := range drained {
		for _, instance := range instances {
			fn(key, instance)
		}
	}
}
