// Package strategy runs named, ordered callbacks with per-callback panic
// isolation. A failing or panicking strategy never aborts its siblings.
package strategy

import (
	"fmt"
	"sync"

	"codeberg.org/touchpath/server/internal/logger"
)

// a single named callback; hit reports whether it produced a result
type Func[T any] func(input T) (hit bool, err error)

type entry[T any] struct {
	name string
	fn   Func[T]
}

// ordered collection of named strategies
type Registry[T any] struct {
	mu      sync.RWMutex
	kind    string
	entries []entry[T]
}

// creates a registry; kind labels log lines ("completion_matcher", ...)
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind}
}

// appends a strategy, replacing an existing one with the same name in place
func (r *Registry[T]) Register(name string, fn Func[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.name == name {
			r.entries[i].fn = fn
			return
		}
	}

	r.entries = append(r.entries, entry[T]{name: name, fn: fn})
}

// registered names in execution order
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}

	return names
}

// invokes every strategy; failures are logged and skipped
func (r *Registry[T]) Run(input T) {
	for _, e := range r.snapshot() {
		if _, err := r.call(e, input); err != nil {
			logger.Warn("strategy failed",
				"kind", r.kind,
				"strategy", e.name,
				"error", err,
			)
		}
	}
}

// invokes strategies in order until one reports a hit; returns its name
func (r *Registry[T]) First(input T) (string, bool) {
	for _, e := range r.snapshot() {
		hit, err := r.call(e, input)
		if err != nil {
			logger.Warn("strategy failed",
				"kind", r.kind,
				"strategy", e.name,
				"error", err,
			)
			continue
		}

		if hit {
			return e.name, true
		}
	}

	return "", false
}

func (r *Registry[T]) snapshot() []entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entry[T], len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry[T]) call(e entry[T], input T) (hit bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			hit = false
			err = fmt.Errorf("panic in %s strategy %q: %v", r.kind, e.name, rec)
		}
	}()

	return e.fn(input)
}
