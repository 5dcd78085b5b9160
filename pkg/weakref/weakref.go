// Package weakref provides a non-owning handle whose target can be
// explicitly expired by its owner. Holders check liveness on every
// access instead of keeping the target alive.
package weakref

import "sync"

type Ref[T any] struct {
	mu     sync.RWMutex
	target T
	alive  bool
}

func New[T any](target T) *Ref[T] {
	return &Ref[T]{target: target, alive: true}
}

// Get returns the target and true while the ref has not been released.
func (r *Ref[T]) Get() (T, bool) {
	if r == nil {
		var zero T
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.target, r.alive
}

func (r *Ref[T]) Alive() bool {
	_, ok := r.Get()
	return ok
}

// Release expires the ref for every holder. Calling it more than once is fine.
func (r *Ref[T]) Release() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	r.target = zero
	r.alive = false
}
