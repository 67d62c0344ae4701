// Package event provides ordered callback registries with disposers
package event

import (
	"sync"

	"github.com/mbeoliero/kit/log"
)

// Set holds registered callbacks in registration order. The zero value is ready to use.
type Set[T any] struct {
	mu       sync.RWMutex
	nextId   uint64
	order    []uint64
	handlers map[uint64]func(T)
}

// Add registers fn and returns a disposer removing it
func (s *Set[T]) Add(fn func(T)) func() {
	s.mu.Lock()
	if s.handlers == nil {
		s.handlers = make(map[uint64]func(T))
	}
	s.nextId++
	id := s.nextId
	s.handlers[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Set[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.handlers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// Emit calls every handler synchronously. A panicking handler does not stop the others.
func (s *Set[T]) Emit(v T) {
	s.mu.RLock()
	fns := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.handlers[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		callHandler(fn, v)
	}
}

// Len returns the number of registered handlers
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func callHandler[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("handler panic: %v", r)
		}
	}()
	fn(v)
}
