// Package state provides observable state containers shared between the
// session components and whatever renders them.
package state

import "sync"

const subscriberBuffer = 16

// Store holds a value of type T and notifies subscribers on every change.
// It is safe for concurrent use.
type Store[T any] struct {
	mu          sync.RWMutex
	value       T
	subscribers map[chan T]struct{}
}

// New creates a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{
		value:       initial,
		subscribers: make(map[chan T]struct{}),
	}
}

// Get returns the current value.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the value and publishes it.
func (s *Store[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.publish(v)
}

// Update replaces the value with fn(current) and publishes the result.
// fn runs under the store lock and must not call back into the store.
func (s *Store[T]) Update(fn func(T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = fn(s.value)
	s.publish(s.value)
}

// Subscribe returns a channel that immediately receives the current value
// and then every subsequent one. Call the returned cancel func when done;
// it closes the channel.
func (s *Store[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, subscriberBuffer)

	s.mu.Lock()
	ch <- s.value
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// Count returns the current number of subscribers.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// publish never blocks. A slow subscriber loses its oldest pending value
// so the latest one is always delivered. Caller holds s.mu.
func (s *Store[T]) publish(v T) {
	for ch := range s.subscribers {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
