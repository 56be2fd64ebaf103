package vfs

import (
	gosync "sync"
)

// signal is a multi-subscriber callback registry for one event kind.
// Subscribers are invoked in connect order; each Dir owns an independent
// set of signals, so disconnecting one view never affects another.
type signal[T any] struct {
	mu     gosync.Mutex
	nextID int
	subs   []subscription[T]
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// SignalHandle identifies one connected callback and allows removing it.
type SignalHandle struct {
	disconnect func()
}

// Disconnect removes the callback from its signal. Safe to call more
// than once.
func (h SignalHandle) Disconnect() {
	if h.disconnect != nil {
		h.disconnect()
	}
}

// connect registers fn and returns a handle for later removal.
func (s *signal[T]) connect(fn func(T)) SignalHandle {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscription[T]{id: id, fn: fn})
	s.mu.Unlock()

	return SignalHandle{disconnect: func() {
		s.mu.Lock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}}
}

// emit delivers v to every subscriber in connect order. Callbacks run
// outside the registry lock so they may connect or disconnect freely.
func (s *signal[T]) emit(v T) {
	s.mu.Lock()
	subs := make([]subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}
