package engine

import "sync"

// slot is a single-entry mailbox. put overwrites an unconsumed value and
// hands it back; take blocks until a value arrives or the slot is
// closed.
type slot[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  *T
	closed bool
}

func newSlot[T any]() *slot[T] {
	s := &slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// put stores v and returns the unconsumed value it replaced, if any.
// Values put after close are discarded.
func (s *slot[T]) put(v *T) (replaced *T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	replaced = s.value
	s.value = v
	s.cond.Signal()
	return replaced
}

// take returns nil once the slot is closed.
func (s *slot[T]) take() *T {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.value == nil && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil
	}
	v := s.value
	s.value = nil
	return v
}

func (s *slot[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.value = nil
	s.cond.Broadcast()
}
