package ringhook

import "sync"

// subscriptions tracks what a component subscribed to on its bus, keyed by
// event name, so that running a setup again after a reconnection never
// layers duplicate handlers.
type subscriptions struct {
	cancels map[string]func()
	closed  bool
	lk      sync.Mutex
}

// ensure calls subscribe unless key is already subscribed, and reports
// whether it did.
func (s *subscriptions) ensure(key string, subscribe func() (cancel func())) bool {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.closed {
		return false
	}
	if _, has := s.cancels[key]; has {
		return false
	}
	if s.cancels == nil {
		s.cancels = make(map[string]func())
	}
	s.cancels[key] = subscribe()
	return true
}

func (s *subscriptions) has(key string) bool {
	s.lk.Lock()
	defer s.lk.Unlock()
	_, has := s.cancels[key]
	return has
}

// close cancels every subscription, later calls to ensure are no-ops.
func (s *subscriptions) close() {
	s.lk.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.closed = true
	s.lk.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
