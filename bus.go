package ringhook

import (
	"context"
	"regexp"
	"slices"
	"sync"
)

const MaxNameLength = 128

var InvalidName = regexp.MustCompile(`[^A-Za-z0-9\-\.]+`)

const (
	ActionNew  = "new"
	ActionFind = "find"
)

// Bus is what a `RingNode` or a `RingClient` needs from a publish/subscribe
// transport. A `Bus` value is the handle of one peer on the transport.
//
// The contract of implementations is:
//
// Handlers and callbacks MAY be invoked from any goroutine, but they MUST NOT
// be invoked while the implementation holds a lock the handler could need
// (handlers emit and subscribe).
//
// Subscriptions MUST survive reconnections: when readiness is signaled
// again, previously registered handlers are still in place.
type Bus interface {
	// Name is the identity of this peer on the bus. It is the name other
	// peers receive in disconnect notifications.
	Name() string

	// Emit broadcasts an event to every peer.
	Emit(event string, payload []byte) error

	// Request broadcasts an event and calls collect once per responder.
	// It returns as soon as the request is dispatched; replies keep coming
	// until ctx is done or the transport gives up on the request.
	Request(ctx context.Context, event string, payload []byte, collect func(Response)) error

	// Subscribe registers h for events named pattern. A pattern ending
	// with `*` matches every event starting with what precedes it.
	Subscribe(pattern string, h Handler) (cancel func())

	// OnReady registers fn to be invoked every time the peer becomes
	// ready. If the peer is already ready, fn is invoked immediately.
	OnReady(fn func()) (cancel func())

	// OnDisconnected registers fn to be invoked when a remote peer leaves.
	OnDisconnected(fn func(Peer)) (cancel func())

	// ReportError surfaces a fatal error of a component using the bus.
	ReportError(err error)
}

// Handler reacts to an inbound `Message`.
type Handler func(Message)

// Message is an event delivered to a `Handler`.
type Message struct {
	// Source is the emitter name, it may be empty if the transport cannot
	// tell.
	Source  string
	Event   string
	Payload []byte

	// Reply answers a request. It is nil for plain broadcasts.
	Reply func(payload []byte) error
}

// Response is what a responder sent back to a `Bus.Request`.
type Response struct {
	From    string
	Payload []byte

	// Err is set when the transport could not deliver this responder's
	// answer.
	Err error
}

// EventName builds the name of a ring event for a family,
// e.g. `cache-ring::find`.
func EventName(family, action string) string {
	if action == "" {
		return family + "-ring"
	}
	return family + "-ring::" + action
}

func ValidateName(name string) bool {
	return name != "" && !InvalidName.MatchString(name) && len(name) <= MaxNameLength
}

// Signal is a set of callbacks fired together.
//
// It is meant for transports implementing `Bus.OnReady` and
// `Bus.OnDisconnected`.
type Signal[T any] struct {
	lk     sync.Mutex
	nextID uint64
	fns    map[uint64]func(T)
}

// Subscribe adds fn to the set. The returned function removes it and is
// safe to call more than once.
func (s *Signal[T]) Subscribe(fn func(T)) (cancel func()) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.fns == nil {
		s.fns = make(map[uint64]func(T))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn
	return func() {
		s.lk.Lock()
		defer s.lk.Unlock()
		delete(s.fns, id)
	}
}

// Fire invokes every callback, in subscription order, outside of the lock.
func (s *Signal[T]) Fire(val T) {
	s.lk.Lock()
	ids := make([]uint64, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.fns[id])
	}
	s.lk.Unlock()

	for _, fn := range fns {
		fn(val)
	}
}

// Len is the number of registered callbacks.
func (s *Signal[T]) Len() int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.fns)
}
