package ringhook

import (
	"sort"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// Router is the subscription table of a bus peer.
//
// Patterns are either exact event names or prefixes terminated by `*`.
// Both are stored in a radix tree keyed by the pattern without its `*`,
// so matching an event only walks the path of that event name.
type Router struct {
	lk     sync.RWMutex
	tree   *radix.Tree
	nextID uint64
}

type subscription struct {
	id     uint64
	prefix bool
	h      Handler
}

func NewRouter() *Router {
	return &Router{
		tree: radix.New(),
	}
}

// Subscribe adds h under pattern and returns a function removing it.
func (r *Router) Subscribe(pattern string, h Handler) (cancel func()) {
	key, prefix := strings.CutSuffix(pattern, "*")

	r.lk.Lock()
	defer r.lk.Unlock()
	id := r.nextID
	r.nextID++

	var subs []*subscription
	if existing, ok := r.tree.Get(key); ok {
		subs = existing.([]*subscription)
	}
	subs = append(subs, &subscription{id: id, prefix: prefix, h: h})
	r.tree.Insert(key, subs)

	return func() {
		r.lk.Lock()
		defer r.lk.Unlock()
		existing, ok := r.tree.Get(key)
		if !ok {
			return
		}
		kept := make([]*subscription, 0, len(existing.([]*subscription)))
		for _, sub := range existing.([]*subscription) {
			if sub.id != id {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			r.tree.Delete(key)
		} else {
			r.tree.Insert(key, kept)
		}
	}
}

// Match returns the handlers subscribed to event, oldest subscription first.
func (r *Router) Match(event string) []Handler {
	r.lk.RLock()
	var matched []*subscription
	r.tree.WalkPath(event, func(key string, val interface{}) bool {
		for _, sub := range val.([]*subscription) {
			if sub.prefix || key == event {
				matched = append(matched, sub)
			}
		}
		return false
	})
	r.lk.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].id < matched[j].id
	})
	handlers := make([]Handler, len(matched))
	for i, sub := range matched {
		handlers[i] = sub.h
	}
	return handlers
}

// Dispatch invokes every handler matching msg.Event and reports whether
// there was any.
func (r *Router) Dispatch(msg Message) bool {
	handlers := r.Match(msg.Event)
	for _, h := range handlers {
		h(msg)
	}
	return len(handlers) > 0
}
