package ringhook

import (
	"errors"
	"sort"
	"sync"

	"github.com/lafikl/consistent"
)

// HashRing maps keys onto a dynamic set of members.
//
// The consistent hashing itself is provided by the "consistent" package:
// each member owns several virtual points on a 64-bit ring, and a key belongs
// to the member owning the first point at or after the key hash, wrapping
// around. The assignment is a pure function of the member set and the key,
// so every process holding the same members routes a key the same way.
type HashRing struct {
	members map[string]struct{}
	ring    *consistent.Consistent
	lk      sync.RWMutex
}

func NewHashRing(members ...string) *HashRing {
	r := &HashRing{
		members: make(map[string]struct{}),
		ring:    consistent.New(),
	}
	for _, id := range members {
		r.Add(id)
	}
	return r
}

// Add inserts id with its virtual replicas. Adding a member twice is a no-op.
func (r *HashRing) Add(id string) {
	r.lk.Lock()
	defer r.lk.Unlock()
	if _, has := r.members[id]; has {
		return
	}
	r.members[id] = struct{}{}
	r.ring.Add(id)
}

// Remove drops every point of id. Removing an unknown member is a no-op.
func (r *HashRing) Remove(id string) {
	r.lk.Lock()
	defer r.lk.Unlock()
	if _, has := r.members[id]; !has {
		return
	}
	delete(r.members, id)
	r.ring.Remove(id)
}

// Locate returns the member owning key.
// `ErrEmptyRing` is returned when there is no member.
func (r *HashRing) Locate(key string) (string, error) {
	r.lk.RLock()
	defer r.lk.RUnlock()
	if len(r.members) == 0 {
		return "", ErrEmptyRing
	}
	id, err := r.ring.Get(key)
	if errors.Is(err, consistent.ErrNoHosts) {
		return "", ErrEmptyRing
	}
	return id, err
}

// Members returns the sorted member set.
func (r *HashRing) Members() []string {
	r.lk.RLock()
	defer r.lk.RUnlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *HashRing) Len() int {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return len(r.members)
}
