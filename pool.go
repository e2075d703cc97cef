package ringhook

import (
	"log/slog"
	"sync"

	"github.com/raskyld/ringhook/pkg/wire"
)

// ConfigAddress is the config key holding the address of a node when its
// config was computed by default.
const ConfigAddress = "address"

// Node is the description of a registered worker.
//
// Nodes stored in a pool are never mutated: callers MUST treat the Config of
// a returned node as read-only.
type Node struct {
	Name   string
	Config map[string]any
}

// Address returns the "address" config value, if any.
func (n *Node) Address() string {
	addr, _ := n.Config[ConfigAddress].(string)
	return addr
}

func (n *Node) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("name", n.Name)}
	if addr := n.Address(); addr != "" {
		attrs = append(attrs, slog.String("address", addr))
	}
	return slog.GroupValue(attrs...)
}

func (n *Node) announcement() *wire.Announcement {
	return &wire.Announcement{
		Name:   n.Name,
		Config: n.Config,
	}
}

func nodeFromAnnouncement(a *wire.Announcement) *Node {
	config := a.Config
	if config == nil {
		config = map[string]any{}
	}
	return &Node{
		Name:   a.Name,
		Config: config,
	}
}

// nodePool is the membership of a `RingClient`.
//
// byName, ordered and the members of ring always hold the same names.
type nodePool struct {
	byName  map[string]*Node
	ordered []*Node
	// cursor is the last index used by round robin, -1 before the first.
	cursor int
	ring   *HashRing

	lk sync.Mutex
}

func newNodePool() *nodePool {
	p := &nodePool{}
	p.resetLocked()
	return p
}

func (p *nodePool) reset() {
	p.lk.Lock()
	defer p.lk.Unlock()
	p.resetLocked()
}

func (p *nodePool) resetLocked() {
	p.byName = make(map[string]*Node)
	p.ordered = nil
	p.cursor = -1
	p.ring = NewHashRing()
}

// add stores node unless its name is already known.
func (p *nodePool) add(node *Node) (added bool, size int) {
	p.lk.Lock()
	defer p.lk.Unlock()
	if _, has := p.byName[node.Name]; has {
		return false, len(p.ordered)
	}
	p.ordered = append(p.ordered, node)
	p.byName[node.Name] = node
	p.ring.Add(node.Name)
	return true, len(p.ordered)
}

// remove drops the node named name, keeping the order of the others.
// The cursor is left alone, it wraps on the next access.
func (p *nodePool) remove(name string) (removed bool, size int) {
	p.lk.Lock()
	defer p.lk.Unlock()
	if _, has := p.byName[name]; !has {
		return false, len(p.ordered)
	}
	for i, node := range p.ordered {
		if node.Name == name {
			p.ordered = append(p.ordered[:i], p.ordered[i+1:]...)
			break
		}
	}
	delete(p.byName, name)
	p.ring.Remove(name)
	return true, len(p.ordered)
}

// get picks a node by consistent hashing of key, or in round robin when key
// is empty. It returns nil without error when the pool is empty.
func (p *nodePool) get(key string) (*Node, error) {
	p.lk.Lock()
	defer p.lk.Unlock()
	if len(p.ordered) == 0 {
		return nil, nil
	}

	if key != "" {
		name, err := p.ring.Locate(key)
		if err != nil {
			return nil, ErrNoNodeForKey
		}
		node, has := p.byName[name]
		if !has {
			return nil, ErrNoNodeForKey
		}
		return node, nil
	}

	p.cursor++
	if p.cursor >= len(p.ordered) {
		p.cursor = 0
	}
	return p.ordered[p.cursor], nil
}

func (p *nodePool) snapshot() []Node {
	p.lk.Lock()
	defer p.lk.Unlock()
	nodes := make([]Node, len(p.ordered))
	for i, node := range p.ordered {
		nodes[i] = *node
	}
	return nodes
}

func (p *nodePool) len() int {
	p.lk.Lock()
	defer p.lk.Unlock()
	return len(p.ordered)
}
