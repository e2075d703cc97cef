package ringhook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Hub is an in-process `Bus`: every `HubPeer` joined on the same `Hub` can
// talk to the others.
//
// Delivery is synchronous, in the goroutine of the emitter, and reaches every
// connected peer including the emitter itself.
type Hub struct {
	logger *slog.Logger

	peers map[string]*HubPeer
	lk    sync.Mutex
}

// HubPeer is the handle of one participant of a `Hub`.
type HubPeer struct {
	hub    *Hub
	name   string
	logger *slog.Logger

	router         *Router
	ready          Signal[struct{}]
	disconnections Signal[Peer]
	errCh          chan error

	connected bool
	lk        sync.Mutex
}

var _ Bus = (*HubPeer)(nil)

// NewHub creates an empty hub, logging with handler or `slog.Default()`
// when nil.
func NewHub(handler slog.Handler) *Hub {
	logger := slog.Default()
	if handler != nil {
		logger = slog.New(handler)
	}
	return &Hub{
		logger: logger,
		peers:  make(map[string]*HubPeer),
	}
}

// Join registers a new peer. It does not receive anything until
// `HubPeer.Connect` is called.
func (hub *Hub) Join(name string) (*HubPeer, error) {
	if !ValidateName(name) {
		return nil, ErrNameInvalid
	}

	hub.lk.Lock()
	defer hub.lk.Unlock()
	if _, has := hub.peers[name]; has {
		return nil, fmt.Errorf("%w: %s", ErrNameConflict, name)
	}

	peer := &HubPeer{
		hub:    hub,
		name:   name,
		logger: hub.logger.With(LabelPeerName.L(name)),
		router: NewRouter(),
		errCh:  make(chan error, 16),
	}
	hub.peers[name] = peer
	return peer, nil
}

// Peers returns the names of connected peers, sorted.
func (hub *Hub) Peers() []string {
	hub.lk.Lock()
	defer hub.lk.Unlock()
	names := make([]string, 0, len(hub.peers))
	for name, peer := range hub.peers {
		if peer.isConnected() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// connected returns connected peers in name order, so that tests get a
// deterministic delivery order.
func (hub *Hub) connected() []*HubPeer {
	hub.lk.Lock()
	defer hub.lk.Unlock()
	peers := make([]*HubPeer, 0, len(hub.peers))
	for _, peer := range hub.peers {
		if peer.isConnected() {
			peers = append(peers, peer)
		}
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].name < peers[j].name
	})
	return peers
}

func (p *HubPeer) Name() string {
	return p.name
}

// Connect makes the peer reachable and fires its readiness signal.
// Connecting an already connected peer fires readiness again.
func (p *HubPeer) Connect() {
	p.lk.Lock()
	p.connected = true
	p.lk.Unlock()
	p.logger.Debug("peer connected")
	p.ready.Fire(struct{}{})
}

// Disconnect makes the peer unreachable and notifies the other connected
// peers. Its subscriptions are kept for a later `Connect`.
func (p *HubPeer) Disconnect() {
	p.lk.Lock()
	if !p.connected {
		p.lk.Unlock()
		return
	}
	p.connected = false
	p.lk.Unlock()
	p.logger.Debug("peer disconnected")

	for _, other := range p.hub.connected() {
		other.disconnections.Fire(Peer{Name: p.name})
	}
}

// Leave disconnects the peer and frees its name.
func (p *HubPeer) Leave() {
	p.Disconnect()
	p.hub.lk.Lock()
	delete(p.hub.peers, p.name)
	p.hub.lk.Unlock()
}

func (p *HubPeer) isConnected() bool {
	p.lk.Lock()
	defer p.lk.Unlock()
	return p.connected
}

func (p *HubPeer) Emit(event string, payload []byte) error {
	if !p.isConnected() {
		return ErrNotConnected
	}
	for _, peer := range p.hub.connected() {
		peer.router.Dispatch(Message{
			Source:  p.name,
			Event:   event,
			Payload: payload,
		})
	}
	return nil
}

func (p *HubPeer) Request(ctx context.Context, event string, payload []byte, collect func(Response)) error {
	if !p.isConnected() {
		return ErrNotConnected
	}
	for _, peer := range p.hub.connected() {
		if ctx.Err() != nil {
			return nil
		}
		peer.router.Dispatch(Message{
			Source:  p.name,
			Event:   event,
			Payload: payload,
			Reply:   replyOnce(ctx, peer.name, collect),
		})
	}
	return nil
}

func replyOnce(ctx context.Context, from string, collect func(Response)) func([]byte) error {
	var once sync.Once
	return func(payload []byte) error {
		err := ErrReplied
		once.Do(func() {
			err = nil
			if ctx.Err() != nil {
				err = ctx.Err()
				return
			}
			collect(Response{From: from, Payload: payload})
		})
		return err
	}
}

func (p *HubPeer) Subscribe(pattern string, h Handler) func() {
	return p.router.Subscribe(pattern, h)
}

func (p *HubPeer) OnReady(fn func()) func() {
	cancel := p.ready.Subscribe(func(struct{}) { fn() })
	if p.isConnected() {
		fn()
	}
	return cancel
}

func (p *HubPeer) OnDisconnected(fn func(Peer)) func() {
	return p.disconnections.Subscribe(fn)
}

func (p *HubPeer) ReportError(err error) {
	p.logger.Error("peer reported an error", LabelError.L(err))
	select {
	case p.errCh <- err:
	default:
		p.logger.Warn("error channel is full, dropping error")
	}
}

// Errors exposes errors passed to `ReportError`.
func (p *HubPeer) Errors() <-chan error {
	return p.errCh
}
