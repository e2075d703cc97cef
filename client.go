package ringhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-metrics"
)

type ClientState uint8

const (
	ClientCreated ClientState = iota
	ClientAwaitingReadiness
	ClientInitializing
	ClientDiscovering
	ClientFailed
	ClientClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientCreated:
		return "created"
	case ClientAwaitingReadiness:
		return "awaiting_readiness"
	case ClientInitializing:
		return "initializing"
	case ClientDiscovering:
		return "discovering"
	case ClientFailed:
		return "failed"
	case ClientClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// disconnectKey is the subscription key of the bus disconnect signal, it
// cannot collide with event names since they are validated.
const disconnectKey = "::disconnected"

// RingClient discovers the `RingNode`s of a family and picks one of them for
// each request, see `RingClient.GetNode`.
type RingClient struct {
	cfg    config
	bus    Bus
	logger *slog.Logger
	labels []metrics.Label
	pool   *nodePool

	ctx       context.Context
	cancel    context.CancelCauseFunc
	wg        sync.WaitGroup
	subs      subscriptions
	stopReady func()

	state ClientState
	lk    sync.Mutex
}

// NewClient creates a client which starts discovering nodes as soon as bus is
// ready.
func NewClient(bus Bus, opts ...Option) (*RingClient, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrInvalidCfg)
	}

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if cfg.name == "" {
		cfg.name = bus.Name()
	}
	if cfg.name == "" {
		cfg.name = EventName(cfg.family, "") + "-client"
	}

	rc := &RingClient{
		cfg:    cfg,
		bus:    bus,
		labels: append(cfg.labels(), LabelRole.M("client")),
		pool:   newNodePool(),
		state:  ClientAwaitingReadiness,
	}
	rc.logger = cfg.logger().With(
		LabelRole.L("client"),
		LabelFamily.L(cfg.family),
		LabelName.L(cfg.name),
	)
	rc.ctx, rc.cancel = context.WithCancelCause(context.Background())

	rc.stopReady = bus.OnReady(rc.onReady)
	return rc, nil
}

func (rc *RingClient) Name() string {
	return rc.cfg.name
}

func (rc *RingClient) Family() string {
	return rc.cfg.family
}

func (rc *RingClient) State() ClientState {
	rc.lk.Lock()
	defer rc.lk.Unlock()
	return rc.state
}

// GetNode picks the node a request should go to.
//
// With an empty key, nodes are returned in round robin. Otherwise the node is
// chosen by consistent hashing of the key.
//
// When no node is known yet, GetNode returns nil and no error: callers decide
// whether to retry, queue or fail. `ErrNoNodeForKey` means the hash ring and
// the pool disagree, which should never happen.
func (rc *RingClient) GetNode(key string) (*Node, error) {
	node, err := rc.pool.get(key)
	if err != nil {
		rc.logger.Error("hash ring is out of sync with the pool", LabelError.L(err))
		return nil, err
	}
	if node == nil {
		rc.cfg.msink.IncrCounterWithLabels(MetricRouteMiss, 1.0, rc.labels)
	}
	return node, nil
}

// Nodes returns the known nodes, in arrival order.
func (rc *RingClient) Nodes() []Node {
	return rc.pool.snapshot()
}

// Len returns how many nodes are known.
func (rc *RingClient) Len() int {
	return rc.pool.len()
}

// Resync forgets every known node and broadcasts a new discovery request.
//
// It is only allowed once discovery started: `ErrNotConnected` is returned
// before, `ErrInitializationFailed` after a failed init and `ErrClosed` after
// `Close`.
func (rc *RingClient) Resync() error {
	rc.lk.Lock()
	state := rc.state
	rc.lk.Unlock()

	switch state {
	case ClientDiscovering:
		return rc.initNodes()
	case ClientClosed:
		return ErrClosed
	case ClientFailed:
		return ErrInitializationFailed
	default:
		return fmt.Errorf("%w: client is %s", ErrNotConnected, state)
	}
}

// Close stops listening to the bus and waits for a pending init to return.
// Known nodes are kept, so GetNode keeps answering.
func (rc *RingClient) Close() error {
	rc.lk.Lock()
	if rc.state == ClientClosed {
		rc.lk.Unlock()
		return nil
	}
	rc.state = ClientClosed
	rc.lk.Unlock()

	rc.stopReady()
	rc.cancel(ErrClosed)
	rc.subs.close()
	rc.wg.Wait()
	rc.logger.Debug("client closed")
	return nil
}

func (rc *RingClient) onReady() {
	rc.lk.Lock()
	switch rc.state {
	case ClientAwaitingReadiness:
		rc.state = ClientInitializing
		rc.wg.Add(1)
		rc.lk.Unlock()
		go rc.initialize()
	case ClientDiscovering:
		rc.lk.Unlock()
		// We may have missed announcements and departures while we were
		// away, start over.
		rc.logger.Info("bus ready again, resyncing")
		_ = rc.initNodes()
	default:
		state := rc.state
		rc.lk.Unlock()
		rc.logger.Debug("ignoring readiness", LabelState.L(state))
	}
}

func (rc *RingClient) initialize() {
	defer rc.wg.Done()

	if rc.cfg.clientInit != nil {
		if err := rc.cfg.clientInit(rc.ctx); err != nil {
			rc.fail(fmt.Errorf("%w: %w", ErrInitializationFailed, err))
			return
		}
	}

	rc.lk.Lock()
	if rc.state != ClientInitializing {
		rc.lk.Unlock()
		return
	}
	rc.state = ClientDiscovering
	rc.lk.Unlock()

	if rc.ctx.Err() != nil {
		return
	}
	rc.initClient()
}

func (rc *RingClient) fail(err error) {
	rc.lk.Lock()
	if rc.state == ClientClosed {
		rc.lk.Unlock()
		return
	}
	rc.state = ClientFailed
	rc.lk.Unlock()

	rc.logger.Error("client will not discover nodes", LabelError.L(err))
	rc.cfg.msink.IncrCounterWithLabels(MetricInitErrorCount, 1.0, rc.labels)
	rc.bus.ReportError(err)
}

// initClient listens for announcements and departures, then sweeps for the
// nodes which are already there.
func (rc *RingClient) initClient() {
	newEvent := EventName(rc.cfg.family, ActionNew)
	rc.subs.ensure(newEvent, func() func() {
		return rc.bus.Subscribe(newEvent, rc.handleNew)
	})
	rc.subs.ensure(disconnectKey, func() func() {
		return rc.bus.OnDisconnected(rc.handleDisconnected)
	})

	_ = rc.initNodes()
}

func (rc *RingClient) initNodes() error {
	if rc.ctx.Err() != nil {
		return context.Cause(rc.ctx)
	}

	rc.pool.reset()
	rc.cfg.msink.SetGaugeWithLabels(MetricPoolSize, 0, rc.labels)

	find := EventName(rc.cfg.family, ActionFind)
	if err := rc.bus.Request(rc.ctx, find, nil, rc.handleFindReply); err != nil {
		rc.logger.Error("failed to broadcast discovery request", LabelEvent.L(find), LabelError.L(err))
		return err
	}

	rc.cfg.msink.IncrCounterWithLabels(MetricDiscoveryCount, 1.0, rc.labels)
	rc.logger.Debug("discovery request sent", LabelEvent.L(find))
	return nil
}

func (rc *RingClient) handleFindReply(resp Response) {
	if resp.Err != nil {
		rc.replyError(resp.From, resp.Err)
		return
	}

	ann, err := rc.cfg.codec.Unmarshal(resp.Payload)
	if err != nil {
		rc.replyError(resp.From, err)
		return
	}
	if ann.Error != "" {
		rc.replyError(resp.From, errors.New(ann.Error))
		return
	}

	rc.addNode(nodeFromAnnouncement(ann))
}

func (rc *RingClient) replyError(from string, err error) {
	rc.cfg.msink.IncrCounterWithLabels(MetricDiscoveryReplyErrors, 1.0, rc.labels)
	rc.logger.Warn(
		"error in discovery reply",
		LabelEvent.L(EventName(rc.cfg.family, ActionFind)),
		LabelPeerName.L(from),
		LabelError.L(err),
	)
}

func (rc *RingClient) handleNew(msg Message) {
	ann, err := rc.cfg.codec.Unmarshal(msg.Payload)
	if err != nil {
		rc.logger.Warn("invalid node announcement", LabelPeerName.L(msg.Source), LabelError.L(err))
		return
	}
	if ann.Error != "" {
		rc.logger.Warn("node announced an error", LabelPeerName.L(msg.Source), LabelError.L(ann.Error))
		return
	}
	rc.addNode(nodeFromAnnouncement(ann))
}

func (rc *RingClient) handleDisconnected(peer Peer) {
	rc.removeNode(peer.Name)
}

func (rc *RingClient) addNode(node *Node) {
	added, size := rc.pool.add(node)
	if !added {
		rc.logger.Debug("node already known", LabelNodeName.L(node.Name))
		return
	}
	rc.cfg.msink.IncrCounterWithLabels(MetricPoolNodeAdded, 1.0, rc.labels)
	rc.cfg.msink.SetGaugeWithLabels(MetricPoolSize, float32(size), rc.labels)
	rc.logger.Info("node added", LabelNode.L(node), LabelPoolSize.L(size))
}

func (rc *RingClient) removeNode(name string) {
	removed, size := rc.pool.remove(name)
	if !removed {
		return
	}
	rc.cfg.msink.IncrCounterWithLabels(MetricPoolNodeRemoved, 1.0, rc.labels)
	rc.cfg.msink.SetGaugeWithLabels(MetricPoolSize, float32(size), rc.labels)
	rc.logger.Info("node removed", LabelNodeName.L(name), LabelPoolSize.L(size))
}
