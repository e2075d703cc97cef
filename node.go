package ringhook

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/ringhook/pkg/wire"
)

type NodeState uint8

const (
	NodeCreated NodeState = iota
	NodeAwaitingReadiness
	NodeConfiguring
	NodeAdvertising
	NodeFailed
	NodeClosed
)

func (s NodeState) String() string {
	switch s {
	case NodeCreated:
		return "created"
	case NodeAwaitingReadiness:
		return "awaiting_readiness"
	case NodeConfiguring:
		return "configuring"
	case NodeAdvertising:
		return "advertising"
	case NodeFailed:
		return "failed"
	case NodeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RingNode advertises a worker on a `Bus` so that `RingClient`s of the same
// family can route work to it.
type RingNode struct {
	cfg    config
	bus    Bus
	logger *slog.Logger
	labels []metrics.Label

	ctx       context.Context
	cancel    context.CancelCauseFunc
	wg        sync.WaitGroup
	subs      subscriptions
	stopReady func()

	state        NodeState
	configValues map[string]any
	lk           sync.Mutex
}

// NewNode creates a node which starts configuring itself as soon as bus is
// ready.
func NewNode(bus Bus, opts ...Option) (*RingNode, error) {
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
		cfg.name = EventName(cfg.family, "") + "-node"
	}

	rn := &RingNode{
		cfg:    cfg,
		bus:    bus,
		labels: append(cfg.labels(), LabelRole.M("node")),
		state:  NodeAwaitingReadiness,
	}
	rn.logger = cfg.logger().With(
		LabelRole.L("node"),
		LabelFamily.L(cfg.family),
		LabelName.L(cfg.name),
	)
	rn.ctx, rn.cancel = context.WithCancelCause(context.Background())

	if busName := bus.Name(); busName != "" && busName != cfg.name {
		rn.logger.Warn(
			"node name differs from its bus identity, clients will not notice its departure",
			LabelPeerName.L(busName),
		)
	}

	rn.stopReady = bus.OnReady(rn.onReady)
	return rn, nil
}

func (rn *RingNode) Name() string {
	return rn.cfg.name
}

func (rn *RingNode) Family() string {
	return rn.cfg.family
}

func (rn *RingNode) State() NodeState {
	rn.lk.Lock()
	defer rn.lk.Unlock()
	return rn.state
}

// Describe returns what the node advertises. The config is a copy.
// `ErrNotConfigured` is returned until its config is computed.
func (rn *RingNode) Describe() (Node, error) {
	rn.lk.Lock()
	defer rn.lk.Unlock()
	if rn.configValues == nil {
		return Node{}, ErrNotConfigured
	}
	return Node{
		Name:   rn.cfg.name,
		Config: maps.Clone(rn.configValues),
	}, nil
}

// Close stops answering discovery and waits for a pending init to return.
func (rn *RingNode) Close() error {
	rn.lk.Lock()
	if rn.state == NodeClosed {
		rn.lk.Unlock()
		return nil
	}
	rn.state = NodeClosed
	rn.lk.Unlock()

	rn.stopReady()
	rn.cancel(ErrClosed)
	rn.subs.close()
	rn.wg.Wait()
	rn.logger.Debug("node closed")
	return nil
}

func (rn *RingNode) onReady() {
	rn.lk.Lock()
	switch rn.state {
	case NodeAwaitingReadiness:
		rn.state = NodeConfiguring
		rn.wg.Add(1)
		rn.lk.Unlock()
		go rn.configure()
	case NodeAdvertising:
		rn.lk.Unlock()
		// We were reconnected, subscriptions are still there.
		rn.logger.Info("bus ready again, re-announcing")
		rn.advertise()
	default:
		state := rn.state
		rn.lk.Unlock()
		rn.logger.Debug("ignoring readiness", LabelState.L(state))
	}
}

func (rn *RingNode) configure() {
	defer rn.wg.Done()

	values, err := rn.computeConfigValues()
	if err != nil {
		rn.fail(err)
		return
	}

	rn.lk.Lock()
	if rn.state != NodeConfiguring {
		rn.lk.Unlock()
		return
	}
	rn.configValues = maps.Clone(values)
	rn.state = NodeAdvertising
	rn.lk.Unlock()

	rn.advertise()
}

func (rn *RingNode) computeConfigValues() (map[string]any, error) {
	if rn.cfg.nodeInit != nil {
		values, err := rn.cfg.nodeInit(rn.ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInitializationFailed, err)
		}
		if values != nil {
			return values, nil
		}
	}

	if rn.cfg.configValues != nil {
		return rn.cfg.configValues, nil
	}

	addr, found := rn.cfg.probe.ProbeAddress()
	if !found {
		return nil, ErrNoAddressFound
	}
	return map[string]any{ConfigAddress: addr}, nil
}

func (rn *RingNode) fail(err error) {
	rn.lk.Lock()
	if rn.state == NodeClosed {
		rn.lk.Unlock()
		return
	}
	rn.state = NodeFailed
	rn.lk.Unlock()

	rn.logger.Error("node will not advertise", LabelError.L(err))
	rn.cfg.msink.IncrCounterWithLabels(MetricInitErrorCount, 1.0, rn.labels)
	rn.bus.ReportError(err)
}

// advertise makes sure we answer discovery, then announces the node.
func (rn *RingNode) advertise() {
	if rn.ctx.Err() != nil {
		return
	}

	find := EventName(rn.cfg.family, ActionFind)
	rn.subs.ensure(find, func() func() {
		return rn.bus.Subscribe(find, rn.handleFind)
	})

	payload, err := rn.payload()
	if err != nil {
		rn.logger.Error("failed to encode node description", LabelError.L(err))
		return
	}

	event := EventName(rn.cfg.family, ActionNew)
	if err := rn.bus.Emit(event, payload); err != nil {
		rn.logger.Warn("failed to announce node", LabelEvent.L(event), LabelError.L(err))
		return
	}

	rn.cfg.msink.IncrCounterWithLabels(MetricAnnounceCount, 1.0, rn.labels)
	rn.logger.Info("node announced", LabelEvent.L(event))
}

func (rn *RingNode) payload() ([]byte, error) {
	node, err := rn.Describe()
	if err != nil {
		return nil, err
	}
	return rn.cfg.codec.Marshal(node.announcement())
}

func (rn *RingNode) handleFind(msg Message) {
	if msg.Reply == nil {
		rn.logger.Warn("received a find broadcast without reply channel", LabelPeerName.L(msg.Source), LabelError.L(ErrNoReply))
		return
	}

	payload, err := rn.payload()
	if err != nil {
		rn.logger.Error("failed to describe node", LabelError.L(err))
		payload, err = rn.cfg.codec.Marshal(&wire.Announcement{Error: err.Error()})
		if err != nil {
			return
		}
	}

	if err := msg.Reply(payload); err != nil {
		rn.logger.Warn("failed to answer find request", LabelPeerName.L(msg.Source), LabelError.L(err))
		return
	}
	rn.cfg.msink.IncrCounterWithLabels(MetricFindReplyCount, 1.0, rn.labels)
	rn.logger.Debug("answered find request", LabelPeerName.L(msg.Source))
}
