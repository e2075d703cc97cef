// Package fabric provides a `ringhook.Bus` spanning several processes, on top
// of the serf gossip protocol.
//
// Serf gives us everything the ring needs from a transport:
//
// * user events, used for broadcasts (`Fabric.Emit`),
// * queries, which collect one response per member (`Fabric.Request`),
// * member leave and failure detection (`Fabric.OnDisconnected`).
package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/serf/serf"
	"github.com/raskyld/ringhook"
	"github.com/raskyld/ringhook/pkg/wire"
)

type Fabric struct {
	config config
	logger *slog.Logger
	msink  metrics.MetricSink

	// gossip
	serf          *serf.Serf
	eventCh       chan serf.Event
	localNodeName string

	// bus
	router         *ringhook.Router
	ready          ringhook.Signal[struct{}]
	disconnections ringhook.Signal[ringhook.Peer]
	errCh          chan error
	joined         bool
	// departed holds remote peers signalled as disconnected, until they
	// join again.
	departed map[string]struct{}

	// synchronisation
	lk sync.Mutex

	// 2-phase close:
	// phase 1: shutdown notification, graceful termination.
	// phase 2: drop, all resources are freed.
	shutdown   bool
	shutdownCh chan struct{}
	dropCh     chan struct{}
	wg         sync.WaitGroup
}

var _ ringhook.Bus = (*Fabric)(nil)

func Create(opts ...Option) (*Fabric, error) {
	fb := &Fabric{
		eventCh: make(chan serf.Event, 512),
		router:  ringhook.NewRouter(),
		errCh:   make(chan error, 16),

		departed: make(map[string]struct{}),

		shutdownCh: make(chan struct{}),
		dropCh:     make(chan struct{}),
	}

	// Fine-tune Serf config.
	fb.config.serfCfg = serf.DefaultConfig()
	fb.config.serfCfg.LeavePropagateDelay = 1 * time.Second
	fb.config.serfCfg.LogOutput = nil
	fb.config.serfCfg.MemberlistConfig.ProbeTimeout = 2 * time.Second
	fb.config.serfCfg.QueueDepthWarning = 512
	// We don't do any smart routing decision, we don't need coordinates.
	fb.config.serfCfg.DisableCoordinates = true
	fb.config.serfCfg.ValidateNodeNames = true
	// Ring announcements MUST NOT be merged together, user events are
	// never coalesced, but membership changes can be.
	fb.config.serfCfg.CoalescePeriod = 2 * time.Second
	fb.config.serfCfg.QuiescentPeriod = 500 * time.Millisecond
	fb.config.serfCfg.EventCh = fb.eventCh

	// Run options now that we have a non-nil Serf config.
	for _, opt := range opts {
		err := opt(&fb.config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	// Logging implementations.
	if fb.config.logHandler != nil {
		fb.logger = slog.New(fb.config.logHandler)
		fb.config.serfCfg.Logger = slog.NewLogLogger(fb.config.logHandler, slog.LevelDebug)
	} else {
		fb.logger = slog.Default()
		fb.config.serfCfg.Logger = slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)
	}
	fb.config.serfCfg.MemberlistConfig.Logger = fb.config.serfCfg.Logger

	// Metrics implementations.
	if fb.config.msink == nil {
		fb.config.msink = metrics.Default()
	}
	fb.msink = fb.config.msink

	// Initiate the Serf layer.
	serf, err := serf.Create(fb.config.serfCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	fb.serf = serf
	fb.localNodeName = fb.serf.LocalMember().Name
	fb.logger = fb.logger.With(ringhook.LabelName.L(fb.localNodeName))

	// Handle cluster events.
	fb.wg.Add(1)
	go fb.handleEvents()

	return fb, nil
}

// Name is the name of the local member.
func (fb *Fabric) Name() string {
	return fb.localNodeName
}

// JoinCluster reaches the neighbours and then signals readiness. Without
// neighbours, the fabric is a cluster of one and is ready right away.
func (fb *Fabric) JoinCluster() error {
	fb.lk.Lock()
	if fb.shutdown {
		fb.lk.Unlock()
		return ErrFabricClosed
	}
	if len(fb.config.neighbours) > 0 {
		joined, err := fb.serf.Join(fb.config.neighbours, true)
		if err != nil {
			fb.lk.Unlock()
			return fmt.Errorf("%w: %w", ErrJoinCluster, err)
		}
		fb.logger.Info("cluster joined")
		if len(fb.config.neighbours) != joined {
			fb.logger.Warn(
				"not all neighbours are reachable",
				"joined", joined,
				"expected", len(fb.config.neighbours),
			)
		}
	}
	fb.joined = true
	fb.lk.Unlock()

	fb.ready.Fire(struct{}{})
	return nil
}

func (fb *Fabric) Topology() []serf.Member {
	return fb.serf.Members()
}

func (fb *Fabric) Shutdown() error {
	// Phase 1: Shutdown notify.
	fb.lk.Lock()
	if fb.shutdown {
		fb.lk.Unlock()
		return nil
	}
	fb.shutdown = true
	fb.joined = false
	close(fb.shutdownCh)
	fb.lk.Unlock()

	start := time.Now()
	fb.logger.Info("shutting down...")

	fb.logger.Info("shutdown: leave cluster")
	if err := fb.serf.Leave(); err != nil {
		fb.logger.Warn("shutdown: failed to leave gracefully", ringhook.LabelError.L(err))
	}

	// Phase 2: Drop all resources.
	close(fb.dropCh)
	fb.logger.Info("shutdown: release gossip resources")
	err := fb.serf.Shutdown()

	fb.logger.Info("shutdown: wait for sub-tasks to finish")
	fb.wg.Wait()
	<-fb.serf.ShutdownCh()

	fb.logger.Info("shutdown: completed", ringhook.LabelDuration.L(time.Since(start)))
	return err
}

func (fb *Fabric) isClosed() bool {
	fb.lk.Lock()
	defer fb.lk.Unlock()
	return fb.shutdown
}

func (fb *Fabric) labels() []metrics.Label {
	return slices.Clone(fb.config.metricLabels)
}

// Emit broadcasts a serf user event. The payload is wrapped in an envelope
// so that receivers know who emitted it.
func (fb *Fabric) Emit(event string, payload []byte) error {
	if fb.isClosed() {
		return ErrFabricClosed
	}

	err := fb.serf.UserEvent(event, wire.MarshalEnvelope(fb.localNodeName, payload), false)
	if err != nil {
		return err
	}
	fb.msink.IncrCounterWithLabels(
		MetricEventOutCount,
		1.0,
		append(fb.labels(), ringhook.LabelEvent.M(event)),
	)
	return nil
}

// Request starts a serf query and pumps responses to collect.
//
// The query lasts until ctx is done, or until its deadline which is taken
// from ctx, from `WithQueryTimeout`, or from serf defaults, in that order.
func (fb *Fabric) Request(ctx context.Context, event string, payload []byte, collect func(ringhook.Response)) error {
	if fb.isClosed() {
		return ErrFabricClosed
	}

	// best-effort aligning the timeout of the query
	timeout := fb.config.queryTimeout
	dl, hasDl := ctx.Deadline()
	if hasDl {
		timeout = time.Until(dl)
	}

	res, err := fb.serf.Query(event, payload, &serf.QueryParam{
		Timeout: timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueryInvalid, err)
	}
	fb.msink.IncrCounterWithLabels(
		MetricQueryOutCount,
		1.0,
		append(fb.labels(), ringhook.LabelEvent.M(event)),
	)

	fb.wg.Add(1)
	go func() {
		defer fb.wg.Done()
		defer res.Close()
		for {
			select {
			case nodeResp, ok := <-res.ResponseCh():
				if !ok {
					return
				}
				fb.msink.IncrCounterWithLabels(
					MetricQueryResponseCount,
					1.0,
					append(fb.labels(), ringhook.LabelEvent.M(event)),
				)
				collect(ringhook.Response{
					From:    nodeResp.From,
					Payload: nodeResp.Payload,
				})
			case <-ctx.Done():
				return
			case <-fb.shutdownCh:
				return
			}
		}
	}()

	return nil
}

func (fb *Fabric) Subscribe(pattern string, h ringhook.Handler) func() {
	return fb.router.Subscribe(pattern, h)
}

func (fb *Fabric) OnReady(fn func()) func() {
	cancel := fb.ready.Subscribe(func(struct{}) { fn() })
	fb.lk.Lock()
	joined := fb.joined
	fb.lk.Unlock()
	if joined {
		fn()
	}
	return cancel
}

func (fb *Fabric) OnDisconnected(fn func(ringhook.Peer)) func() {
	return fb.disconnections.Subscribe(fn)
}

func (fb *Fabric) ReportError(err error) {
	fb.logger.Error("component reported an error", ringhook.LabelError.L(err))
	fb.msink.IncrCounterWithLabels(MetricReportedErrorCount, 1.0, fb.labels())
	select {
	case fb.errCh <- err:
	default:
		fb.logger.Warn("error channel is full, dropping error")
	}
}

// Errors exposes errors passed to `ReportError`.
func (fb *Fabric) Errors() <-chan error {
	return fb.errCh
}

func (fb *Fabric) handleEvents() {
	defer fb.wg.Done()
	for {
		var event serf.Event
		select {
		case event = <-fb.eventCh:
		case <-fb.dropCh:
			return
		}

		switch event := event.(type) {
		case serf.MemberEvent:
			fb.handleMemberEvent(event)
		case serf.UserEvent:
			source, payload, err := wire.UnmarshalEnvelope(event.Payload)
			if err != nil {
				fb.msink.IncrCounterWithLabels(MetricEventInErrorCount, 1.0, fb.labels())
				fb.logger.Error("failed to unmarshal an event", ringhook.LabelError.L(fmt.Errorf("%w: %w", ErrInvalidFrame, err)))
				continue
			}
			fb.msink.IncrCounterWithLabels(
				MetricEventInCount,
				1.0,
				append(fb.labels(), ringhook.LabelEvent.M(event.Name)),
			)
			handled := fb.router.Dispatch(ringhook.Message{
				Source:  source,
				Event:   event.Name,
				Payload: payload,
			})
			if !handled {
				fb.logger.Debug("no handler for event", ringhook.LabelEvent.L(event.Name))
			}
		case *serf.Query:
			fb.msink.IncrCounterWithLabels(
				MetricQueryInCount,
				1.0,
				append(fb.labels(), ringhook.LabelEvent.M(event.Name)),
			)
			handled := fb.router.Dispatch(ringhook.Message{
				Source:  event.SourceNode(),
				Event:   event.Name,
				Payload: event.Payload,
				Reply:   event.Respond,
			})
			if !handled {
				fb.logger.Debug("no handler for query", ringhook.LabelEvent.L(event.Name))
			}
		}
	}
}
