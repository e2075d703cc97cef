package ringhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/ringhook/pkg/wire"
)

const DefaultFamily = "default"

// NodeInitFunc prepares a `RingNode` once its bus is ready. It MAY block.
// The config it returns is advertised as-is; when nil, the node falls back to
// `WithConfigValues` or to a probed address.
type NodeInitFunc func(ctx context.Context) (map[string]any, error)

// ClientInitFunc prepares a `RingClient` once its bus is ready, before
// discovery starts. It MAY block.
type ClientInitFunc func(ctx context.Context) error

type config struct {
	family       string
	name         string
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	codec        wire.Codec

	nodeInit     NodeInitFunc
	clientInit   ClientInitFunc
	configValues map[string]any
	probe        AddressProbe
}

// Option to pass to `NewNode` or `NewClient`.
type Option func(*config) error

func newConfig(opts []Option) (config, error) {
	cfg := config{
		family: DefaultFamily,
		codec:  wire.JSONCodec{},
		probe:  InterfaceProbe{},
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return cfg, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}
	if cfg.msink == nil {
		cfg.msink = metrics.Default()
	}
	return cfg, nil
}

func (cfg *config) logger() *slog.Logger {
	if cfg.logHandler != nil {
		return slog.New(cfg.logHandler)
	}
	return slog.Default()
}

// labels are the static metric labels plus the family.
func (cfg *config) labels() []metrics.Label {
	return append(
		[]metrics.Label{LabelFamily.M(cfg.family)},
		cfg.metricLabels...,
	)
}

// WithFamily partitions the event namespace, so that independent rings can
// share one bus. Nodes and clients only see each other within a family.
func WithFamily(family string) Option {
	return func(c *config) error {
		if !ValidateName(family) {
			return ErrNameInvalid
		}
		c.family = family
		return nil
	}
}

// WithName sets the identity of the instance. It defaults to the name of the
// bus peer, or to `<family>-ring-node` / `<family>-ring-client`.
//
// For nodes, the name MUST be the bus identity, otherwise clients cannot
// match disconnect notifications with the node.
func WithName(name string) Option {
	return func(c *config) error {
		if !ValidateName(name) {
			return ErrNameInvalid
		}
		c.name = name
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// the ring.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the ring.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithCodec chooses how descriptions are encoded on the bus.
// Nodes and clients of a family MUST agree on it.
func WithCodec(codec wire.Codec) Option {
	return func(c *config) error {
		if codec == nil {
			return errors.New("codec must not be nil")
		}
		c.codec = codec
		return nil
	}
}

// WithNodeInit sets the init strategy of a `RingNode`.
func WithNodeInit(fn NodeInitFunc) Option {
	return func(c *config) error {
		c.nodeInit = fn
		return nil
	}
}

// WithClientInit sets the init strategy of a `RingClient`.
func WithClientInit(fn ClientInitFunc) Option {
	return func(c *config) error {
		c.clientInit = fn
		return nil
	}
}

// WithConfigValues gives the config a `RingNode` advertises when its init
// strategy does not return one, skipping address probing.
func WithConfigValues(values map[string]any) Option {
	return func(c *config) error {
		c.configValues = maps.Clone(values)
		return nil
	}
}

// WithAddressProbe replaces the default `InterfaceProbe`.
func WithAddressProbe(probe AddressProbe) Option {
	return func(c *config) error {
		if probe == nil {
			return errors.New("address probe must not be nil")
		}
		c.probe = probe
		return nil
	}
}
