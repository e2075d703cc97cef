package fabric

import (
	"log/slog"
	"time"

	leg_metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/memberlist"
	"github.com/hashicorp/serf/serf"
)

type config struct {
	serfCfg      *serf.Config
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	neighbours   []string
	queryTimeout time.Duration
}

// Option to pass to `Create`
type Option func(*config) error

// WithListenOn specifies which interface the gossip protocol binds to,
// both UDP and TCP are used on that port.
func WithListenOn(addr string, port int) Option {
	return func(c *config) error {
		c.serfCfg.MemberlistConfig.BindAddr = addr
		c.serfCfg.MemberlistConfig.BindPort = port
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

// WithHostname specifies which hostname should be exposed to other
// peers when joining the cluster. For a well-behaving cluster, the name
// MUST be unique. It is also the name ring nodes advertise by default.
func WithHostname(hostname string) Option {
	return func(c *config) error {
		if hostname != "" {
			c.serfCfg.NodeName = hostname
			c.serfCfg.MemberlistConfig.Name = hostname
		}
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the Fabric.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels

		// memberlist still speaks the armon flavour of go-metrics.
		c.serfCfg.MemberlistConfig.MetricLabels = make([]leg_metrics.Label, len(labels))
		for i, label := range labels {
			c.serfCfg.MemberlistConfig.MetricLabels[i] = leg_metrics.Label{
				Name:  label.Name,
				Value: label.Value,
			}
		}
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// your `Fabric`.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithNeighbours controls which peers are tried initially to Join the
// cluster.
func WithNeighbours(neighbours []string) Option {
	return func(c *config) error {
		c.neighbours = neighbours
		return nil
	}
}

// WithQueryTimeout controls how long replies to a request are collected
// when the request context has no deadline. It defaults to what serf
// computes from the cluster size.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		c.queryTimeout = timeout
		return nil
	}
}

// WithCoalescePeriod controls for how long membership changes are
// batched before being notified. Use 0 to notify them right away.
func WithCoalescePeriod(period time.Duration) Option {
	return func(c *config) error {
		c.serfCfg.CoalescePeriod = period
		if period == 0 {
			c.serfCfg.QuiescentPeriod = 0
		} else if c.serfCfg.QuiescentPeriod > period {
			c.serfCfg.QuiescentPeriod = period
		}
		return nil
	}
}

// WithLocalNetwork tunes the failure detector for peers sharing a host or a
// low-latency network, departures are then noticed in a few hundred
// milliseconds instead of seconds.
func WithLocalNetwork() Option {
	return func(c *config) error {
		local := memberlist.DefaultLocalConfig()
		ml := c.serfCfg.MemberlistConfig
		ml.TCPTimeout = local.TCPTimeout
		ml.IndirectChecks = local.IndirectChecks
		ml.RetransmitMult = local.RetransmitMult
		ml.SuspicionMult = local.SuspicionMult
		ml.PushPullInterval = local.PushPullInterval
		ml.ProbeTimeout = local.ProbeTimeout
		ml.ProbeInterval = local.ProbeInterval
		ml.GossipInterval = local.GossipInterval
		ml.GossipToTheDeadTime = local.GossipToTheDeadTime
		return nil
	}
}
