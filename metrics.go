package ringhook

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricPoolSize is a gauge of how many nodes a client knows.
	MetricPoolSize             = []string{"ring", "pool", "size"}
	MetricPoolNodeAdded        = []string{"ring", "pool", "node", "added"}
	MetricPoolNodeRemoved      = []string{"ring", "pool", "node", "removed"}
	MetricDiscoveryCount       = []string{"ring", "discovery", "count"}
	MetricDiscoveryReplyErrors = []string{"ring", "discovery", "reply", "error", "count"}
	MetricRouteMiss            = []string{"ring", "route", "miss"}
	MetricAnnounceCount        = []string{"ring", "node", "announce", "count"}
	MetricFindReplyCount       = []string{"ring", "node", "find", "reply", "count"}
	MetricInitErrorCount       = []string{"ring", "init", "error", "count"}
)

type TelemetryLabel string

var (
	LabelError    TelemetryLabel = "error"
	LabelFamily   TelemetryLabel = "family"
	LabelName     TelemetryLabel = "name"
	LabelNode     TelemetryLabel = "node"
	LabelNodeName TelemetryLabel = "node_name"
	LabelPoolSize TelemetryLabel = "pool_size"
	LabelPeer     TelemetryLabel = "peer"
	LabelPeerName TelemetryLabel = "peer_name"
	LabelEvent    TelemetryLabel = "event"
	LabelState    TelemetryLabel = "state"
	LabelRole     TelemetryLabel = "role"
	LabelDuration TelemetryLabel = "duration"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
