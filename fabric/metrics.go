package fabric

var (
	MetricEventOutCount      = []string{"ring", "fabric", "event", "out", "count"}
	MetricEventInCount       = []string{"ring", "fabric", "event", "in", "count"}
	MetricEventInErrorCount  = []string{"ring", "fabric", "event", "in", "error", "count"}
	MetricQueryOutCount      = []string{"ring", "fabric", "query", "out", "count"}
	MetricQueryInCount       = []string{"ring", "fabric", "query", "in", "count"}
	MetricQueryResponseCount = []string{"ring", "fabric", "query", "response", "count"}
	MetricPeerLeftCount      = []string{"ring", "fabric", "peer", "left", "count"}
	// MetricReadyCount counts readiness signalled again after a peer came
	// back.
	MetricReadyCount         = []string{"ring", "fabric", "ready", "count"}
	MetricReportedErrorCount = []string{"ring", "fabric", "reported", "error", "count"}
)
