package ringhook

import (
	"log/slog"
)

// Peer is a remote participant of a `Bus`, as reported by disconnect
// notifications. Only Name is guaranteed to be set.
type Peer struct {
	Name string
	Addr string
	Port int
}

func (peer Peer) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("name", peer.Name)}
	if peer.Addr != "" {
		attrs = append(attrs, slog.String("addr", peer.Addr), slog.Int("port", peer.Port))
	}
	return slog.GroupValue(attrs...)
}
