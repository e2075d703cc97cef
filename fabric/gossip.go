package fabric

import (
	"github.com/hashicorp/serf/serf"
	"github.com/raskyld/ringhook"
)

func peerOf(member serf.Member) ringhook.Peer {
	return ringhook.Peer{
		Name: member.Name,
		Addr: member.Addr.String(),
		Port: int(member.Port),
	}
}

// handleMemberEvent turns membership changes into bus signals.
//
// A peer coming back after being signalled as disconnected, e.g. after
// refuting a failure, makes the fabric ready again: ring nodes re-announce
// themselves and ring clients resync, so the peer is routed to again.
func (fb *Fabric) handleMemberEvent(event serf.MemberEvent) {
	rejoined := false
	for _, member := range event.Members {
		peer := peerOf(member)
		switch event.Type {
		case serf.EventMemberJoin:
			fb.logger.Info("peer joined cluster", ringhook.LabelPeer.L(peer))
			if fb.rejoined(member.Name) {
				rejoined = true
			}
		case serf.EventMemberUpdate:
			fb.logger.Info("peer updated", ringhook.LabelPeer.L(peer))
		case serf.EventMemberLeave, serf.EventMemberFailed:
			if member.Name == fb.localNodeName {
				continue
			}
			fb.logger.Info(
				"peer left cluster",
				ringhook.LabelPeer.L(peer),
				"reason", event.Type.String(),
			)
			fb.msink.IncrCounterWithLabels(
				MetricPeerLeftCount,
				1.0,
				append(fb.labels(), ringhook.LabelEvent.M(event.Type.String())),
			)
			fb.lk.Lock()
			fb.departed[member.Name] = struct{}{}
			fb.lk.Unlock()
			fb.disconnections.Fire(peer)
		case serf.EventMemberReap:
			fb.logger.Debug("peer reaped", ringhook.LabelPeer.L(peer))
			fb.rejoined(member.Name)
		}
	}

	if rejoined {
		fb.refireReady()
	}
}

// rejoined forgets name from the departed peers and reports whether it
// was one of them.
func (fb *Fabric) rejoined(name string) bool {
	fb.lk.Lock()
	defer fb.lk.Unlock()
	if _, has := fb.departed[name]; !has {
		return false
	}
	delete(fb.departed, name)
	return true
}

// refireReady signals readiness again, off the event loop since ready
// callbacks send queries whose local copy goes through that loop.
func (fb *Fabric) refireReady() {
	fb.lk.Lock()
	joined := fb.joined
	fb.lk.Unlock()
	if !joined {
		return
	}

	fb.msink.IncrCounterWithLabels(MetricReadyCount, 1.0, fb.labels())
	fb.wg.Add(1)
	go func() {
		defer fb.wg.Done()
		fb.logger.Info("peer came back, signalling readiness again")
		fb.ready.Fire(struct{}{})
	}()
}
