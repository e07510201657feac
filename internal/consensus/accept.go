package consensus

import (
	"github.com/bdeggleston/kboxepaxos/internal/replicastate"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

// handleAccept is the follower path for the slow-path branch: an
// unconditional monotonic upgrade to Accepted (never downgrading from
// Committed), then a unicast AcceptOK back to the leader.
func (d *Dispatcher) handleAccept(env *wire.Envelope) {
	req := *env.Request
	cins := *env.Instance
	d.Replica.ApplyAccept(cins, req, env.Seq, env.Deps)
	d.unicast(env.Sender, &wire.Envelope{
		Kind:     wire.KindAcceptOK,
		Request:  &req,
		Seq:      env.Seq,
		Deps:     env.Deps,
		Instance: &cins,
		Sender:   d.selfAddr(),
	})
}

// handleAcceptOK is the leader's slow-path quorum logic: increment the
// per-instance accept counter, and once it reaches a peer quorum
// (majority including the leader) commit and broadcast, unless the
// instance already committed by some other route.
func (d *Dispatcher) handleAcceptOK(env *wire.Envelope) {
	req := *env.Request
	cins := *env.Instance

	cnt := d.Replica.IncrementAcceptCounter(cins)
	if cnt < d.Roster.PeerQuorum() {
		return
	}
	if status, known := d.Replica.Status(cins); known && status == replicastate.Committed {
		return
	}

	d.Replica.ApplyCommit(cins, req, env.Seq, env.Deps)
	d.Metrics.IncrSlowPathCommit()
	d.broadcast(&wire.Envelope{
		Kind:     wire.KindCommit,
		Request:  &req,
		Seq:      env.Seq,
		Deps:     env.Deps,
		Instance: &cins,
		Sender:   d.selfAddr(),
	})
	d.execute()
}
