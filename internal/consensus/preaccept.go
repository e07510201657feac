package consensus

import (
	"github.com/bdeggleston/kboxepaxos/internal/replicastate"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

// handleReceivedRequest is the leader path: a client's ReceivedRequest
// derives (seq, deps, instance) against the leader's own log and
// broadcasts PreAccept to every peer, per spec 4.4.
func (d *Dispatcher) handleReceivedRequest(env *wire.Envelope) {
	req := *env.Request
	seq, deps, instance := d.Replica.Derive(req, 1, nil, true, wire.InstanceID{})
	d.Metrics.IncrPreAcceptLed()
	d.broadcast(&wire.Envelope{
		Kind:     wire.KindPreAccept,
		Request:  &req,
		Seq:      seq,
		DepHints: deps,
		Instance: &instance,
		Sender:   d.selfAddr(),
	})
}

// handlePreAccept is the follower path: derive against this replica's
// own log for the instance the leader proposed, and reply directly to
// the leader's advertised address.
func (d *Dispatcher) handlePreAccept(env *wire.Envelope) {
	req := *env.Request
	cins := *env.Instance
	seq, deps, _ := d.Replica.Derive(req, env.Seq, env.DepHints, false, cins)
	d.unicast(env.Sender, &wire.Envelope{
		Kind:     wire.KindPreAcceptOK,
		Request:  &req,
		Seq:      seq,
		DepHints: deps,
		Instance: &cins,
		Sender:   d.selfAddr(),
	})
}

// handlePreAcceptOK is the leader's quorum logic. Once the reply
// buffer reaches a peer quorum, it decides between fast and slow path
// per spec 4.4. N=3 has a peer quorum of exactly one, so the single
// triggering reply IS the quorum; there is no union to compute and the
// fast path is taken unconditionally, including the open question 9
// notes: the "every dep committed somewhere" check the EPaxos paper
// requires is deliberately skipped on N=3.
func (d *Dispatcher) handlePreAcceptOK(env *wire.Envelope) {
	cins := *env.Instance
	req := *env.Request

	n := d.Replica.RecordPreAcceptReply(cins, env.Seq, env.DepHints)
	quorum := d.Roster.PeerQuorum()
	if n < quorum {
		return
	}

	status, known := d.Replica.Status(cins)
	if !known || status != replicastate.PreAccepted {
		d.Metrics.IncrLateMessage()
		return
	}

	if d.Roster.N == 3 {
		d.commitFastPath(cins, req, env.Seq, hintsToInstances(env.DepHints))
		return
	}

	d.decideN5(cins, req)
}

// decideN5 implements the N=5 union/same computation from spec 4.4.
func (d *Dispatcher) decideN5(cins wire.InstanceID, req wire.ClientRequest) {
	entry := d.Replica.Entry(cins)
	leaderSeq := entry.Seq
	leaderDeps := entry.Deps

	replies := d.Replica.PreAcceptReplies(cins)

	unionSeq := leaderSeq
	same := true
	unionHints := make(map[wire.InstanceID]bool, len(leaderDeps))
	for iid := range leaderDeps {
		unionHints[iid] = false
	}

	for _, rep := range replies {
		if rep.Seq > unionSeq {
			unionSeq = rep.Seq
		}
		if rep.Seq != leaderSeq {
			same = false
		}
		for iid, hint := range rep.Deps {
			if _, known := unionHints[iid]; !known {
				same = false
			}
			unionHints[iid] = unionHints[iid] || hint
		}
	}

	allCommittedSomewhere := true
	for iid, hint := range unionHints {
		if hint {
			continue
		}
		if e := d.Replica.Entry(iid); e != nil && e.Status != replicastate.PreAccepted {
			continue
		}
		allCommittedSomewhere = false
		break
	}

	unionDeps := make([]wire.InstanceID, 0, len(unionHints))
	for iid := range unionHints {
		unionDeps = append(unionDeps, iid)
	}

	if same && allCommittedSomewhere {
		d.commitFastPath(cins, req, unionSeq, unionDeps)
		return
	}

	d.Replica.ApplyAccept(cins, req, unionSeq, unionDeps)
	d.broadcast(&wire.Envelope{
		Kind:     wire.KindAccept,
		Request:  &req,
		Seq:      unionSeq,
		Deps:     unionDeps,
		Instance: &cins,
		Sender:   d.selfAddr(),
	})
}

func (d *Dispatcher) commitFastPath(cins wire.InstanceID, req wire.ClientRequest, seq wire.Seq, deps []wire.InstanceID) {
	d.Replica.ApplyCommit(cins, req, seq, deps)
	d.Metrics.IncrFastPathCommit()
	d.broadcast(&wire.Envelope{
		Kind:     wire.KindCommit,
		Request:  &req,
		Seq:      seq,
		Deps:     deps,
		Instance: &cins,
		Sender:   d.selfAddr(),
	})
	d.execute()
}
