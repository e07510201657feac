package replicastate

import "github.com/bdeggleston/kboxepaxos/internal/wire"

// ApplyAccept overwrites the entry for instance with (req, seq, deps,
// Accepted). This is an unconditional monotonic upgrade: an instance
// already Committed is never downgraded (spec 4.4, Accept handler).
func (r *Replica) ApplyAccept(instance wire.InstanceID, req wire.ClientRequest, seq wire.Seq, deps []wire.InstanceID) {
	e, exists := r.log[instance]
	if exists && e.Status == Committed {
		return
	}
	if exists {
		e.Request = req
		e.Seq = seq
		e.Deps = depSet(deps)
		e.Status = Accepted
	} else {
		r.log[instance] = &LogEntry{Request: req, Seq: seq, Deps: depSet(deps), Status: Accepted}
	}
	r.Graph.SetEdges(instance, deps)
}

// ApplyCommit unconditionally upgrades the entry for instance to
// Committed with the supplied (seq, deps). Committed is terminal:
// repeated Commit messages for the same instance are idempotent here,
// and the execution engine's own executed-set guard (invariant 5)
// keeps repeated triggering safe.
func (r *Replica) ApplyCommit(instance wire.InstanceID, req wire.ClientRequest, seq wire.Seq, deps []wire.InstanceID) {
	e, exists := r.log[instance]
	if exists {
		e.Request = req
		e.Seq = seq
		e.Deps = depSet(deps)
		e.Status = Committed
	} else {
		r.log[instance] = &LogEntry{Request: req, Seq: seq, Deps: depSet(deps), Status: Committed}
	}
	r.Graph.SetEdges(instance, deps)
}

// RecordPreAcceptReply appends (seq, deps) to instance's pre-accept
// reply buffer and returns the buffer's new length, so the caller can
// compare it against the peer quorum threshold.
func (r *Replica) RecordPreAcceptReply(instance wire.InstanceID, seq wire.Seq, deps []wire.DepHint) int {
	hints := make(map[wire.InstanceID]bool, len(deps))
	for _, d := range deps {
		hints[d.Instance] = d.Committed
	}
	r.preAccept[instance] = append(r.preAccept[instance], PreAcceptReply{Seq: seq, Deps: hints})
	return len(r.preAccept[instance])
}

// PreAcceptReplies returns the buffered replies for instance.
func (r *Replica) PreAcceptReplies(instance wire.InstanceID) []PreAcceptReply {
	return r.preAccept[instance]
}

// IncrementAcceptCounter bumps instance's per-instance accept counter
// and returns its new value. The counter starts at zero (not counting
// the leader's own implicit vote, per spec 9's resolution of that
// ambiguity) and a majority requires >= floor(N/2) peer AcceptOKs.
func (r *Replica) IncrementAcceptCounter(instance wire.InstanceID) int {
	r.acceptCnt[instance]++
	return r.acceptCnt[instance]
}
