package replicastate

import "github.com/bdeggleston/kboxepaxos/internal/wire"

// interferes implements spec 4.3's interference predicate: two
// requests interfere iff they target the same key and at least one is
// a write. Reads never interfere with reads.
func interferes(a, b wire.ClientRequest) bool {
	if a.Key != b.Key {
		return false
	}
	return a.Kind == wire.ReqWrite || b.Kind == wire.ReqWrite
}

// Derive implements component C3: given an incoming request, a
// proposed seq and deps-with-hints, and whether this replica is the
// command leader for it (or a follower completing a given instance),
// it computes the (seq, deps, instance) triple and inserts the
// resulting PreAccepted entry into the log and dependency graph.
//
// This must only be called from the dispatcher goroutine: it mutates
// the log and graph in place with no locking of its own, matching the
// teacher's getCurrentDepsUnsafe/getNextSeqUnsafe convention of
// "doesn't implement any locking, caller holds the state".
//
// The teacher's version of this method is a placeholder that takes
// every in-progress and committed instance as a dependency ("grab ALL
// instances as dependencies for now"); this replaces that body with
// the real interference-based derivation spec 4.3 requires.
func (r *Replica) Derive(req wire.ClientRequest, cseq wire.Seq, cdeps []wire.DepHint, leader bool, provided wire.InstanceID) (wire.Seq, []wire.DepHint, wire.InstanceID) {
	hints := make(map[wire.InstanceID]bool, len(cdeps))
	for _, d := range cdeps {
		hint := d.Committed
		if !hint {
			if e, ok := r.log[d.Instance]; ok && e.Status != PreAccepted {
				hint = true
			}
		}
		hints[d.Instance] = hint
	}

	// A follower re-deriving an instance already in its log (e.g. a
	// second PreAccept for the same instance) must not treat that
	// instance's own prior entry as something it interferes with;
	// a leader's instance is always freshly allocated below and can
	// never collide with an existing log entry.
	self := provided

	seq := cseq
	for iid, e := range r.log {
		if !leader && iid == self {
			continue
		}
		if !interferes(req, e.Request) {
			continue
		}
		if e.Seq+1 > seq {
			seq = e.Seq + 1
		}
		hints[iid] = e.Status != PreAccepted
	}

	var instance wire.InstanceID
	if leader {
		instance = r.NextInstance()
		r.preAccept[instance] = nil
		r.acceptCnt[instance] = 0
	} else {
		instance = provided
	}

	depKeys := make([]wire.InstanceID, 0, len(hints))
	depsOut := make([]wire.DepHint, 0, len(hints))
	for iid, hint := range hints {
		depKeys = append(depKeys, iid)
		depsOut = append(depsOut, wire.DepHint{Instance: iid, Committed: hint})
	}

	if r.upsertPreAccepted(instance, req, seq, depKeys) {
		r.Graph.SetEdges(instance, depKeys)
	}

	return seq, depsOut, instance
}

// upsertPreAccepted inserts the (req, seq, deps, PreAccepted) entry,
// or merges onto an existing PreAccepted entry, and reports whether it
// did so. An entry that has already advanced to Accepted or Committed
// is left untouched: a PreAccept arriving after the instance has moved
// on is stale and must not regress state (invariant 1), and the
// caller must not update the dep-graph either, or the graph the
// execution engine walks would diverge from the log deps it gates on.
func (r *Replica) upsertPreAccepted(instance wire.InstanceID, req wire.ClientRequest, seq wire.Seq, deps []wire.InstanceID) bool {
	e, exists := r.log[instance]
	if !exists {
		r.log[instance] = &LogEntry{Request: req, Seq: seq, Deps: depSet(deps), Status: PreAccepted}
		return true
	}
	if e.Status != PreAccepted {
		return false
	}
	e.Request = req
	e.Seq = seq
	e.Deps = depSet(deps)
	return true
}
