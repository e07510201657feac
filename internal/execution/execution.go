// Package execution implements component C5: walking the dependency
// graph in SCC / seq order, applying committed commands to the
// dictionary, and producing the client replies to dispatch. Spec 9's
// open question flags that some of the teacher's code paths walk each
// SCC once with no transitive "dep not yet Committed" gating; this
// implementation gates on the full transitive closure every time, per
// the spec's resolution ("spec-compliant implementations must gate,
// or lost-update anomalies arise after slow-path commits").
package execution

import (
	"sort"

	"github.com/bdeggleston/kboxepaxos/internal/replicastate"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

// Result is one reply the dispatcher must deliver after a Run.
type Result struct {
	ReplyAddr string
	ReqID     string
	Value     *string
}

// Run walks every strongly connected component of the replica's
// dependency graph in reverse-topological, seq-ascending order and
// applies whatever is newly safe to execute. It is idempotent and
// safe to call after every Commit transition: instances already in
// the executed set are skipped, and an SCC with any not-yet-Committed
// member (transitively) is left untouched for a later call.
func Run(r *replicastate.Replica) []Result {
	var results []Result

	for _, scc := range r.Graph.SCCs() {
		sort.Slice(scc, func(i, j int) bool { return less(scc[i], scc[j], r) })

		if !sccSafe(scc, r) {
			continue
		}

		for _, inst := range scc {
			if r.IsExecuted(inst) {
				continue
			}
			entry := r.Entry(inst)
			if entry == nil || entry.Status != replicastate.Committed {
				continue
			}
			results = append(results, apply(inst, entry, r))
			r.MarkExecuted(inst)
		}
	}

	return results
}

// sccSafe reports whether every member of scc, and everything each
// member transitively depends on, is Committed.
func sccSafe(scc []wire.InstanceID, r *replicastate.Replica) bool {
	for _, inst := range scc {
		if !depsCommitted(inst, r) {
			return false
		}
	}
	return true
}

func depsCommitted(root wire.InstanceID, r *replicastate.Replica) bool {
	seen := map[wire.InstanceID]bool{}
	stack := []wire.InstanceID{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true

		entry := r.Entry(n)
		if entry == nil || entry.Status != replicastate.Committed {
			return false
		}
		for d := range entry.Deps {
			if !seen[d] {
				stack = append(stack, d)
			}
		}
	}
	return true
}

// less orders two instances by seq ascending, tie-broken by instance
// lex order, per spec 4.5 step 2.
func less(a, b wire.InstanceID, r *replicastate.Replica) bool {
	ea, eb := r.Entry(a), r.Entry(b)
	if ea.Seq != eb.Seq {
		return ea.Seq < eb.Seq
	}
	return a.Less(b)
}

func apply(inst wire.InstanceID, entry *replicastate.LogEntry, r *replicastate.Replica) Result {
	req := entry.Request
	switch req.Kind {
	case wire.ReqRead:
		val, ok := r.Read(req.Key)
		res := Result{ReplyAddr: req.ReplyAddr, ReqID: req.ReqID}
		if ok {
			res.Value = &val
		}
		return res
	case wire.ReqWrite:
		prev, had := r.Write(req.Key, req.Value)
		res := Result{ReplyAddr: req.ReplyAddr, ReqID: req.ReqID}
		if had {
			res.Value = &prev
		}
		return res
	default:
		return Result{ReplyAddr: req.ReplyAddr, ReqID: req.ReqID}
	}
}
