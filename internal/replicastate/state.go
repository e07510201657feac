// Package replicastate holds the single in-memory structure described
// in spec section 4.2 (component C2): the command log, the key/value
// dictionary, the pre-accept reply buffers, the accept counters, the
// dependency graph, and the executed set. Per design note 9 ("prefer a
// message-passing design where the state lives inside the dispatcher
// task... eliminating the lock entirely"), Replica carries no mutex:
// it is created and mutated exclusively by the internal/consensus
// dispatcher goroutine. Method names carry no "...Unsafe" suffix; the
// single-goroutine-only discipline is stated here and on Derive.
package replicastate

import (
	"sort"

	"github.com/bdeggleston/kboxepaxos/internal/depgraph"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

// State is the command state from spec section 3: strictly monotonic,
// PreAccepted < Accepted < Committed.
type State int

const (
	PreAccepted State = iota
	Accepted
	Committed
)

func (s State) String() string {
	switch s {
	case PreAccepted:
		return "PreAccepted"
	case Accepted:
		return "Accepted"
	case Committed:
		return "Committed"
	default:
		return "Unknown"
	}
}

// LogEntry is the (request, seq, deps, state) tuple keyed by instance.
type LogEntry struct {
	Request wire.ClientRequest
	Seq     wire.Seq
	Deps    map[wire.InstanceID]struct{}
	Status  State
}

// PreAcceptReply is one entry of a leader's per-instance pre-accept
// reply buffer: the (seq, deps-map) a peer sent back.
type PreAcceptReply struct {
	Seq  wire.Seq
	Deps map[wire.InstanceID]bool
}

// Replica is the full state store for one EPaxos replica process.
type Replica struct {
	Self    wire.ReplicaID
	N       int
	counter uint64

	log      map[wire.InstanceID]*LogEntry
	dict     map[string]string
	Graph    *depgraph.Graph[wire.InstanceID]
	preAccept map[wire.InstanceID][]PreAcceptReply
	acceptCnt map[wire.InstanceID]int
	executed  map[wire.InstanceID]struct{}
}

// New creates an empty replica state store for replica id self out of
// n total replicas.
func New(self wire.ReplicaID, n int) *Replica {
	return &Replica{
		Self:      self,
		N:         n,
		log:       make(map[wire.InstanceID]*LogEntry),
		dict:      make(map[string]string),
		Graph:     depgraph.New[wire.InstanceID](),
		preAccept: make(map[wire.InstanceID][]PreAcceptReply),
		acceptCnt: make(map[wire.InstanceID]int),
		executed:  make(map[wire.InstanceID]struct{}),
	}
}

// NextInstance allocates the next instance id this replica leads.
// Only R assigns (R, *); the counter starts at 1 and is strictly
// increasing, satisfying invariant 4.
func (r *Replica) NextInstance() wire.InstanceID {
	r.counter++
	return wire.InstanceID{Replica: r.Self, Counter: r.counter}
}

// Entry returns the log entry for instance, or nil if unknown.
func (r *Replica) Entry(instance wire.InstanceID) *LogEntry {
	return r.log[instance]
}

// Status reports the stored state of instance, if known.
func (r *Replica) Status(instance wire.InstanceID) (State, bool) {
	e, ok := r.log[instance]
	if !ok {
		return 0, false
	}
	return e.Status, true
}

// Read returns the dictionary's current value for key.
func (r *Replica) Read(key string) (string, bool) {
	v, ok := r.dict[key]
	return v, ok
}

// Write sets key to value and returns the value it replaced, if any.
func (r *Replica) Write(key, value string) (previous string, hadPrevious bool) {
	previous, hadPrevious = r.dict[key]
	r.dict[key] = value
	return previous, hadPrevious
}

// Dict returns a sorted (key, value) snapshot, used by SaveState.
func (r *Replica) Dict() [][2]string {
	keys := make([]string, 0, len(r.dict))
	for k := range r.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, r.dict[k]})
	}
	return out
}

// MarkExecuted records instance as applied. Execution must only ever
// mark an instance once (invariant 5); callers check IsExecuted first.
func (r *Replica) MarkExecuted(instance wire.InstanceID) {
	r.executed[instance] = struct{}{}
}

// IsExecuted reports whether instance has already been applied.
func (r *Replica) IsExecuted(instance wire.InstanceID) bool {
	_, ok := r.executed[instance]
	return ok
}

// ExecutedInstances returns a sorted snapshot of the executed set,
// used by SaveState.
func (r *Replica) ExecutedInstances() []wire.InstanceID {
	out := make([]wire.InstanceID, 0, len(r.executed))
	for i := range r.executed {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// LogByReplica groups known instance numbers by the replica that
// leads them, for the SaveState table (one row per replica id).
func (r *Replica) LogByReplica() map[wire.ReplicaID][]uint64 {
	out := make(map[wire.ReplicaID][]uint64)
	for iid := range r.log {
		out[iid.Replica] = append(out[iid.Replica], iid.Counter)
	}
	for rid := range out {
		sort.Slice(out[rid], func(i, j int) bool { return out[rid][i] < out[rid][j] })
	}
	return out
}

func depSet(deps []wire.InstanceID) map[wire.InstanceID]struct{} {
	out := make(map[wire.InstanceID]struct{}, len(deps))
	for _, d := range deps {
		out[d] = struct{}{}
	}
	return out
}

// SortedDepKeys returns a deterministically sorted slice of an entry's
// dependency set, used whenever deps need to go out on the wire.
func SortedDepKeys(deps map[wire.InstanceID]struct{}) []wire.InstanceID {
	out := make([]wire.InstanceID, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
