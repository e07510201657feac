// Package topology describes the fixed replica membership a single
// EPaxos process runs against. Dynamic membership is an explicit
// spec non-goal, so unlike the teacher's topology package (which
// tracks a multi-datacenter ring with joins and partitioning) this is
// a flat, fixed-size roster resolved once at startup.
package topology

import "github.com/bdeggleston/kboxepaxos/internal/wire"

// Peer is another replica this process dials and accepts from.
type Peer struct {
	ID   wire.ReplicaID
	Addr string
}

// Roster is this replica's view of the cluster: its own id and
// advertised address, and the N-1 peers.
type Roster struct {
	Self     wire.ReplicaID
	SelfAddr string
	Peers    []Peer
	N        int
}

// PeerQuorum returns the number of PEER replies (excluding this
// replica) required to reach a simple majority of N, per spec 4.4:
// "the buffer holds >= floor(N/2) replies (so together with the
// leader: a simple majority)".
func (r *Roster) PeerQuorum() int {
	return r.N / 2
}
