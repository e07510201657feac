// Package snapshot implements the operator-facing SaveState dump from
// spec section 6: a human-readable table at id_{R}.txt, one row per
// replica id, columns indexed by instance number, plus a sorted
// dictionary dump and a sorted executed-set dump. It has no library
// analogue anywhere in the retrieval pack (the teacher has no
// equivalent debug dump), so it is built on the standard library's
// text/tabwriter, which is exactly what tabwriter exists for: aligned
// columns of ad hoc text with no schema worth a real serialization
// library.
package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bdeggleston/kboxepaxos/internal/replicastate"
	"github.com/bdeggleston/kboxepaxos/internal/topology"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

// DefaultPath returns the id_{R}.txt filename spec section 6 names.
func DefaultPath(self wire.ReplicaID) string {
	return fmt.Sprintf("id_%d.txt", self)
}

// Write renders the replica's full state to path.
func Write(path string, r *replicastate.Replica, roster *topology.Roster) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	tw := tabwriter.NewWriter(bw, 0, 4, 2, ' ', 0)

	byReplica := r.LogByReplica()
	maxCounter := uint64(0)
	for _, counters := range byReplica {
		if n := len(counters); n > 0 && counters[n-1] > maxCounter {
			maxCounter = counters[n-1]
		}
	}

	for rid := wire.ReplicaID(1); int(rid) <= roster.N; rid++ {
		fmt.Fprintf(tw, "replica %d", rid)
		counters := byReplica[rid]
		idx := 0
		for k := uint64(1); k <= maxCounter; k++ {
			cell := "Empty[...]"
			if idx < len(counters) && counters[idx] == k {
				idx++
				entry := r.Entry(wire.InstanceID{Replica: rid, Counter: k})
				if entry != nil {
					cell = formatEntry(entry)
				}
			}
			fmt.Fprintf(tw, "\t%s", cell)
		}
		fmt.Fprint(tw, "\n")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(bw, "\ndict %s\n", formatDict(r.Dict()))
	fmt.Fprintf(bw, "executed %s\n", formatExecuted(r.ExecutedInstances()))

	return bw.Flush()
}

// formatEntry renders the "{Read|Write}[<key4>, Seq: <s>  Status:
// <st>]" cell spec section 6 specifies, e.g. "Write[x___, Seq: 1
// Status: Committed]" and "Read-[x___, Seq: 2  Status: Committed]".
func formatEntry(e *replicastate.LogEntry) string {
	kind := "Write"
	if e.Request.Kind == wire.ReqRead {
		kind = "Read-"
	}
	key := padKey(e.Request.Key)
	return fmt.Sprintf("%s[%s, Seq: %d  Status: %s]", kind, key, e.Seq, e.Status)
}

// padKey right-pads key to width 4 with underscores, matching the
// worked example's "x___" for key "x".
func padKey(key string) string {
	const width = 4
	for len(key) < width {
		key += "_"
	}
	return key
}

func formatDict(rows [][2]string) string {
	out := "["
	for i, row := range rows {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("(%q,%q)", row[0], row[1])
	}
	return out + "]"
}

func formatExecuted(ids []wire.InstanceID) string {
	out := "["
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id.String()
	}
	return out + "]"
}
