package consensus

import "github.com/bdeggleston/kboxepaxos/internal/wire"

// handleCommit is the terminal transition: unconditional upgrade to
// Committed with the carried (seq, deps), then an execution attempt.
// Idempotent against repeated Commit for the same instance; the
// execution engine's executed-set guard makes repeated triggering safe.
func (d *Dispatcher) handleCommit(env *wire.Envelope) {
	cins := *env.Instance
	d.Replica.ApplyCommit(cins, *env.Request, env.Seq, env.Deps)
	d.execute()
}
