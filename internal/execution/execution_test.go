package execution_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/bdeggleston/kboxepaxos/internal/execution"
	"github.com/bdeggleston/kboxepaxos/internal/replicastate"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

type ExecutionSuite struct {
	suite.Suite
	r *replicastate.Replica
}

func (s *ExecutionSuite) SetupTest() {
	s.r = replicastate.New(1, 3)
}

// TestCommittedChainRunsInSeqOrder mirrors scenario 2 of spec section
// 8: a write then a read of the same key, same leader. The read must
// observe the write's value once both are committed.
func (s *ExecutionSuite) TestCommittedChainRunsInSeqOrder() {
	write := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1", ReqID: "w"}
	_, _, writeIns := s.r.Derive(write, 1, nil, true, wire.InstanceID{})

	read := wire.ClientRequest{Kind: wire.ReqRead, Key: "x", ReqID: "r"}
	_, readDeps, readIns := s.r.Derive(read, 1, nil, true, wire.InstanceID{})
	s.Require().Len(readDeps, 1)

	s.r.ApplyCommit(writeIns, write, 1, nil)
	s.r.ApplyCommit(readIns, read, 2, []wire.InstanceID{writeIns})

	results := execution.Run(s.r)
	s.Require().Len(results, 2)

	byReqID := map[string]execution.Result{}
	for _, res := range results {
		byReqID[res.ReqID] = res
	}

	s.Nil(byReqID["w"].Value, "write of a fresh key has no pre-image")
	s.Require().NotNil(byReqID["r"].Value)
	s.Equal("1", *byReqID["r"].Value)
}

// TestUncommittedDependencyBlocksExecution checks the transitive
// gating spec 9 requires: an SCC is left untouched until every
// dependency it reaches is Committed.
func (s *ExecutionSuite) TestUncommittedDependencyBlocksExecution() {
	write := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1", ReqID: "w"}
	_, _, writeIns := s.r.Derive(write, 1, nil, true, wire.InstanceID{})

	read := wire.ClientRequest{Kind: wire.ReqRead, Key: "x", ReqID: "r"}
	_, _, readIns := s.r.Derive(read, 1, nil, true, wire.InstanceID{})

	// Only the read commits; the write it depends on stays PreAccepted.
	s.r.ApplyCommit(readIns, read, 2, []wire.InstanceID{writeIns})

	results := execution.Run(s.r)
	s.Empty(results)
}

// TestExecutionIsIdempotent re-running Run after nothing new commits
// must not re-deliver the same result.
func (s *ExecutionSuite) TestExecutionIsIdempotent() {
	write := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1", ReqID: "w"}
	_, _, writeIns := s.r.Derive(write, 1, nil, true, wire.InstanceID{})
	s.r.ApplyCommit(writeIns, write, 1, nil)

	first := execution.Run(s.r)
	s.Len(first, 1)

	second := execution.Run(s.r)
	s.Empty(second)
}

// TestMutualCycleExecutesInSeqThenInstanceOrder covers scenario 3: two
// conflicting writes depending on each other; the lower (seq, instance)
// wins the empty pre-image and the later one sees the former's value.
func (s *ExecutionSuite) TestMutualCycleExecutesInSeqThenInstanceOrder() {
	a := wire.InstanceID{Replica: 1, Counter: 1}
	b := wire.InstanceID{Replica: 2, Counter: 1}

	reqA := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "a", ReqID: "a"}
	reqB := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "b", ReqID: "b"}

	s.r.ApplyCommit(a, reqA, 1, []wire.InstanceID{b})
	s.r.ApplyCommit(b, reqB, 1, []wire.InstanceID{a})

	results := execution.Run(s.r)
	s.Require().Len(results, 2)
	s.Nil(results[0].Value)
	s.Require().NotNil(results[1].Value)
	s.Equal(reqA.Value, *results[1].Value)
}

func TestExecutionSuite(t *testing.T) {
	suite.Run(t, new(ExecutionSuite))
}
