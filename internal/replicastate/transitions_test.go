package replicastate_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/bdeggleston/kboxepaxos/internal/replicastate"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

type TransitionsSuite struct {
	suite.Suite
	r        *replicastate.Replica
	instance wire.InstanceID
	req      wire.ClientRequest
}

func (s *TransitionsSuite) SetupTest() {
	s.r = replicastate.New(1, 5)
	s.req = wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1"}
	_, _, s.instance = s.r.Derive(s.req, 1, nil, true, wire.InstanceID{})
}

func (s *TransitionsSuite) TestApplyAcceptUpgradesFromPreAccepted() {
	s.r.ApplyAccept(s.instance, s.req, 4, nil)
	status, ok := s.r.Status(s.instance)
	s.True(ok)
	s.Equal(replicastate.Accepted, status)
}

func (s *TransitionsSuite) TestApplyCommitIsTerminal() {
	s.r.ApplyCommit(s.instance, s.req, 4, nil)
	s.r.ApplyAccept(s.instance, s.req, 9, nil)

	status, _ := s.r.Status(s.instance)
	s.Equal(replicastate.Committed, status, "Accept after Commit must not downgrade the instance")
}

func (s *TransitionsSuite) TestAcceptCounterStartsAtZero() {
	s.Equal(1, s.r.IncrementAcceptCounter(s.instance))
	s.Equal(2, s.r.IncrementAcceptCounter(s.instance))
}

func (s *TransitionsSuite) TestPreAcceptReplyBufferGrows() {
	n := s.r.RecordPreAcceptReply(s.instance, 2, []wire.DepHint{{Instance: wire.InstanceID{Replica: 2, Counter: 1}}})
	s.Equal(1, n)
	n = s.r.RecordPreAcceptReply(s.instance, 2, nil)
	s.Equal(2, n)
	s.Len(s.r.PreAcceptReplies(s.instance), 2)
}

func (s *TransitionsSuite) TestExecutedSetGuardsAgainstDoubleExecution() {
	s.False(s.r.IsExecuted(s.instance))
	s.r.MarkExecuted(s.instance)
	s.True(s.r.IsExecuted(s.instance))
}

func TestTransitionsSuite(t *testing.T) {
	suite.Run(t, new(TransitionsSuite))
}
