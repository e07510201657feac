package replicastate_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/bdeggleston/kboxepaxos/internal/replicastate"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

// DeriveSuite mirrors the teacher's manager_dependencies_test.go shape:
// one suite, a fresh replica per test via SetupTest.
type DeriveSuite struct {
	suite.Suite
	r *replicastate.Replica
}

func (s *DeriveSuite) SetupTest() {
	s.r = replicastate.New(1, 3)
}

func (s *DeriveSuite) TestFirstWriteHasNoDeps() {
	req := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1"}
	seq, deps, instance := s.r.Derive(req, 1, nil, true, wire.InstanceID{})

	s.Equal(wire.Seq(1), seq)
	s.Empty(deps)
	s.Equal(wire.InstanceID{Replica: 1, Counter: 1}, instance)

	status, ok := s.r.Status(instance)
	s.True(ok)
	s.Equal(replicastate.PreAccepted, status)
}

func (s *DeriveSuite) TestInterferingWriteBumpsSeqAndAddsDep() {
	req1 := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1"}
	_, _, ins1 := s.r.Derive(req1, 1, nil, true, wire.InstanceID{})

	req2 := wire.ClientRequest{Kind: wire.ReqRead, Key: "x"}
	seq2, deps2, ins2 := s.r.Derive(req2, 1, nil, true, wire.InstanceID{})

	s.NotEqual(ins1, ins2)
	s.Equal(wire.Seq(2), seq2)
	s.Require().Len(deps2, 1)
	s.Equal(ins1, deps2[0].Instance)
	s.False(deps2[0].Committed, "PreAccepted dependency should not be hinted committed")
}

func (s *DeriveSuite) TestDisjointKeysDoNotInterfere() {
	req1 := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1"}
	s.r.Derive(req1, 1, nil, true, wire.InstanceID{})

	req2 := wire.ClientRequest{Kind: wire.ReqWrite, Key: "y", Value: "2"}
	seq2, deps2, _ := s.r.Derive(req2, 1, nil, true, wire.InstanceID{})

	s.Equal(wire.Seq(1), seq2)
	s.Empty(deps2)
}

func (s *DeriveSuite) TestReadsDoNotInterfereWithReads() {
	req1 := wire.ClientRequest{Kind: wire.ReqRead, Key: "x"}
	s.r.Derive(req1, 1, nil, true, wire.InstanceID{})

	req2 := wire.ClientRequest{Kind: wire.ReqRead, Key: "x"}
	seq2, deps2, _ := s.r.Derive(req2, 1, nil, true, wire.InstanceID{})

	s.Equal(wire.Seq(1), seq2)
	s.Empty(deps2)
}

func (s *DeriveSuite) TestFollowerModeUsesProvidedInstance() {
	provided := wire.InstanceID{Replica: 2, Counter: 5}
	req := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1"}
	_, _, instance := s.r.Derive(req, 3, nil, false, provided)

	s.Equal(provided, instance)
}

func (s *DeriveSuite) TestUpsertPreAcceptedNeverDowngradesAccepted() {
	req := wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1"}
	_, _, instance := s.r.Derive(req, 1, nil, true, wire.InstanceID{})

	s.r.ApplyAccept(instance, req, 5, nil)
	status, _ := s.r.Status(instance)
	s.Equal(replicastate.Accepted, status)

	// A stale PreAccept for the same instance must not move it backward.
	s.r.Derive(req, 1, nil, false, instance)
	status, _ = s.r.Status(instance)
	s.Equal(replicastate.Accepted, status)
}

func TestDeriveSuite(t *testing.T) {
	suite.Run(t, new(DeriveSuite))
}
