// Package metrics counts consensus-path decisions through a statsd
// client, the way the teacher's consensus/testing_mocks.go wires a
// statsd.Statter into its mock cluster for assertions in tests. A
// real deployment points it at a statsd collector; by default, a
// no-op sink keeps a replica runnable without one.
package metrics

import "github.com/cactus/go-statsd-client/statsd"

// Sink is the small set of counters the consensus dispatcher emits on
// every path decision.
type Sink interface {
	IncrPreAcceptLed()
	IncrFastPathCommit()
	IncrSlowPathCommit()
	IncrLateMessage()
}

// NoopSink discards every counter; it's the default when no statsd
// collector address is configured.
type NoopSink struct{}

func (NoopSink) IncrPreAcceptLed()    {}
func (NoopSink) IncrFastPathCommit()  {}
func (NoopSink) IncrSlowPathCommit()  {}
func (NoopSink) IncrLateMessage()     {}

// StatsdSink emits counters through github.com/cactus/go-statsd-client,
// the teacher's metrics dependency.
type StatsdSink struct {
	client statsd.Statter
}

// NewStatsdSink dials a statsd collector at addr, tagging every metric
// with prefix (conventionally "epaxos.replica<id>").
func NewStatsdSink(addr, prefix string) (*StatsdSink, error) {
	client, err := statsd.NewClient(addr, prefix)
	if err != nil {
		return nil, err
	}
	return &StatsdSink{client: client}, nil
}

func (s *StatsdSink) IncrPreAcceptLed()   { s.client.Inc("preaccept.led", 1, 1.0) }
func (s *StatsdSink) IncrFastPathCommit() { s.client.Inc("commit.fast_path", 1, 1.0) }
func (s *StatsdSink) IncrSlowPathCommit() { s.client.Inc("commit.slow_path", 1, 1.0) }
func (s *StatsdSink) IncrLateMessage()    { s.client.Inc("message.late", 1, 1.0) }
