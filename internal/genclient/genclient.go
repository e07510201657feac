// Package genclient is the synthetic load generator spec section 6
// names (`--gen addr --rate ... --time-sleep ... --experiment-time
// ...`). It is grounded in original_source/src/network/client.rs's
// run_client: dial once, write one JSON-framed request per tick, and
// separately accept the reply stream. Unlike the Rust prototype (which
// copies stdin straight to the socket) this drives the request rate
// itself and tracks outstanding requests by req_id, since spec section
// 7 requires an unreplyable request to simply stay pending forever
// with no retry.
package genclient

import (
	"bufio"
	"math/rand"
	"net"
	"sync"
	"time"

	logging "github.com/op/go-logging"

	"github.com/google/uuid"

	"github.com/bdeggleston/kboxepaxos/internal/transport"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

var logger = logging.MustGetLogger("genclient")

// keyspace is fixed and small so a nonzero conflict Rate actually
// produces repeated-key collisions rather than a sea of unique keys.
var keyspace = []string{"a", "b", "c", "d", "e"}

// Config is the generator's tunable surface, one field per §6 flag.
type Config struct {
	Target         string
	ListenAddr     string
	Rate           float64
	TimeSleep      time.Duration
	ExperimentTime time.Duration
}

// Run connects to Target, listens on ListenAddr for replies, and fires
// requests until ExperimentTime elapses. It blocks until the
// experiment completes and logs the count of requests that never
// received a reply.
func Run(cfg Config) error {
	outstanding := &outstandingSet{entries: make(map[string]struct{})}

	events := make(chan transport.Event, 16)
	srv, err := transport.Listen(cfg.ListenAddr, events, logger)
	if err != nil {
		return err
	}
	go srv.Serve()
	go drainReplies(events, outstanding)

	conn, err := net.Dial("tcp", cfg.Target)
	if err != nil {
		return err
	}
	defer conn.Close()
	w := bufio.NewWriter(conn)

	lastKey := keyspace[0]
	deadline := time.Now().Add(cfg.ExperimentTime)
	sent := 0

	for time.Now().Before(deadline) {
		key := lastKey
		if rand.Float64() >= cfg.Rate {
			key = keyspace[rand.Intn(len(keyspace))]
		}
		lastKey = key

		req := wire.ClientRequest{
			Key:       key,
			ReplyAddr: srv.Addr(),
			ReqID:     uuid.NewString(),
		}
		if rand.Intn(2) == 0 {
			req.Kind = wire.ReqRead
		} else {
			req.Kind = wire.ReqWrite
			req.Value = uuid.NewString()
		}

		outstanding.add(req.ReqID)
		if err := wire.WriteEnvelope(w, &wire.Envelope{Kind: wire.KindReceivedRequest, Request: &req}); err != nil {
			logger.Error("send request %s failed: %v", req.ReqID, err)
			break
		}
		sent++

		time.Sleep(cfg.TimeSleep)
	}

	logger.Info("generator sent %d requests, %d still outstanding at end of run", sent, outstanding.count())
	return nil
}

func drainReplies(events <-chan transport.Event, outstanding *outstandingSet) {
	for ev := range events {
		if ev.Envelope.Kind != wire.KindClientReply || ev.Envelope.Reply == nil {
			continue
		}
		outstanding.remove(ev.Envelope.Reply.ReqID)
	}
}

// outstandingSet tracks in-flight req_ids. Reads/removes race with the
// generator's own send loop (one goroutine reads replies, another
// sends), so it needs its own lock, unlike replicastate which is
// single-goroutine owned.
type outstandingSet struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

func (s *outstandingSet) add(id string) {
	s.mu.Lock()
	s.entries[id] = struct{}{}
	s.mu.Unlock()
}

func (s *outstandingSet) remove(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

func (s *outstandingSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
