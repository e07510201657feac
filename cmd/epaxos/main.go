// Command epaxos is the single launcher binary spec section 6
// describes: replica mode, --save (one-shot SaveState sender), --gen
// (load generator), and --debug-client (interactive REPL), modeled on
// original_source/src/main.rs's single-binary-multiple-modes shape.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	logging "github.com/op/go-logging"
	flag "github.com/spf13/pflag"

	"github.com/bdeggleston/kboxepaxos/internal/consensus"
	"github.com/bdeggleston/kboxepaxos/internal/debugclient"
	"github.com/bdeggleston/kboxepaxos/internal/eventqueue"
	"github.com/bdeggleston/kboxepaxos/internal/genclient"
	"github.com/bdeggleston/kboxepaxos/internal/metrics"
	"github.com/bdeggleston/kboxepaxos/internal/topology"
	"github.com/bdeggleston/kboxepaxos/internal/transport"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

var logger = logging.MustGetLogger("main")

func main() {
	os.Exit(run())
}

func run() int {
	var (
		listener       = flag.String("listener", "", "local bind address for peer/client connections")
		connections    = flag.StringSlice("connections", nil, "peer addresses to dial, count must equal n-1")
		id             = flag.Int("id", 0, "this replica's id, 1..n")
		n              = flag.Int("n", 0, "total replicas (3 or 5)")
		publicIP       = flag.String("public-ip", "", "address advertised to peers, defaults to listener")
		save           = flag.String("save", "", "connect to replica at addr and send a SaveState message")
		gen            = flag.String("gen", "", "run as load-generating client against addr")
		debugClientF   = flag.Bool("debug-client", false, "run as interactive client")
		rate           = flag.Float64("rate", 0.0, "conflict rate for generator, 0.0..1.0")
		timeSleepMS    = flag.Int("time-sleep", 10, "generator inter-request sleep, ms")
		experimentSecs = flag.Int("experiment-time", 10, "generator run duration, seconds")
		logLevel       = flag.String("log-level", "", "backend log level, overrides LOG_LEVEL env var")
		statsdAddr     = flag.String("statsd", "", "statsd collector address for path metrics")
	)
	flag.Parse()
	configureLogging(*logLevel)

	switch {
	case *save != "":
		return runSave(*save)
	case *gen != "":
		if *listener == "" {
			logger.Critical("--gen requires --listener for the reply inbox")
			return 1
		}
		return runGenerator(*gen, *listener, *rate, *timeSleepMS, *experimentSecs)
	case *debugClientF:
		if len(*connections) != 1 {
			logger.Critical("--debug-client requires exactly one peer address via --connections")
			return 1
		}
		if *listener == "" {
			logger.Critical("--debug-client requires --listener for the reply inbox")
			return 1
		}
		return runDebugClient((*connections)[0], *listener)
	default:
		return runReplica(*listener, *connections, *id, *n, *publicIP, *statsdAddr)
	}
}

func configureLogging(flagLevel string) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter(`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`)
	formatted := logging.NewBackendFormatter(backend, formatter)

	level := flagLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "INFO"
	}
	lvl, err := logging.LogLevel(level)
	if err != nil {
		lvl = logging.INFO
	}
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
}

func runReplica(listener string, connections []string, id, n int, publicIP, statsdAddr string) int {
	if listener == "" || id <= 0 || n <= 0 {
		logger.Critical("replica mode requires --listener, --id, and --n")
		return 1
	}
	if len(connections) != n-1 {
		logger.Critical("--connections must list exactly n-1 peer addresses, got %d for n=%d", len(connections), n)
		return 1
	}
	advertise := publicIP
	if advertise == "" {
		advertise = listener
	}

	roster := &topology.Roster{
		Self:     wire.ReplicaID(id),
		SelfAddr: advertise,
		N:        n,
	}
	for i, addr := range connections {
		peerID := i + 1
		if peerID >= id {
			peerID++
		}
		roster.Peers = append(roster.Peers, topology.Peer{ID: wire.ReplicaID(peerID), Addr: addr})
	}

	var sink metrics.Sink = metrics.NoopSink{}
	if statsdAddr != "" {
		s, err := metrics.NewStatsdSink(statsdAddr, fmt.Sprintf("epaxos.replica%d", id))
		if err != nil {
			logger.Warning("statsd sink unavailable, falling back to noop: %v", err)
		} else {
			sink = s
		}
	}

	dialer := transport.NewDialer(logger)
	for _, p := range roster.Peers {
		go dialer.DialPeerRetry(p.Addr, time.Second)
	}

	// The event channel must never block a reader goroutine (spec
	// section 5): the dispatcher does blocking peer/client sends while
	// draining, so a bounded channel risks a full buffer stalling every
	// connection across the cluster.
	eventsIn, eventsOut := eventqueue.New[transport.Event]()
	srv, err := transport.Listen(listener, eventsIn, logger)
	if err != nil {
		logger.Critical("bind %s failed: %v", listener, err)
		return 1
	}
	logger.Info("replica %d listening on %s (n=%d)", id, listener, n)

	go func() {
		if err := srv.Serve(); err != nil {
			logger.Error("accept loop stopped: %v", err)
		}
	}()

	d := consensus.New(roster, dialer, sink, "")
	d.Run(eventsOut)
	return 0
}

func runSave(addr string) int {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		logger.Critical("connect to %s failed: %v", addr, err)
		return 1
	}
	defer conn.Close()
	w := bufio.NewWriter(conn)
	if err := wire.WriteEnvelope(w, &wire.Envelope{Kind: wire.KindSaveState}); err != nil {
		logger.Critical("send SaveState to %s failed: %v", addr, err)
		return 1
	}
	return 0
}

func runGenerator(target, listenAddr string, rate float64, timeSleepMS, experimentSecs int) int {
	cfg := genclient.Config{
		Target:         target,
		ListenAddr:     listenAddr,
		Rate:           rate,
		TimeSleep:      time.Duration(timeSleepMS) * time.Millisecond,
		ExperimentTime: time.Duration(experimentSecs) * time.Second,
	}
	if err := genclient.Run(cfg); err != nil {
		logger.Critical("generator failed: %v", err)
		return 1
	}
	return 0
}

func runDebugClient(target, listenAddr string) int {
	if err := debugclient.Run(target, listenAddr); err != nil {
		logger.Critical("debug client failed: %v", err)
		return 1
	}
	return 0
}
