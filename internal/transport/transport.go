// Package transport is the raw TCP plumbing spec section 1 names as
// an external collaborator ("specified only by the interfaces it
// consumes"): an acceptor task, a reader task per inbound connection,
// and a dispatcher-owned outbound connection pool keyed by peer
// address, matching the cooperative-scheduler model of spec section 5
// and the connect-retry/no-reconnect policy of section 4.6.
package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	logging "github.com/op/go-logging"

	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

// Event pairs a parsed envelope with the remote address it arrived
// from, for logging; the dispatcher itself routes purely on the
// envelope's own Sender/Instance fields.
type Event struct {
	Envelope *wire.Envelope
	From     string
}

// Server accepts inbound connections and spawns one reader goroutine
// per connection, each parsing lines into Events for the dispatcher.
type Server struct {
	ln     net.Listener
	events chan<- Event
	logger *logging.Logger
}

// Listen binds addr. A bind failure here is fatal per spec 4.6/7; the
// caller decides how to report that.
func Listen(addr string, events chan<- Event, logger *logging.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, events: events, logger: logger}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.readLoop(conn)
	}
}

func (s *Server) readLoop(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	r := bufio.NewReader(conn)
	for {
		env, err := wire.ReadEnvelope(r)
		if err != nil {
			var malformed *wire.MalformedMessageError
			if errors.As(err, &malformed) {
				s.logger.Warning("malformed message from %s: %v", remote, err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Error("read error from %s, closing stream: %v", remote, err)
			}
			return
		}
		s.events <- Event{Envelope: env, From: remote}
	}
}

// Dialer owns every outbound connection this replica holds, keyed by
// destination address. Send is called only by the dispatcher, but
// DialPeerRetry goroutines may still be dialing unreachable peers while
// the dispatcher runs; the mutex guards the connection map against
// that overlap.
type Dialer struct {
	mu     sync.Mutex
	conns  map[string]net.Conn
	logger *logging.Logger
}

func NewDialer(logger *logging.Logger) *Dialer {
	return &Dialer{conns: make(map[string]net.Conn), logger: logger}
}

// Send writes one JSON line to addr, dialing a fresh connection if
// none is cached. A write failure drops the cached connection (no
// automatic reconnect, per spec 4.6); the caller decides whether to
// log and drop (client replies) or surface the failure.
func (d *Dialer) Send(addr string, env *wire.Envelope) error {
	conn, err := d.get(addr)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(conn)
	if err := wire.WriteEnvelope(w, env); err != nil {
		conn.Close()
		d.mu.Lock()
		delete(d.conns, addr)
		d.mu.Unlock()
		return err
	}
	return nil
}

func (d *Dialer) get(addr string) (net.Conn, error) {
	d.mu.Lock()
	c, ok := d.conns[addr]
	d.mu.Unlock()
	if ok {
		return c, nil
	}
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.conns[addr] = c
	d.mu.Unlock()
	return c, nil
}

// DialPeerRetry blocks until addr accepts a connection, retrying on a
// fixed interval with no exponential backoff, per spec 4.6 ("a peer
// connection that refuses connect at startup is retried indefinitely
// without backoff until accepted"). The launcher starts one per peer
// in its own goroutine and does not wait for them before starting the
// dispatcher, so a retry can still be running while Send is in use.
func (d *Dialer) DialPeerRetry(addr string, interval time.Duration) {
	waited := false
	for {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			d.mu.Lock()
			d.conns[addr] = c
			d.mu.Unlock()
			return
		}
		if !waited {
			d.logger.Warning("connect to peer %s refused, retrying until accepted", addr)
			waited = true
		}
		time.Sleep(interval)
	}
}
