// Package debugclient is the interactive REPL client spec section 6
// names (`--debug-client`). It is a direct reimplementation of
// original_source/src/network/client.rs's debugging_client: a four
// state loop over stdin (waiting for r/w, then key, then value for a
// write) that prints every line it reads before acting on it.
package debugclient

import (
	"bufio"
	"fmt"
	"net"
	"os"

	logging "github.com/op/go-logging"

	"github.com/google/uuid"

	"github.com/bdeggleston/kboxepaxos/internal/transport"
	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

var logger = logging.MustGetLogger("debugclient")

// Run connects to target, listens on listenAddr for the single reply
// per request, and drives the r/w/key/value prompt loop over stdin
// until it closes.
func Run(target, listenAddr string) error {
	events := make(chan transport.Event, 4)
	srv, err := transport.Listen(listenAddr, events, logger)
	if err != nil {
		return err
	}
	go srv.Serve()
	go func() {
		for ev := range events {
			if ev.Envelope.Kind == wire.KindClientReply && ev.Envelope.Reply != nil {
				printReply(ev.Envelope.Reply)
			}
		}
	}()

	conn, err := net.Dial("tcp", target)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", conn.RemoteAddr())
	fmt.Printf("My nickname: %s\n", srv.Addr())

	w := bufio.NewWriter(conn)
	scanner := bufio.NewScanner(os.Stdin)

	mode := "q"
	var key string

	fmt.Print("Read or write? (r/w): ")
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Printf("Message received: %s\n", line)

		switch mode {
		case "q":
			if line == "r" || line == "w" {
				mode = line
				fmt.Print("Key: ")
			} else {
				fmt.Print("Read or write? (r/w): ")
			}
		case "r":
			mode = "q"
			req := wire.ClientRequest{Kind: wire.ReqRead, Key: line, ReplyAddr: srv.Addr(), ReqID: uuid.NewString()}
			send(w, &req)
			fmt.Print("Read or write? (r/w): ")
		case "w":
			mode = "v"
			key = line
			fmt.Print("Value: ")
		default: // "v"
			mode = "q"
			req := wire.ClientRequest{Kind: wire.ReqWrite, Key: key, Value: line, ReplyAddr: srv.Addr(), ReqID: uuid.NewString()}
			send(w, &req)
			fmt.Print("Read or write? (r/w): ")
		}
	}
	return scanner.Err()
}

func send(w *bufio.Writer, req *wire.ClientRequest) {
	if err := wire.WriteEnvelope(w, &wire.Envelope{Kind: wire.KindReceivedRequest, Request: req}); err != nil {
		fmt.Printf("send failed: %v\n", err)
	}
}

func printReply(r *wire.ClientReply) {
	if r.Value == nil {
		fmt.Printf("reply for %s: (none)\n", r.ReqID)
		return
	}
	fmt.Printf("reply for %s: %s\n", r.ReqID, *r.Value)
}
