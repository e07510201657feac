package wire_test

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdeggleston/kboxepaxos/internal/wire"
)

func roundTrip(t *testing.T, env *wire.Envelope) *wire.Envelope {
	t.Helper()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, wire.WriteEnvelope(w, env))

	got, err := wire.ReadEnvelope(bufio.NewReader(&buf))
	require.NoError(t, err)
	return got
}

func TestRoundTripEveryEnvelopeVariant(t *testing.T) {
	instance := wire.Inst(1, 7)

	cases := map[string]*wire.Envelope{
		"received_request": {
			Kind:    wire.KindReceivedRequest,
			Request: &wire.ClientRequest{Kind: wire.ReqWrite, Key: "x", Value: "1", ReplyAddr: "127.0.0.1:9001", ReqID: "r1"},
		},
		"preaccept": {
			Kind:     wire.KindPreAccept,
			Request:  &wire.ClientRequest{Kind: wire.ReqRead, Key: "x", ReplyAddr: "127.0.0.1:9001", ReqID: "r2"},
			Seq:      3,
			DepHints: []wire.DepHint{{Instance: *wire.Inst(2, 1), Committed: true}},
			Instance: instance,
			Sender:   "127.0.0.1:7000",
		},
		"preaccept_ok": {
			Kind:     wire.KindPreAcceptOK,
			Request:  &wire.ClientRequest{Kind: wire.ReqRead, Key: "x", ReplyAddr: "127.0.0.1:9001", ReqID: "r2"},
			Seq:      4,
			DepHints: []wire.DepHint{{Instance: *wire.Inst(2, 1), Committed: false}, {Instance: *wire.Inst(3, 2), Committed: true}},
			Instance: instance,
			Sender:   "127.0.0.1:7001",
		},
		"accept": {
			Kind:     wire.KindAccept,
			Request:  &wire.ClientRequest{Kind: wire.ReqWrite, Key: "y", Value: "v", ReplyAddr: "127.0.0.1:9002", ReqID: "r3"},
			Seq:      9,
			Deps:     []wire.InstanceID{*wire.Inst(1, 1), *wire.Inst(3, 4)},
			Instance: instance,
			Sender:   "127.0.0.1:7000",
		},
		"accept_ok": {
			Kind:     wire.KindAcceptOK,
			Request:  &wire.ClientRequest{Kind: wire.ReqWrite, Key: "y", Value: "v", ReplyAddr: "127.0.0.1:9002", ReqID: "r3"},
			Seq:      9,
			Deps:     []wire.InstanceID{*wire.Inst(1, 1), *wire.Inst(3, 4)},
			Instance: instance,
			Sender:   "127.0.0.1:7001",
		},
		"commit": {
			Kind:     wire.KindCommit,
			Request:  &wire.ClientRequest{Kind: wire.ReqWrite, Key: "y", Value: "v", ReplyAddr: "127.0.0.1:9002", ReqID: "r3"},
			Seq:      9,
			Deps:     []wire.InstanceID{*wire.Inst(1, 1)},
			Instance: instance,
			Sender:   "127.0.0.1:7000",
		},
		"client_reply_with_value": {
			Kind: wire.KindClientReply,
			Reply: func() *wire.ClientReply {
				v := "old"
				return &wire.ClientReply{Value: &v, ReqID: "r4"}
			}(),
		},
		"client_reply_without_value": {
			Kind:  wire.KindClientReply,
			Reply: &wire.ClientReply{ReqID: "r5"},
		},
		"save_state": {Kind: wire.KindSaveState},
	}

	for name, env := range cases {
		env := env
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, env)
			assert.Equal(t, env.Kind, got.Kind)
			assert.Equal(t, env.Request, got.Request)
			assert.Equal(t, env.Seq, got.Seq)
			assert.Equal(t, env.DepHints, got.DepHints)
			assert.Equal(t, env.Deps, got.Deps)
			assert.Equal(t, env.Instance, got.Instance)
			assert.Equal(t, env.Sender, got.Sender)
			assert.Equal(t, env.Reply, got.Reply)
		})
	}
}

func TestReadEnvelopeMalformedLineIsTyped(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("not json\n"))
	_, err := wire.ReadEnvelope(r)
	require.Error(t, err)

	var malformed *wire.MalformedMessageError
	assert.True(t, errors.As(err, &malformed))
}

func TestInstanceIDMarshalsAsTuple(t *testing.T) {
	b, err := wire.Inst(4, 9).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[4,9]`, string(b))
}
