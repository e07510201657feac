// Package wire implements the length-framed JSON codec (component C1)
// described in spec section 4.1: one message per line, newline
// terminated, no schema versioning.
package wire

import (
	"encoding/json"
	"fmt"
)

// ReplicaID identifies one of the 1..N replicas in the cluster.
type ReplicaID uint8

// Seq is the conservative sequence number assigned to an instance.
type Seq uint64

// InstanceID is the (replica, counter) pair that names a command slot.
// It is the only thing R assigns for (R, *); counters start at 1.
type InstanceID struct {
	Replica ReplicaID
	Counter uint64
}

// Less orders instances lexicographically by (replica, counter), used
// to break seq ties deterministically during execution.
func (i InstanceID) Less(o InstanceID) bool {
	if i.Replica != o.Replica {
		return i.Replica < o.Replica
	}
	return i.Counter < o.Counter
}

func (i InstanceID) String() string {
	return fmt.Sprintf("(%d,%d)", i.Replica, i.Counter)
}

// MarshalJSON renders the instance as the [R, k] tuple the wire format
// specifies, rather than a JSON object.
func (i InstanceID) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint64{uint64(i.Replica), i.Counter})
}

func (i *InstanceID) UnmarshalJSON(b []byte) error {
	var pair [2]uint64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	i.Replica = ReplicaID(pair[0])
	i.Counter = pair[1]
	return nil
}

// Inst is a small constructor helper for building *InstanceID literals
// inline in envelopes.
func Inst(r ReplicaID, k uint64) *InstanceID {
	return &InstanceID{Replica: r, Counter: k}
}

// ReqKind distinguishes a read from a write client request.
type ReqKind string

const (
	ReqRead  ReqKind = "read"
	ReqWrite ReqKind = "write"
)

// ClientRequest is the Read(key, reply_addr, req_id) / Write(key,
// value, reply_addr, req_id) variant from spec section 3.
type ClientRequest struct {
	Kind      ReqKind `json:"kind"`
	Key       string  `json:"key"`
	Value     string  `json:"value,omitempty"`
	ReplyAddr string  `json:"reply_addr"`
	ReqID     string  `json:"req_id"`
}

// ClientReply carries the result back to the client: the current value
// for a read, the pre-write value for a write, both optional.
type ClientReply struct {
	Value *string `json:"value,omitempty"`
	ReqID string  `json:"req_id"`
}

// DepHint is one entry of the PreAccept / PreAcceptOK deps-map: an
// instance this one depends on, and whether the sending replica has
// already observed it as committed-somewhere.
type DepHint struct {
	Instance  InstanceID `json:"instance"`
	Committed bool       `json:"committed"`
}

// Kind discriminates the envelope variants carried over the wire.
type Kind string

const (
	KindReceivedRequest Kind = "received_request"
	KindPreAccept       Kind = "preaccept"
	KindPreAcceptOK     Kind = "preaccept_ok"
	KindAccept          Kind = "accept"
	KindAcceptOK        Kind = "accept_ok"
	KindCommit          Kind = "commit"
	KindSaveState       Kind = "save_state"
	KindClientReply     Kind = "client_reply"
)

// Envelope is the single flat wire record every message variant is
// carried in, per spec 4.1 ("every message carries at minimum:
// message-kind tag, request, seq, deps, instance, sender address").
type Envelope struct {
	Kind     Kind           `json:"kind"`
	Request  *ClientRequest `json:"request,omitempty"`
	Seq      Seq            `json:"seq,omitempty"`
	DepHints []DepHint      `json:"dep_hints,omitempty"`
	Deps     []InstanceID   `json:"deps,omitempty"`
	Instance *InstanceID    `json:"instance,omitempty"`
	Sender   string         `json:"sender,omitempty"`
	Reply    *ClientReply   `json:"reply,omitempty"`
}
