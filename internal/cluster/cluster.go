// Package cluster defines the transport interface the spec's distributed
// clustering layer would sit behind (spec §1: "the distributed cluster /
// Raft-like leader election" is an external collaborator, specified only by
// the interface the core consumes). No leader election, membership, or
// consensus logic lives here — only the wire-level Transport abstraction and
// two build-tag-gated concrete sockets, mirroring the teacher's own
// zmq/nng gating in pkg/replication (zmq_primary_types.go, nng_transport.go)
// rather than inventing a new transport-selection scheme.
package cluster

import (
	"time"

	"github.com/concordkv/concordkv/internal/errs"
)

// Transport is a message-oriented socket a future cluster coordinator would
// use to exchange WAL streams, heartbeats, and leader-election messages. It
// intentionally carries no ConcordKV-specific framing — that belongs to the
// (out of scope) coordinator built on top of it.
type Transport interface {
	Send(data []byte) error
	Recv() ([]byte, error)
	Listen(addr string) error
	Dial(addr string) error
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
	Close() error
}

// Kind selects which transport backend New should construct.
type Kind int

const (
	ZeroMQ Kind = iota
	NanoMsg
)

func (k Kind) String() string {
	switch k {
	case ZeroMQ:
		return "zmq"
	case NanoMsg:
		return "nng"
	default:
		return "unknown"
	}
}

// New constructs a Transport of the given Kind. The default build (no
// "zmq"/"nng" build tag) has neither backend compiled in, so New always
// fails with not_supported — matching spec §1's "specified only by the
// interface the core consumes": the interface exists and is wired, but no
// concrete cluster protocol ships by default.
var newBackend = func(k Kind) (Transport, error) {
	return nil, errs.New(errs.NotSupported, "cluster.New", "no transport backend compiled in; build with -tags "+k.String())
}

func New(k Kind) (Transport, error) {
	return newBackend(k)
}
