//go:build nng

package cluster

import (
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"

	// Register all transports (tcp, ipc, ws, ...), same as the teacher's
	// nng_transport.go does for its own sockets.
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/concordkv/concordkv/internal/errs"
)

// nngTransport wraps a mangos PAIR socket, the nanomsg analogue of
// zmqTransport's ZeroMQ PAIR socket, adapted from the teacher's nngSocket
// wrapper (pkg/replication/nng_transport.go) but generalized to one
// protocol-agnostic socket type instead of the teacher's PUB/SUB/PUSH/PULL/
// ROUTER family built for one specific replication protocol.
type nngTransport struct {
	sock mangos.Socket
}

func newNNGTransport() (Transport, error) {
	sock, err := pair.NewSocket()
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "cluster.newNNGTransport", "creating nng socket", err)
	}
	return &nngTransport{sock: sock}, nil
}

func init() {
	newBackend = func(k Kind) (Transport, error) {
		switch k {
		case NanoMsg:
			return newNNGTransport()
		default:
			return nil, errs.New(errs.NotSupported, "cluster.New", "backend "+k.String()+" not compiled in under the nng build tag")
		}
	}
}

func (t *nngTransport) Send(data []byte) error {
	if err := t.sock.Send(data); err != nil {
		return errs.Wrap(errs.IOError, "nngTransport.Send", "sending frame", err)
	}
	return nil
}

func (t *nngTransport) Recv() ([]byte, error) {
	data, err := t.sock.Recv()
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "nngTransport.Recv", "receiving frame", err)
	}
	return data, nil
}

func (t *nngTransport) Listen(addr string) error {
	if err := t.sock.Listen(addr); err != nil {
		return errs.Wrap(errs.IOError, "nngTransport.Listen", "listening on "+addr, err)
	}
	return nil
}

func (t *nngTransport) Dial(addr string) error {
	if err := t.sock.Dial(addr); err != nil {
		return errs.Wrap(errs.IOError, "nngTransport.Dial", "dialing "+addr, err)
	}
	return nil
}

func (t *nngTransport) SetRecvDeadline(d time.Duration) error {
	return t.sock.SetOption(mangos.OptionRecvDeadline, d)
}

func (t *nngTransport) SetSendDeadline(d time.Duration) error {
	return t.sock.SetOption(mangos.OptionSendDeadline, d)
}

func (t *nngTransport) Close() error {
	return t.sock.Close()
}
