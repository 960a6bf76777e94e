//go:build zmq

package cluster

import (
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/concordkv/concordkv/internal/errs"
)

// zmqTransport wraps a ZeroMQ PAIR socket, the simplest bidirectional
// building block for a future cluster coordinator's point-to-point
// messages (heartbeats, leader-election ballots). The teacher's own zmq
// code (pkg/replication/zmq_primary.go) uses PUB/ROUTER/PULL sockets
// because it implements a specific one-to-many replication protocol;
// cluster.Transport intentionally stays protocol-agnostic, so PAIR is the
// closest zmq socket type to a plain byte-oriented Transport.
type zmqTransport struct {
	sock *zmq.Socket
}

func newZMQTransport() (Transport, error) {
	sock, err := zmq.NewSocket(zmq.PAIR)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "cluster.newZMQTransport", "creating zmq socket", err)
	}
	return &zmqTransport{sock: sock}, nil
}

func init() {
	newBackend = func(k Kind) (Transport, error) {
		switch k {
		case ZeroMQ:
			return newZMQTransport()
		default:
			return nil, errs.New(errs.NotSupported, "cluster.New", "backend "+k.String()+" not compiled in under the zmq build tag")
		}
	}
}

func (t *zmqTransport) Send(data []byte) error {
	_, err := t.sock.SendBytes(data, 0)
	if err != nil {
		return errs.Wrap(errs.IOError, "zmqTransport.Send", "sending frame", err)
	}
	return nil
}

func (t *zmqTransport) Recv() ([]byte, error) {
	data, err := t.sock.RecvBytes(0)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "zmqTransport.Recv", "receiving frame", err)
	}
	return data, nil
}

func (t *zmqTransport) Listen(addr string) error {
	if err := t.sock.Bind(addr); err != nil {
		return errs.Wrap(errs.IOError, "zmqTransport.Listen", "binding "+addr, err)
	}
	return nil
}

func (t *zmqTransport) Dial(addr string) error {
	if err := t.sock.Connect(addr); err != nil {
		return errs.Wrap(errs.IOError, "zmqTransport.Dial", "connecting "+addr, err)
	}
	return nil
}

func (t *zmqTransport) SetRecvDeadline(d time.Duration) error {
	return t.sock.SetRcvtimeo(d)
}

func (t *zmqTransport) SetSendDeadline(d time.Duration) error {
	return t.sock.SetSndtimeo(d)
}

func (t *zmqTransport) Close() error {
	return t.sock.Close()
}
