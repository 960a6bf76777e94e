package cluster

import (
	"testing"

	"github.com/concordkv/concordkv/internal/errs"
)

func TestNewWithoutBuildTagIsNotSupported(t *testing.T) {
	_, err := New(ZeroMQ)
	if errs.KindOf(err) != errs.NotSupported {
		t.Fatalf("expected not_supported with no transport backend compiled in, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if ZeroMQ.String() != "zmq" || NanoMsg.String() != "nng" {
		t.Fatalf("unexpected Kind.String values")
	}
}
