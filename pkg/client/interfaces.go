package client

import (
	"context"
	"net"

	"github.com/aeolun/nanopubsub/pkg/protocol"
)

// Sender transmits one message per call.
// *transport.Conn implements it; tests substitute a recorder.
type Sender interface {
	Send(ctx context.Context, dst net.Addr, msg protocol.Message) (int, error)
}

// Receiver blocks for the next message.
// *transport.Conn implements it; tests substitute a scripted source.
type Receiver interface {
	Recv(ctx context.Context) (protocol.Message, net.Addr, error)
}
