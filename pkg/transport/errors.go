package transport

import (
	"errors"
	"net"
)

var (
	ErrClosed        = errors.New("nanopubsub transport: connection is closed")
	ErrNoDestination = errors.New("nanopubsub transport: no destination address")
)

// Stage names the step of a Send or Recv that failed
type Stage string

const (
	StageSerialize Stage = "serialize"
	StageTransmit  Stage = "transmit"
	StageReceive   Stage = "receive"
	StageParse     Stage = "parse"
)

// OpError is returned by Send and Recv. Err is the codec error for the
// serialize and parse stages, and the socket (or context) error otherwise.
type OpError struct {
	Op    string // "send" or "recv"
	Stage Stage
	Addr  net.Addr // destination for send, source for recv; may be nil
	Err   error
}

func (e *OpError) Error() string {
	s := "nanopubsub " + e.Op + " (" + string(e.Stage) + ")"
	if e.Addr != nil {
		if e.Op == "send" {
			s += " to "
		} else {
			s += " from "
		}
		s += e.Addr.String()
	}
	return s + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of an *OpError in err's chain, or "" if there is
// none.
func StageOf(err error) Stage {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Stage
	}
	return ""
}
