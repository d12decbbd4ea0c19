package client

import (
	"context"
	"net"
	"sync"

	"github.com/aeolun/nanopubsub/pkg/protocol"
)

// MockConnection is a test implementation of Sender and Receiver
type MockConnection struct {
	mu sync.Mutex

	sendErr error

	// Scripted results for Recv, consumed in order
	incoming chan MockDelivery

	// Sent messages for verification
	Sent []MockSentMessage
}

// MockSentMessage tracks messages passed to Send
type MockSentMessage struct {
	Dst net.Addr
	Msg protocol.Message
}

// MockDelivery is one scripted Recv result
type MockDelivery struct {
	Msg  protocol.Message
	From net.Addr
	Err  error
}

// NewMockConnection creates a new mock connection
func NewMockConnection() *MockConnection {
	return &MockConnection{
		incoming: make(chan MockDelivery, 100),
	}
}

// SetSendError makes subsequent Send calls fail with err
func (m *MockConnection) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Send records msg and reports its wire length as the bytes sent
func (m *MockConnection) Send(ctx context.Context, dst net.Addr, msg protocol.Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return 0, m.sendErr
	}
	n, err := protocol.Length(msg)
	if err != nil {
		return 0, err
	}
	m.Sent = append(m.Sent, MockSentMessage{Dst: dst, Msg: msg})
	return n, nil
}

// Deliver queues a result for Recv
func (m *MockConnection) Deliver(d MockDelivery) {
	m.incoming <- d
}

// Recv returns the next queued delivery, blocking until one is queued or
// ctx is done.
func (m *MockConnection) Recv(ctx context.Context) (protocol.Message, net.Addr, error) {
	select {
	case d := <-m.incoming:
		return d.Msg, d.From, d.Err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// SentMessages returns a copy of everything sent so far
func (m *MockConnection) SentMessages() []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockSentMessage(nil), m.Sent...)
}
