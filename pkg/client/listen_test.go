package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/aeolun/nanopubsub/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sender = &net.UDPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 5000}

type received struct {
	msg  protocol.Message
	from net.Addr
}

func collect(out *[]received) Handler {
	return func(ctx context.Context, msg protocol.Message, from net.Addr) error {
		*out = append(*out, received{msg, from})
		return nil
	}
}

func TestListenSkipsParseFailures(t *testing.T) {
	mock := NewMockConnection()
	mock.Deliver(MockDelivery{Msg: protocol.NewSubscribe("c1", "weather"), From: sender})
	mock.Deliver(MockDelivery{From: sender, Err: &transport.OpError{
		Op: "recv", Stage: transport.StageParse, Addr: sender, Err: protocol.ErrMalformedWireFormat,
	}})
	mock.Deliver(MockDelivery{Msg: protocol.NewStandard("c1", "weather", "rain"), From: sender})
	sockErr := errors.New("connection refused")
	mock.Deliver(MockDelivery{Err: &transport.OpError{Op: "recv", Stage: transport.StageReceive, Err: sockErr}})

	var got []received
	err := Listen(context.Background(), mock, collect(&got), zerolog.Nop())
	assert.ErrorIs(t, err, sockErr)

	require.Len(t, got, 2)
	assert.Equal(t, protocol.NewSubscribe("c1", "weather"), got[0].msg)
	assert.Equal(t, protocol.NewStandard("c1", "weather", "rain"), got[1].msg)
	assert.Equal(t, sender, got[1].from)
}

func TestListenStopsOnCancel(t *testing.T) {
	mock := NewMockConnection()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Listen(ctx, mock, func(context.Context, protocol.Message, net.Addr) error { return nil }, zerolog.Nop())
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestListenStopsOnClosedSocket(t *testing.T) {
	mock := NewMockConnection()
	mock.Deliver(MockDelivery{Err: &transport.OpError{Op: "recv", Stage: transport.StageReceive, Err: net.ErrClosed}})

	err := Listen(context.Background(), mock, func(context.Context, protocol.Message, net.Addr) error { return nil }, zerolog.Nop())
	assert.NoError(t, err)
}

func TestListenHandlerErrorStops(t *testing.T) {
	mock := NewMockConnection()
	mock.Deliver(MockDelivery{Msg: protocol.NewSubscribe("c1", "weather"), From: sender})

	handlerErr := errors.New("journal full")
	err := Listen(context.Background(), mock, func(context.Context, protocol.Message, net.Addr) error {
		return handlerErr
	}, zerolog.Nop())
	assert.ErrorIs(t, err, handlerErr)
	assert.Contains(t, err.Error(), "handle sub from 10.1.2.3:5000")
}

func TestListenOverLoopback(t *testing.T) {
	listener, err := transport.Listen("127.0.0.1:0", transport.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer listener.Close()

	conn, err := transport.Dial(listener.LocalAddr().String(), transport.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer conn.Close()

	pub, err := New("client1", conn, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan protocol.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- Listen(ctx, listener, func(ctx context.Context, msg protocol.Message, from net.Addr) error {
			got <- msg
			return nil
		}, zerolog.Nop())
	}()

	_, err = pub.Publish(ctx, "weather", "Sunny today")
	require.NoError(t, err)

	select {
	case msg := <-got:
		assert.Equal(t, protocol.NewStandard("client1", "weather", "Sunny today"), msg)
	case <-ctx.Done():
		t.Fatal("message not received")
	}

	cancel()
	assert.NoError(t, <-done)
}
