// Package client offers the publishing and listening sides of a nanoPubSub
// peer on top of a transport connection.
package client

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/aeolun/nanopubsub/pkg/protocol"
)

// Publisher sends messages under one client id to one destination
type Publisher struct {
	clientID string
	conn     Sender
	dst      net.Addr
}

// ValidateClientID rejects ids that cannot appear in a frame
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client id: %w", protocol.ErrMissingField)
	}
	if strings.IndexByte(clientID, protocol.Delimiter) >= 0 {
		return fmt.Errorf("client id %q: %w", clientID, protocol.ErrDelimiterInField)
	}
	return nil
}

// New returns a Publisher for clientID. A nil dst uses the connection's
// default destination.
func New(clientID string, conn Sender, dst net.Addr) (*Publisher, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	return &Publisher{clientID: clientID, conn: conn, dst: dst}, nil
}

// ClientID returns the id stamped on every message
func (p *Publisher) ClientID() string {
	return p.clientID
}

// Publish sends a standard message with body on topic
func (p *Publisher) Publish(ctx context.Context, topic, body string) (int, error) {
	return p.send(ctx, protocol.NewStandard(p.clientID, topic, body))
}

// Subscribe announces interest in topic
func (p *Publisher) Subscribe(ctx context.Context, topic string) (int, error) {
	return p.send(ctx, protocol.NewSubscribe(p.clientID, topic))
}

// Unsubscribe withdraws interest in topic
func (p *Publisher) Unsubscribe(ctx context.Context, topic string) (int, error) {
	return p.send(ctx, protocol.NewUnsubscribe(p.clientID, topic))
}

// send refuses messages a receiver could not decode back unchanged
func (p *Publisher) send(ctx context.Context, msg protocol.Message) (int, error) {
	if err := protocol.Validate(msg); err != nil {
		return 0, fmt.Errorf("%s: %w", msg.Kind(), err)
	}
	return p.conn.Send(ctx, p.dst, msg)
}
