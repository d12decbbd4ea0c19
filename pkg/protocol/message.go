package protocol

import (
	"fmt"
	"strings"
)

const (
	// MaxMessageLength is the largest frame (in bytes) a receiver accepts
	MaxMessageLength = 1024

	// DefaultPort is the UDP port nanoPubSub peers use unless told otherwise
	DefaultPort = 11011

	// Delimiter separates the keyword and fields of a frame
	Delimiter = '#'
)

// Kind is the discriminant of a Message
type Kind uint8

const (
	KindStandard Kind = iota
	KindSubscribe
	KindUnsubscribe
)

// String returns the wire keyword for the kind
func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "msg"
	case KindSubscribe:
		return "sub"
	case KindUnsubscribe:
		return "unsub"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one nanoPubSub frame. It is implemented by *Standard, *Subscribe
// and *Unsubscribe only.
type Message interface {
	// Kind reports which of the three message kinds this is
	Kind() Kind
	// Sender returns the client id of the message's sender
	Sender() string
	// Subject returns the message's topic
	Subject() string

	sealed()
}

// Standard (msg) carries a text body published on a topic
type Standard struct {
	ClientID string
	Topic    string
	Body     string
}

// Subscribe (sub) asks to receive messages published on a topic
type Subscribe struct {
	ClientID string
	Topic    string
}

// Unsubscribe (unsub) cancels a previous subscription
type Unsubscribe struct {
	ClientID string
	Topic    string
}

// NewStandard builds a standard message from already validated fields
func NewStandard(clientID, topic, body string) *Standard {
	return &Standard{ClientID: clientID, Topic: topic, Body: body}
}

// NewSubscribe builds a subscribe message from already validated fields
func NewSubscribe(clientID, topic string) *Subscribe {
	return &Subscribe{ClientID: clientID, Topic: topic}
}

// NewUnsubscribe builds an unsubscribe message from already validated fields
func NewUnsubscribe(clientID, topic string) *Unsubscribe {
	return &Unsubscribe{ClientID: clientID, Topic: topic}
}

func (*Standard) Kind() Kind    { return KindStandard }
func (*Subscribe) Kind() Kind   { return KindSubscribe }
func (*Unsubscribe) Kind() Kind { return KindUnsubscribe }

func (m *Standard) Sender() string    { return m.ClientID }
func (m *Subscribe) Sender() string   { return m.ClientID }
func (m *Unsubscribe) Sender() string { return m.ClientID }

func (m *Standard) Subject() string    { return m.Topic }
func (m *Subscribe) Subject() string   { return m.Topic }
func (m *Unsubscribe) Subject() string { return m.Topic }

func (*Standard) sealed()    {}
func (*Subscribe) sealed()   {}
func (*Unsubscribe) sealed() {}

// String renders the message in wire format. Invalid messages render as
// an empty string.
func (m *Standard) String() string    { return frameString(m) }
func (m *Subscribe) String() string   { return frameString(m) }
func (m *Unsubscribe) String() string { return frameString(m) }

func frameString(m Message) string {
	b, err := Encode(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// Validate checks that msg can be sent and decoded back unchanged: every
// required field is present, the frame fits in MaxMessageLength and no
// field contains the delimiter.
func Validate(msg Message) error {
	n, err := Length(msg)
	if err != nil {
		return err
	}
	if n > MaxMessageLength {
		return fmt.Errorf("%w: frame is %d bytes", ErrOversizedInput, n)
	}

	fields := []namedField{
		{"client id", msg.Sender()},
		{"topic", msg.Subject()},
	}
	if std, ok := msg.(*Standard); ok {
		fields = append(fields, namedField{"body", std.Body})
	}
	for _, f := range fields {
		if strings.IndexByte(f.value, Delimiter) >= 0 {
			return fmt.Errorf("%w: %s %q", ErrDelimiterInField, f.name, f.value)
		}
	}
	return nil
}

type namedField struct {
	name  string
	value string
}
