package protocol

import (
	"math"
	"math/bits"
)

// Fixed bytes per kind: every delimiter plus the keyword.
const (
	standardOverhead    = 8 // 5x '#' + "msg"
	subscribeOverhead   = 7 // 4x '#' + "sub"
	unsubscribeOverhead = 9 // 4x '#' + "unsub"
)

// Length returns the exact number of bytes msg occupies on the wire.
func Length(msg Message) (int, error) {
	var (
		overhead uint
		fields   []string
	)

	switch m := msg.(type) {
	case nil:
		return 0, ErrNullMessage
	case *Standard:
		if m == nil {
			return 0, ErrNullMessage
		}
		overhead = standardOverhead
		fields = []string{m.ClientID, m.Topic, m.Body}
	case *Subscribe:
		if m == nil {
			return 0, ErrNullMessage
		}
		overhead = subscribeOverhead
		fields = []string{m.ClientID, m.Topic}
	case *Unsubscribe:
		if m == nil {
			return 0, ErrNullMessage
		}
		overhead = unsubscribeOverhead
		fields = []string{m.ClientID, m.Topic}
	default:
		return 0, ErrInvalidKind
	}

	lens := make([]uint, len(fields))
	for i, f := range fields {
		if f == "" {
			return 0, ErrMissingField
		}
		lens[i] = uint(len(f))
	}

	total, err := wireLength(overhead, lens...)
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// wireLength sums the fixed overhead and the field lengths, failing instead
// of wrapping. The result is also bounded by math.MaxInt so it can size a
// slice.
func wireLength(overhead uint, fieldLens ...uint) (uint, error) {
	total := overhead
	for _, n := range fieldLens {
		sum, carry := bits.Add(total, n, 0)
		if carry != 0 {
			return 0, ErrLengthOverflow
		}
		total = sum
	}
	if total > math.MaxInt {
		return 0, ErrLengthOverflow
	}
	return total, nil
}

// Serialize writes the wire encoding of msg into buf and returns the number
// of bytes written, which is always Length(msg). A nil msg writes nothing.
//
// buf must hold at least Length(msg) bytes. A shorter buffer is a caller
// bug and is reported as a *CapacityError without touching buf.
func Serialize(msg Message, buf []byte) (int, error) {
	if msg == nil {
		return 0, nil
	}

	n, err := Length(msg)
	if err != nil {
		return 0, err
	}
	if len(buf) < n {
		return 0, &CapacityError{Need: n, Have: len(buf)}
	}

	w := frameWriter{buf: buf}
	w.delim()
	w.str(msg.Kind().String())
	w.delim()
	w.str(msg.Sender())
	w.delim()
	w.str(msg.Subject())
	w.delim()
	if std, ok := msg.(*Standard); ok {
		w.str(std.Body)
		w.delim()
	}
	return w.pos, nil
}

// Encode returns the wire encoding of msg in a buffer sized exactly to it
func Encode(msg Message) ([]byte, error) {
	return AppendFrame(nil, msg)
}

// AppendFrame appends the wire encoding of msg to dst
func AppendFrame(dst []byte, msg Message) ([]byte, error) {
	n, err := Length(msg)
	if err != nil {
		return dst, err
	}

	start := len(dst)
	if cap(dst)-start < n {
		grown := make([]byte, start, start+n)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:start+n]

	if _, err := Serialize(msg, dst[start:]); err != nil {
		return dst[:start], err
	}
	return dst, nil
}

type frameWriter struct {
	buf []byte
	pos int
}

func (w *frameWriter) delim() {
	w.buf[w.pos] = Delimiter
	w.pos++
}

func (w *frameWriter) str(s string) {
	w.pos += copy(w.buf[w.pos:], s)
}
