package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrNullMessage         = errors.New("message is nil")
	ErrInvalidKind         = errors.New("invalid message kind")
	ErrMissingField        = errors.New("required message field is empty")
	ErrLengthOverflow      = errors.New("message length overflows size arithmetic")
	ErrBufferTooSmall      = errors.New("buffer too small for message")
	ErrOversizedInput      = errors.New("input exceeds maximum message length (1024 bytes)")
	ErrMalformedWireFormat = errors.New("malformed wire format")
	ErrDelimiterInField    = errors.New("field contains the '#' delimiter")
)

// CapacityError reports a Serialize call with a buffer that cannot hold the
// frame. It matches ErrBufferTooSmall with errors.Is.
type CapacityError struct {
	Need int // bytes required by the frame
	Have int // bytes available in the supplied buffer
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("buffer too small for message: need %d bytes, have %d", e.Need, e.Have)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrBufferTooSmall
}

// ParseError describes where and why a frame failed to parse. It matches
// ErrMalformedWireFormat with errors.Is.
type ParseError struct {
	Offset int    // byte offset of the offending input, len(input) when truncated
	Phase  string // parser phase that rejected the input
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed wire format at offset %d (%s): %s", e.Offset, e.Phase, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedWireFormat
}
