package protocol

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessage satisfies Message without being one of the three kinds
type fakeMessage struct{}

func (fakeMessage) Kind() Kind      { return Kind(7) }
func (fakeMessage) Sender() string  { return "c" }
func (fakeMessage) Subject() string { return "t" }
func (fakeMessage) sealed()         {}

func TestLength(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		want    int
		wantErr error
	}{
		{
			name: "standard",
			msg:  NewStandard("client1", "weather", "Sunny today"),
			want: 8 + 7 + 7 + 11,
		},
		{
			name: "subscribe",
			msg:  NewSubscribe("client1", "weather"),
			want: 7 + 7 + 7,
		},
		{
			name: "unsubscribe",
			msg:  NewUnsubscribe("client1", "weather"),
			want: 9 + 7 + 7,
		},
		{
			name:    "nil interface",
			msg:     nil,
			wantErr: ErrNullMessage,
		},
		{
			name:    "typed nil standard",
			msg:     (*Standard)(nil),
			wantErr: ErrNullMessage,
		},
		{
			name:    "typed nil subscribe",
			msg:     (*Subscribe)(nil),
			wantErr: ErrNullMessage,
		},
		{
			name:    "unknown kind",
			msg:     fakeMessage{},
			wantErr: ErrInvalidKind,
		},
		{
			name:    "missing client id",
			msg:     NewSubscribe("", "weather"),
			wantErr: ErrMissingField,
		},
		{
			name:    "missing topic",
			msg:     NewUnsubscribe("client1", ""),
			wantErr: ErrMissingField,
		},
		{
			name:    "missing body",
			msg:     NewStandard("client1", "weather", ""),
			wantErr: ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Length(tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWireLengthOverflow(t *testing.T) {
	t.Run("carry out of the addition", func(t *testing.T) {
		_, err := wireLength(standardOverhead, math.MaxUint-4, 1, 1)
		assert.ErrorIs(t, err, ErrLengthOverflow)
	})

	t.Run("single field at the limit", func(t *testing.T) {
		_, err := wireLength(subscribeOverhead, math.MaxUint, 1)
		assert.ErrorIs(t, err, ErrLengthOverflow)
	})

	t.Run("fits uint but not int", func(t *testing.T) {
		_, err := wireLength(unsubscribeOverhead, math.MaxInt, 1)
		assert.ErrorIs(t, err, ErrLengthOverflow)
	})

	t.Run("largest int is accepted", func(t *testing.T) {
		got, err := wireLength(subscribeOverhead, math.MaxInt-subscribeOverhead-1, 1)
		require.NoError(t, err)
		assert.Equal(t, uint(math.MaxInt), got)
	})
}

func TestSerialize(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"standard", NewStandard("client1", "weather", "Sunny today"), "#msg#client1#weather#Sunny today#"},
		{"subscribe", NewSubscribe("client1", "weather"), "#sub#client1#weather#"},
		{"unsubscribe", NewUnsubscribe("client1", "weather"), "#unsub#client1#weather#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Length(tt.msg)
			require.NoError(t, err)

			buf := make([]byte, n)
			written, err := Serialize(tt.msg, buf)
			require.NoError(t, err)
			assert.Equal(t, n, written)
			assert.Equal(t, tt.want, string(buf))
		})
	}
}

func TestSerializeLargerBuffer(t *testing.T) {
	buf := []byte(strings.Repeat("x", 64))
	n, err := Serialize(NewSubscribe("a", "b"), buf)
	require.NoError(t, err)
	assert.Equal(t, "#sub#a#b#", string(buf[:n]))
	assert.Equal(t, byte('x'), buf[n], "bytes past the frame must be untouched")
}

func TestSerializeNilMessage(t *testing.T) {
	buf := []byte("untouched")
	n, err := Serialize(nil, buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "untouched", string(buf))
}

func TestSerializeBufferTooSmall(t *testing.T) {
	msg := NewStandard("client1", "weather", "Sunny today")
	buf := make([]byte, 10)

	n, err := Serialize(msg, buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 33, capErr.Need)
	assert.Equal(t, 10, capErr.Have)
	assert.Equal(t, make([]byte, 10), buf, "buffer must not be written on failure")
}

func TestSerializeInvalidMessage(t *testing.T) {
	_, err := Serialize(NewStandard("c", "t", ""), make([]byte, 64))
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = Serialize(fakeMessage{}, make([]byte, 64))
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestEncode(t *testing.T) {
	b, err := Encode(NewUnsubscribe("client1", "weather"))
	require.NoError(t, err)
	assert.Equal(t, "#unsub#client1#weather#", string(b))
	assert.Equal(t, len(b), cap(b))

	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrNullMessage)
}

func TestAppendFrame(t *testing.T) {
	dst := []byte("prefix:")
	out, err := AppendFrame(dst, NewSubscribe("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "prefix:#sub#a#b#", string(out))

	t.Run("reuses spare capacity", func(t *testing.T) {
		buf := make([]byte, 0, 64)
		out, err := AppendFrame(buf, NewSubscribe("a", "b"))
		require.NoError(t, err)
		assert.Equal(t, &buf[:1][0], &out[0])
	})

	t.Run("invalid message leaves dst alone", func(t *testing.T) {
		out, err := AppendFrame([]byte("keep"), NewSubscribe("", "b"))
		assert.ErrorIs(t, err, ErrMissingField)
		assert.Equal(t, "keep", string(out))
	})
}

func TestMessageString(t *testing.T) {
	assert.Equal(t, "#msg#c1#weather#sunny#", NewStandard("c1", "weather", "sunny").String())
	assert.Equal(t, "", NewSubscribe("", "weather").String())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "msg", KindStandard.String())
	assert.Equal(t, "sub", KindSubscribe.String())
	assert.Equal(t, "unsub", KindUnsubscribe.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{"valid standard", NewStandard("c1", "weather", "sunny"), nil},
		{"valid subscribe", NewSubscribe("c1", "weather"), nil},
		{"nil", nil, ErrNullMessage},
		{"missing topic", NewSubscribe("c1", ""), ErrMissingField},
		{"delimiter in client id", NewSubscribe("c#1", "weather"), ErrDelimiterInField},
		{"delimiter in topic", NewUnsubscribe("c1", "wea#ther"), ErrDelimiterInField},
		{"delimiter in body", NewStandard("c1", "weather", "50# off"), ErrDelimiterInField},
		{"oversized", NewStandard("c1", "weather", strings.Repeat("b", MaxMessageLength)), ErrOversizedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.msg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
