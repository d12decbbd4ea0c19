// Package transport carries nanoPubSub frames over UDP, exactly one frame
// per datagram. Framing is delegated to the protocol package.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aeolun/nanopubsub/pkg/observability"
	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Conn sends and receives nanoPubSub messages over a packet connection
type Conn struct {
	pc      net.PacketConn
	remote  net.Addr // default destination, set by Dial
	decoder protocol.Decoder
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	closed bool
}

// Option configures a Conn
type Option func(*Conn)

// WithLogger sets the logger used for discarded datagrams
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// WithDecoder replaces the default (non-strict) frame decoder
func WithDecoder(d protocol.Decoder) Option {
	return func(c *Conn) { c.decoder = d }
}

// WithMetrics records traffic in m
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithRemote sets the destination used when Send is given a nil address
func WithRemote(addr net.Addr) Option {
	return func(c *Conn) { c.remote = addr }
}

// New wraps an existing packet connection
func New(pc net.PacketConn, opts ...Option) *Conn {
	c := &Conn{
		pc:     pc,
		logger: log.Logger.With().Str("component", "transport").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveDestination looks up host as an IPv4 address and pairs it with
// port.
func ResolveDestination(host string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("nanopubsub transport: resolve %s: %w", host, err)
	}
	return addr, nil
}

// Dial opens an unbound UDP socket whose default destination is addr
// (host:port).
func Dial(addr string, opts ...Option) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("nanopubsub transport: resolve %s: %w", addr, err)
	}
	pc, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("nanopubsub transport: open socket: %w", err)
	}
	return New(pc, append([]Option{WithRemote(raddr)}, opts...)...), nil
}

// Listen binds a UDP socket to addr (host:port, host may be empty)
func Listen(addr string, opts ...Option) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("nanopubsub transport: resolve %s: %w", addr, err)
	}
	pc, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("nanopubsub transport: listen %s: %w", addr, err)
	}
	return New(pc, opts...), nil
}

// Send transmits msg as one datagram to dst, or to the dialled peer when
// dst is nil, and returns the byte count reported by the socket.
//
// An invalid message, or one whose frame exceeds protocol.MaxMessageLength,
// is never transmitted: Send returns 0 and an *OpError with StageSerialize
// wrapping the codec error.
func (c *Conn) Send(ctx context.Context, dst net.Addr, msg protocol.Message) (int, error) {
	if dst == nil {
		dst = c.remote
	}

	length, err := protocol.Length(msg)
	if err != nil {
		return 0, c.sendError(StageSerialize, dst, err)
	}
	if length > protocol.MaxMessageLength {
		err := fmt.Errorf("%w: frame is %d bytes", protocol.ErrOversizedInput, length)
		return 0, c.sendError(StageSerialize, dst, err)
	}

	buf := make([]byte, length)
	if _, err := protocol.Serialize(msg, buf); err != nil {
		return 0, c.sendError(StageSerialize, dst, err)
	}

	if c.isClosed() {
		return 0, c.sendError(StageTransmit, dst, ErrClosed)
	}
	if dst == nil {
		return 0, c.sendError(StageTransmit, nil, ErrNoDestination)
	}
	if err := ctx.Err(); err != nil {
		return 0, c.sendError(StageTransmit, dst, err)
	}

	// Respect context deadline.
	deadline, _ := ctx.Deadline()
	if err := c.pc.SetWriteDeadline(deadline); err != nil {
		return 0, c.sendError(StageTransmit, dst, err)
	}

	n, err := c.pc.WriteTo(buf, dst)
	if err != nil {
		return 0, c.sendError(StageTransmit, dst, err)
	}

	c.metrics.RecordSent(msg.Kind(), n)
	return n, nil
}

func (c *Conn) sendError(stage Stage, dst net.Addr, err error) error {
	c.metrics.RecordSendError(string(stage))
	return &OpError{Op: "send", Stage: stage, Addr: dst, Err: err}
}

// Recv blocks until one datagram arrives and returns the message it holds
// together with the sender's address. At most protocol.MaxMessageLength
// bytes of a datagram are read; the socket discards the rest.
//
// A datagram that does not parse is dropped and reported as an *OpError
// with StageParse. Socket and context failures use StageReceive.
func (c *Conn) Recv(ctx context.Context) (protocol.Message, net.Addr, error) {
	if c.isClosed() {
		return nil, nil, &OpError{Op: "recv", Stage: StageReceive, Err: ErrClosed}
	}

	// Return immediately if the context is already done.
	if err := ctx.Err(); err != nil {
		return nil, nil, &OpError{Op: "recv", Stage: StageReceive, Err: err}
	}

	deadline, hasDeadline := ctx.Deadline()
	if err := c.pc.SetReadDeadline(deadline); err != nil {
		return nil, nil, &OpError{Op: "recv", Stage: StageReceive, Err: err}
	}

	// Cancellation without a deadline still has to unblock the read: expire
	// the read deadline when ctx is done. The watcher has exited before Recv
	// returns, so it cannot expire the deadline of a later call.
	if ctx.Done() != nil {
		readDone := make(chan struct{})
		watcherDone := make(chan struct{})
		go func() {
			defer close(watcherDone)
			select {
			case <-ctx.Done():
				_ = c.pc.SetReadDeadline(time.Now())
			case <-readDone:
			}
		}()
		defer func() {
			close(readDone)
			<-watcherDone
		}()
	}

	var buf [protocol.MaxMessageLength]byte
	n, from, err := c.pc.ReadFrom(buf[:])
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else if hasDeadline && errors.Is(err, os.ErrDeadlineExceeded) {
			// The socket timer can fire before the context's own timer.
			err = context.DeadlineExceeded
		}
		return nil, from, &OpError{Op: "recv", Stage: StageReceive, Addr: from, Err: err}
	}

	msg, err := c.decoder.Parse(buf[:n])
	if err != nil {
		c.metrics.RecordDropped(err, n)
		c.logger.Debug().Err(err).Stringer("from", from).Int("bytes", n).Msg("discarding datagram")
		return nil, from, &OpError{Op: "recv", Stage: StageParse, Addr: from, Err: err}
	}

	c.metrics.RecordReceived(msg.Kind(), n)
	return msg, from, nil
}

// Close closes the underlying connection. Blocked Recv calls return an
// error. Calling Close more than once is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.pc.Close()
}

// LocalAddr returns the local network address of the underlying connection
func (c *Conn) LocalAddr() net.Addr {
	return c.pc.LocalAddr()
}

// RemoteAddr returns the default destination, nil for listening conns
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
