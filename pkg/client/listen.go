package client

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/aeolun/nanopubsub/pkg/transport"
	"github.com/rs/zerolog"
)

// Handler is called for every message Listen receives. Returning an error
// stops Listen.
type Handler func(ctx context.Context, msg protocol.Message, from net.Addr) error

// Listen receives messages from r until ctx is done or the socket fails.
// Datagrams that do not parse are skipped. Cancellation returns nil.
func Listen(ctx context.Context, r Receiver, handle Handler, logger zerolog.Logger) error {
	var dropped uint64
	for {
		msg, from, err := r.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Uint64("dropped", dropped).Msg("listener stopped")
				return nil
			}
			if transport.StageOf(err) == transport.StageParse {
				dropped++
				logger.Debug().Err(err).Msg("skipping datagram")
				continue
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, transport.ErrClosed) {
				logger.Info().Msg("listener socket closed")
				return nil
			}
			logger.Error().Err(err).Msg("receive failed")
			return fmt.Errorf("listen: %w", err)
		}

		if err := handle(ctx, msg, from); err != nil {
			return fmt.Errorf("listen: handle %s from %v: %w", msg.Kind(), from, err)
		}
	}
}
