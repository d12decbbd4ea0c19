package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aeolun/nanopubsub/pkg/client"
	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/aeolun/nanopubsub/pkg/transport"
	"github.com/spf13/cobra"
)

const sendTimeout = 5 * time.Second

type sendKind struct {
	use   string
	short string
	body  bool
	send  func(ctx context.Context, p *client.Publisher, topic, body string) (int, error)
}

var (
	sendMsg = sendKind{
		use:   "msg",
		short: "Publish a message on a topic",
		body:  true,
		send: func(ctx context.Context, p *client.Publisher, topic, body string) (int, error) {
			return p.Publish(ctx, topic, body)
		},
	}
	sendSub = sendKind{
		use:   "sub",
		short: "Subscribe to a topic",
		send: func(ctx context.Context, p *client.Publisher, topic, _ string) (int, error) {
			return p.Subscribe(ctx, topic)
		},
	}
	sendUnsub = sendKind{
		use:   "unsub",
		short: "Unsubscribe from a topic",
		send: func(ctx context.Context, p *client.Publisher, topic, _ string) (int, error) {
			return p.Unsubscribe(ctx, topic)
		},
	}
)

// destFlags are the flags shared by every command that sends
type destFlags struct {
	host     string
	port     int
	clientID string
}

func (d *destFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.host, "host", "", "destination host, IPv4 only (default from config, \"localhost\")")
	cmd.Flags().IntVarP(&d.port, "port", "p", 0, "destination port (default from config, 11011)")
	cmd.Flags().StringVarP(&d.clientID, "clientid", "i", "", "client id, must not contain '#' (default from config)")
}

// publisher fills unset flags from the config and opens a publisher
func (d *destFlags) publisher(a *app) (*client.Publisher, *transport.Conn, error) {
	host := d.host
	if host == "" {
		host = a.cfg.Network.Host
	}
	port := d.port
	if port == 0 {
		port = a.cfg.Network.Port
	}
	if port == 0 {
		port = protocol.DefaultPort
	}
	clientID := d.clientID
	if clientID == "" {
		clientID = a.cfg.Client.ClientID
	}
	if err := client.ValidateClientID(clientID); err != nil {
		return nil, nil, err
	}

	dst, err := transport.ResolveDestination(host, port)
	if err != nil {
		return nil, nil, err
	}
	conn, err := transport.Dial(dst.String(), transport.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	pub, err := client.New(clientID, conn, nil)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return pub, conn, nil
}

func newSendCmd(a *app, kind sendKind) *cobra.Command {
	var (
		dest  destFlags
		topic string
		body  string
	)

	cmd := &cobra.Command{
		Use:   kind.use,
		Short: kind.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, conn, err := dest.publisher(a)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
			defer cancel()

			n, err := kind.send(ctx, pub, topic, body)
			if err != nil {
				return fmt.Errorf("failed to send: %w", err)
			}
			a.logger.Debug().
				Str("kind", kind.use).
				Str("topic", topic).
				Stringer("to", conn.RemoteAddr()).
				Msg("sent")
			fmt.Fprintf(cmd.OutOrStdout(), "The message was successfully sent (%d bytes).\n", n)
			return nil
		},
	}

	dest.register(cmd)
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "topic")
	_ = cmd.MarkFlagRequired("topic")
	if kind.body {
		cmd.Flags().StringVarP(&body, "body", "b", "", "message body")
		_ = cmd.MarkFlagRequired("body")
	}
	return cmd
}
