package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aeolun/nanopubsub/pkg/client"
	"github.com/aeolun/nanopubsub/pkg/config"
	"github.com/aeolun/nanopubsub/pkg/journal"
	"github.com/aeolun/nanopubsub/pkg/observability"
	"github.com/aeolun/nanopubsub/pkg/printer"
	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/aeolun/nanopubsub/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type listenFlags struct {
	port        int
	bind        string
	all         bool
	noTimestamp bool
	source      bool
	strict      bool
	journalPath string
	metricsAddr string
}

func newListenCmd(a *app) *cobra.Command {
	var f listenFlags

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print nanoPubSub messages arriving on a UDP port",
		Long: `listen binds a UDP port and prints every standard message it receives,
one frame per line. Subscribe and unsubscribe frames are printed with --all.
Datagrams that are not valid frames are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runListen(ctx, cmd, a, f)
		},
	}

	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "port to listen on (default from config, 11011)")
	cmd.Flags().StringVar(&f.bind, "bind", "", "address to bind (default from config, \"0.0.0.0\")")
	cmd.Flags().BoolVar(&f.all, "all", false, "print subscribe and unsubscribe frames too")
	cmd.Flags().BoolVar(&f.noTimestamp, "no-timestamp", false, "omit the receive time")
	cmd.Flags().BoolVar(&f.source, "source", false, "print the sender address")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "drop datagrams with bytes after the closing delimiter")
	cmd.Flags().StringVar(&f.journalPath, "journal", "", "record received messages in this SQLite file")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// merge applies the config under any flag the user did not set
func (f listenFlags) merge(cmd *cobra.Command, cfg config.Config) (listenFlags, error) {
	if f.port == 0 {
		f.port = cfg.Network.Port
	}
	if f.port == 0 {
		f.port = protocol.DefaultPort
	}
	if f.bind == "" {
		f.bind = cfg.Network.Bind
	}
	if !cmd.Flags().Changed("all") {
		f.all = cfg.Listen.ShowAll
	}
	if !cmd.Flags().Changed("no-timestamp") {
		f.noTimestamp = !cfg.Listen.Timestamps
	}
	if !cmd.Flags().Changed("strict") {
		f.strict = cfg.Listen.Strict
	}
	if f.journalPath == "" {
		path, err := cfg.JournalPath()
		if err != nil {
			return f, err
		}
		f.journalPath = path
	}
	if f.metricsAddr == "" {
		f.metricsAddr = cfg.Metrics.Addr
	}
	return f, nil
}

func runListen(ctx context.Context, cmd *cobra.Command, a *app, f listenFlags) error {
	f, err := f.merge(cmd, a.cfg)
	if err != nil {
		return err
	}
	logger := a.logger.With().Str("component", "listen").Logger()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	if f.metricsAddr != "" {
		go func() {
			logger.Info().Str("addr", f.metricsAddr).Msg("serving metrics")
			if err := observability.Serve(ctx, f.metricsAddr, reg); err != nil {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	var jnl *journal.Journal
	if f.journalPath != "" {
		jnl, err = journal.Open(f.journalPath)
		if err != nil {
			return err
		}
		defer jnl.Close()
		logger.Info().Str("path", f.journalPath).Msg("journal opened")
	}

	conn, err := transport.Listen(
		net.JoinHostPort(f.bind, strconv.Itoa(f.port)),
		transport.WithLogger(a.logger.With().Str("component", "transport").Logger()),
		transport.WithMetrics(metrics),
		transport.WithDecoder(protocol.Decoder{Strict: f.strict}),
	)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Stringer("addr", conn.LocalAddr()).Bool("strict", f.strict).Msg("listening")

	p := printer.New(cmd.OutOrStdout(), printer.Options{
		ShowAll:    f.all,
		Timestamps: !f.noTimestamp,
		ShowSource: f.source,
	})

	return client.Listen(ctx, conn, func(ctx context.Context, msg protocol.Message, from net.Addr) error {
		if jnl != nil {
			if _, err := jnl.Record(ctx, msg, from, time.Now()); err != nil {
				logger.Error().Err(err).Msg("journal write failed")
			}
		}
		if _, err := p.Print(msg, from); err != nil {
			return fmt.Errorf("print: %w", err)
		}
		return nil
	}, logger)
}
