package main

import (
	"fmt"
	"net"
	"time"

	"github.com/aeolun/nanopubsub/pkg/journal"
	"github.com/aeolun/nanopubsub/pkg/printer"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		path   string
		topic  string
		limit  int
		all    bool
		source bool
		prune  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show messages recorded by listen --journal, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				p, err := a.cfg.JournalPath()
				if err != nil {
					return err
				}
				path = p
			}
			if path == "" {
				return fmt.Errorf("no journal configured: pass --journal or set journal.path")
			}

			jnl, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer jnl.Close()

			ctx := cmd.Context()
			if prune > 0 {
				n, err := jnl.Prune(ctx, time.Now().Add(-prune))
				if err != nil {
					return err
				}
				a.logger.Info().Int64("deleted", n).Dur("older_than", prune).Msg("journal pruned")
			}

			var entries []*journal.Entry
			if topic != "" {
				entries, err = jnl.ByTopic(ctx, topic, limit)
			} else {
				entries, err = jnl.Recent(ctx, limit)
			}
			if err != nil {
				return err
			}

			p := printer.New(cmd.OutOrStdout(), printer.Options{
				ShowAll:    all,
				Timestamps: true,
				ShowSource: source,
			})
			for i := len(entries) - 1; i >= 0; i-- {
				e := entries[i]
				msg, err := e.Message()
				if err != nil {
					a.logger.Warn().Err(err).Msg("skipping journal entry")
					continue
				}
				var from net.Addr
				if e.Source != "" {
					from = entrySource(e.Source)
				}
				if _, err := p.PrintAt(msg, from, e.ReceivedAt); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "journal", "", "journal file (default from config)")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "only show this topic")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries to show")
	cmd.Flags().BoolVar(&all, "all", false, "include subscribe and unsubscribe frames")
	cmd.Flags().BoolVar(&source, "source", false, "print the sender address")
	cmd.Flags().DurationVar(&prune, "prune", 0, "first delete entries older than this, e.g. 168h")
	return cmd
}

// entrySource is a recorded sender address, already in host:port form
type entrySource string

func (s entrySource) Network() string { return "udp" }
func (s entrySource) String() string  { return string(s) }
