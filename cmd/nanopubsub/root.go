package main

import (
	"fmt"

	"github.com/aeolun/nanopubsub/pkg/config"
	"github.com/aeolun/nanopubsub/pkg/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds state shared by every subcommand, filled in by PersistentPreRunE
type app struct {
	cfgFile string
	debug   bool

	cfg    config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "nanopubsub",
		Short: "Send and listen for nanoPubSub messages over UDP",
		Long: `nanopubsub is a small client for the nanoPubSub text protocol.
It publishes, subscribes and unsubscribes on behalf of a client id, and
listens for frames arriving on a UDP port.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgFile
			if path == "" {
				path = config.DefaultPath
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			a.cfg = cfg
			a.logger = observability.InitLogger("nanopubsub", a.debug, cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ~/.nanopubsub/config.toml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newListenCmd(a),
		newSendCmd(a, sendMsg),
		newSendCmd(a, sendSub),
		newSendCmd(a, sendUnsub),
		newBenchCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}
