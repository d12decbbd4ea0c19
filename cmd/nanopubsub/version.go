package main

import (
	"fmt"

	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=x.y.z"
var version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the nanopubsub version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "nanopubsub version %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "protocol: max frame %d bytes, default port %d\n",
				protocol.MaxMessageLength, protocol.DefaultPort)
			return nil
		},
	}
}
