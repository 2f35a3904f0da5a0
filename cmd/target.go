package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loadq/internal/dummy"
)

func newTargetCmd() *cobra.Command {
	targetCmd := &cobra.Command{
		Use:   "target",
		Short: "Run a local HTTP server to aim test runs at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetInt("port")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := dummy.Start(ctx, dummy.ServerConfig{Port: port}); err != nil {
				return exitWith(1, err)
			}
			return nil
		},
	}

	targetCmd.Flags().IntP("port", "p", 8080, "port to listen on")

	return targetCmd
}
