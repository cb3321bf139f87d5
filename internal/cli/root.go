// Package cli holds the connprovctl command tree.
package cli

import (
	"github.com/danmuck/connprov/internal/logging"
	"github.com/spf13/cobra"
)

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:   "connprovctl",
		Short: "Exercise connprov providers from the command line",
		Long: `connprovctl talks to a connprovd instance over its TCP or local IPC
providers and manages daemon configuration files.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.ConfigureRuntime()
			if cmd.Flags().Changed("log-level") {
				logging.SetLevel(logLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error, disabled)")

	root.AddCommand(newPingCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}
