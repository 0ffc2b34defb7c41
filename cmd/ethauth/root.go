package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-ethauth/config"
)

// NewRootCmd creates the root command for the ethauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ethauth",
		Short: "Ethereum signature authentication service",
		Long: `ethauth authenticates users by the Ethereum address that signs a
one-time nonce, and issues JWT session tokens.`,
		SilenceUsage: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load("", cmd.Flags())
}
