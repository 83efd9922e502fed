package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cadence/internal/poster"
	"cadence/pkg/clients"
)

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete a post by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadConfig(flags)
			if err := cfg.ValidateX(); err != nil {
				return err
			}
			breaker := clients.DefaultCircuitBreakerConfig()
			breaker.Name = "x-api"
			p := poster.NewXPoster(poster.XConfig{
				BaseURL:     cfg.XBaseURL,
				Credentials: cfg.X,
				Breaker:     breaker,
			}, logger)
			if err := p.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
