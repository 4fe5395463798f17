package main

import (
	"fmt"
	"time"

	"photo-discovery/internal/config"
	"photo-discovery/internal/database"

	"github.com/spf13/cobra"
)

func newStatsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the effective configuration and stored artifact counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			config.LogStartup()
			cfg.Log()

			out := cmd.OutOrStdout()
			info := config.GetBuildInfo()
			fmt.Fprintf(out, "version:  %s (%s, %s/%s)\n", info.Version, info.GoVersion, info.OS, info.Arch)

			if cfg.DatabasePath == "" {
				fmt.Fprintln(out, "database: disabled")
				return nil
			}

			ctx := cmd.Context()
			store, err := database.Open(ctx, cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintf(out, "database: %s\n", store.Path())
			for _, kind := range []string{kindThumbnail, kindMetadata, kindValidation} {
				n, err := store.Count(ctx, kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %-11s %d\n", kind+":", n)
			}

			last, err := store.GetLastPruneRun(ctx)
			if err != nil {
				return err
			}
			if last.IsZero() {
				fmt.Fprintln(out, "last prune: never")
			} else {
				fmt.Fprintf(out, "last prune: %s\n", last.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}
