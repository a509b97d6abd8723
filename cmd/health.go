package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"mentionwatch/internal/redisclient"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check storage and validate every configured platform adapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMonitor(func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			if err := a.sqlite.Ping(ctx); err != nil {
				return fmt.Errorf("sqlite: %w", err)
			}
			fmt.Fprintln(out, "sqlite: ok")
			if a.rdb != nil {
				latency, err := redisclient.Ping(ctx, a.rdb)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "redis: ok (%s)\n", latency)
			}

			health := a.registry.Health(ctx)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLATFORM\tCONFIGURED")
			failed := 0
			for _, p := range a.registry.Platforms() {
				fmt.Fprintf(tw, "%s\t%t\n", p, health[p])
				if !health[p] {
					failed++
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d platform(s) failed validation", failed)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
