package cmd

import (
	"context"
	"encoding/json"

	"mentionwatch/internal/model"

	"github.com/spf13/cobra"
)

var (
	scanTenant    string
	scanPlatforms []string
)

// scanCmd runs one keyword scan immediately and prints the per-platform results.
var scanCmd = &cobra.Command{
	Use:   "scan <keyword-id>",
	Short: "Scan a keyword across its platforms now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		var results []model.ScanResult
		err = a.tracker.Run(context.Background(), args[0], scanTenant, func(ctx context.Context) error {
			var err error
			results, err = a.monitor.ScanKeyword(ctx, args[0], scanTenant, scanPlatforms)
			return err
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanTenant, "tenant", "default", "tenant id")
	scanCmd.Flags().StringSliceVar(&scanPlatforms, "platforms", nil, "platforms to scan (default: the keyword's own list)")
	rootCmd.AddCommand(scanCmd)
}
