package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mentionwatch/internal/api"
	"mentionwatch/internal/trends"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	trendsTenant string
	trendsWindow string
	trendsFormat string
	trendsOpts   trends.Options
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Analyze trending topics, story clusters and sentiment shifts",
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := api.ParseWindow(trendsWindow)
		if err != nil {
			return fmt.Errorf("--window: %w", err)
		}
		opts := trendsOpts
		opts.Window = window
		return withMonitor(func(ctx context.Context, a *app) error {
			rep, err := a.trends.AnalyzeTrends(ctx, trendsTenant, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(trendsFormat) {
			case "yaml", "yml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(rep)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			default:
				return fmt.Errorf("--format: unsupported %q", trendsFormat)
			}
		})
	},
}

func init() {
	trendsCmd.Flags().StringVar(&trendsTenant, "tenant", "default", "tenant id")
	trendsCmd.Flags().StringVar(&trendsWindow, "window", "7d", "analysis window, e.g. 48h or 7d")
	trendsCmd.Flags().StringVar(&trendsFormat, "format", "json", "output format: json or yaml")
	trendsCmd.Flags().IntVar(&trendsOpts.MinConversations, "min-conversations", trends.DefaultMinConversations, "minimum conversations per topic")
	trendsCmd.Flags().Float64Var(&trendsOpts.MinRelevance, "min-relevance", 0, "minimum relevance score in [0,1]")
	trendsCmd.Flags().IntVar(&trendsOpts.MaxResults, "max-results", trends.DefaultMaxResults, "maximum entries per report section")
	rootCmd.AddCommand(trendsCmd)
}
