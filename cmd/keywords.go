package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"mentionwatch/internal/model"

	"github.com/spf13/cobra"
)

var (
	kwTenant    string
	kwPlatforms []string
	kwFrequency string
	kwStart     bool
)

// keywordsCmd groups keyword management subcommands.
var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage monitored keywords",
}

var keywordsAddCmd = &cobra.Command{
	Use:   "add <keyword>",
	Short: "Add a keyword, optionally starting monitoring right away",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := context.Background()
		kw, err := a.monitor.AddKeyword(ctx, kwTenant, args[0], kwPlatforms, model.Frequency(kwFrequency))
		if err != nil {
			return err
		}
		if kwStart {
			if err := a.monitor.StartMonitoring(ctx, kw.ID, kwTenant); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added keyword %q (%s) id=%s\n", kw.Text, kw.Frequency, kw.ID)
		return nil
	},
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keywords for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()
		kws, err := a.monitor.ListKeywords(context.Background(), kwTenant)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKEYWORD\tFREQUENCY\tACTIVE\tPLATFORMS\tNEXT SCAN")
		for _, k := range kws {
			next := "-"
			if k.NextScanAt != nil {
				next = k.NextScanAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", k.ID, k.Text, k.Frequency, k.IsActive, strings.Join(k.Platforms, ","), next)
		}
		return tw.Flush()
	},
}

var keywordsStartCmd = &cobra.Command{
	Use:   "start <keyword-id>",
	Short: "Start monitoring a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMonitor(func(ctx context.Context, a *app) error {
			if err := a.monitor.StartMonitoring(ctx, args[0], kwTenant); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Monitoring started for %s\n", args[0])
			return nil
		})
	},
}

var keywordsStopCmd = &cobra.Command{
	Use:   "stop <keyword-id>",
	Short: "Stop monitoring a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMonitor(func(ctx context.Context, a *app) error {
			if err := a.monitor.StopMonitoring(ctx, args[0], kwTenant); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Monitoring stopped for %s\n", args[0])
			return nil
		})
	},
}

func withMonitor(fn func(context.Context, *app) error) error {
	a, err := newApp(GetConfig())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func init() {
	keywordsCmd.PersistentFlags().StringVar(&kwTenant, "tenant", "default", "tenant id")
	keywordsAddCmd.Flags().StringSliceVar(&kwPlatforms, "platforms", nil, "platforms to monitor (default: monitor.default_platforms)")
	keywordsAddCmd.Flags().StringVar(&kwFrequency, "frequency", string(model.FrequencyHourly), "realtime, hourly or daily")
	keywordsAddCmd.Flags().BoolVar(&kwStart, "start", false, "start monitoring immediately")
	keywordsCmd.AddCommand(keywordsAddCmd, keywordsListCmd, keywordsStartCmd, keywordsStopCmd)
	rootCmd.AddCommand(keywordsCmd)
}
