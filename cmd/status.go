package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusTenant string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitoring status for a tenant's keywords",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMonitor(func(ctx context.Context, a *app) error {
			st, err := a.monitor.GetMonitoringStatus(ctx, statusTenant)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEYWORD\tACTIVE\tPLATFORMS\tLAST RUN\tNEXT IN\tLAST ERROR")
			for _, s := range st {
				last := "-"
				if s.LastRun != nil {
					last = s.LastRun.Local().Format(time.DateTime)
				}
				next := "-"
				if s.IsActive {
					next = (time.Duration(s.NextScanIn) * time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\n", s.Keyword, s.IsActive, strings.Join(s.Platforms, ","), last, next, s.LastError)
			}
			return tw.Flush()
		})
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "default", "tenant id")
	rootCmd.AddCommand(statusCmd)
}
