package cmd

import (
	"context"
	"fmt"

	"mentionwatch/internal/redisclient"

	"github.com/spf13/cobra"
)

// pingCmd pings the configured Redis server.
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping Redis and print PONG with the round-trip time",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		rdb := redisclient.New(cfg.Redis)
		defer rdb.Close()

		latency, err := redisclient.Ping(context.Background(), rdb)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "PONG %s (%s)\n", cfg.Redis.Addr, latency)
		return nil
	},
}

func init() {
	redisCmd.AddCommand(pingCmd)
}
