package cmd

import "github.com/spf13/cobra"

// redisCmd groups utilities for the Redis rate-limit and conversation backends.
var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis backend utilities",
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
