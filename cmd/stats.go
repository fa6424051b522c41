package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/consumer-puls/insights-scraper/internal/kv"
	"github.com/consumer-puls/insights-scraper/internal/monitor"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the persisted run counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initKV(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		var stats monitor.Stats
		found, err := kv.GetJSON(ctx, store, kv.KeyStats, &stats)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("no stats recorded yet")
			return nil
		}

		fmt.Println(stats.Summarize().Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
