package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/consumer-puls/insights-scraper/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persisted product cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show [productId]",
	Short: "Show the cache size, or one accumulated product as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initKV(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c := cache.New(store)
		if err := c.Init(ctx); err != nil {
			return err
		}

		if len(args) == 0 {
			fmt.Printf("%d products in cache\n", c.Len())
			return nil
		}

		rec, ok := c.Product(args[0])
		if !ok {
			return eris.Errorf("product %q not in cache", args[0])
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal product")
		}
		fmt.Println(string(out))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every accumulated product and persist the empty cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initKV(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c := cache.New(store)
		if err := c.Init(ctx); err != nil {
			return err
		}

		n := c.Len()
		if err := c.Clear(ctx); err != nil {
			return err
		}
		fmt.Printf("cleared %d products\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
