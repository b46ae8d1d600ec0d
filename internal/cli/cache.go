package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the API response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size",
	Args:  cobra.NoArgs,
	Run:   runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [owner/repo]",
	Short: "Delete cached responses",
	Long: `Delete cached API responses. With a repository argument only the
responses of that repository are removed.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	stats, err := c.Client.CacheStats()
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Cache:    %s\n", c.Config.CachePath())
	fmt.Printf("Entries:  %d\n", stats.Files)
	fmt.Printf("Size:     %s\n", stats.HumanSize())
	fmt.Printf("Lifetime: %s\n", c.Config.CacheTTL())
}

func runCacheClear(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	if len(args) == 1 {
		r, err := c.Engine.Repository(args[0])
		if err != nil {
			exitError("%v", err)
		}
		if err := c.Client.ClearRepositoryCache(r.Owner, r.Repo); err != nil {
			exitError("%v", err)
		}
		color.New(color.FgGreen).Printf("Cleared cached responses of '%s'\n", r.Key())
		return
	}

	n, err := c.Client.ClearCache()
	if err != nil {
		exitError("%v", err)
	}
	color.New(color.FgGreen).Printf("Cleared %d cached response(s)\n", n)
}
