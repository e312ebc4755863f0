package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nhle/mailbrief/internal/cache"
)

// CacheCommand returns the cache command.
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or reset the classification cache",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show cache size, spend and recent runs",
				Action: runCacheStats,
			},
			{
				Name:   "clear",
				Usage:  "Delete every cached classification",
				Action: runCacheClear,
			},
		},
	}
}

func runCacheStats(c *cli.Context) error {
	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}

	s, err := rt.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := cache.New(s, rt.logger).Stats(c.Context, false)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Cache: %s\n", rt.cfg.Cache.DBPath)
	fmt.Fprintf(w, "  entries:    %d\n", stats.Entries)
	fmt.Fprintf(w, "  total cost: $%.4f\n", stats.TotalCost)
	if stats.Entries > 0 {
		fmt.Fprintf(w, "  oldest:     %s\n", stats.Oldest.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "  newest:     %s\n", stats.Newest.Local().Format("2006-01-02 15:04"))
	}

	runs, err := s.GetRecentRuns(c.Context, 5)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		fmt.Fprintln(w, "Recent runs:")
		for _, r := range runs {
			fmt.Fprintf(w, "  %s  %-6s items=%d hits=%d labels=%d calls=%d fallbacks=%d cost=$%.4f\n",
				r.StartedAt.Local().Format("2006-01-02 15:04"), r.Kind,
				r.Items, r.CacheHits, r.LabelMatches, r.ServiceCalls, r.Fallbacks, r.Cost)
		}
	}
	return nil
}

func runCacheClear(c *cli.Context) error {
	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}

	s, err := rt.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := cache.New(s, rt.logger).Clear(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Removed %d cached classifications\n", n)
	return nil
}
