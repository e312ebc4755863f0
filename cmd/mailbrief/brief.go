package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nhle/mailbrief/internal/brief"
	"github.com/nhle/mailbrief/internal/cache"
	"github.com/nhle/mailbrief/internal/classify"
	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/search"
)

// BriefCommand returns the brief command.
func BriefCommand() *cli.Command {
	return &cli.Command{
		Name:  "brief",
		Usage: "Classify recent mail and write the brief exchange document",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "since",
				Usage: "Window to cover (e.g. 1d, 12h, \"last week\", 2025-03-01)",
				Value: "1d",
			},
			&cli.BoolFlag{
				Name:  "bypass-cache",
				Usage: "Ignore cached classifications (results are still written back)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the exchange document to `FILE` (default stdout)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of messages to load (default from config)",
			},
		},
		Action: runBrief,
	}
}

func runBrief(c *cli.Context) error {
	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}

	window, ok := search.ParseSince(c.String("since"), time.Now())
	if !ok {
		return fmt.Errorf("invalid --since value %q", c.String("since"))
	}

	src, err := rt.openArchive()
	if err != nil {
		return err
	}
	defer src.Close()

	s, err := rt.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	client, err := rt.aiClient()
	if err != nil {
		return err
	}

	limit := rt.cfg.Archive.MaxRecords
	if c.IsSet("limit") {
		limit = c.Int("limit")
	}

	classifier := classify.New(client, cache.New(s, rt.logger), rt.logger)
	runner := brief.NewRunner(src, classifier, s, rt.logger)

	res, err := runner.Run(c.Context, window, brief.Options{
		Limit:    limit,
		Thread:   rt.threadOptions(),
		Classify: rt.classifyOptions(c.Bool("bypass-cache")),
	})
	if errors.Is(err, model.ErrNoItems) {
		rt.logger.Warn().Str("since", c.String("since")).Msg("no messages in window")
		return fmt.Errorf("nothing to brief since %s: %w", c.String("since"), err)
	}
	if err != nil {
		return err
	}

	for _, itemErr := range res.Report.Errors {
		rt.logger.Warn().
			Str("key", itemErr.Key).
			Str("kind", string(itemErr.Kind)).
			Err(itemErr.Err).
			Msg("item fell back")
	}

	var out io.Writer = c.App.Writer
	if path := c.String("output"); path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := brief.WriteExchange(out, brief.Exchange(res)); err != nil {
		return err
	}

	rt.logger.Info().
		Str("run_id", res.RunID).
		Int("records", res.Records).
		Int("items", len(res.Items)).
		Int("cache_hits", res.Report.CacheHits).
		Int("label_matches", res.Report.LabelMatches).
		Int("service_calls", res.Report.ServiceCalls).
		Int("fallbacks", res.Report.Fallbacks).
		Str("cost", fmt.Sprintf("$%.4f", res.Report.Cost)).
		Msg("brief complete")

	return nil
}
