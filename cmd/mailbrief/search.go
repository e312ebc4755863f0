package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/search"
)

// SearchCommand returns the search command.
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Ask a question about the archive or find messages",
		ArgsUsage: "\"<query>\"",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "since",
				Usage: "Only consider mail since this point (overrides dates in the query)",
			},
			&cli.StringSliceFlag{
				Name:  "from",
				Usage: "Restrict to a sender (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "list-only",
				Usage: "Show ranked messages without synthesizing an answer",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of ranked results to show (default from config)",
			},
			&cli.BoolFlag{
				Name:  "include-low-value",
				Usage: "Also search promotional and notification mail",
			},
		},
		Action: runSearch,
	}
}

func runSearch(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a search query is required")
	}

	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}

	src, err := rt.openArchive()
	if err != nil {
		return err
	}
	defer src.Close()

	client, err := rt.aiClient()
	if err != nil {
		return err
	}

	ctx := c.Context
	if rt.cfg.Search.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.Search.QueryTimeout)
		defer cancel()
	}

	opts := rt.searchOptions()
	if c.IsSet("limit") && c.Int("limit") > 0 {
		opts.TopK = c.Int("limit")
	}
	opts.IncludeExcluded = c.Bool("include-low-value")

	started := time.Now()
	orch := search.NewOrchestrator(client, src, rt.logger).WithLimit(rt.cfg.Archive.MaxRecords)
	res, err := orch.Search(ctx, search.Request{
		Query:    query,
		Since:    c.String("since"),
		From:     c.StringSlice("from"),
		ListOnly: c.Bool("list-only"),
	}, opts)
	if err != nil {
		return err
	}

	recordSearchRun(c, rt, res, started)
	printSearchResult(c.App.Writer, res)
	return nil
}

// recordSearchRun stores the run summary. Failures only log: the search
// itself already succeeded.
func recordSearchRun(c *cli.Context, rt *runtime, res search.Result, started time.Time) {
	s, err := rt.openStore()
	if err != nil {
		rt.logger.Warn().Err(err).Msg("recording search run failed")
		return
	}
	defer s.Close()

	run := model.RunRecord{
		ID:           res.RunID,
		Kind:         model.RunKindSearch,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Items:        len(res.Candidates),
		ServiceCalls: searchCalls(res),
		Cost:         res.Cost,
	}
	if err := s.RecordRun(context.WithoutCancel(c.Context), run); err != nil {
		rt.logger.Warn().Err(err).Msg("recording search run failed")
	}
}

func searchCalls(res search.Result) int {
	calls := 1
	if res.Synthesized {
		calls++
	}
	return calls
}

func printSearchResult(w io.Writer, res search.Result) {
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "note: %s\n", warning)
	}

	if len(res.Candidates) == 0 {
		fmt.Fprintln(w, "No matching messages.")
		return
	}

	if res.Synthesized {
		fmt.Fprintf(w, "\n%s\n", res.Answer)
		if len(res.Citations) > 0 {
			fmt.Fprintln(w, "\nSources:")
			for _, cit := range res.Citations {
				fmt.Fprintf(w, "  - %s [%s]\n", cit.Claim, strings.Join(cit.SourceIDs, ", "))
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Top %d messages:\n", len(res.Candidates))
	for i, cand := range res.Candidates {
		rec := cand.Record
		fmt.Fprintf(w, "%2d. %s | %s | %s\n",
			i+1, rec.Timestamp.Local().Format("2006-01-02"), rec.Sender(), rec.Subject)
		if cand.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", cand.Snippet)
		}
		if rec.Link != "" {
			fmt.Fprintf(w, "    %s\n", rec.Link)
		}
	}
	fmt.Fprintf(w, "\ncost: $%.4f\n", res.Cost)
}
