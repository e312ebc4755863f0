package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/nhle/mailbrief/internal/ai"
	"github.com/nhle/mailbrief/internal/cache"
	"github.com/nhle/mailbrief/internal/classify"
	"github.com/nhle/mailbrief/internal/credential"
	"github.com/nhle/mailbrief/internal/logging"
	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/search"
	"github.com/nhle/mailbrief/internal/source/archive"
	"github.com/nhle/mailbrief/internal/store"
	"github.com/nhle/mailbrief/internal/thread"
)

// runtime bundles what every command needs after flag parsing.
type runtime struct {
	cfg    *model.AppConfig
	logger zerolog.Logger
}

func loadRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := model.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if l := c.String("log-level"); l != "" {
		level = l
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger}, nil
}

func (rt *runtime) openStore() (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(rt.cfg.Cache.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	s, err := store.NewSQLiteStore(rt.cfg.Cache.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", rt.cfg.Cache.DBPath, err)
	}
	return s, nil
}

func (rt *runtime) openArchive() (*archive.Archive, error) {
	return archive.Open(archive.Config{
		DBPath:      rt.cfg.Archive.DBPath,
		MailDir:     rt.cfg.Archive.MailDir,
		LinkBaseURL: rt.cfg.Archive.LinkBaseURL,
	}, rt.logger)
}

func (rt *runtime) aiClient() (*ai.Client, error) {
	key, err := credential.APIKey()
	if err != nil {
		return nil, err
	}

	retry := ai.DefaultRetryConfig()
	retry.MaxRetries = rt.cfg.AI.MaxRetries

	return ai.New(key, ai.Config{
		Model:             rt.cfg.AI.Model,
		MaxTokens:         rt.cfg.AI.MaxTokens,
		BaseURL:           rt.cfg.AI.BaseURL,
		ServiceVersion:    rt.cfg.AI.ServiceVersion,
		RequestsPerSecond: rt.cfg.AI.RequestsPerSecond,
		Retry:             retry,
	}, rt.logger), nil
}

func (rt *runtime) cachePolicy(bypass bool) cache.Policy {
	return cache.Policy{
		Bypass:              bypass,
		ServiceVersion:      rt.cfg.AI.ServiceVersion,
		VersionInvalidation: rt.cfg.Cache.VersionInvalidation,
	}
}

func (rt *runtime) classifyOptions(bypass bool) classify.Options {
	return classify.Options{
		Concurrency:  rt.cfg.Classifier.Concurrency,
		CallTimeout:  rt.cfg.Classifier.CallTimeout,
		MaxBodyChars: rt.cfg.Classifier.MaxBodyChars,
		Cache:        rt.cachePolicy(bypass),
	}
}

func (rt *runtime) threadOptions() thread.Options {
	return thread.Options{SubjectWindow: rt.cfg.Classifier.SubjectWindow}
}

func (rt *runtime) searchOptions() search.Options {
	o := search.DefaultOptions()
	o.MaxCandidates = rt.cfg.Search.MaxCandidates
	o.TopK = rt.cfg.Search.TopK
	o.SynthSources = rt.cfg.Search.SynthSources
	o.KeywordWeight = rt.cfg.Search.KeywordWeight
	o.SenderWeight = rt.cfg.Search.SenderWeight
	o.RecencyWeight = rt.cfg.Search.RecencyWeight
	o.RecencyHalfLife = rt.cfg.Search.RecencyHalfLife
	o.ExcludeLabels = classify.LowValueLabels()
	return o
}
