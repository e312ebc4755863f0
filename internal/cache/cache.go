// Package cache is the content-addressable classification cache. Keys are
// derived from group membership, so a thread that gains a reply gets a new
// key and the old entry is left as it was.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/store"
)

const (
	messagePrefix = "msg:"
	threadPrefix  = "thread:"
)

// ComputeKey derives the cache key of a group from its member identifiers.
// It is insensitive to member order and changes whenever the member set
// changes.
func ComputeKey(g model.ThreadGroup) string {
	ids := make([]string, 0, len(g.Messages))
	for _, m := range g.Messages {
		ids = append(ids, m.ID)
	}
	return KeyForIDs(ids)
}

// KeyForIDs derives a cache key from a set of message identifiers.
// Duplicates are ignored. Message-IDs never contain whitespace, so a space
// separator cannot make two different sets collide.
func KeyForIDs(ids []string) string {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}
	if len(uniq) == 1 {
		return messagePrefix + uniq[0]
	}
	sort.Strings(uniq)
	return threadPrefix + strings.Join(uniq, " ")
}

// Policy decides which stored entries are usable for a run.
type Policy struct {
	// Bypass ignores every stored entry for the run. Results are still
	// written back.
	Bypass bool

	// ServiceVersion is the currently configured service version.
	ServiceVersion string

	// VersionInvalidation treats entries written under another service
	// version as misses.
	VersionInvalidation bool
}

// Usable reports whether entry may be reused under the policy.
func (p Policy) Usable(entry model.CacheEntry) bool {
	if p.Bypass {
		return false
	}
	if p.VersionInvalidation && entry.ServiceVersion != p.ServiceVersion {
		return false
	}
	return true
}

// Counters are the per-run lookup and write tallies.
type Counters struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Writes int64 `json:"writes"`
	Errors int64 `json:"errors"`
}

// Stats is the cache summary returned by Cache.Stats.
type Stats struct {
	Entries   int       `json:"entries"`
	TotalCost float64   `json:"total_cost"`
	Oldest    time.Time `json:"oldest,omitempty"`
	Newest    time.Time `json:"newest,omitempty"`
	Run       *Counters `json:"run,omitempty"`
}

// Cache wraps a store with key derivation, the usability policy and run
// counters. It is safe for concurrent use.
type Cache struct {
	store  store.Store
	logger zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
	errors atomic.Int64
}

// New returns a cache backed by s.
func New(s store.Store, logger zerolog.Logger) *Cache {
	return &Cache{
		store:  s,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Lookup returns the usable entry for key. Store failures are logged and
// reported as a miss so the caller can continue.
func (c *Cache) Lookup(ctx context.Context, key string, policy Policy) (model.CacheEntry, bool) {
	if policy.Bypass {
		c.misses.Add(1)
		return model.CacheEntry{}, false
	}

	entry, found, err := c.store.GetClassification(ctx, key)
	if err != nil {
		c.errors.Add(1)
		c.misses.Add(1)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		return model.CacheEntry{}, false
	}
	if !found {
		c.misses.Add(1)
		return model.CacheEntry{}, false
	}
	if !policy.Usable(*entry) {
		c.misses.Add(1)
		c.logger.Debug().
			Str("key", key).
			Str("entry_version", entry.ServiceVersion).
			Str("current_version", policy.ServiceVersion).
			Msg("cache entry not usable under current policy")
		return model.CacheEntry{}, false
	}

	c.hits.Add(1)
	return *entry, true
}

// Upsert writes entry under entry.Key. Writing the same key twice is
// harmless; the last write wins.
func (c *Cache) Upsert(ctx context.Context, entry model.CacheEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("upserting cache entry: empty key")
	}
	if err := c.store.UpsertClassification(ctx, entry); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("upserting cache entry: %w", err)
	}
	c.writes.Add(1)
	return nil
}

// Stats reports the entry count and aggregate cost of the cache. With
// withRun set it also returns the counters accumulated by this Cache.
func (c *Cache) Stats(ctx context.Context, withRun bool) (Stats, error) {
	st, err := c.store.ClassificationStats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}

	out := Stats{
		Entries:   st.Entries,
		TotalCost: st.TotalCost,
		Oldest:    st.Oldest,
		Newest:    st.Newest,
	}
	if withRun {
		counters := c.Counters()
		out.Run = &counters
	}
	return out, nil
}

// Counters returns a snapshot of the run counters.
func (c *Cache) Counters() Counters {
	return Counters{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Writes: c.writes.Load(),
		Errors: c.errors.Load(),
	}
}

// Clear removes every entry. It is only reached through an explicit
// operator command.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	n, err := c.store.ClearClassifications(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	c.logger.Info().Int64("removed", n).Msg("cache cleared")
	return n, nil
}
