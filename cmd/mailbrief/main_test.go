package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/store"
	"github.com/nhle/mailbrief/tests/testutil"
)

func writeConfig(t *testing.T) (configPath, cachePath string) {
	t.Helper()
	dir := t.TempDir()
	cachePath = filepath.Join(dir, "cache", "classification_cache.sqlite")
	configPath = filepath.Join(dir, "config.yaml")

	yaml := fmt.Sprintf(`archive:
  db_path: %s
cache:
  db_path: %s
log:
  level: error
  format: json
`, filepath.Join(dir, "msg-db.sqlite"), cachePath)
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))
	return configPath, cachePath
}

// writeEmptyArchive creates the archive database next to configPath with
// its tables present but no messages.
func writeEmptyArchive(t *testing.T, configPath string) {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(filepath.Dir(configPath), "msg-db.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	db.MustExec(`CREATE TABLE messages (
		message_num INTEGER PRIMARY KEY,
		message_filename TEXT,
		message_internaldate TIMESTAMP)`)
	db.MustExec(`CREATE TABLE uids (message_num INTEGER, uid INTEGER)`)
	db.MustExec(`CREATE TABLE labels (message_num INTEGER, label TEXT)`)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(context.Background(), append([]string{"mailbrief"}, args...))
	return out.String(), err
}

func TestCacheStatsAndClear(t *testing.T) {
	configPath, cachePath := writeConfig(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(cachePath), 0o755))
	s, err := store.NewSQLiteStore(cachePath)
	require.NoError(t, err)
	testutil.SeedCache(t, s,
		model.CacheEntry{Key: "msg:a", Category: model.CategoryFYI, Summary: "s", Cost: 0.01, ServiceVersion: "v"},
		model.CacheEntry{Key: "msg:b", Category: model.CategoryFYI, Summary: "s", Cost: 0.01, ServiceVersion: "v"},
	)
	require.NoError(t, s.Close())

	out, err := run(t, "--config", configPath, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "entries:    2")
	assert.Contains(t, out, "total cost: $0.0200")

	out, err = run(t, "--config", configPath, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 cached classifications")

	out, err = run(t, "--config", configPath, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "entries:    0")
}

func TestBriefUnreadableArchive(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, err := run(t, "--config", configPath, "brief", "--since", "1d")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrArchiveUnreadable)
}

func TestBriefEmptyWindowFails(t *testing.T) {
	configPath, _ := writeConfig(t)
	writeEmptyArchive(t, configPath)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	_, err := run(t, "--config", configPath, "brief", "--since", "1d")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNoItems)
}

func TestBriefRejectsBadSince(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, err := run(t, "--config", configPath, "brief", "--since", "whenever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --since")
}

func TestSearchRequiresQuery(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, err := run(t, "--config", configPath, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}
