package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS classification_cache (
	cache_key       TEXT PRIMARY KEY,
	category        TEXT NOT NULL,
	summary         TEXT NOT NULL,
	action_items    TEXT,
	cost_usd        REAL NOT NULL DEFAULT 0,
	service_version TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_classification_cache_created_at
	ON classification_cache(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL,
	items         INTEGER NOT NULL DEFAULT 0,
	cache_hits    INTEGER NOT NULL DEFAULT 0,
	label_matches INTEGER NOT NULL DEFAULT 0,
	service_calls INTEGER NOT NULL DEFAULT 0,
	fallbacks     INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
