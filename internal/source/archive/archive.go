// Package archive reads a local mailbox backup: a metadata SQLite database
// indexing one EML file per message.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/source"
)

// internalDateLayout is how the backup tool writes message_internaldate.
const internalDateLayout = "2006-01-02 15:04:05"

// Config locates the archive on disk.
type Config struct {
	DBPath      string
	MailDir     string
	LinkBaseURL string
}

// Archive implements source.Source over the metadata database.
type Archive struct {
	db      *sqlx.DB
	cfg     Config
	logger  zerolog.Logger
	readEML func(path string) ([]byte, error)
}

var _ source.Source = (*Archive)(nil)

// Open opens the metadata database read-only. A missing or unreadable
// database is reported as model.ErrArchiveUnreadable.
func Open(cfg Config, logger zerolog.Logger) (*Archive, error) {
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrArchiveUnreadable, err)
	}

	db, err := sqlx.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening metadata db: %v", model.ErrArchiveUnreadable, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", model.ErrArchiveUnreadable, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", model.ErrArchiveUnreadable, err)
	}

	if cfg.MailDir == "" {
		cfg.MailDir = filepath.Dir(cfg.DBPath)
	}

	return &Archive{
		db:      db,
		cfg:     cfg,
		logger:  logger.With().Str("component", "archive").Logger(),
		readEML: os.ReadFile,
	}, nil
}

// Close releases the metadata database.
func (a *Archive) Close() error {
	return a.db.Close()
}

type metadataRow struct {
	Num          int64          `db:"message_num"`
	Filename     string         `db:"message_filename"`
	InternalDate string         `db:"internal_date"`
	UID          sql.NullString `db:"uid"`
	Labels       sql.NullString `db:"labels"`
}

// Load returns records in window, newest first. Messages whose EML file
// cannot be read or parsed are skipped with a warning.
func (a *Archive) Load(
	ctx context.Context,
	window model.DateRange,
	limit int,
) ([]model.MessageRecord, error) {
	rows, err := a.queryMetadata(ctx, window, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrArchiveUnreadable, err)
	}

	records := make([]model.MessageRecord, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := a.loadRecord(row)
		if err != nil {
			skipped++
			a.logger.Warn().
				Err(err).
				Int64("message_num", row.Num).
				Str("file", row.Filename).
				Msg("skipping unparseable message")
			continue
		}
		records = append(records, rec)
	}

	a.logger.Debug().
		Int("loaded", len(records)).
		Int("skipped", skipped).
		Msg("archive window loaded")

	return records, nil
}

func (a *Archive) queryMetadata(
	ctx context.Context,
	window model.DateRange,
	limit int,
) ([]metadataRow, error) {
	var (
		where []string
		args  []any
	)
	if !window.Start.IsZero() {
		where = append(where, "m.message_internaldate >= ?")
		args = append(args, window.Start.UTC().Format(internalDateLayout))
	}
	if !window.End.IsZero() {
		where = append(where, "m.message_internaldate < ?")
		args = append(args, window.End.UTC().Format(internalDateLayout))
	}

	query := `SELECT m.message_num,
		m.message_filename,
		CAST(m.message_internaldate AS TEXT) AS internal_date,
		CAST(MIN(u.uid) AS TEXT) AS uid,
		GROUP_CONCAT(l.label, '|') AS labels
		FROM messages m
		LEFT JOIN uids u ON m.message_num = u.message_num
		LEFT JOIN labels l ON m.message_num = l.message_num`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY m.message_num ORDER BY m.message_internaldate DESC, m.message_num DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []metadataRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying message metadata: %w", err)
	}
	return rows, nil
}

func (a *Archive) loadRecord(row metadataRow) (model.MessageRecord, error) {
	path := row.Filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.cfg.MailDir, path)
	}

	raw, err := a.readEML(path)
	if err != nil {
		return model.MessageRecord{}, fmt.Errorf("reading message file: %w", err)
	}

	rec, err := ParseMessage(raw)
	if err != nil {
		return model.MessageRecord{}, err
	}

	rec.ArchiveNum = row.Num
	rec.Labels = splitLabels(row.Labels.String)

	// The archive's receive time wins over the Date header, which senders
	// control.
	if ts, ok := parseInternalDate(row.InternalDate); ok {
		rec.Timestamp = ts
	}

	if row.UID.Valid && row.UID.String != "" && a.cfg.LinkBaseURL != "" {
		rec.Link = strings.TrimRight(a.cfg.LinkBaseURL, "/") + "/" + row.UID.String
	}

	return rec, nil
}

func parseInternalDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		internalDateLayout,
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05-07:00",
	} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func splitLabels(joined string) []string {
	if joined == "" {
		return nil
	}
	seen := make(map[string]bool)
	var labels []string
	for _, l := range strings.Split(joined, "|") {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		labels = append(labels, l)
	}
	return labels
}
