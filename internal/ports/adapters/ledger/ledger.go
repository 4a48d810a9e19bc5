// Package ledger records runs and per-video progress in a SQLite database
// kept next to the transcripts.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/forPelevin/ytscribe/internal/ports"
	"github.com/forPelevin/ytscribe/internal/types"
)

// FileName is the database file created inside the output root.
const FileName = ".ytscribe.db"

const schemaVersion = 1

//go:embed schema.sql
var schemaSQL string

var ErrSchemaMismatch = errors.New("ledger schema version mismatch")

type Ledger struct {
	db   *sql.DB
	path string
}

var _ ports.Ledger = (*Ledger)(nil)

// Open creates or opens the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) initSchema(ctx context.Context) error {
	var exists int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if exists == 0 {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := l.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has %d, expected %d (remove %s to reset)", ErrSchemaMismatch, version, schemaVersion, l.path)
	}
	return nil
}

func (l *Ledger) BeginRun(ctx context.Context, channel string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, channel, started_at) VALUES (?, ?, ?)`,
		id, channel, formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordVideo upserts the latest state of one video.
func (l *Ledger) RecordVideo(ctx context.Context, rec ports.VideoRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO videos (
            channel, video_id, title, file_name, state,
            chunks_total, chunks_done, error, run_id, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(channel, video_id) DO UPDATE SET
            title = excluded.title,
            file_name = excluded.file_name,
            state = excluded.state,
            chunks_total = excluded.chunks_total,
            chunks_done = excluded.chunks_done,
            error = excluded.error,
            run_id = excluded.run_id,
            updated_at = excluded.updated_at`,
		rec.Channel,
		rec.VideoID,
		nullableString(rec.Title),
		nullableString(rec.FileName),
		string(rec.State),
		rec.ChunksTotal,
		rec.ChunksDone,
		nullableString(rec.Error),
		nullableString(rec.RunID),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert video %s: %w", rec.VideoID, err)
	}
	return nil
}

func (l *Ledger) FinishRun(ctx context.Context, report types.RunReport) error {
	if report.RunID == "" {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs
         SET finished_at = ?, total = ?, completed = ?, skipped = ?, unavailable = ?, failed = ?
         WHERE id = ?`,
		formatTime(time.Now()),
		report.Total,
		report.Completed,
		report.Skipped,
		report.Unavailable,
		len(report.Failed),
		report.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Run is one recorded invocation against a channel.
type Run struct {
	ID          string
	Channel     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	Completed   int
	Skipped     int
	Unavailable int
	Failed      int
}

// LastRun returns the most recent run for channel, or nil if none exists.
func (l *Ledger) LastRun(ctx context.Context, channel string) (*Run, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, channel, started_at, finished_at, total, completed, skipped, unavailable, failed
         FROM runs WHERE channel = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		channel,
	)
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	err := row.Scan(&r.ID, &r.Channel, &started, &finished, &r.Total, &r.Completed, &r.Skipped, &r.Unavailable, &r.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	return &r, nil
}

// Videos lists every recorded video of channel, most recently updated first.
func (l *Ledger) Videos(ctx context.Context, channel string) ([]ports.VideoRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT channel, video_id, title, file_name, state, chunks_total, chunks_done, error, run_id, updated_at
         FROM videos WHERE channel = ? ORDER BY updated_at DESC, video_id`,
		channel,
	)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []ports.VideoRecord
	for rows.Next() {
		var (
			rec                          ports.VideoRecord
			title, fileName, errMsg, run sql.NullString
			state, updated               string
		)
		if err := rows.Scan(&rec.Channel, &rec.VideoID, &title, &fileName, &state,
			&rec.ChunksTotal, &rec.ChunksDone, &errMsg, &run, &updated); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		rec.Title = title.String
		rec.FileName = fileName.String
		rec.State = types.State(state)
		rec.Error = errMsg.String
		rec.RunID = run.String
		rec.UpdatedAt = parseTime(updated)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
