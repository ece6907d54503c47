package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"bosstimer/internal/timers"
	logx "bosstimer/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db   *sql.DB
	path string
	log  logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
	keepNext   atomic.Bool // copy entries to entries_rejected on the next save
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, path: path, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrationsSQL)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadEntries(ctx context.Context) ([]timers.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, name, minutes, seconds, last_time, enabled FROM entries ORDER BY position`)
	if err != nil {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	defer rows.Close()

	out := []timers.Record{}
	var malformed []error
	for rows.Next() {
		var (
			pos int
			r   timers.Record
		)
		if err := rows.Scan(&pos, &r.Name, &r.Minutes, &r.Seconds, &r.LastTime, &r.Enabled); err != nil {
			malformed = append(malformed, &timers.MalformedEntryError{
				Index:  pos,
				Reason: "cannot decode row",
				Err:    err,
			})
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	s.keepNext.Store(len(malformed) > 0)
	return out, errors.Join(malformed...)
}

func (s *sqliteStore) SaveEntries(ctx context.Context, records []timers.Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	keep := s.keepNext.Load()
	if keep {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries_rejected(saved_at, position, name, minutes, seconds, last_time, enabled)
			 SELECT ?, position, name, minutes, seconds, last_time, enabled FROM entries`,
			time.Now().UTC().Format(time.RFC3339)); err != nil {
			return &IOError{Op: "backup", Path: s.path, Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries(position, name, minutes, seconds, last_time, enabled) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, i+1, r.Name, r.Minutes, r.Seconds, r.LastTime, r.Enabled); err != nil {
			return &IOError{Op: "write", Path: s.path, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if keep {
		s.keepNext.Store(false)
		s.log.Warn("entries did not load cleanly, kept the old rows in entries_rejected", logx.String("path", s.path))
	}
	return nil
}

func (s *sqliteStore) AppendAlarm(ctx context.Context, e AlarmEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var occurrence any
	if !e.Occurrence.IsZero() {
		occurrence = e.Occurrence.Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alarms(at, entry_id, name, kind, occurrence, auto_reset) VALUES(?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), nullStr(e.EntryID), e.Name, e.Kind, occurrence, e.AutoReset,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentAlarms(ctx context.Context, limit int) ([]AlarmEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = defaultAlarmLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, COALESCE(entry_id, ''), name, kind, COALESCE(occurrence, ''), auto_reset
		 FROM alarms ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlarmEntry
	for rows.Next() {
		var (
			e              AlarmEntry
			at, occurrence string
		)
		if err := rows.Scan(&at, &e.EntryID, &e.Name, &e.Kind, &occurrence, &e.AutoReset); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		if occurrence != "" {
			e.Occurrence, _ = time.Parse(time.RFC3339Nano, occurrence)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

// pruneExpired drops stale dedup keys and keeps the alarm history bounded.
func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, time.Now().UnixMilli()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM alarms WHERE id <= (SELECT MAX(id) FROM alarms) - ?`, maxAlarmRows)
	return err
}

const maxAlarmRows = 10000

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
