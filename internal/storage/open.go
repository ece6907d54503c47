package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"bosstimer/internal/timers"
	logx "bosstimer/pkg/logx"
)

const DefaultPath = "boss_config.json"

// Store is the persistence API used by the app and the notifier.
type Store interface {
	// LoadEntries returns the saved entries in order. A missing file yields an
	// empty list. Records that cannot be decoded are skipped and reported as
	// joined *timers.MalformedEntryError values alongside the good records.
	LoadEntries(ctx context.Context) ([]timers.Record, error)
	// SaveEntries replaces the saved list. After a load that failed or
	// skipped records, the previous contents are kept aside first; if that
	// copy cannot be made nothing is overwritten.
	SaveEntries(ctx context.Context, records []timers.Record) error

	AppendAlarm(ctx context.Context, e AlarmEntry) error
	// RecentAlarms returns up to limit alarms, newest first.
	RecentAlarms(ctx context.Context, limit int) ([]AlarmEntry, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}

	switch driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
