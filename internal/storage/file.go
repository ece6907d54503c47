package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bosstimer/internal/timers"
	logx "bosstimer/pkg/logx"
)

// fileStore keeps everything next to the entry file.
//
// Files:
//   - <path>                        (entry list, JSON array, rewritten atomically)
//   - <prefix>.alarms.jsonl         (append-only JSON Lines)
//   - <prefix>.dedup.jsonl          (notifier dedup keys, last write wins)
//
// The dedup file is rewritten with only live keys once stale lines outnumber
// them. An entry file that did not load cleanly is copied to
// <path>.corrupt-<time> before the next save replaces it.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	entriesPath string
	keepNext    bool // back up entriesPath before the next save
	alarmPath   string
	alarmFile   *os.File

	dedupPath  string
	dedupFile  *os.File
	dedup      map[string]time.Time
	dedupLines int
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "open", Path: dir, Err: err}
	}

	alarmPath := prefix + ".alarms.jsonl"
	dedupPath := prefix + ".dedup.jsonl"

	af, err := os.OpenFile(alarmPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, &IOError{Op: "open", Path: alarmPath, Err: err}
	}

	st := &fileStore{
		log:         log,
		entriesPath: path,
		alarmPath:   alarmPath,
		alarmFile:   af,
		dedupPath:   dedupPath,
	}
	if err := st.openDedup(); err != nil {
		_ = af.Close()
		return nil, err
	}
	return st, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.alarmFile != nil {
		err1 = s.alarmFile.Close()
		s.alarmFile = nil
	}
	if s.dedupFile != nil {
		err2 = s.dedupFile.Close()
		s.dedupFile = nil
	}
	return errors.Join(err1, err2)
}

func (s *fileStore) LoadEntries(ctx context.Context) ([]timers.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.entriesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []timers.Record{}, nil
	}
	if err != nil {
		s.keepNext = true
		return nil, &IOError{Op: "read", Path: s.entriesPath, Err: err}
	}
	records, malformed, err := decodeRecords(b)
	if err != nil {
		s.keepNext = true
		return nil, &IOError{Op: "decode", Path: s.entriesPath, Err: err}
	}
	if records == nil {
		records = []timers.Record{}
	}
	s.keepNext = len(malformed) > 0
	return records, errors.Join(malformed...)
}

// backupLocked copies the entry file aside. A file that cannot be copied is
// not overwritten.
func (s *fileStore) backupLocked() error {
	b, err := os.ReadFile(s.entriesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &IOError{Op: "backup", Path: s.entriesPath, Err: err}
	}
	dst := s.entriesPath + ".corrupt-" + time.Now().Format("20060102-150405.000")
	if err := os.WriteFile(dst, b, 0o600); err != nil {
		return &IOError{Op: "backup", Path: dst, Err: err}
	}
	s.log.Warn("entry file did not load cleanly, kept a copy before overwriting", logx.String("path", dst))
	return nil
}

func (s *fileStore) SaveEntries(ctx context.Context, records []timers.Record) error {
	_ = ctx
	b, err := encodeRecords(records)
	if err != nil {
		return &IOError{Op: "write", Path: s.entriesPath, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keepNext {
		if err := s.backupLocked(); err != nil {
			return err
		}
		s.keepNext = false
	}

	tmp := s.entriesPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return &IOError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.entriesPath); err != nil {
		_ = os.Remove(tmp)
		return &IOError{Op: "write", Path: s.entriesPath, Err: err}
	}
	return nil
}

func (s *fileStore) AppendAlarm(ctx context.Context, e AlarmEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alarmFile == nil {
		return errors.New("alarm file closed")
	}
	return json.NewEncoder(s.alarmFile).Encode(e)
}

func (s *fileStore) RecentAlarms(ctx context.Context, limit int) ([]AlarmEntry, error) {
	_ = ctx
	if limit <= 0 {
		limit = defaultAlarmLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.alarmPath)
	if err != nil {
		return nil, &IOError{Op: "read", Path: s.alarmPath, Err: err}
	}
	defer f.Close()

	ring := make([]AlarmEntry, 0, limit)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AlarmEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if len(ring) == limit {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, e)
	}
	if err := sc.Err(); err != nil {
		return nil, &IOError{Op: "read", Path: s.alarmPath, Err: err}
	}
	out := make([]AlarmEntry, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		out = append(out, ring[i])
	}
	return out, nil
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupFile == nil {
		return &IOError{Op: "write", Path: s.dedupPath, Err: os.ErrClosed}
	}
	s.dedup[key] = until
	if err := json.NewEncoder(s.dedupFile).Encode(dedupRecord{Key: key, Until: until.UnixMilli()}); err != nil {
		return &IOError{Op: "write", Path: s.dedupPath, Err: err}
	}
	s.dedupLines++
	if s.dedupLines > 2*len(s.dedup)+dedupSlack {
		if err := s.rewriteDedupLocked(); err != nil {
			s.log.Debug("dedup rewrite failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.dedup[strings.TrimSpace(key)]
	return until, ok, nil
}

// dedupSlack lets a small file grow before it is rewritten.
const dedupSlack = 256

// openDedup replays the dedup file into memory, dropping expired keys, and
// keeps it open for appends.
func (s *fileStore) openDedup() error {
	s.dedup = map[string]time.Time{}
	if f, err := os.Open(s.dedupPath); err == nil {
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var r dedupRecord
			if json.Unmarshal(sc.Bytes(), &r) != nil || r.Key == "" {
				continue
			}
			s.dedup[r.Key] = time.UnixMilli(r.Until)
			s.dedupLines++
		}
		_ = f.Close()
	}
	now := time.Now()
	for k, until := range s.dedup {
		if until.Before(now) {
			delete(s.dedup, k)
		}
	}
	if s.dedupLines > len(s.dedup) {
		return s.rewriteDedupLocked()
	}
	f, err := os.OpenFile(s.dedupPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return &IOError{Op: "open", Path: s.dedupPath, Err: err}
	}
	s.dedupFile = f
	return nil
}

// rewriteDedupLocked replaces the dedup file with one line per live key.
func (s *fileStore) rewriteDedupLocked() error {
	now := time.Now()
	tmp := s.dedupPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return &IOError{Op: "write", Path: tmp, Err: err}
	}
	enc := json.NewEncoder(f)
	n := 0
	for k, until := range s.dedup {
		if until.Before(now) {
			delete(s.dedup, k)
			continue
		}
		if err := enc.Encode(dedupRecord{Key: k, Until: until.UnixMilli()}); err != nil {
			_ = f.Close()
			return &IOError{Op: "write", Path: tmp, Err: err}
		}
		n++
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.dedupPath); err != nil {
		return &IOError{Op: "rename", Path: s.dedupPath, Err: err}
	}
	if s.dedupFile != nil {
		_ = s.dedupFile.Close()
	}
	s.dedupFile, err = os.OpenFile(s.dedupPath, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.dedupFile = nil
		return &IOError{Op: "open", Path: s.dedupPath, Err: err}
	}
	s.dedupLines = n
	return nil
}
