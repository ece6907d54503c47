package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "bosstimer/pkg/logx"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	validateTimeout = 5 * time.Second
	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

// Watch reloads the config file whenever it changes until ctx ends. The
// directory is watched, not the file, so editors that save by rename are
// followed. A broken watcher is recreated with jittered backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)

	var (
		tmu   sync.Mutex
		timer *time.Timer
	)
	changed := func() {
		tmu.Lock()
		defer tmu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() { m.reload(ctx) })
	}
	defer func() {
		tmu.Lock()
		if timer != nil {
			timer.Stop()
		}
		tmu.Unlock()
	}()

	backoff := watchBackoffMin
	for {
		err := m.watchOnce(ctx, dir, file, changed, func() { backoff = watchBackoffMin })
		if ctx.Err() != nil {
			return nil
		}
		wait := backoff + rand.N(backoff/2+1)
		m.log.Warn("config watcher stopped; restarting",
			logx.String("dir", dir),
			logx.Err(err),
			logx.Duration("backoff", wait),
		)
		backoff = min(backoff*2, watchBackoffMax)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (m *ConfigManager) watchOnce(ctx context.Context, dir, file string, changed, started func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	started()
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
				changed()
				continue
			}
			return err
		}
	}
}

// reload parses, validates, commits and publishes the file. Unchanged
// content is not published.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Mid rename-save; the Create event schedules another reload.
		return
	case err != nil:
		m.log.Warn("config parse failed; keeping previous", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := configHash(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.hash
	validate := m.validator
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return
	}

	if validate != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := validate(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
}
