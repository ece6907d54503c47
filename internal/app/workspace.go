package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"bosstimer/internal/audio"
	"bosstimer/internal/config"
	"bosstimer/internal/storage"
	"bosstimer/internal/timers"
	"bosstimer/internal/update"
	logx "bosstimer/pkg/logx"
)

// Workspace is the saved entry list opened without starting the daemon.
// Edits made through it are overwritten by a running daemon's next save.
type Workspace struct {
	Config *config.Config
	Board  *timers.Board
	Log    logx.Logger

	store    storage.Store
	settings timerSettings
}

func OpenWorkspace(ctx context.Context, cfgPath string, log logx.Logger) (*Workspace, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}
	settings, _ := mapTimers(cfg)
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	w := &Workspace{Config: cfg, Log: log, store: st, settings: settings}
	w.Board = timers.NewBoard(timers.Options{Mode: settings.mode, Policy: settings.policy, Now: w.Now})
	if st == nil {
		return w, nil
	}
	recs, err := st.LoadEntries(ctx)
	if errors.Is(err, storage.ErrConfigIO) {
		_ = st.Close()
		return nil, err
	}
	for _, e := range joined(err) {
		log.Warn("skipping malformed saved entry", logx.Err(e))
	}
	w.Board.Load(recs)
	return w, nil
}

func joined(err error) []error {
	if err == nil {
		return nil
	}
	return unjoin(err)
}

func (w *Workspace) Now() time.Time {
	if w.settings.loc == nil {
		return time.Now()
	}
	return time.Now().In(w.settings.loc)
}

// Rows evaluates the list at the current time. Nothing is saved, so an auto
// reset seen here is recomputed by the daemon.
func (w *Workspace) Rows() []timers.Row {
	return w.Board.Tick(w.Now()).Rows
}

func (w *Workspace) Save(ctx context.Context) error {
	if w.store == nil {
		return storage.ErrDisabled
	}
	return w.store.SaveEntries(ctx, w.Board.Records())
}

func (w *Workspace) RecentAlarms(ctx context.Context, limit int) ([]storage.AlarmEntry, error) {
	if w.store == nil {
		return nil, storage.ErrDisabled
	}
	return w.store.RecentAlarms(ctx, limit)
}

func (w *Workspace) Checker(version string) (update.Checker, error) {
	return mapUpdate(w.Config, version)
}

// Player builds the configured audio player; bell receives the fallback "\a".
func (w *Workspace) Player(bell io.Writer) *audio.ExecPlayer {
	ac := mapAudio(w.Config)
	ac.Bell = bell
	return audio.NewExecPlayer(ac, w.Log.With(logx.String("comp", "audio")))
}

func (w *Workspace) Close() error {
	if w.store == nil {
		return nil
	}
	return w.store.Close()
}
