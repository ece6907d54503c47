package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	kit "bosstimer/internal/transport"
)

const DefaultFilePath = "./boss_timer.log"

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

// FileConfig controls the JSON file sink. The file is rotated once it grows
// past MaxBytes; Backups old files are kept as <path>.1 .. <path>.N.
type FileConfig struct {
	Enabled  bool
	Path     string
	MaxBytes int64
	Backups  int
}

// TelegramConfig forwards events at MinLevel (default warn) and above to the
// chat set with SetTelegramTarget.
type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the sinks. Loggers derived from it pick up Apply immediately.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *rotatingFile
	tg   *telegramSink

	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with its root Logger. sender may be
// nil; Telegram forwarding then waits for SetSender.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	s := &Service{tg: newTelegramSink(sender)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) SetSender(sender kit.Sender) { s.tg.setSender(sender) }

// SetTelegramTarget sets the log chat. A zero chatID pauses forwarding.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.tg.setTarget(chatID, threadID)
}

// Apply rebuilds the writer chain. A file that cannot be opened is reported
// on stderr and skipped; the other sinks still apply.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter())
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = DefaultFilePath
		}
		f, err := openRotatingFile(path, cfg.File.MaxBytes, cfg.File.Backups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}

	s.tg.configure(cfg.Telegram)
	if cfg.Telegram.Enabled {
		writers = append(writers, s.tg)
	}

	if len(writers) == 0 {
		writers = append(writers, consoleWriter())
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close flushes the Telegram queue and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	s.tg.close()
	if f != nil {
		return f.Close()
	}
	return nil
}
