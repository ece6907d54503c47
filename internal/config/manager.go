package config

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"io/fs"
	"os"
	"sync"

	logx "bosstimer/pkg/logx"
)

// ConfigManager holds the committed config and fans reloads out to
// subscribers. A reload is committed only after the validator accepts it.
type ConfigManager struct {
	path string
	log  logx.Logger

	mu        sync.RWMutex
	cfg       *Config
	hash      uint64
	validator func(ctx context.Context, cfg *Config) error

	// subsMu is held while sending so Unsubscribe never closes a channel
	// mid-send.
	subsMu sync.Mutex
	subs   []chan *Config
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, log: logx.Nop()}
}

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs the gate Watch runs before committing a reload.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.mu.Lock()
	m.validator = fn
	m.mu.Unlock()
}

func (m *ConfigManager) Path() string { return m.path }

// Parse reads the file over Default() without committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return decode(m.path, b)
}

// Load parses and commits the config file. A missing file yields Default().
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	h := configHash(cfg)
	m.mu.Lock()
	m.cfg, m.hash = cfg, h
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// configHash fingerprints the decoded config, so whitespace-only edits and
// editors that write twice do not publish a reload.
func configHash(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil || cfg == nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s != ch {
			continue
		}
		m.subs = append(m.subs[:i], m.subs[i+1:]...)
		close(ch)
		return
	}
}

// publish delivers cfg to every subscriber. A full subscriber loses its
// oldest pending config; only the newest matters.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}
