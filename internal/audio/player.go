package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	logx "bosstimer/pkg/logx"
)

// ErrPlayback reports that a clip could not be played. The bell has already
// been rung when it is returned.
var ErrPlayback = errors.New("audio playback failed")

type Clip string

const (
	ClipWarning Clip = "warning"
	ClipAlarm   Clip = "alarm"
)

const DefaultVolume = 70

// Player is the audio collaborator of the tick loop.
type Player interface {
	// Play starts clip and returns without waiting for it to finish. A clip
	// already playing is stopped first.
	Play(ctx context.Context, clip Clip) error
	Stop()
	IsPlaying() bool
	SetVolume(v int)
}

type Config struct {
	Enabled bool
	Volume  int    // 0..100
	Dir     string // base directory searched before the working directory
	// Command overrides player discovery. Arguments may contain {file} and
	// {volume} (0..100); {file} is appended when absent.
	Command []string
	Files   map[Clip]string
	// Bell receives "\a" when playback fails. Nil disables the fallback.
	Bell io.Writer
}

func DefaultFiles() map[Clip]string {
	return map[Clip]string{ClipWarning: "warning.wav", ClipAlarm: "alarm.wav"}
}

type starter func(ctx context.Context, name string, args ...string) (*exec.Cmd, error)

// ExecPlayer runs one player process at a time.
type ExecPlayer struct {
	log logx.Logger

	// playMu serializes Play and Stop so a process started by one Play is
	// always stopped by the next.
	playMu sync.Mutex

	mu      sync.Mutex
	cfg     Config
	cur     *exec.Cmd
	cancel  context.CancelFunc
	playing bool

	lookPath func(string) (string, error)
	start    starter
}

func NewExecPlayer(cfg Config, log logx.Logger) *ExecPlayer {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &ExecPlayer{log: log, lookPath: exec.LookPath, start: startCmd}
	p.Apply(cfg)
	return p
}

func startCmd(ctx context.Context, name string, args ...string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Apply swaps the configuration. A clip in progress keeps playing.
func (p *ExecPlayer) Apply(cfg Config) {
	if len(cfg.Files) == 0 {
		cfg.Files = DefaultFiles()
	}
	cfg.Volume = clampVolume(cfg.Volume)
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *ExecPlayer) SetVolume(v int) {
	p.mu.Lock()
	p.cfg.Volume = clampVolume(v)
	p.mu.Unlock()
}

func (p *ExecPlayer) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Volume
}

func (p *ExecPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *ExecPlayer) Stop() {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	p.stopLocked()
}

func (p *ExecPlayer) stopLocked() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.cur = nil
	p.playing = false
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *ExecPlayer) Play(ctx context.Context, clip Clip) error {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()
	if !cfg.Enabled {
		return nil
	}

	file, err := p.locate(cfg, clip)
	if err != nil {
		return p.fallback(cfg, clip, err)
	}
	name, args, err := p.command(cfg, file)
	if err != nil {
		return p.fallback(cfg, clip, err)
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()
	p.stopLocked()

	// The process outlives ctx; Stop or the next Play ends it.
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd, err := p.start(pctx, name, args...)
	if err != nil {
		cancel()
		return p.fallback(cfg, clip, err)
	}

	p.mu.Lock()
	p.cur, p.cancel, p.playing = cmd, cancel, true
	p.mu.Unlock()

	go func() {
		werr := cmd.Wait()
		p.mu.Lock()
		if p.cur == cmd {
			p.cur, p.playing = nil, false
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
		if werr != nil && pctx.Err() == nil {
			p.log.Debug("player exited with error", logx.String("clip", string(clip)), logx.Err(werr))
		}
	}()
	p.log.Debug("playing clip", logx.String("clip", string(clip)), logx.String("file", file))
	return nil
}

func (p *ExecPlayer) fallback(cfg Config, clip Clip, cause error) error {
	if cfg.Bell != nil {
		_, _ = io.WriteString(cfg.Bell, "\a")
	}
	p.log.Warn("audio playback failed, rang bell", logx.String("clip", string(clip)), logx.Err(cause))
	return fmt.Errorf("%w: %s: %w", ErrPlayback, clip, cause)
}

func (p *ExecPlayer) locate(cfg Config, clip Clip) (string, error) {
	name, ok := cfg.Files[clip]
	if !ok || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("no file for clip %q", clip)
	}
	for _, c := range SearchPaths(cfg.Dir, name) {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("sound file %q not found", name)
}

// SearchPaths lists the candidate locations of a sound file in lookup order.
func SearchPaths(dir, file string) []string {
	if filepath.IsAbs(file) {
		return []string{file}
	}
	var out []string
	if dir != "" {
		out = append(out, filepath.Join(dir, file), filepath.Join(dir, "sounds", file))
	}
	return append(out, file, filepath.Join("sounds", file))
}

func (p *ExecPlayer) command(cfg Config, file string) (string, []string, error) {
	vol := strconv.Itoa(cfg.Volume)
	if len(cfg.Command) > 0 {
		args := make([]string, 0, len(cfg.Command))
		hasFile := false
		for _, a := range cfg.Command[1:] {
			if strings.Contains(a, "{file}") {
				hasFile = true
			}
			a = strings.ReplaceAll(a, "{file}", file)
			args = append(args, strings.ReplaceAll(a, "{volume}", vol))
		}
		if !hasFile {
			args = append(args, file)
		}
		return cfg.Command[0], args, nil
	}

	for _, cand := range defaultPlayers() {
		if _, err := p.lookPath(cand); err != nil {
			continue
		}
		switch cand {
		case "paplay":
			// PulseAudio volume: 65536 = 100%.
			return cand, []string{"--volume=" + strconv.Itoa(cfg.Volume*65536/100), file}, nil
		case "afplay":
			return cand, []string{"-v", strconv.FormatFloat(float64(cfg.Volume)/100, 'f', 2, 64), file}, nil
		default:
			return cand, []string{"-q", file}, nil
		}
	}
	return "", nil, errors.New("no audio player found")
}

func defaultPlayers() []string {
	if runtime.GOOS == "darwin" {
		return []string{"afplay"}
	}
	return []string{"paplay", "aplay"}
}

func clampVolume(v int) int {
	return max(0, min(100, v))
}
