package audio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	logx "bosstimer/pkg/logx"
)

func TestSearchPaths(t *testing.T) {
	t.Parallel()

	got := SearchPaths("/opt/bt", "alarm.wav")
	want := []string{"/opt/bt/alarm.wav", "/opt/bt/sounds/alarm.wav", "alarm.wav", filepath.Join("sounds", "alarm.wav")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SearchPaths = %v, want %v", got, want)
	}
	if got := SearchPaths("/opt/bt", "/abs/a.wav"); len(got) != 1 || got[0] != "/abs/a.wav" {
		t.Fatalf("absolute = %v", got)
	}
}

func TestPlayMissingFileRingsBell(t *testing.T) {
	t.Parallel()

	var bell bytes.Buffer
	p := NewExecPlayer(Config{Enabled: true, Dir: t.TempDir(), Bell: &bell, Files: map[Clip]string{ClipAlarm: "nope-does-not-exist.wav"}}, logx.Nop())
	err := p.Play(context.Background(), ClipAlarm)
	if !errors.Is(err, ErrPlayback) {
		t.Fatalf("Play err = %v, want ErrPlayback", err)
	}
	if bell.String() != "\a" {
		t.Fatalf("bell = %q", bell.String())
	}
	if p.IsPlaying() {
		t.Fatalf("IsPlaying after failure")
	}
}

func TestPlayDisabledIsNoop(t *testing.T) {
	t.Parallel()

	var bell bytes.Buffer
	p := NewExecPlayer(Config{Enabled: false, Bell: &bell}, logx.Nop())
	if err := p.Play(context.Background(), ClipWarning); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if bell.Len() != 0 {
		t.Fatalf("bell rang while disabled")
	}
}

func TestCommandTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "warning.wav")
	if err := os.WriteFile(file, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotName string
	var gotArgs []string
	p := NewExecPlayer(Config{Enabled: true, Dir: dir, Volume: 55, Command: []string{"play", "-v", "{volume}"}}, logx.Nop())
	p.start = func(ctx context.Context, name string, args ...string) (*exec.Cmd, error) {
		gotName, gotArgs = name, args
		return nil, errors.New("not started")
	}
	if err := p.Play(context.Background(), ClipWarning); !errors.Is(err, ErrPlayback) {
		t.Fatalf("Play err = %v", err)
	}
	if gotName != "play" || !reflect.DeepEqual(gotArgs, []string{"-v", "55", file}) {
		t.Fatalf("command = %s %v", gotName, gotArgs)
	}
}

func TestNoPlayerFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alarm.wav"), []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewExecPlayer(Config{Enabled: true, Dir: dir}, logx.Nop())
	p.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	if err := p.Play(context.Background(), ClipAlarm); !errors.Is(err, ErrPlayback) {
		t.Fatalf("Play err = %v", err)
	}
}

func TestVolumeClamped(t *testing.T) {
	t.Parallel()

	p := NewExecPlayer(Config{Volume: 150}, logx.Nop())
	if p.Volume() != 100 {
		t.Fatalf("Volume = %d", p.Volume())
	}
	p.SetVolume(-3)
	if p.Volume() != 0 {
		t.Fatalf("Volume = %d", p.Volume())
	}
}

// TestHelperSleeper is the child process of TestConcurrentPlayKeepsOneProcess.
func TestHelperSleeper(t *testing.T) {
	if os.Getenv("BOSSTIMER_HELPER_SLEEP") != "1" {
		return
	}
	time.Sleep(time.Minute)
	os.Exit(0)
}

func TestConcurrentPlayKeepsOneProcess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alarm.wav"), []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	var (
		mu   sync.Mutex
		ctxs []context.Context
	)
	p := NewExecPlayer(Config{Enabled: true, Dir: dir, Command: []string{"play"}}, logx.Nop())
	p.start = func(ctx context.Context, _ string, _ ...string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestHelperSleeper$")
		cmd.Env = append(os.Environ(), "BOSSTIMER_HELPER_SLEEP=1")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		mu.Lock()
		ctxs = append(ctxs, ctx)
		mu.Unlock()
		return cmd, nil
	}

	const n = 8
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Play(context.Background(), ClipAlarm); err != nil {
				t.Errorf("Play: %v", err)
			}
		}()
	}
	wg.Wait()
	t.Cleanup(p.Stop)

	mu.Lock()
	defer mu.Unlock()
	if len(ctxs) != n {
		t.Fatalf("started %d processes, want %d", len(ctxs), n)
	}
	live := 0
	for _, ctx := range ctxs {
		if ctx.Err() == nil {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("%d processes still running after concurrent Play, want 1", live)
	}
	if !p.IsPlaying() {
		t.Fatalf("IsPlaying = false after Play")
	}
}
