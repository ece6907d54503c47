// Package console is the terminal transport: banners and notices go to a
// writer, operator commands come from input lines.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	kit "bosstimer/internal/transport"
)

const Name = "console"

// Adapter implements kit.Adapter over an io.Reader / io.Writer pair.
type Adapter struct {
	in  io.Reader
	out io.Writer
	now func() time.Time

	mu     sync.Mutex
	nextID int
	cancel context.CancelFunc
	done   chan struct{}
}

func New(in io.Reader, out io.Writer) *Adapter {
	return &Adapter{in: in, out: out, now: time.Now}
}

func (a *Adapter) Name() string { return Name }

// Start reads lines until EOF or ctx ends. Blank lines are skipped. A nil
// reader makes the adapter output-only.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil || a.in == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	go func(done chan struct{}) {
		defer close(done)
		id := 0
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				id++
				up := kit.Update{
					Kind:    kit.UpdateMessage,
					Source:  Name,
					Message: &kit.Message{ID: id, Text: line},
				}
				select {
				case out <- up:
				case <-ctx.Done():
					return
				}
			}
		}
	}(a.done)
	return nil
}

// Stop ends the read loop. A reader blocked in Read is abandoned.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	if _, err := fmt.Fprintf(a.out, "[%s] %s\n", a.now().Format("15:04:05"), text); err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{MessageID: a.nextID}, nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, _ string, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := a.SendText(ctx, kit.ChatTarget{}, text, nil)
	return err
}
