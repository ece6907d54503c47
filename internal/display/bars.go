package display

import (
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"bosstimer/internal/timers"
)

// barScale is the bar resolution. Totals are one above it so a full bar never
// triggers completion and the bar stays on screen.
const barScale = 1000

type barLine struct {
	bar   *mpb.Bar
	label atomic.Value // string
	right atomic.Value // string
}

// Bars is a live mpb board with one bar per entry, keyed by entry ID.
type Bars struct {
	mu    sync.Mutex
	p     *mpb.Progress
	lines map[string]*barLine
	order []string
}

func NewBars(w io.Writer, refresh time.Duration) *Bars {
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}
	return &Bars{
		p:     mpb.New(mpb.WithOutput(w), mpb.WithWidth(40), mpb.WithRefreshRate(refresh)),
		lines: map[string]*barLine{},
	}
}

var barStyle = mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")

func (b *Bars) newLine() *barLine {
	l := &barLine{}
	l.label.Store("")
	l.right.Store("")
	l.bar = b.p.New(barScale+1,
		barStyle,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string { return l.label.Load().(string) }, decor.WC{W: 24, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Any(func(decor.Statistics) string { return l.right.Load().(string) }, decor.WC{W: 20}),
		),
	)
	return l
}

// Update syncs the board with rows. Bars of removed entries are dropped, and
// the board is rebuilt when the entry order changed.
func (b *Bars) Update(rows []timers.Row) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.Entry.ID
	}
	if !slices.Equal(ids, b.order) {
		for _, l := range b.lines {
			l.bar.Abort(true)
		}
		b.lines = map[string]*barLine{}
		for _, id := range ids {
			b.lines[id] = b.newLine()
		}
		b.order = ids
	}

	for _, r := range rows {
		l := b.lines[r.Entry.ID]
		l.label.Store(r.Entry.Name)
		if r.Err != nil {
			l.right.Store("error")
			l.bar.SetCurrent(0)
			continue
		}
		l.right.Store(FormatCountdown(r.Display.Countdown()) + " " + status(r))
		l.bar.SetCurrent(int64(min(barScale, max(0, r.Display.Progress*barScale))))
	}
}

// Close removes all bars and stops rendering.
func (b *Bars) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.lines {
		l.bar.Abort(false)
	}
	b.lines = map[string]*barLine{}
	b.order = nil
	b.p.Shutdown()
}
