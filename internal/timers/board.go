package timers

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bosstimer/internal/recurrence"
)

// Phase is where an entry sits in its alert cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreWarned
	PhaseRinging
)

func (p Phase) String() string {
	switch p {
	case PhasePreWarned:
		return "prewarned"
	case PhaseRinging:
		return "ringing"
	default:
		return "idle"
	}
}

// Row is the evaluated view of one entry after a Tick.
type Row struct {
	Entry   Entry
	Next    time.Time // zero when Err is set
	Display recurrence.Display
	State   recurrence.AlertState
	Phase   Phase
	Err     error
}

// Alert is a side effect the host must carry out.
type Alert struct {
	Kind       recurrence.AlertState
	Entry      Entry     // state after handling (LastTime reflects an auto reset)
	Occurrence time.Time // the occurrence that triggered the alert
	Remaining  time.Duration
	AutoReset  bool
}

// Report is the outcome of one evaluation pass.
type Report struct {
	At        time.Time
	Mode      Mode
	Rows      []Row
	Alerts    []Alert
	Malformed []error // newly seen problems only
}

// Ringing reports whether any entry is ringing after the pass.
func (r Report) Ringing() bool {
	for _, row := range r.Rows {
		if row.Phase == PhaseRinging {
			return true
		}
	}
	return false
}

type fingerprint struct {
	last   recurrence.TimeOfDay
	period time.Duration
}

type slot struct {
	Entry

	pending   time.Time // zero when not computed
	fp        fingerprint
	ringing   bool
	warnedFor time.Time
	reported  string
}

func (s *slot) phase() Phase {
	switch {
	case s.ringing:
		return PhaseRinging
	case !s.pending.IsZero() && s.warnedFor.Equal(s.pending):
		return PhasePreWarned
	default:
		return PhaseIdle
	}
}

// AddOptions overrides the defaults of a new entry. Zero fields take the
// default (name "new boss", 60 minutes, last trigger = now, enabled).
type AddOptions struct {
	Name     string
	Minutes  int
	Seconds  int
	LastTime string
	Disabled bool
}

// Options configures a Board.
type Options struct {
	Mode   Mode
	Policy recurrence.Policy
	Now    func() time.Time
}

// Board owns the entry list and each entry's alert state. It is safe for
// concurrent use; Tick calls are serialized.
type Board struct {
	mu     sync.Mutex
	slots  []*slot
	mode   Mode
	policy recurrence.Policy
	now    func() time.Time
}

func NewBoard(opts Options) *Board {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	if opts.Policy == (recurrence.Policy{}) {
		opts.Policy = recurrence.DefaultPolicy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Board{mode: opts.Mode, policy: opts.Policy, now: opts.Now}
}

func (b *Board) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

func (b *Board) SetMode(m Mode) {
	b.mu.Lock()
	b.mode = m
	b.mu.Unlock()
}

func (b *Board) SetPolicy(p recurrence.Policy) {
	b.mu.Lock()
	b.policy = p
	b.mu.Unlock()
}

func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

// Add appends a new entry and returns it. Invalid overrides are kept as given;
// the entry then shows up as malformed on the next Tick.
func (b *Board) Add(opts AddOptions) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := Entry{
		ID:       uuid.NewString(),
		Order:    len(b.slots) + 1,
		Name:     strings.TrimSpace(opts.Name),
		Minutes:  opts.Minutes,
		Seconds:  opts.Seconds,
		LastTime: strings.TrimSpace(opts.LastTime),
		Enabled:  !opts.Disabled,
	}
	if e.Name == "" {
		e.Name = DefaultName
	}
	if e.Minutes == 0 && e.Seconds == 0 {
		e.Minutes = DefaultMinutes
	}
	if e.LastTime == "" {
		e.LastTime = recurrence.TimeOfDayOf(b.now()).String()
	}
	b.slots = append(b.slots, &slot{Entry: e})
	return e
}

// Remove deletes the entry at the 1-based order and renumbers the rest.
func (b *Board) Remove(order int) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.slotLocked(order)
	if err != nil {
		return Entry{}, err
	}
	b.slots = append(b.slots[:order-1], b.slots[order:]...)
	b.renumberLocked()
	return s.Entry, nil
}

func (b *Board) Rename(order int, name string) error {
	return b.edit(order, func(e *Entry) {
		e.Name = strings.TrimSpace(name)
	})
}

func (b *Board) SetPeriod(order, minutes, seconds int) error {
	return b.edit(order, func(e *Entry) {
		e.Minutes = minutes
		e.Seconds = seconds
	})
}

func (b *Board) SetEnabled(order int, enabled bool) error {
	return b.edit(order, func(e *Entry) {
		e.Enabled = enabled
	})
}

// SetLastTrigger sets the last known occurrence. It is rejected in auto mode,
// where the board owns that field.
func (b *Board) SetLastTrigger(order int, last recurrence.TimeOfDay) error {
	b.mu.Lock()
	manual := b.mode == ModeManual
	b.mu.Unlock()
	if !manual {
		return ErrManualOnly
	}
	return b.edit(order, func(e *Entry) {
		e.LastTime = last.String()
	})
}

// edit applies fn to a copy and commits it unless it introduces a problem the
// entry did not already have. Malformed entries can be repaired one field at
// a time.
func (b *Board) edit(order int, fn func(*Entry)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.slotLocked(order)
	if err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, p := range s.Entry.problems() {
		known[p.key()] = true
	}
	next := s.Entry
	fn(&next)
	for _, p := range next.problems() {
		if !known[p.key()] {
			return p
		}
	}
	s.Entry = next
	return nil
}

// Acknowledge stops every ringing entry and returns how many were ringing.
func (b *Board) Acknowledge() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, s := range b.slots {
		if s.ringing {
			s.ringing = false
			n++
		}
	}
	return n
}

// Snapshot returns copies of all entries in display order.
func (b *Board) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, len(b.slots))
	for i, s := range b.slots {
		out[i] = s.Entry
	}
	return out
}

// Records returns the persisted form of all entries, malformed ones included.
func (b *Board) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, len(b.slots))
	for i, s := range b.slots {
		out[i] = s.Record()
	}
	return out
}

// Load replaces the entry list. Alert state is reset.
func (b *Board) Load(records []Record) {
	slots := make([]*slot, 0, len(records))
	for i, r := range records {
		slots = append(slots, &slot{Entry: Entry{
			ID:       uuid.NewString(),
			Order:    i + 1,
			Name:     r.Name,
			Minutes:  r.Minutes,
			Seconds:  r.Seconds,
			LastTime: r.LastTime,
			Enabled:  r.Enabled,
		}})
	}

	b.mu.Lock()
	b.slots = slots
	b.mu.Unlock()
}

// Tick runs one evaluation pass at now.
func (b *Board) Tick(now time.Time) Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	rep := Report{At: now, Mode: b.mode, Rows: make([]Row, 0, len(b.slots))}
	for _, s := range b.slots {
		row, alert, bad := b.evaluateLocked(s, now)
		rep.Rows = append(rep.Rows, row)
		if alert != nil {
			rep.Alerts = append(rep.Alerts, *alert)
		}
		if bad != nil {
			rep.Malformed = append(rep.Malformed, bad)
		}
	}
	return rep
}

func (b *Board) evaluateLocked(s *slot, now time.Time) (Row, *Alert, error) {
	if err := s.Validate(); err != nil {
		s.pending = time.Time{}
		s.ringing = false
		row := Row{Entry: s.Entry, Err: err}
		key := errorKey(err)
		if key == s.reported {
			return row, nil, nil
		}
		s.reported = key
		return row, nil, err
	}
	s.reported = ""

	last, _ := recurrence.ParseTimeOfDay(s.LastTime)
	period := s.Period()
	fp := fingerprint{last: last, period: period}
	if s.pending.IsZero() || s.fp != fp {
		if err := s.recompute(fp, now); err != nil {
			return Row{Entry: s.Entry, Err: err}, nil, nil
		}
	}

	var alert *Alert
	state := b.policy.Classify(s.pending.Sub(now), s.Enabled, s.ringing)
	switch state {
	case recurrence.AlertDue:
		occurrence := s.pending
		s.ringing = true
		reset := false
		if b.mode == ModeAuto {
			s.LastTime = recurrence.TimeOfDayOf(now).String()
			last, _ = recurrence.ParseTimeOfDay(s.LastTime)
			_ = s.recompute(fingerprint{last: last, period: period}, now)
			reset = true
		}
		alert = &Alert{Kind: state, Entry: s.Entry, Occurrence: occurrence, Remaining: occurrence.Sub(now), AutoReset: reset}

	case recurrence.AlertPreWarning:
		if !s.warnedFor.Equal(s.pending) {
			s.warnedFor = s.pending
			alert = &Alert{Kind: state, Entry: s.Entry, Occurrence: s.pending, Remaining: s.pending.Sub(now)}
		}

	default:
		// Roll past occurrences forward unless a manual alarm is still
		// waiting to be reasserted after acknowledge.
		if !s.pending.After(now) && !(s.ringing && b.mode == ModeManual) {
			_ = s.recompute(fp, now)
		}
	}

	display, _ := recurrence.DisplayState(s.pending, period, now)
	return Row{
		Entry:   s.Entry,
		Next:    s.pending,
		Display: display,
		State:   state,
		Phase:   s.phase(),
	}, alert, nil
}

func (s *slot) recompute(fp fingerprint, now time.Time) error {
	next, err := recurrence.NextOccurrence(fp.last, fp.period, now)
	if err != nil {
		return err
	}
	s.pending = next
	s.fp = fp
	return nil
}

func (b *Board) slotLocked(order int) (*slot, error) {
	if order < 1 || order > len(b.slots) {
		return nil, ErrNoSuchEntry
	}
	return b.slots[order-1], nil
}

func (b *Board) renumberLocked() {
	for i, s := range b.slots {
		s.Order = i + 1
	}
}

func errorKey(err error) string {
	if me, ok := err.(*MalformedEntryError); ok {
		return me.key()
	}
	return err.Error()
}
