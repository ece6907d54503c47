package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the daemon.
const (
	TimerPreWarn = "timer.prewarn"
	TimerDue     = "timer.due"
	TimerAck     = "timer.ack"
	TimerEdited  = "timer.edited"
	EntriesSaved = "entries.saved"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish never blocks.
//   - Slow subscribers drop events; Dropped counts them.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	// Subscribe delivers events whose Type starts with one of the prefixes
	// (all events when none are given).
	Subscribe(buffer int, prefixes ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch       chan Event
	prefixes []string
	closed   bool
}

func (s *sub) wants(typ string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*sub
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock; unsubscribe takes the write lock
	// before closing, so no send can hit a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.closed || !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, prefixes ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer), prefixes: prefixes}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			s.closed = true
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
