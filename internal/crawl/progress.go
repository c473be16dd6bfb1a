// Package crawl implements the drive enumeration engine: breadth-first
// traversal of the folder hierarchy, bounded-concurrency detail
// enrichment, and non-blocking progress reporting.
package crawl

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
)

// EventKind identifies a progress event type.
type EventKind int

const (
	// EventSetInitial announces the total leaf count before enrichment starts.
	EventSetInitial EventKind = iota
	// EventAddContainers reports newly discovered containers.
	EventAddContainers
	// EventAddLeaves reports newly discovered leaves.
	EventAddLeaves
	// EventAddDetails reports completed enrichment items.
	EventAddDetails
)

// Event is a single progress update.
type Event struct {
	Kind EventKind
	N    int
}

// Counters aggregates progress events. Monotonically increasing within
// one run.
type Counters struct {
	Containers  int
	Leaves      int
	Details     int
	TotalLeaves int
}

// defaultEventBuffer is the emitter channel capacity. Once full,
// further events are dropped rather than blocking the producer.
const defaultEventBuffer = 256

// Emitter is the producer side of the progress channel. Emit never
// blocks: if no consumer is attached, or the consumer cannot keep up,
// events are dropped and counted. A nil *Emitter is valid and discards
// everything, so components take it unconditionally.
type Emitter struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewEmitter creates an emitter with the default buffer.
func NewEmitter() *Emitter {
	return &Emitter{ch: make(chan Event, defaultEventBuffer)}
}

// Emit posts an event without blocking.
func (e *Emitter) Emit(kind EventKind, n int) {
	if e == nil {
		return
	}

	select {
	case e.ch <- Event{Kind: kind, N: n}:
	default:
		e.dropped.Add(1)
	}
}

// Stop signals end of the run by closing the event channel. The
// consumer drains whatever is buffered and terminates. Emit must not
// be called after Stop.
func (e *Emitter) Stop() {
	if e == nil {
		return
	}

	close(e.ch)
}

// Dropped reports how many events were discarded because the buffer
// was full.
func (e *Emitter) Dropped() uint64 {
	if e == nil {
		return 0
	}

	return e.dropped.Load()
}

// Events exposes the consumer side of the channel.
func (e *Emitter) Events() <-chan Event {
	if e == nil {
		return nil
	}

	return e.ch
}

// Consumer aggregates progress events into counters and renders a
// status line. On a TTY it rewrites a single line on every event and
// on a fixed tick; otherwise it logs a summary once per interval.
// Exactly one consumer reads an emitter.
type Consumer struct {
	w        io.Writer
	interval time.Duration
	isTTY    bool
	logger   *slog.Logger

	counters Counters
	done     chan struct{}
}

// NewConsumer creates a consumer writing to w. TTY detection looks at
// w when it is an *os.File.
func NewConsumer(w io.Writer, interval time.Duration, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
	}

	return &Consumer{
		w:        w,
		interval: interval,
		isTTY:    tty,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the consumer goroutine reading from events. It
// terminates when the emitter is stopped; Wait blocks until then.
func (c *Consumer) Start(events <-chan Event) {
	go c.run(events)
}

// Wait blocks until the consumer has drained all events after Stop.
// The run is not complete until Wait returns.
func (c *Consumer) Wait() Counters {
	<-c.done
	return c.counters
}

func (c *Consumer) run(events <-chan Event) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				c.render(true)
				return
			}

			c.apply(ev)

			if c.isTTY {
				c.render(false)
			}
		case <-ticker.C:
			c.render(false)
		}
	}
}

func (c *Consumer) apply(ev Event) {
	switch ev.Kind {
	case EventSetInitial:
		c.counters.TotalLeaves = ev.N
	case EventAddContainers:
		c.counters.Containers += ev.N
	case EventAddLeaves:
		c.counters.Leaves += ev.N
	case EventAddDetails:
		c.counters.Details += ev.N
	}
}

// render draws the status line (TTY) or logs a summary (non-TTY).
func (c *Consumer) render(final bool) {
	if c.isTTY {
		fmt.Fprintf(c.w, "\rfolders %d  files %d  details %d/%d",
			c.counters.Containers, c.counters.Leaves, c.counters.Details, c.counters.TotalLeaves)

		if final {
			fmt.Fprintln(c.w)
		}

		return
	}

	c.logger.Info("scan progress",
		slog.Int("containers", c.counters.Containers),
		slog.Int("leaves", c.counters.Leaves),
		slog.Int("details", c.counters.Details),
		slog.Int("total_leaves", c.counters.TotalLeaves),
	)
}
