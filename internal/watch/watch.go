// Package watch polls the device service and reports block devices that
// appeared or disappeared between two polls.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
	"github.com/CristiGvl/picoDisks/internal/metrics"
)

const (
	DefaultInterval = time.Second
	// BufferSize is the capacity of Stream.C
	BufferSize = 32
)

// Kind of change
type Kind string

const (
	Added   Kind = "added"
	Removed Kind = "removed"
)

// Event is one device that appeared or disappeared
type Event struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
}

// Lister is the part of the device service the watcher polls
type Lister interface {
	BlockDevices(ctx context.Context) ([]string, error)
}

var _ Lister = devsvc.Service(nil)

// Watcher polls a Lister at a fixed interval
type Watcher struct {
	lister   Lister
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Watcher
type Option func(*Watcher)

// WithInterval sets the poll interval
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the logger for poll failures
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithMetrics counts emitted events
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// New creates a watcher
func New(lister Lister, opts ...Option) *Watcher {
	w := &Watcher{
		lister:   lister,
		interval: DefaultInterval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stream delivers the events of one running watcher. C is closed once the
// loop has stopped.
type Stream struct {
	C <-chan Event

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the loop and waits for it to exit
func (s *Stream) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the loop has stopped
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Start runs the poll loop until ctx is done or the stream is closed.
//
// The first poll only records a baseline. Every later poll sends all of its
// events before the next poll starts.
func (w *Watcher) Start(ctx context.Context) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, BufferSize)
	s := &Stream{C: ch, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(ch)
		w.run(ctx, ch)
	}()
	return s
}

func (w *Watcher) run(ctx context.Context, ch chan<- Event) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var prev []string
	baseline := false

	for {
		cur, err := w.lister.BlockDevices(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn().Err(err).Msg("device poll failed")
		case !baseline:
			prev, baseline = cur, true
		default:
			if !w.send(ctx, ch, Diff(prev, cur)) {
				return
			}
			prev = cur
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Watcher) send(ctx context.Context, ch chan<- Event, events []Event) bool {
	for _, ev := range events {
		select {
		case ch <- ev:
			w.metrics.IncEvent(string(ev.Kind))
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Diff returns the additions followed by the removals between two polls
func Diff(prev, cur []string) []Event {
	removed, added := lo.Difference(prev, cur)
	events := make([]Event, 0, len(added)+len(removed))
	for _, p := range lo.Uniq(added) {
		events = append(events, Event{Kind: Added, Path: p})
	}
	for _, p := range lo.Uniq(removed) {
		events = append(events, Event{Kind: Removed, Path: p})
	}
	return events
}
