// Package monitor owns the live drive list. One goroutine applies watch
// events, serves snapshots and runs mutations, one at a time.
package monitor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/CristiGvl/picoDisks/internal/metrics"
	"github.com/CristiGvl/picoDisks/internal/topology"
	"github.com/CristiGvl/picoDisks/internal/watch"
)

// ErrStopped is returned to callers once Run has returned
var ErrStopped = errors.New("monitor stopped")

// RebuildTimeout bounds the rebuild that follows a successful mutation. It
// is independent of the caller's deadline.
const RebuildTimeout = time.Minute

type request struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

// Monitor is the single owner of the drive list
type Monitor struct {
	builder    topology.Rebuilder
	reconciler *topology.Reconciler
	events     <-chan watch.Event
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	requests chan request
	stopped  chan struct{}

	// owned by the Run goroutine
	drives []*topology.Drive
	err    error
}

// Option configures a Monitor
type Option func(*Monitor)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics records operation outcomes
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// New creates a monitor fed by events. events may be nil.
func New(builder topology.Rebuilder, events <-chan watch.Event, opts ...Option) *Monitor {
	m := &Monitor{
		builder:  builder,
		events:   events,
		logger:   zerolog.Nop(),
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reconciler = topology.NewReconciler(builder, m.logger)
	return m
}

// Run builds the initial list and then serves events and requests until
// ctx is done. A failed initial build is kept as the current error and
// retried on the next event or refresh.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.stopped)

	m.rebuild(ctx)

	events := m.events
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				m.logger.Info().Msg("device watcher stopped")
				events = nil
				continue
			}
			m.apply(ctx, ev)
		case req := <-m.requests:
			req.fn(req.ctx)
		}
	}
}

func (m *Monitor) rebuild(ctx context.Context) {
	drives, err := m.builder.Build(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("topology build failed")
		m.err = err
		return
	}
	m.drives, m.err = drives, nil
	m.logger.Debug().Int("drives", len(drives)).Msg("topology rebuilt")
}

func (m *Monitor) apply(ctx context.Context, ev watch.Event) {
	m.logger.Debug().Str("kind", string(ev.Kind)).Str("path", ev.Path).Msg("device event")

	if m.err != nil && m.drives == nil {
		m.rebuild(ctx)
		return
	}

	var added, removed string
	switch ev.Kind {
	case watch.Added:
		added = ev.Path
	case watch.Removed:
		removed = ev.Path
	}

	drives, err := m.reconciler.Apply(ctx, m.drives, added, removed)
	m.drives = drives
	if err != nil {
		m.logger.Warn().Err(err).Str("path", ev.Path).Msg("reconcile failed")
	}
}

// do runs fn on the owner goroutine and waits for it
func (m *Monitor) do(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	req := request{ctx: ctx, fn: func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	}}

	select {
	case m.requests <- req:
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drives returns the current drive list. The slice is a copy; drives are
// never modified after they are published.
func (m *Monitor) Drives(ctx context.Context) ([]*topology.Drive, error) {
	var (
		out []*topology.Drive
		err error
	)
	if e := m.do(ctx, func(context.Context) {
		if m.drives == nil && m.err != nil {
			err = m.err
			return
		}
		out = append([]*topology.Drive{}, m.drives...)
	}); e != nil {
		return nil, e
	}
	return out, err
}

// Refresh replaces the list with a full rebuild
func (m *Monitor) Refresh(ctx context.Context) error {
	var err error
	if e := m.do(ctx, func(ctx context.Context) {
		m.rebuild(ctx)
		err = m.err
	}); e != nil {
		return e
	}
	return err
}

// Mutate runs fn against the current list and, when it succeeds, rebuilds.
// The rebuild is authoritative over any event still queued for the same
// device and runs to completion even if ctx expires first, in which case
// Mutate returns ctx's error.
func (m *Monitor) Mutate(ctx context.Context, name string, fn func(ctx context.Context, drives []*topology.Drive) error) error {
	var err error
	if e := m.do(ctx, func(ctx context.Context) {
		err = fn(ctx, m.drives)
		m.metrics.ObserveOperation(name, err)
		if err != nil {
			m.logger.Warn().Err(err).Str("op", name).Msg("operation failed")
			return
		}
		m.logger.Info().Str("op", name).Msg("operation succeeded")

		// the device already changed, so the list is refreshed even when
		// the caller has given up
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RebuildTimeout)
		defer cancel()
		m.rebuild(rctx)
	}); e != nil {
		return e
	}
	return err
}
