// Package scheduler re-runs an evaluation when the observed page changes.
//
// Change signals from any number of sources are debounced: a burst of
// signals inside the delay collapses into one trailing run. At most one run
// is in flight; signals that arrive while a run is executing schedule a
// single follow-up once it returns.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docutag/watchdog/metrics"
)

// DefaultDelay is the debounce delay
const DefaultDelay = 1200 * time.Millisecond

// Kind is the type of change that produced a signal
type Kind int

const (
	Mutation Kind = iota
	Navigation
	Manual
)

func (k Kind) String() string {
	switch k {
	case Mutation:
		return "mutation"
	case Navigation:
		return "navigation"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// Signal reports that the observed page may have changed
type Signal struct {
	Kind Kind
	URL  string
	At   time.Time
}

// Source emits change signals. Subscribe returns a function that detaches
// the callback; it must be safe to call more than once.
type Source interface {
	Subscribe(fn func(Signal)) (unsubscribe func())
}

// RunFunc performs one evaluation for the latest signal of a burst
type RunFunc func(ctx context.Context, sig Signal) error

// Options configures a Scheduler
type Options struct {
	Delay   time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Scheduler debounces change signals into evaluations
type Scheduler struct {
	run     RunFunc
	delay   time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	latest   Signal
	inFlight bool
	pending  bool
	stopped  bool
	unsubs   []func()
}

// New creates a scheduler that calls run. It does nothing until signals
// arrive via Notify, Trigger or an attached Source.
func New(run RunFunc, opts Options) *Scheduler {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:     run,
		delay:   opts.Delay,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Attach subscribes to src until Stop is called
func (s *Scheduler) Attach(src Source) {
	unsub := src.Subscribe(s.Notify)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		unsub()
		return
	}
	s.unsubs = append(s.unsubs, unsub)
}

// Trigger requests a manual re-scan. It is debounced like any other signal.
func (s *Scheduler) Trigger() {
	s.Notify(Signal{Kind: Manual})
}

// Notify records a change signal and (re)starts the debounce timer
func (s *Scheduler) Notify(sig Signal) {
	if sig.At.IsZero() {
		sig.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.metrics.SchedulerSignal(sig.Kind.String())
	s.latest = sig

	if s.inFlight {
		// The follow-up is scheduled when the current run returns
		s.pending = true
		return
	}
	s.armLocked()
}

func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

// fire runs after the debounce delay elapsed without new signals. A timer
// superseded by a later signal finds a newer generation and does nothing.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || s.inFlight || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.timer = nil
	sig := s.latest
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	err := s.runSafely(sig)
	switch {
	case err != nil && s.ctx.Err() != nil:
		s.metrics.SchedulerRun("cancelled")
	case err != nil:
		s.metrics.SchedulerRun("error")
		s.logger.Warn("scheduled evaluation failed", "signal", sig.Kind.String(), "url", sig.URL, "error", err)
	default:
		s.metrics.SchedulerRun("ok")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.pending && !s.stopped {
		s.pending = false
		s.armLocked()
	}
}

// runSafely calls run, turning a panic into an error so the scheduler keeps
// accepting signals afterwards
func (s *Scheduler) runSafely(sig Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduled evaluation panicked: %v", r)
		}
	}()
	return s.run(s.ctx, sig)
}

// Running reports whether an evaluation is in flight
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Stop detaches every source, cancels a pending debounce and the context of
// an in-flight run, and waits for that run to return. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	s.cancel()
	s.wg.Wait()
}
