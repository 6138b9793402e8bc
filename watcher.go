package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/docutag/watchdog/models"
	"github.com/docutag/watchdog/scheduler"
)

// DefaultPollInterval is how often a Watcher re-fetches its page
const DefaultPollInterval = 5 * time.Second

// FetchFunc loads a page snapshot
type FetchFunc func(ctx context.Context, targetURL string) (*Page, error)

// Watcher polls a URL and emits scheduler signals when the page changes.
// Content changes produce Mutation signals; a change of the final URL or of
// the YouTube video id produces a Navigation signal.
type Watcher struct {
	scheduler.Emitter

	fetch    FetchFunc
	url      string
	interval time.Duration

	mu          sync.RWMutex
	latest      *Page
	fingerprint uint64
	location    string
	videoID     string
}

// NewWatcher creates a watcher for targetURL. interval <= 0 uses DefaultPollInterval.
func NewWatcher(fetch FetchFunc, targetURL string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{fetch: fetch, url: targetURL, interval: interval}
}

// Latest returns the most recent snapshot, or nil before the first fetch
func (w *Watcher) Latest() *Page {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

// Poll fetches the page once and emits a signal if it changed. The first
// successful poll always emits Navigation.
func (w *Watcher) Poll(ctx context.Context) error {
	page, err := w.fetch(ctx, w.url)
	if err != nil {
		return err
	}

	fingerprint := pageFingerprint(page)
	location := page.String()
	videoID := YouTubeVideoID(page.URL)

	w.mu.Lock()
	first := w.latest == nil
	navigated := first || location != w.location || videoID != w.videoID
	mutated := fingerprint != w.fingerprint
	w.latest = page
	w.fingerprint = fingerprint
	w.location = location
	w.videoID = videoID
	w.mu.Unlock()

	switch {
	case navigated:
		w.Emit(scheduler.Signal{Kind: scheduler.Navigation, URL: location, At: time.Now()})
	case mutated:
		w.Emit(scheduler.Signal{Kind: scheduler.Mutation, URL: location, At: time.Now()})
	}
	return nil
}

// Run polls until ctx is cancelled. Fetch errors are logged and polling continues.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "page poll failed", "url", w.url, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pageFingerprint hashes what the extractor can see: title and visible text
func pageFingerprint(page *Page) uint64 {
	d := xxhash.New()
	d.WriteString(page.Title())
	d.WriteString("\x00")
	d.WriteString(page.VisibleText())
	return d.Sum64()
}

// WatchOptions configures Analyzer.Watch
type WatchOptions struct {
	PollInterval time.Duration
	Delay        time.Duration // debounce delay
}

// Watch keeps evaluating targetURL while it changes, calling report with
// every outcome, until ctx is cancelled. Settings are re-read before each
// evaluation.
func (a *Analyzer) Watch(ctx context.Context, targetURL string, opts WatchOptions, report func(*models.AnalysisResult, error)) error {
	watcher := NewWatcher(a.FetchPage, targetURL, opts.PollInterval)

	sched := scheduler.New(func(ctx context.Context, sig scheduler.Signal) error {
		page := watcher.Latest()
		if page == nil {
			return nil
		}
		result, err := a.Scan(ctx, page)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report(result, err)
		return err
	}, scheduler.Options{Delay: opts.Delay, Metrics: a.metrics})
	defer sched.Stop()
	sched.Attach(watcher)

	err := watcher.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
