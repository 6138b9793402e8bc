// Package watchdog extracts representative text from social and video pages
// and classifies it into abuse/safety categories, delegating to a remote
// classifier when configured and falling back to the local heuristic
// classifier otherwise.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docutag/watchdog/classifier"
	"github.com/docutag/watchdog/metrics"
	"github.com/docutag/watchdog/models"
	"github.com/docutag/watchdog/settings"
)

const (
	// MaxTextLength bounds the text handed to any classifier
	MaxTextLength = 12000
	// MinTextLength is the shortest trimmed text worth scoring
	MinTextLength = 3
)

var tracer = otel.Tracer("github.com/docutag/watchdog")

// Config contains analyzer configuration
type Config struct {
	HTTPTimeout      time.Duration // Timeout for page fetches
	UserAgent        string
	MaxPageBytes     int64
	CaptionBaseURL   string
	CaptionLanguages []string // Tried in order, first non-empty track wins
	CaptionTimeout   time.Duration
	MaxCaptionBytes  int64
	ExtractTimeout   time.Duration // Upper bound for one whole extraction
	RemoteTimeout    time.Duration
	CookieJar        http.CookieJar // Optional, shared by page and caption fetches
}

// DefaultConfig returns default analyzer configuration
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:      30 * time.Second,
		UserAgent:        "Mozilla/5.0 (compatible; WatchDog/1.0)",
		MaxPageBytes:     10 * 1024 * 1024,
		CaptionBaseURL:   DefaultCaptionBaseURL,
		CaptionLanguages: DefaultCaptionLanguages,
		CaptionTimeout:   5 * time.Second,
		MaxCaptionBytes:  2 * 1024 * 1024,
		ExtractTimeout:   15 * time.Second,
		RemoteTimeout:    10 * time.Second,
	}
}

// Analyzer runs the extraction and classification pipeline
type Analyzer struct {
	config     Config
	httpClient *http.Client
	extractor  *Extractor
	classifier *classifier.Classifier
	remote     *RemoteClient
	settings   *settings.Manager
	metrics    *metrics.Metrics
}

// New creates a new Analyzer. store may be nil, in which case the default
// settings are used; m may be nil to disable metrics.
func New(config Config, store settings.Store, m *metrics.Metrics) *Analyzer {
	defaults := DefaultConfig()
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaults.HTTPTimeout
	}
	if len(config.CaptionLanguages) == 0 {
		config.CaptionLanguages = defaults.CaptionLanguages
	}
	if config.CaptionBaseURL == "" {
		config.CaptionBaseURL = defaults.CaptionBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.MaxPageBytes <= 0 {
		config.MaxPageBytes = defaults.MaxPageBytes
	}
	if config.MaxCaptionBytes <= 0 {
		config.MaxCaptionBytes = defaults.MaxCaptionBytes
	}
	if config.CaptionTimeout <= 0 {
		config.CaptionTimeout = defaults.CaptionTimeout
	}
	if config.ExtractTimeout <= 0 {
		config.ExtractTimeout = defaults.ExtractTimeout
	}
	if config.RemoteTimeout <= 0 {
		config.RemoteTimeout = defaults.RemoteTimeout
	}

	httpClient := &http.Client{
		Timeout:   config.HTTPTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Jar:       config.CookieJar,
	}

	return &Analyzer{
		config:     config,
		httpClient: httpClient,
		extractor:  NewExtractor(config, NewCaptionFetcher(config, httpClient)),
		classifier: classifier.New(nil),
		remote:     NewRemoteClient(httpClient, config.RemoteTimeout),
		settings:   settings.NewManager(store),
		metrics:    m,
	}
}

// Settings returns the settings used by the most recent scan
func (a *Analyzer) Settings() models.Settings {
	return a.settings.Current()
}

// RefreshSettings re-reads the settings store
func (a *Analyzer) RefreshSettings(ctx context.Context) models.Settings {
	s, _ := a.settings.Refresh(ctx)
	return s
}

// Scan refreshes settings from the store and evaluates page, so a settings
// change takes effect on the very next scan.
func (a *Analyzer) Scan(ctx context.Context, page *Page) (*models.AnalysisResult, error) {
	return a.Evaluate(ctx, a.RefreshSettings(ctx), page)
}

// ScanURL refreshes settings, fetches targetURL and evaluates it. The page
// is not fetched at all when scanning is disabled.
func (a *Analyzer) ScanURL(ctx context.Context, targetURL string) (*models.AnalysisResult, error) {
	s := a.RefreshSettings(ctx)
	if !s.Enabled {
		result := skippedResult()
		result.URL = targetURL
		a.metrics.ObserveEvaluation(string(result.Status), "", false, 0)
		return result, nil
	}

	page, err := a.FetchPage(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	return a.Evaluate(ctx, s, page)
}

// Evaluate runs one pipeline pass over page with the given settings.
// Disabled and empty pages produce distinct skipped / no-content results.
// Extraction and remote failures degrade silently; only an unexpected
// internal fault is returned as an error.
func (a *Analyzer) Evaluate(ctx context.Context, s models.Settings, page *Page) (result *models.AnalysisResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "watchdog.evaluate")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "unexpected fault during evaluation", "url", page.String(), "panic", r)
			result = nil
			err = fmt.Errorf("unexpected fault during evaluation: %v", r)
			span.RecordError(err)
		}
	}()

	if page == nil {
		return nil, errors.New("no page to evaluate")
	}

	s = s.Normalize()
	if !s.Enabled {
		result = skippedResult()
		result.URL = page.String()
		a.metrics.ObserveEvaluation(string(result.Status), "", false, time.Since(start))
		return result, nil
	}

	extraction := a.extractor.Extract(ctx, page)
	a.metrics.Extraction(string(extraction.Platform), sourceLabels(extraction.Sources))

	if len([]rune(strings.TrimSpace(extraction.Text))) < MinTextLength {
		result = &models.AnalysisResult{
			Flagged:  false,
			Label:    models.LabelNoContent,
			Scores:   models.Scores{Counts: map[string]int{}, Categories: []models.CategoryScore{}},
			TopTerms: []string{},
			Status:   models.StatusNoContent,
		}
		a.finish(result, extraction.Platform, "", page)
		a.metrics.ObserveEvaluation(string(result.Status), "", false, time.Since(start))
		return result, nil
	}

	text := classifier.TruncateRunes(extraction.Text, MaxTextLength)
	language := GuessLanguage(text)

	result = a.classify(ctx, s, extraction.Platform, language, text)
	a.finish(result, extraction.Platform, language, page)

	span.SetAttributes(
		attribute.String("watchdog.route", string(result.Route)),
		attribute.String("watchdog.label", result.Label),
		attribute.Bool("watchdog.flagged", result.Flagged),
	)
	a.metrics.ObserveEvaluation(string(result.Status), string(result.Route), result.Flagged, time.Since(start))
	return result, nil
}

// classify routes text to the remote classifier when enabled, falling back
// to local scoring on any remote failure.
func (a *Analyzer) classify(ctx context.Context, s models.Settings, platform models.Platform, language, text string) *models.AnalysisResult {
	if s.RemoteEnabled() {
		remote, err := a.remote.Analyze(ctx, s.RemoteEndpoint, models.RemoteRequest{
			Platform: string(platform),
			Language: language,
			Text:     text,
		})
		if err == nil {
			return normalizeRemote(remote, text)
		}

		reason := "network"
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) {
			reason = remoteErr.Reason
		}
		a.metrics.RemoteFailure(reason)
		slog.WarnContext(ctx, "remote classification failed, using local scoring",
			"endpoint", s.RemoteEndpoint,
			"reason", reason,
			"error", err,
		)
	}

	local := a.classifier.Score(text)
	return &local
}

func (a *Analyzer) finish(result *models.AnalysisResult, platform models.Platform, language string, page *Page) {
	result.Platform = platform
	result.Language = language
	result.URL = page.String()
	result.Title = page.Headline()
	result.ScannedAt = time.Now().UTC()
}

func skippedResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Flagged:   false,
		Label:     models.LabelSkipped,
		Scores:    models.Scores{Counts: map[string]int{}, Categories: []models.CategoryScore{}},
		TopTerms:  []string{},
		Status:    models.StatusSkipped,
		Reason:    "disabled",
		ScannedAt: time.Now().UTC(),
	}
}

// normalizeRemote coerces a remote verdict into the local result shape:
// capped preview and terms, ranked categories, and a label consistent with
// the flag.
func normalizeRemote(r *models.AnalysisResult, text string) *models.AnalysisResult {
	if r.Preview == "" {
		r.Preview = classifier.Preview(text)
	} else {
		r.Preview = classifier.Preview(r.Preview)
	}

	if r.Scores.Counts == nil {
		r.Scores.Counts = map[string]int{}
	}
	if r.Scores.Categories == nil {
		r.Scores.Categories = []models.CategoryScore{}
	}
	sort.SliceStable(r.Scores.Categories, func(i, j int) bool {
		return r.Scores.Categories[i].WeightedScore > r.Scores.Categories[j].WeightedScore
	})

	terms := make([]string, 0, classifier.MaxTopTerms)
	seen := make(map[string]bool)
	for _, term := range r.TopTerms {
		if seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
		if len(terms) == classifier.MaxTopTerms {
			break
		}
	}
	r.TopTerms = terms

	switch {
	case !r.Flagged:
		r.Label = models.LabelSafe
	case len(r.Scores.Categories) > 0:
		r.Label = r.Scores.Categories[0].Category
	case r.Label == "" || r.Label == models.LabelSafe:
		r.Label = "flagged"
	}

	r.Status = models.StatusScanned
	r.Route = models.RouteRemote
	r.Reason = ""
	return r
}

func sourceLabels(sources []models.SourceKind) []string {
	labels := make([]string, len(sources))
	for i, s := range sources {
		labels[i] = string(s)
	}
	return labels
}

// Respond wraps an evaluation outcome in the transport envelope
func Respond(result *models.AnalysisResult, err error) models.ScanResponse {
	if err != nil {
		return models.ScanResponse{OK: false, Error: err.Error()}
	}
	if result == nil {
		return models.ScanResponse{OK: false, Error: "no result"}
	}
	return models.ScanResponse{
		OK:             true,
		AnalysisResult: result,
		Skipped:        result.Status == models.StatusSkipped,
	}
}
