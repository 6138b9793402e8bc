package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/watchdog"
	"github.com/docutag/watchdog/classifier"
	"github.com/docutag/watchdog/db"
	"github.com/docutag/watchdog/metrics"
	"github.com/docutag/watchdog/models"
	"github.com/docutag/watchdog/storage"
)

// Server represents the API server
type Server struct {
	db          *db.DB
	analyzer    *watchdog.Analyzer
	classifier  *classifier.Classifier
	archive     storage.Archive
	metrics     *metrics.Metrics
	dbMetrics   *metrics.DatabaseMetrics
	registry    *prometheus.Registry
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
	scanTimeout time.Duration
}

// Config contains server configuration
type Config struct {
	Addr           string
	DBConfig       db.Config
	AnalyzerConfig watchdog.Config
	StoragePath    string            // Filesystem evidence archive
	S3             *storage.S3Config // When set, evidence goes to S3 instead
	CORSEnabled    bool
	ScanTimeout    time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		DBConfig:       db.Config{Driver: db.DriverSQLite, DSN: "./watchdog.db"},
		AnalyzerConfig: watchdog.DefaultConfig(),
		StoragePath:    storage.DefaultConfig().BasePath,
		CORSEnabled:    true,
		ScanTimeout:    2 * time.Minute,
	}
}

// NewServer creates a new API server. Pipeline settings are read from and
// written to the database.
func NewServer(config Config) (*Server, error) {
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var archive storage.Archive
	if config.S3 != nil {
		archive, err = storage.NewS3Storage(context.Background(), *config.S3)
	} else {
		archive, err = storage.New(storage.Config{BasePath: config.StoragePath})
	}
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	if config.ScanTimeout <= 0 {
		config.ScanTimeout = 2 * time.Minute
	}

	s := &Server{
		db:          database,
		analyzer:    watchdog.New(config.AnalyzerConfig, database, m),
		classifier:  classifier.New(nil),
		archive:     archive,
		metrics:     m,
		dbMetrics:   metrics.NewDatabaseMetrics(registry, "watchdog"),
		registry:    registry,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
		scanTimeout: config.ScanTimeout,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(s.middleware(s.mux), "watchdog-api"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.ScanTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc(watchdog.RemoteAnalyzePath, s.handleAnalyzeText)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/scans/", s.handleScanByID) // Handles /api/scans/{id}
	s.mux.HandleFunc("/api/scans", s.handleListScans)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// DB returns the server database
func (s *Server) DB() *db.DB {
	return s.db
}

// Analyzer returns the pipeline used for scans
func (s *Server) Analyzer() *watchdog.Analyzer {
	return s.analyzer
}

// UpdateDBMetrics samples the connection pool
func (s *Server) UpdateDBMetrics() {
	s.dbMetrics.UpdateDBStats(s.db.DB())
}

// Start starts the API server
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Logging (skip health checks and scrapes to reduce noise)
		start := time.Now()
		next.ServeHTTP(w, r)

		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			slog.InfoContext(r.Context(), "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start),
			)
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.db.CountScans(r.Context(), db.ListFilter{})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"scans":    count,
		"settings": s.analyzer.Settings(),
		"time":     time.Now(),
	})
}

// handleAnalyzeText serves the remote classifier contract with the local
// classifier, so one deployment can be another's remote endpoint
func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.RemoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	text := classifier.TruncateRunes(req.Text, watchdog.MaxTextLength)
	result := s.classifier.Score(text)
	result.Platform = models.Platform(req.Platform)
	result.Language = req.Language
	if result.Language == "" {
		result.Language = watchdog.GuessLanguage(text)
	}
	result.ScannedAt = time.Now().UTC()

	respondJSON(w, http.StatusOK, result)
}

// handleScan evaluates one page, records the outcome and archives evidence
// for flagged pages
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		respondError(w, http.StatusBadRequest, "url must be an absolute http or https URL")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.scanTimeout)
	defer cancel()

	result, err := s.analyzer.ScanURL(ctx, req.URL)
	if err != nil {
		slog.WarnContext(ctx, "scan failed", "url", req.URL, "error", err)
		respondJSON(w, http.StatusBadGateway, watchdog.Respond(nil, err))
		return
	}

	resp := watchdog.Respond(result, nil)
	if result.Status != models.StatusSkipped {
		record, err := s.record(ctx, req.URL, result)
		if err != nil {
			// Still return the result even if save fails
			slog.ErrorContext(ctx, "failed to save scan", "url", req.URL, "error", err)
		} else {
			resp.ID = record.ID
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// record persists a scan, archiving evidence first when it was flagged.
// An archive failure is logged and the scan is stored without a key.
func (s *Server) record(ctx context.Context, requestURL string, result *models.AnalysisResult) (*models.ScanRecord, error) {
	record := &models.ScanRecord{
		URL:    requestURL,
		Result: result,
	}
	if record.URL == "" {
		record.URL = result.URL
	}

	if result.Flagged {
		record.ID = uuid.New().String()
		key, err := storage.SaveEvidence(ctx, s.archive, storage.Evidence{
			ScanID:   record.ID,
			URL:      result.URL,
			Headline: result.Title,
			Result:   result,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to archive evidence", "url", result.URL, "error", err)
		} else {
			record.ArchiveKey = key
		}
	}

	if err := s.db.SaveScan(ctx, record); err != nil {
		return nil, err
	}
	s.metrics.ScanStored(record.ArchiveKey != "")
	return record, nil
}

// handleScanByID handles GET and DELETE for a single scan
func (s *Server) handleScanByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/scans/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetScan(w, r, id)
	case http.MethodDelete:
		s.handleDeleteScan(w, r, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetScan retrieves a scan by ID
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request, id string) {
	record, err := s.db.GetScan(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleDeleteScan deletes a scan and its archived evidence
func (s *Server) handleDeleteScan(w http.ResponseWriter, r *http.Request, id string) {
	record, err := s.db.GetScan(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}

	if record.ArchiveKey != "" {
		if err := s.archive.Delete(r.Context(), record.ArchiveKey); err != nil {
			slog.WarnContext(r.Context(), "failed to delete evidence", "key", record.ArchiveKey, "error", err)
		}
	}

	if err := s.db.DeleteScan(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete scan")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "scan deleted successfully",
	})
}

// handleListScans lists scans with pagination
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()

	// Parse pagination parameters
	limit := 20
	offset := 0
	if v, err := strconv.Atoi(query.Get("limit")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(query.Get("offset")); err == nil && v > 0 {
		offset = v
	}

	// Enforce reasonable limits
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	filter := db.ListFilter{
		FlaggedOnly: query.Get("flagged") == "true",
		URL:         query.Get("url"),
	}

	scans, err := s.db.ListScans(r.Context(), filter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	count, _ := s.db.CountScans(r.Context(), filter)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scans":  scans,
		"total":  count,
		"limit":  limit,
		"offset": offset,
	})
}

// handleSettings reads or replaces the pipeline settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		current, err := s.db.LoadSettings(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}
		respondJSON(w, http.StatusOK, current)

	case http.MethodPut:
		var req models.Settings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req = req.Normalize()
		if req.RemoteEndpoint != "" {
			if u, err := url.Parse(req.RemoteEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				respondError(w, http.StatusBadRequest, "remoteEndpoint must be an http or https URL")
				return
			}
		}

		if err := s.db.SaveSettings(r.Context(), req); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		respondJSON(w, http.StatusOK, s.analyzer.RefreshSettings(r.Context()))

	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
