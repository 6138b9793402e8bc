package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docutag/watchdog"
	"github.com/docutag/watchdog/db"
	"github.com/docutag/watchdog/models"
)

const (
	hatePage     = `<html><head><title>Forum Thread</title></head><body><p>I will kill you</p></body></html>`
	friendlyPage = `<html><head><title>Recipes</title></head><body><p>Fresh bread every morning</p></body></html>`
)

func setupTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	// Create temp database file
	tempDB := t.TempDir() + "/test.db"

	config := Config{
		Addr: ":0",
		DBConfig: db.Config{
			Driver: db.DriverSQLite,
			DSN:    tempDB,
		},
		AnalyzerConfig: watchdog.DefaultConfig(),
		StoragePath:    t.TempDir(),
		CORSEnabled:    false,
	}

	server, err := NewServer(config)
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}

	cleanup := func() {
		if server.db != nil {
			server.db.Close()
		}
	}

	return server, cleanup
}

// pageServer serves fixed documents by path
func pageServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, doc)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	w := doJSON(t, server.Handler(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
	if resp["scans"] != float64(0) {
		t.Errorf("Expected 0 scans, got %v", resp["scans"])
	}
}

func TestHandleAnalyzeText(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		name           string
		method         string
		body           interface{}
		wantStatusCode int
		wantErrMsg     string
		wantFlagged    bool
	}{
		{
			name:           "hateful text",
			method:         http.MethodPost,
			body:           models.RemoteRequest{Platform: "generic", Text: "I will kill you"},
			wantStatusCode: http.StatusOK,
			wantFlagged:    true,
		},
		{
			name:           "benign text",
			method:         http.MethodPost,
			body:           models.RemoteRequest{Platform: "generic", Text: "have a lovely day"},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "missing text",
			method:         http.MethodPost,
			body:           models.RemoteRequest{Platform: "generic", Text: "  "},
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "text is required",
		},
		{
			name:           "invalid JSON",
			method:         http.MethodPost,
			body:           "{not json",
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "invalid request body",
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			wantStatusCode: http.StatusMethodNotAllowed,
			wantErrMsg:     "method not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, server.Handler(), tt.method, watchdog.RemoteAnalyzePath, tt.body)
			if w.Code != tt.wantStatusCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatusCode, w.Code, w.Body.String())
			}

			if tt.wantErrMsg != "" {
				var errResp map[string]string
				json.NewDecoder(w.Body).Decode(&errResp)
				if errResp["error"] != tt.wantErrMsg {
					t.Errorf("Expected error %q, got %q", tt.wantErrMsg, errResp["error"])
				}
				return
			}

			var result models.AnalysisResult
			if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if result.Flagged != tt.wantFlagged {
				t.Errorf("Flagged = %v, expected %v", result.Flagged, tt.wantFlagged)
			}
			if !tt.wantFlagged && result.Label != models.LabelSafe {
				t.Errorf("Label = %q, expected safe", result.Label)
			}
			if result.Language == "" {
				t.Error("Expected a language guess")
			}
		})
	}
}

func TestHandleScan(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	pages := pageServer(t, map[string]string{
		"/hate":     hatePage,
		"/friendly": friendlyPage,
	})

	tests := []struct {
		name           string
		body           interface{}
		wantStatusCode int
		wantErrMsg     string
		wantFlagged    bool
		wantArchive    bool
	}{
		{
			name:           "flagged page is archived",
			body:           models.ScanRequest{URL: pages.URL + "/hate"},
			wantStatusCode: http.StatusOK,
			wantFlagged:    true,
			wantArchive:    true,
		},
		{
			name:           "clear page is recorded",
			body:           models.ScanRequest{URL: pages.URL + "/friendly"},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "missing URL",
			body:           models.ScanRequest{},
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "url is required",
		},
		{
			name:           "non-http URL",
			body:           models.ScanRequest{URL: "ftp://example.com/file"},
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "url must be an absolute http or https URL",
		},
		{
			name:           "invalid JSON",
			body:           "{",
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, server.Handler(), http.MethodPost, "/api/scan", tt.body)
			if w.Code != tt.wantStatusCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatusCode, w.Code, w.Body.String())
			}

			if tt.wantErrMsg != "" {
				var errResp map[string]string
				json.NewDecoder(w.Body).Decode(&errResp)
				if errResp["error"] != tt.wantErrMsg {
					t.Errorf("Expected error %q, got %q", tt.wantErrMsg, errResp["error"])
				}
				return
			}

			var resp models.ScanResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if !resp.OK || resp.AnalysisResult == nil {
				t.Fatalf("Expected ok response, got %+v", resp)
			}
			if resp.Flagged != tt.wantFlagged {
				t.Errorf("Flagged = %v, expected %v", resp.Flagged, tt.wantFlagged)
			}
			if resp.ID == "" {
				t.Fatal("Expected scan ID in response")
			}

			record, err := server.DB().GetScan(context.Background(), resp.ID)
			if err != nil || record == nil {
				t.Fatalf("GetScan() = %v, %v", record, err)
			}
			if (record.ArchiveKey != "") != tt.wantArchive {
				t.Errorf("ArchiveKey = %q, expected archived=%v", record.ArchiveKey, tt.wantArchive)
			}
			if tt.wantArchive {
				data, err := server.archive.Read(context.Background(), record.ArchiveKey)
				if err != nil {
					t.Fatalf("Failed to read evidence: %v", err)
				}
				if !strings.Contains(string(data), resp.ID) {
					t.Error("Expected evidence to reference the scan ID")
				}
			}
		})
	}
}

func TestHandleScanFetchFailure(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	pages := pageServer(t, map[string]string{})

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/scan", models.ScanRequest{URL: pages.URL + "/missing"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", w.Code)
	}

	var resp models.ScanResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.OK || resp.Error == "" {
		t.Errorf("Expected error envelope, got %+v", resp)
	}

	count, _ := server.DB().CountScans(context.Background(), db.ListFilter{})
	if count != 0 {
		t.Errorf("Expected nothing recorded, got %d scans", count)
	}
}

func TestHandleScanDisabled(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	pages := pageServer(t, map[string]string{"/hate": hatePage})

	w := doJSON(t, server.Handler(), http.MethodPut, "/api/settings", models.Settings{Enabled: false})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = doJSON(t, server.Handler(), http.MethodPost, "/api/scan", models.ScanRequest{URL: pages.URL + "/hate"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp models.ScanResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Skipped || resp.Flagged || resp.ID != "" {
		t.Errorf("Expected unrecorded skipped response, got %+v", resp)
	}
}

func TestHandleScansListGetDelete(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	pages := pageServer(t, map[string]string{
		"/hate":     hatePage,
		"/friendly": friendlyPage,
	})

	var flaggedID string
	for _, path := range []string{"/friendly", "/hate", "/friendly"} {
		w := doJSON(t, server.Handler(), http.MethodPost, "/api/scan", models.ScanRequest{URL: pages.URL + path})
		var resp models.ScanResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if path == "/hate" {
			flaggedID = resp.ID
		}
	}

	tests := []struct {
		name      string
		query     string
		wantTotal int
		wantLen   int
		wantLimit int
	}{
		{"all", "", 3, 3, 20},
		{"flagged only", "?flagged=true", 1, 1, 20},
		{"by url", "?url=" + pages.URL + "/friendly", 2, 2, 20},
		{"paginated", "?limit=2&offset=2", 3, 1, 2},
		{"limit clamped", "?limit=1000", 3, 3, 100},
		{"invalid limit", "?limit=abc", 3, 3, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, server.Handler(), http.MethodGet, "/api/scans"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			var resp struct {
				Scans []models.ScanRecord `json:"scans"`
				Total int                 `json:"total"`
				Limit int                 `json:"limit"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Total != tt.wantTotal || len(resp.Scans) != tt.wantLen || resp.Limit != tt.wantLimit {
				t.Errorf("got total=%d len=%d limit=%d, expected %d/%d/%d",
					resp.Total, len(resp.Scans), resp.Limit, tt.wantTotal, tt.wantLen, tt.wantLimit)
			}
		})
	}

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/scans/"+flaggedID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var record models.ScanRecord
	if err := json.NewDecoder(w.Body).Decode(&record); err != nil {
		t.Fatalf("Failed to decode record: %v", err)
	}
	if !record.Flagged || record.ArchiveKey == "" || record.Result == nil {
		t.Fatalf("Unexpected record %+v", record)
	}

	w = doJSON(t, server.Handler(), http.MethodDelete, "/api/scans/"+flaggedID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if _, err := server.archive.Read(context.Background(), record.ArchiveKey); err == nil {
		t.Error("Expected evidence to be removed with the scan")
	}

	w = doJSON(t, server.Handler(), http.MethodGet, "/api/scans/"+flaggedID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
	w = doJSON(t, server.Handler(), http.MethodDelete, "/api/scans/"+flaggedID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 deleting twice, got %d", w.Code)
	}
	w = doJSON(t, server.Handler(), http.MethodPost, "/api/scans/"+flaggedID, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHandleSettings(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got models.Settings
	json.NewDecoder(w.Body).Decode(&got)
	if got != models.DefaultSettings() {
		t.Errorf("Expected default settings, got %+v", got)
	}

	tests := []struct {
		name           string
		body           interface{}
		wantStatusCode int
		want           models.Settings
	}{
		{
			name:           "enable remote",
			body:           models.Settings{Enabled: true, UseRemote: true, RemoteEndpoint: "  https://classifier.example.com "},
			wantStatusCode: http.StatusOK,
			want:           models.Settings{Enabled: true, UseRemote: true, RemoteEndpoint: "https://classifier.example.com"},
		},
		{
			name:           "invalid endpoint",
			body:           models.Settings{Enabled: true, UseRemote: true, RemoteEndpoint: "classifier"},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			body:           "[",
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, server.Handler(), http.MethodPut, "/api/settings", tt.body)
			if w.Code != tt.wantStatusCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatusCode, w.Code, w.Body.String())
			}
			if tt.wantStatusCode != http.StatusOK {
				return
			}
			var saved models.Settings
			json.NewDecoder(w.Body).Decode(&saved)
			if saved != tt.want {
				t.Errorf("Saved settings = %+v, expected %+v", saved, tt.want)
			}
			if server.Analyzer().Settings() != tt.want {
				t.Errorf("Analyzer settings = %+v, expected %+v", server.Analyzer().Settings(), tt.want)
			}
		})
	}
}

// TestRemoteRoundTrip points one server's remote classifier at another
// server's analyze endpoint.
func TestRemoteRoundTrip(t *testing.T) {
	backend, cleanupBackend := setupTestServer(t)
	defer cleanupBackend()
	backendHTTP := httptest.NewServer(backend.Handler())
	defer backendHTTP.Close()

	server, cleanup := setupTestServer(t)
	defer cleanup()

	pages := pageServer(t, map[string]string{"/hate": hatePage})

	settings := models.Settings{Enabled: true, UseRemote: true, RemoteEndpoint: backendHTTP.URL}
	if w := doJSON(t, server.Handler(), http.MethodPut, "/api/settings", settings); w.Code != http.StatusOK {
		t.Fatalf("Failed to save settings: %d", w.Code)
	}

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/scan", models.ScanRequest{URL: pages.URL + "/hate"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp models.ScanResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Route != models.RouteRemote {
		t.Errorf("Route = %q, expected remote", resp.Route)
	}
	if !resp.Flagged {
		t.Error("Expected remote verdict to flag the page")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	pages := pageServer(t, map[string]string{"/hate": hatePage})
	doJSON(t, server.Handler(), http.MethodPost, "/api/scan", models.ScanRequest{URL: pages.URL + "/hate"})
	server.UpdateDBMetrics()

	w := doJSON(t, server.Handler(), http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"watchdog_scans_stored_total", "watchdog_db_open_connections"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}

func TestCORS(t *testing.T) {
	tempDB := t.TempDir() + "/test.db"
	config := DefaultConfig()
	config.DBConfig = db.Config{Driver: db.DriverSQLite, DSN: tempDB}
	config.StoragePath = t.TempDir()

	server, err := NewServer(config)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.db.Close()

	w := doJSON(t, server.Handler(), http.MethodOptions, "/api/scan", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
