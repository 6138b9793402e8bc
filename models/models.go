package models

import (
	"strings"
	"time"
)

// Platform identifies the site family a page belongs to
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformOther     Platform = "other"
)

// SourceKind names where a piece of extracted text came from
type SourceKind string

const (
	SourceCaption SourceKind = "caption"
	SourceDOM     SourceKind = "dom"
	SourceGeneric SourceKind = "generic"
)

// Status distinguishes a real verdict from the pipeline declining to look
type Status string

const (
	StatusScanned   Status = "scanned"
	StatusSkipped   Status = "skipped"
	StatusNoContent Status = "no-content"
)

// Route records which classifier produced a verdict
type Route string

const (
	RouteRemote Route = "remote"
	RouteLocal  Route = "local"
)

// Labels used outside of category names
const (
	LabelSafe      = "safe"
	LabelSkipped   = "skipped"
	LabelNoContent = "no-content"
)

// Settings is the user-facing pipeline configuration.
// Values are replaced as a whole record; nothing mutates one in place.
type Settings struct {
	Enabled        bool   `json:"enabled"`
	UseRemote      bool   `json:"useRemote"`
	RemoteEndpoint string `json:"remoteEndpoint"`
}

// DefaultSettings returns the settings used before anything has been loaded
func DefaultSettings() Settings {
	return Settings{
		Enabled:        true,
		UseRemote:      false,
		RemoteEndpoint: "",
	}
}

// Normalize returns a copy with the endpoint trimmed
func (s Settings) Normalize() Settings {
	s.RemoteEndpoint = strings.TrimSpace(s.RemoteEndpoint)
	return s
}

// RemoteEnabled reports whether remote routing should be attempted.
// UseRemote is only honored with a non-empty endpoint.
func (s Settings) RemoteEnabled() bool {
	return s.UseRemote && strings.TrimSpace(s.RemoteEndpoint) != ""
}

// ExtractionResult is the text sample produced for one evaluation
type ExtractionResult struct {
	Text        string       `json:"text"`
	Platform    Platform     `json:"platform"`
	Sources     []SourceKind `json:"sources"`
	VideoID     string       `json:"videoId,omitempty"`
	CaptionLang string       `json:"captionLang,omitempty"`
}

// HasSource reports whether kind contributed text
func (e ExtractionResult) HasSource(kind SourceKind) bool {
	for _, k := range e.Sources {
		if k == kind {
			return true
		}
	}
	return false
}

// CategoryScore is the derived score of one lexicon category
type CategoryScore struct {
	Category      string  `json:"category"`
	RawCount      int     `json:"rawCount"`
	WeightedScore float64 `json:"weightedScore"`
}

// Scores holds per-category counts and the ranked category list
type Scores struct {
	Counts     map[string]int  `json:"counts"`
	Categories []CategoryScore `json:"categories"`
}

// Top returns the highest ranked category, if any
func (s Scores) Top() (CategoryScore, bool) {
	if len(s.Categories) == 0 {
		return CategoryScore{}, false
	}
	return s.Categories[0], true
}

// AnalysisResult is the verdict for one piece of text.
// Label is "safe" iff Flagged is false for scanned results.
type AnalysisResult struct {
	Flagged  bool     `json:"flagged"`
	Label    string   `json:"label"`
	Preview  string   `json:"preview"`
	Scores   Scores   `json:"scores"`
	TopTerms []string `json:"topTerms"`

	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Route     Route     `json:"route,omitempty"`
	Platform  Platform  `json:"platform,omitempty"`
	Language  string    `json:"language,omitempty"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	ScannedAt time.Time `json:"scannedAt,omitempty"`
}

// RemoteRequest is the body sent to a remote classifier
type RemoteRequest struct {
	Platform string `json:"platform"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

// ScanRequest asks for one evaluation of a page
type ScanRequest struct {
	URL string `json:"url"`
}

// ScanResponse is the transport envelope around one evaluation.
// On success the result fields are spread into the top level.
type ScanResponse struct {
	OK bool `json:"ok"`
	*AnalysisResult
	Skipped bool   `json:"skipped,omitempty"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ScanRecord is a persisted evaluation
type ScanRecord struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Platform   Platform        `json:"platform"`
	Status     Status          `json:"status"`
	Label      string          `json:"label"`
	Flagged    bool            `json:"flagged"`
	Route      Route           `json:"route"`
	ArchiveKey string          `json:"archive_key,omitempty"`
	Result     *AnalysisResult `json:"result"`
	CreatedAt  time.Time       `json:"created_at"`
}
