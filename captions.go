package watchdog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DefaultCaptionBaseURL serves YouTube timed text tracks
const DefaultCaptionBaseURL = "https://www.youtube.com"

var captionTextPattern = regexp.MustCompile(`(?s)<text[^>]*>(.*?)</text>`)

// CaptionFetcher downloads time-coded caption tracks
type CaptionFetcher struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	userAgent  string
}

// NewCaptionFetcher creates a caption fetcher. The client should carry a
// cookie jar when captions require a signed-in session.
func NewCaptionFetcher(config Config, httpClient *http.Client) *CaptionFetcher {
	return &CaptionFetcher{
		baseURL:    strings.TrimRight(config.CaptionBaseURL, "/"),
		httpClient: httpClient,
		timeout:    config.CaptionTimeout,
		maxBytes:   config.MaxCaptionBytes,
		userAgent:  config.UserAgent,
	}
}

// FirstAvailable tries each language in order and returns the first
// non-empty transcript with its language. Tracks are never merged.
func (c *CaptionFetcher) FirstAvailable(ctx context.Context, videoID string, langs []string) (string, string) {
	for _, lang := range langs {
		if ctx.Err() != nil {
			logExtractionFailure(ctx, "captions", ctx.Err(), "video_id", videoID)
			return "", ""
		}
		transcript, err := c.Fetch(ctx, videoID, lang)
		if err != nil {
			logExtractionFailure(ctx, "captions", err, "video_id", videoID, "lang", lang)
			continue
		}
		if transcript != "" {
			return transcript, lang
		}
	}
	return "", ""
}

// Fetch downloads one caption track and returns its text, one fragment per line.
// A missing track yields an empty transcript.
func (c *CaptionFetcher) Fetch(ctx context.Context, videoID, lang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("lang", lang)
	query.Set("v", videoID)
	captionURL := c.baseURL + "/api/timedtext?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", captionURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read captions: %w", err)
	}

	return ParseCaptions(string(body)), nil
}

// ParseCaptions extracts <text> fragments from a timed text document.
// Newlines inside a fragment collapse to spaces and HTML entities are
// decoded; fragments are joined with newlines.
func ParseCaptions(doc string) string {
	matches := captionTextPattern.FindAllStringSubmatch(doc, -1)
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		fragment := strings.TrimSpace(strings.ReplaceAll(m[1], "\n", " "))
		fragment = html.UnescapeString(fragment)
		if fragment != "" {
			lines = append(lines, fragment)
		}
	}
	return strings.Join(lines, "\n")
}
