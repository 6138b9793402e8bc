package watchdog

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"

	"github.com/docutag/watchdog/classifier"
	"github.com/docutag/watchdog/models"
)

const (
	// GenericTextLimit caps the visible text sampled from unrecognized sites
	GenericTextLimit = 8000
	// MaxCommentNodes is the salience cap for YouTube comments
	MaxCommentNodes = 60
	// MaxPostNodes is the salience cap for Instagram/Twitter text nodes
	MaxPostNodes = 80
)

// DefaultCaptionLanguages are tried in order; the first non-empty track wins
var DefaultCaptionLanguages = []string{"en", "en-US", "hi", "hi-IN", "ur"}

var (
	youtubeTitleSelector       = cascadia.MustCompile(`h1.title, h1.ytd-watch-metadata`)
	youtubeDescriptionSelector = cascadia.MustCompile(`#description`)
	youtubeCommentSelector     = cascadia.MustCompile(`#content-text`)
	instagramSelector          = cascadia.MustCompile(`h1, h2, h3, h4, h5, h6, [role="button"], [role="dialog"] span, figcaption, article span`)
	twitterSelector            = cascadia.MustCompile(`article [data-testid="tweetText"], article div[lang]`)

	shortsPattern = regexp.MustCompile(`/shorts/([\w-]+)`)
)

// DetectPlatform maps a hostname to a platform. Checks run in a fixed order
// so the first matching family wins. x.com only matches itself and its
// subdomains, so hosts like netflix.com stay other.
func DetectPlatform(hostname string) models.Platform {
	h := strings.ToLower(hostname)
	switch {
	case strings.Contains(h, "youtube"):
		return models.PlatformYouTube
	case strings.Contains(h, "instagram"):
		return models.PlatformInstagram
	case strings.Contains(h, "twitter") || h == "x.com" || strings.HasSuffix(h, ".x.com"):
		return models.PlatformTwitter
	default:
		return models.PlatformOther
	}
}

// YouTubeVideoID returns the video id of a watch page or a shorts page,
// or "" when u is not a YouTube video URL.
func YouTubeVideoID(u *url.URL) string {
	if u == nil || !strings.Contains(strings.ToLower(u.Hostname()), "youtube") {
		return ""
	}
	if u.Path == "/watch" {
		return u.Query().Get("v")
	}
	if m := shortsPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

// Extractor produces a text sample from a page using platform specific strategies.
// It keeps no state between calls: captions are fetched fresh for every page.
type Extractor struct {
	captions *CaptionFetcher
	config   Config
}

// NewExtractor creates an extractor that fetches captions with captions
func NewExtractor(config Config, captions *CaptionFetcher) *Extractor {
	return &Extractor{captions: captions, config: config}
}

// Extract never fails: every strategy that cannot produce text contributes
// an empty string instead. An empty Text means the page had no content.
func (e *Extractor) Extract(ctx context.Context, page *Page) models.ExtractionResult {
	ctx, cancel := context.WithTimeout(ctx, e.config.ExtractTimeout)
	defer cancel()

	platform := DetectPlatform(page.Hostname())
	ctx, span := tracer.Start(ctx, "watchdog.extract")
	defer span.End()
	span.SetAttributes(attribute.String("watchdog.platform", string(platform)))

	var result models.ExtractionResult
	switch platform {
	case models.PlatformYouTube:
		result = e.extractYouTube(ctx, page)
	case models.PlatformInstagram:
		result = extractPosts(page, instagramSelector)
	case models.PlatformTwitter:
		result = extractPosts(page, twitterSelector)
	default:
		result = extractGeneric(page)
	}
	result.Platform = platform

	span.SetAttributes(attribute.Int("watchdog.text_length", len(result.Text)))
	return result
}

func (e *Extractor) extractYouTube(ctx context.Context, page *Page) models.ExtractionResult {
	var result models.ExtractionResult

	var transcript string
	if videoID := YouTubeVideoID(page.URL); videoID != "" {
		result.VideoID = videoID
		transcript, result.CaptionLang = e.captions.FirstAvailable(ctx, videoID, e.config.CaptionLanguages)
	}
	if transcript != "" {
		result.Sources = append(result.Sources, models.SourceCaption)
	}

	pageText := youtubePageText(page)
	if pageText != "" {
		result.Sources = append(result.Sources, models.SourceDOM)
	}

	result.Text = joinNonEmpty(transcript, pageText)
	return result
}

// youtubePageText collects title, description and the first comments
func youtubePageText(page *Page) string {
	if page.Doc == nil {
		return ""
	}

	title := ""
	if n := youtubeTitleSelector.MatchFirst(page.Doc); n != nil {
		title = extractText(n)
	}
	if title == "" {
		title = page.Title()
	}

	desc := ""
	if n := youtubeDescriptionSelector.MatchFirst(page.Doc); n != nil {
		desc = extractText(n)
	}

	comments := nodeTexts(youtubeCommentSelector.MatchAll(page.Doc), MaxCommentNodes)

	return joinNonEmpty(title, desc, strings.Join(comments, "\n"))
}

// extractPosts samples caption/tweet nodes and falls back to the title
func extractPosts(page *Page, sel cascadia.Selector) models.ExtractionResult {
	var texts []string
	if page.Doc != nil {
		texts = nodeTexts(sel.MatchAll(page.Doc), MaxPostNodes)
	}
	if len(texts) == 0 {
		title := page.Title()
		if title == "" {
			return models.ExtractionResult{}
		}
		return models.ExtractionResult{Text: title, Sources: []models.SourceKind{models.SourceDOM}}
	}
	return models.ExtractionResult{
		Text:    strings.Join(texts, "\n"),
		Sources: []models.SourceKind{models.SourceDOM},
	}
}

// extractGeneric samples the first GenericTextLimit runes of visible text
func extractGeneric(page *Page) models.ExtractionResult {
	text := classifier.TruncateRunes(page.VisibleText(), GenericTextLimit)
	if text == "" {
		text = page.Title()
	}
	if text == "" {
		return models.ExtractionResult{}
	}
	return models.ExtractionResult{Text: text, Sources: []models.SourceKind{models.SourceGeneric}}
}

// nodeTexts returns the non-empty text of at most limit nodes. The cap is
// applied to matched nodes, not to non-empty texts.
func nodeTexts(nodes []*html.Node, limit int) []string {
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}
	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if text := extractText(n); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func logExtractionFailure(ctx context.Context, step string, err error, attrs ...any) {
	slog.DebugContext(ctx, "extraction step failed, contributing empty text", append([]any{"step", step, "error", err}, attrs...)...)
}
