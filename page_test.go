package watchdog

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
)

func mustPage(t *testing.T, rawURL, document string) *Page {
	t.Helper()
	page, err := ParsePageString(rawURL, document)
	if err != nil {
		t.Fatalf("Failed to parse page: %v", err)
	}
	return page
}

func TestPageHeadline(t *testing.T) {
	tests := []struct {
		name     string
		htmlDoc  string
		expected string
	}{
		{
			name: "og:title takes precedence over title tag",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta property="og:title" content="Reel by @someone" />
	<title>Instagram</title>
</head>
<body></body>
</html>`,
			expected: "Reel by @someone",
		},
		{
			name: "twitter:title takes precedence over title tag",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta name="twitter:title" content="Post on X" />
	<title>X</title>
</head>
<body></body>
</html>`,
			expected: "Post on X",
		},
		{
			name: "empty og:title falls back to twitter:title",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta property="og:title" content="" />
	<meta name="twitter:title" content="Twitter Fallback" />
	<title>Site Title</title>
</head>
<body></body>
</html>`,
			expected: "Twitter Fallback",
		},
		{
			name: "h1 with nested elements",
			htmlDoc: `<!DOCTYPE html>
<html>
<head><title>Site Name</title></head>
<body><h1>Video <span>Title</span> Here</h1></body>
</html>`,
			expected: "Video Title Here",
		},
		{
			name: "title tag as final fallback",
			htmlDoc: `<!DOCTYPE html>
<html>
<head><title>Page Title</title></head>
<body><p>Content without h1</p></body>
</html>`,
			expected: "Page Title",
		},
		{
			name: "whitespace trimming",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta property="og:title" content="  Trimmed Title  " />
	<title>Site</title>
</head>
<body></body>
</html>`,
			expected: "Trimmed Title",
		},
		{
			name:     "empty document",
			htmlDoc:  `<!DOCTYPE html><html><head></head><body></body></html>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := mustPage(t, "https://example.com/", tt.htmlDoc)
			if result := page.Headline(); result != tt.expected {
				t.Errorf("Headline() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

func TestPageTitleIgnoresSVGTitle(t *testing.T) {
	page := mustPage(t, "https://example.com/", `<html><head><title>Real Title</title></head>
<body><svg><title>icon</title></svg></body></html>`)

	if got := page.Title(); got != "Real Title" {
		t.Errorf("Title() = %q, expected %q", got, "Real Title")
	}

	onlySVG := mustPage(t, "https://example.com/", `<html><body><svg><title>icon</title></svg></body></html>`)
	if got := onlySVG.Title(); got != "" {
		t.Errorf("Title() = %q, expected empty", got)
	}
}

func TestPageVisibleText(t *testing.T) {
	page := mustPage(t, "https://example.com/", `<html>
<head><title>ignored</title><style>.a{}</style></head>
<body>
	<script>var hidden = "secret";</script>
	<p>First   paragraph</p>
	<div>Second <b>block</b></div>
	<noscript>enable js</noscript>
</body>
</html>`)

	got := page.VisibleText()
	if got != "First paragraph\nSecond block" {
		t.Errorf("VisibleText() = %q", got)
	}
	if strings.Contains(got, "secret") || strings.Contains(got, "enable js") {
		t.Error("VisibleText() included non-rendered content")
	}
}

func TestNilPageAccessors(t *testing.T) {
	var page *Page
	if page.Hostname() != "" || page.String() != "" || page.Title() != "" || page.Headline() != "" || page.VisibleText() != "" {
		t.Error("Expected nil page accessors to return empty strings")
	}
}

func TestFetchPage(t *testing.T) {
	var gotUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Moved</title></head><body><p>hello</p></body></html>`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	a := New(Config{UserAgent: "WatchDogTest/1.0"}, nil, nil)

	page, err := a.FetchPage(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("FetchPage() error: %v", err)
	}
	if page.URL.Path != "/new" {
		t.Errorf("Expected final URL after redirect, got %s", page.String())
	}
	if page.Title() != "Moved" {
		t.Errorf("Title() = %q", page.Title())
	}
	if gotUA != "WatchDogTest/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}

	if _, err := a.FetchPage(context.Background(), server.URL+"/missing"); err == nil {
		t.Error("Expected error for 404 response")
	}
	if _, err := a.FetchPage(context.Background(), "ftp://example.com/file"); err == nil {
		t.Error("Expected error for non-http scheme")
	}
}

func TestFetchPageSharesCookieJar(t *testing.T) {
	var captionCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			http.SetCookie(w, &http.Cookie{Name: "CONSENT", Value: "yes", Path: "/"})
			w.Write([]byte(`<html><head><title>Video</title></head><body></body></html>`))
		case "/api/timedtext":
			if c, err := r.Cookie("CONSENT"); err == nil {
				captionCookie = c.Value
			}
			w.Write([]byte(`<transcript><text>hello</text></transcript>`))
		}
	}))
	defer server.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error: %v", err)
	}
	a := New(Config{CaptionBaseURL: server.URL, CookieJar: jar}, nil, nil)

	if _, err := a.FetchPage(context.Background(), server.URL+"/watch?v=abc"); err != nil {
		t.Fatalf("FetchPage() error: %v", err)
	}
	if _, err := a.extractor.captions.Fetch(context.Background(), "abc", "en"); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if captionCookie != "yes" {
		t.Errorf("Caption request cookie = %q, expected the page cookie", captionCookie)
	}
}
