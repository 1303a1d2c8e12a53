// Package fulltext fetches best-effort full-text excerpts for top-ranked
// papers. Everything here is an enrichment: failures return errors the
// pipeline logs and ignores.
package fulltext

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher retrieves up to maxChars of a paper's full text.
type Fetcher interface {
	Fetch(ctx context.Context, id string, maxChars int) (string, error)
}

// PageFetcher extracts text from a paper's HTML landing page.
type PageFetcher struct {
	// BaseURL receives the normalized paper ID via %s, e.g.
	// "https://arxiv.org/abs/%s".
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewPageFetcher creates a fetcher over an HTML source. baseURL must contain
// one %s placeholder for the paper ID.
func NewPageFetcher(baseURL, userAgent string, timeout time.Duration) *PageFetcher {
	return &PageFetcher{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (f *PageFetcher) Fetch(ctx context.Context, id string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(f.baseURL, id), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build full-text request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("full-text request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("full-text source returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse full-text page: %w", err)
	}

	return ExtractText(doc, maxChars), nil
}

// ExtractText pulls readable body text out of a parsed page, preferring the
// main content containers over navigation chrome.
func ExtractText(doc *goquery.Document, maxChars int) string {
	doc.Find("script, style, nav, header, footer").Remove()

	var b strings.Builder
	for _, selector := range []string{"main", "article", "blockquote.abstract", "body"} {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		sel.Each(func(_ int, s *goquery.Selection) {
			b.WriteString(s.Text())
			b.WriteString("\n")
		})
		break
	}

	return cut(strings.Join(strings.Fields(b.String()), " "), maxChars)
}

// cut truncates to at most maxChars bytes on a rune boundary, so the result
// stays valid UTF-8. Zero or negative maxChars means no limit.
func cut(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	for maxChars > 0 && !utf8.RuneStart(s[maxChars]) {
		maxChars--
	}
	return s[:maxChars]
}
