package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paperlens/internal/core"

	"github.com/PuerkitoBio/goquery"
)

// CommunityAdapter scrapes the community daily-picks page. Each card carries
// the paper title, a link whose last path segment is the base paper ID, and
// an upvote count.
type CommunityAdapter struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewCommunityAdapter creates the secondary-feed adapter.
func NewCommunityAdapter(baseURL, userAgent string, timeout time.Duration) *CommunityAdapter {
	return &CommunityAdapter{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (a *CommunityAdapter) Fetch(ctx context.Context, q Query) ([]core.Paper, error) {
	pageURL := a.baseURL
	if !q.WindowStart.IsZero() {
		pageURL = fmt.Sprintf("%s/date/%s", strings.TrimRight(a.baseURL, "/"),
			q.WindowStart.UTC().Format("2006-01-02"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build community feed request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("community feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("community feed returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse community feed page: %w", err)
	}

	papers := parseCommunityPage(doc, a.baseURL, q.MaxResults)
	return papers, nil
}

// parseCommunityPage extracts paper cards from the daily-picks document.
func parseCommunityPage(doc *goquery.Document, baseURL string, maxResults int) []core.Paper {
	var papers []core.Paper

	doc.Find("article").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if maxResults > 0 && len(papers) >= maxResults {
			return false
		}

		link := card.Find("h3 a").First()
		href, _ := link.Attr("href")
		id := paperIDFromHref(href)
		if id == "" {
			return true
		}

		paper := core.Paper{
			ID:     "community:" + id,
			Title:  strings.TrimSpace(link.Text()),
			Source: core.SourceCommunity,
		}
		paper.Links.Community = absoluteURL(baseURL, href)

		if raw, ok := card.Attr("data-upvotes"); ok {
			paper.Upvotes, _ = strconv.Atoi(strings.TrimSpace(raw))
		} else {
			text := strings.TrimSpace(card.Find(".upvotes").First().Text())
			paper.Upvotes, _ = strconv.Atoi(text)
		}

		papers = append(papers, paper)
		return true
	})

	return papers
}

// paperIDFromHref extracts the base paper ID from a card link like
// "/papers/2501.12345".
func paperIDFromHref(href string) string {
	href = strings.TrimSpace(strings.TrimSuffix(href, "/"))
	if href == "" {
		return ""
	}
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	return href
}

func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
