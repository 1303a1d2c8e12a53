package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paperlens/internal/core"

	"golang.org/x/time/rate"
)

// atomFeed mirrors the subset of the arXiv Atom response the adapter reads.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Links      []atomLink     `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// ArxivAdapter fetches the primary preprint feed through the arXiv query API.
type ArxivAdapter struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewArxivAdapter creates the primary-feed adapter. The arXiv API asks
// clients to stay under one request every three seconds, enforced here with
// a limiter so bursts from backfills stay polite.
func NewArxivAdapter(baseURL, userAgent string, timeout time.Duration) *ArxivAdapter {
	return &ArxivAdapter{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(3*time.Second), 1),
	}
}

func (a *ArxivAdapter) Fetch(ctx context.Context, q Query) ([]core.Paper, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.queryURL(q), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build primary feed request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("primary feed request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("primary feed returned %d: %w", resp.StatusCode, ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("primary feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary feed response: %w", err)
	}

	return parseArxivFeed(body)
}

// queryURL builds the arXiv API query string for the fetch window.
func (a *ArxivAdapter) queryURL(q Query) string {
	var terms []string

	if len(q.Categories) > 0 {
		cats := make([]string, len(q.Categories))
		for i, c := range q.Categories {
			cats[i] = "cat:" + c
		}
		terms = append(terms, "("+strings.Join(cats, " OR ")+")")
	}
	for _, kw := range q.Keywords {
		terms = append(terms, fmt.Sprintf("all:%q", kw))
	}
	if !q.WindowStart.IsZero() && !q.WindowEnd.IsZero() {
		terms = append(terms, fmt.Sprintf("submittedDate:[%s TO %s]",
			q.WindowStart.UTC().Format("200601021504"),
			q.WindowEnd.UTC().Format("200601021504")))
	}
	search := strings.Join(terms, " AND ")
	if search == "" {
		search = "all:*"
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "submittedDate"
	}
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	params := url.Values{}
	params.Set("search_query", search)
	params.Set("sortBy", sortBy)
	params.Set("sortOrder", "descending")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))

	return a.baseURL + "?" + params.Encode()
}

// parseArxivFeed converts an Atom response body into papers.
func parseArxivFeed(body []byte) ([]core.Paper, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse primary feed: %w", err)
	}

	papers := make([]core.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		rawID := entryID(entry.ID)
		if rawID == "" {
			continue
		}

		paper := core.Paper{
			ID:       "primary:" + rawID,
			Title:    collapseWhitespace(entry.Title),
			Abstract: collapseWhitespace(entry.Summary),
			Source:   core.SourcePrimary,
		}
		for _, author := range entry.Authors {
			paper.Authors = append(paper.Authors, author.Name)
		}
		for _, cat := range entry.Categories {
			if cat.Term != "" {
				paper.Categories = append(paper.Categories, cat.Term)
			}
		}
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			paper.Published = t.UTC()
		}
		if t, err := time.Parse(time.RFC3339, entry.Updated); err == nil {
			paper.Updated = t.UTC()
		}
		for _, link := range entry.Links {
			switch {
			case link.Title == "pdf" || link.Type == "application/pdf":
				paper.Links.PDF = link.Href
			case link.Type == "text/html" || strings.Contains(link.Href, "/abs/"):
				paper.Links.HTML = link.Href
			}
		}

		papers = append(papers, paper)
	}

	return papers, nil
}

// entryID reduces an Atom entry ID like "http://arxiv.org/abs/2501.12345v2"
// to "2501.12345v2".
func entryID(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, "/abs/"); i >= 0 {
		return raw[i+len("/abs/"):]
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
