package sources

import (
	"context"
	"crypto/sha1"
	"fmt"
	"strings"
	"time"

	"paperlens/internal/core"

	"github.com/mmcdole/gofeed"
)

// RSSAdapter pulls papers from user-configured RSS/Atom feeds (journal
// alerts, lab blogs). Items are best-effort records: no categories beyond
// feed tags, no revision history.
type RSSAdapter struct {
	urls      []string
	userAgent string
	timeout   time.Duration
	parser    *gofeed.Parser
}

// NewRSSAdapter creates the custom-feed adapter over the given feed URLs.
func NewRSSAdapter(urls []string, userAgent string, timeout time.Duration) *RSSAdapter {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &RSSAdapter{urls: urls, userAgent: userAgent, timeout: timeout, parser: parser}
}

func (a *RSSAdapter) Fetch(ctx context.Context, q Query) ([]core.Paper, error) {
	var papers []core.Paper
	var lastErr error

	for _, feedURL := range a.urls {
		fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
		feed, err := a.parser.ParseURLWithContext(feedURL, fetchCtx)
		cancel()
		if err != nil {
			// One broken feed must not block the others.
			lastErr = fmt.Errorf("feed %s: %w", feedURL, err)
			continue
		}

		for _, item := range feed.Items {
			if q.MaxResults > 0 && len(papers) >= q.MaxResults {
				break
			}
			paper := itemToPaper(item)
			if !q.WindowStart.IsZero() && !paper.Published.IsZero() && paper.Published.Before(q.WindowStart) {
				continue
			}
			papers = append(papers, paper)
		}
	}

	if len(papers) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return papers, nil
}

func itemToPaper(item *gofeed.Item) core.Paper {
	paper := core.Paper{
		ID:       "rss:" + rssItemID(item),
		Title:    strings.TrimSpace(item.Title),
		Abstract: strings.TrimSpace(item.Description),
		Source:   core.SourceRSS,
	}
	paper.Links.HTML = item.Link
	paper.Categories = item.Categories
	for _, author := range item.Authors {
		if author.Name != "" {
			paper.Authors = append(paper.Authors, author.Name)
		}
	}
	if item.PublishedParsed != nil {
		paper.Published = item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		paper.Updated = item.UpdatedParsed.UTC()
	}
	return paper
}

// rssItemID prefers the feed's GUID and falls back to a link hash so items
// without GUIDs still dedup stably across days.
func rssItemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return fmt.Sprintf("%x", sha1.Sum([]byte(item.Link)))
	}
	return fmt.Sprintf("%x", sha1.Sum([]byte(item.Title)))
}
