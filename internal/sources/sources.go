// Package sources provides the feed adapters the pipeline fetches papers
// from. Each adapter is independently fallible; rate-limit failures are
// distinguishable so the orchestrator can retry the primary feed with
// backoff.
package sources

import (
	"context"
	"errors"
	"time"

	"paperlens/internal/core"
)

// ErrRateLimited marks a fetch rejected by the upstream rate limiter.
// Detected with errors.Is.
var ErrRateLimited = errors.New("rate limited by upstream")

// Query describes one fetch window.
type Query struct {
	Categories  []string
	Keywords    []string
	MaxResults  int
	SortBy      string
	WindowStart time.Time
	WindowEnd   time.Time
}

// Adapter is one feed source.
type Adapter interface {
	// Fetch returns the papers matching the query. Implementations wrap
	// rate-limit rejections so errors.Is(err, ErrRateLimited) holds.
	Fetch(ctx context.Context, q Query) ([]core.Paper, error)
}

// Stub is an adapter for feed types that are configured but not implemented.
// It fetches nothing and never fails, so an unimplemented source degrades to
// an empty contribution instead of an error.
type Stub struct {
	Name string
}

func (s Stub) Fetch(ctx context.Context, q Query) ([]core.Paper, error) {
	return nil, nil
}
