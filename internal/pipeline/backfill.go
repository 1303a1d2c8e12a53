package pipeline

import (
	"context"
	"fmt"
	"time"
)

// ProgressFunc receives per-day backfill progress. dayErr is nil when the
// day succeeded.
type ProgressFunc func(date string, index, total int, dayErr error)

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	Processed []string          // Dates that completed, in order
	Errors    map[string]string // Date -> failure message for days that did not
}

// BackfillDriver replays the daily pipeline over a historical date range.
// Every day runs in Historical mode with dedup bypassed, so a backfill never
// mutates the scheduler's run state or the dedup map.
type BackfillDriver struct {
	orch    *Orchestrator
	maxDays int
}

// NewBackfillDriver creates a driver. maxDays caps the range; zero or
// negative falls back to 31.
func NewBackfillDriver(orch *Orchestrator, maxDays int) *BackfillDriver {
	if maxDays <= 0 {
		maxDays = 31
	}
	return &BackfillDriver{orch: orch, maxDays: maxDays}
}

// Run processes every date in [start, end] inclusive, both YYYY-MM-DD. Range
// validation happens before any side effects. One day's failure is recorded
// and the next day proceeds; only cancellation stops the loop early, with
// ErrAborted and the partial result.
func (d *BackfillDriver) Run(ctx context.Context, start, end string, progress ProgressFunc) (*BackfillResult, error) {
	startDay, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	endDay, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("end date %s is before start date %s", end, start)
	}

	total := int(endDay.Sub(startDay).Hours()/24) + 1
	if total > d.maxDays {
		return nil, fmt.Errorf("range spans %d days, limit is %d", total, d.maxDays)
	}

	res := &BackfillResult{Errors: make(map[string]string)}
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%w after %d of %d days: %v", ErrAborted, i, total, err)
		}

		date := startDay.AddDate(0, 0, i).Format("2006-01-02")
		_, err := d.orch.Run(ctx, RunOptions{Date: date, Historical: true, SkipDedup: true})
		if err != nil {
			if isAborted(err) {
				res.Errors[date] = err.Error()
				if progress != nil {
					progress(date, i+1, total, err)
				}
				return res, err
			}
			res.Errors[date] = err.Error()
		} else {
			res.Processed = append(res.Processed, date)
		}
		if progress != nil {
			progress(date, i+1, total, err)
		}
	}
	return res, nil
}
