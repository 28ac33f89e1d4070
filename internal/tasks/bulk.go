package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"golang.org/x/time/rate"
)

// BulkAcquireOpts contains configuration for bulk acquisitions.
type BulkAcquireOpts struct {
	NumWorkers int     // Concurrent workers (default: 3, max: 10)
	RateLimit  float64 // Acquisitions started per second (default: 2)
}

// TrackAcquireResult is the outcome for one track of a bulk acquisition.
type TrackAcquireResult struct {
	TrackRef string
	Record   *models.AcquisitionRecord
	Existing bool
	Error    error
}

// BulkAcquireResult summarizes a bulk acquisition.
type BulkAcquireResult struct {
	Total    int                  `json:"total"`
	Acquired int                  `json:"acquired"`
	Existing int                  `json:"existing"`
	Failed   int                  `json:"failed"`
	Results  []TrackAcquireResult `json:"-"`
}

func (o BulkAcquireOpts) withDefaults() BulkAcquireOpts {
	if o.NumWorkers <= 0 {
		o.NumWorkers = 3
	}
	if o.NumWorkers > 10 {
		o.NumWorkers = 10
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 2.0
	}
	return o
}

// BulkAcquire acquires refs for userID with a rate-limited worker pool.
//
// Individual failures are collected in the result; only cancellation stops the run early,
// in which case the partial result is returned with ctx.Err().
func (p *Pipeline) BulkAcquire(
	ctx context.Context,
	userID string,
	refs []string,
	opts BulkAcquireOpts,
	progress chan<- ProgressUpdate,
) (*BulkAcquireResult, error) {
	opts = opts.withDefaults()
	result := &BulkAcquireResult{
		Total:   len(refs),
		Results: make([]TrackAcquireResult, 0, len(refs)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan string)
	results := make(chan TrackAcquireResult, len(refs))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go p.acquireWorker(ctx, &wg, userID, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, ref := range refs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case jobs <- ref:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		switch {
		case res.Error != nil:
			result.Failed++
		case res.Existing:
			result.Existing++
		default:
			result.Acquired++
		}
		sendProgress(progress, bulkCompletedUpdate(completed, len(refs), res))
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) acquireWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	userID string,
	jobs <-chan string,
	results chan<- TrackAcquireResult,
) {
	defer wg.Done()

	for ref := range jobs {
		out, err := p.acquire(ctx, AcquireRequest{UserID: userID, TrackRef: ref}, nil)
		results <- TrackAcquireResult{TrackRef: ref, Record: out.record, Existing: out.existing, Error: err}
	}
}

// AcquireSaved fetches up to limit of the user's saved tracks and acquires them.
func (p *Pipeline) AcquireSaved(
	ctx context.Context,
	userID string,
	limit int,
	opts BulkAcquireOpts,
	progress chan<- ProgressUpdate,
) (*BulkAcquireResult, error) {
	if p.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not configured", shared.ErrServiceUnavailable)
	}

	tracks, err := p.catalog.SavedTracks(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch saved tracks: %w", err)
	}
	sendProgress(progress, fetchLikedUpdate(len(tracks)))

	refs := make([]string, 0, len(tracks))
	for _, t := range tracks {
		refs = append(refs, t.ID)
	}
	return p.BulkAcquire(ctx, userID, refs, opts, progress)
}
