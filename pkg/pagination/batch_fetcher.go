package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bitwiseman/github-api/pkg/logging"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of endpoints walked in parallel.
	// All walks share one rate limit tracker, so keep this small.
	MaxConcurrency int

	// Timeout bounds one complete walk. Zero means no limit.
	Timeout time.Duration
}

// DefaultConfig returns a conservative configuration for github.com.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        5 * time.Minute,
	}
}

// Walker is anything that can walk itself into a slice, such as an
// *Endpoint or *SearchEndpoint.
type Walker[T any] interface {
	ToSlice(ctx context.Context) ([]T, error)
}

// WalkResult is the outcome of one walk.
type WalkResult[T any] struct {
	Index int
	Items []T
	Error error
}

// BatchFetcher walks several endpoints concurrently with a worker pool.
type BatchFetcher[T any] struct {
	config Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher[T any](config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &BatchFetcher[T]{config: config}
}

// FetchAll walks every endpoint and returns one result per walker, in
// input order. Failed walks keep their error in the result and are also
// joined into the returned error; successful walks are still returned.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, walkers []Walker[T]) ([]WalkResult[T], error) {
	logger := logging.NewLogger(logging.ComponentPagination)
	start := time.Now()

	results := make([]WalkResult[T], len(walkers))
	if len(walkers) == 0 {
		return results, nil
	}

	workers := min(bf.config.MaxConcurrency, len(walkers))
	queue := make(chan int, len(walkers))
	for i := range walkers {
		queue <- i
	}
	close(queue)

	logger.Info().
		Int("endpoints", len(walkers)).
		Int("workers", workers).
		Msg("Starting parallel walks")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			walked := 0
			for i := range queue {
				if ctx.Err() != nil {
					results[i] = WalkResult[T]{Index: i, Error: ctx.Err()}
					continue
				}
				results[i] = bf.walk(ctx, i, walkers[i])
				walked++
			}
			logger.Debug().
				Int("worker_id", workerID).
				Int("walks", walked).
				Msg("Worker completed")
		}(w)
	}
	wg.Wait()

	var errs []error
	items := 0
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, fmt.Errorf("endpoint %d: %w", r.Index, r.Error))
			continue
		}
		items += len(r.Items)
	}

	event := logger.Info()
	if len(errs) > 0 {
		event = logger.Warn().Int("failed", len(errs))
	}
	event.
		Int("endpoints", len(walkers)).
		Int("items", items).
		Dur("duration", time.Since(start)).
		Msg("Parallel walks complete")

	return results, errors.Join(errs...)
}

func (bf *BatchFetcher[T]) walk(ctx context.Context, index int, w Walker[T]) WalkResult[T] {
	if bf.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bf.config.Timeout)
		defer cancel()
	}
	items, err := w.ToSlice(ctx)
	return WalkResult[T]{Index: index, Items: items, Error: err}
}
