package search

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragchat/core"
)

// Querier runs a nearest-neighbour query against an index.
// It is satisfied by *index.Handle.
type Querier interface {
	Query(ctx context.Context, text string, k int) ([]core.ScoredChunk, error)
}

// Retriever finds the chunks relevant to a question.
// It is safe for concurrent use.
type Retriever struct {
	querier Querier
	pool    *ants.Pool
	logger  *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithPoolSize sets the number of variant queries run concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(r *Retriever) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if r.pool != nil {
			r.pool.Release()
		}
		r.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a retriever over querier.
func NewRetriever(querier Querier, opts ...Option) (*Retriever, error) {
	if querier == nil {
		return nil, ErrQuerierRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	r := &Retriever{
		querier: querier,
		pool:    pool,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			r.Release()
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// Retrieve returns the chunks relevant to question.
func (r *Retriever) Retrieve(ctx context.Context, question string, params Params) ([]core.ScoredChunk, error) {
	return r.RetrieveWithMonitor(ctx, question, params, nil)
}

// RetrieveWithMonitor is Retrieve with a monitor observing each query.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, question string, params Params, monitor Monitor) ([]core.ScoredChunk, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(question, params)

	variants := Variants(question, params.Mode)
	if len(variants) == 1 {
		hits, err := r.querier.Query(ctx, question, params.k())
		if err != nil {
			r.logger.Error("error querying index", "err", err)
			return nil, err
		}
		monitor.AfterQuery(question, hits)
		monitor.Finish(hits)
		return hits, nil
	}

	perVariant, err := r.fanOut(ctx, variants, params.k())
	if err != nil {
		return nil, err
	}
	for i, variant := range variants {
		monitor.AfterQuery(variant, perVariant[i])
	}

	merged := Merge(perVariant...)
	r.logger.Debug("merged multi-query results", "variants", len(variants), "hits", len(merged))
	monitor.Finish(merged)
	return merged, nil
}

// fanOut queries every variant on the pool. Results are indexed by variant.
func (r *Retriever) fanOut(ctx context.Context, variants []string, k int) ([][]core.ScoredChunk, error) {
	results := make([][]core.ScoredChunk, len(variants))
	errs := make([]error, len(variants))

	var wg sync.WaitGroup
	for i, variant := range variants {
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = r.querier.Query(ctx, variant, k)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submitting query: %w", err)
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			r.logger.Error("error querying index", "variant", variants[i], "err", err)
			return nil, err
		}
	}
	return results, nil
}

// Merge concatenates hit lists in order and drops hits whose chunk text was
// already seen.
func Merge(lists ...[]core.ScoredChunk) []core.ScoredChunk {
	seen := make(map[string]bool)
	merged := make([]core.ScoredChunk, 0)
	for _, hits := range lists {
		for _, hit := range hits {
			if seen[hit.Chunk.Text] {
				continue
			}
			seen[hit.Chunk.Text] = true
			merged = append(merged, hit)
		}
	}
	return merged
}

// Chunks strips the scores from hits.
func Chunks(hits []core.ScoredChunk) []core.Chunk {
	chunks := make([]core.Chunk, len(hits))
	for i := range hits {
		chunks[i] = hits[i].Chunk
	}
	return chunks
}

// Release releases the worker pool.
// The retriever should not be used after calling Release.
func (r *Retriever) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}
