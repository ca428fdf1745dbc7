package fetcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// DefaultConcurrency is used when no positive concurrency is configured
const DefaultConcurrency = 16

// Provider resolves block heights to headers
type Provider interface {
	GetBlockHash(ctx context.Context, height int64) (string, error)
	GetBlockHeader(ctx context.Context, hash string) (*types.BlockHeader, error)
}

// ProgressFunc receives the number of finished tasks out of total.
// Calls are serialized and done increases by one on every call.
type ProgressFunc func(done, total int)

// Options configure a Fetcher
type Options struct {
	Concurrency int
	Progress    ProgressFunc
}

// Failure records a height that could not be fetched
type Failure struct {
	Height int64
	Err    error
}

// Result holds the fetched headers in the order their heights were requested
type Result struct {
	Blocks    []*types.BlockHeader
	Requested int
	Failures  []Failure
}

// Failed returns the number of heights that could not be fetched
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Fetcher retrieves block headers with a bounded number of workers
type Fetcher struct {
	provider    Provider
	concurrency int
	progress    ProgressFunc
	logger      zerolog.Logger
}

// New creates a new Fetcher
func New(provider Provider, opts Options, logger zerolog.Logger) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	return &Fetcher{
		provider:    provider,
		concurrency: opts.Concurrency,
		progress:    opts.Progress,
		logger:      logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch retrieves the header of every height. A failed height is dropped
// from the result and recorded in Failures; it never stops the other
// heights from being fetched. Blocks keep the order of heights.
//
// The returned error is non-nil only when ctx is done, in which case the
// result holds whatever finished before cancellation.
func (f *Fetcher) Fetch(ctx context.Context, heights []int64) (*Result, error) {
	total := len(heights)
	slots := make([]*types.BlockHeader, total)
	errs := make([]error, total)

	var (
		mu   sync.Mutex
		done int
	)
	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for i, height := range heights {
		g.Go(func() error {
			header, err := f.fetchOne(ctx, height)
			if err != nil {
				errs[i] = err
			} else {
				slots[i] = header
			}

			mu.Lock()
			done++
			if f.progress != nil {
				f.progress(done, total)
			}
			mu.Unlock()
			// Workers never report errors to the group so a failure cannot
			// affect its siblings
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		Blocks:    make([]*types.BlockHeader, 0, total),
		Requested: total,
	}
	for i, header := range slots {
		if errs[i] != nil {
			result.Failures = append(result.Failures, Failure{Height: heights[i], Err: errs[i]})
			f.logger.Warn().Err(errs[i]).Int64("height", heights[i]).Msg("error retrieving block")
			continue
		}
		result.Blocks = append(result.Blocks, header)
	}

	f.logger.Info().
		Int("requested", total).
		Int("fetched", len(result.Blocks)).
		Int("failed", result.Failed()).
		Msg("finished fetching blocks")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, height int64) (*types.BlockHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: height %d: %w", types.ErrFetch, height, err)
	}

	hash, err := f.provider.GetBlockHash(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("%w: hash at height %d: %w", types.ErrFetch, height, err)
	}

	header, err := f.provider.GetBlockHeader(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: header %s: %w", types.ErrFetch, hash, err)
	}
	if header == nil {
		return nil, fmt.Errorf("%w: nil header %s at height %d", types.ErrFetch, hash, height)
	}
	if header.Height == 0 {
		header.Height = height
	}

	f.logger.Debug().Int64("height", height).Str("hash", header.Hash).Msg("fetched block")
	return header, nil
}
