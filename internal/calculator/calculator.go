package calculator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/stablelabs/blocktime-drift/internal/client"
	"github.com/stablelabs/blocktime-drift/internal/fetcher"
	"github.com/stablelabs/blocktime-drift/internal/sampler"
	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// Settings groups what a drift run needs besides the client
type Settings struct {
	Provider string
	Sampling types.SamplingConfig
	Drift    types.DriftConfig
	Fetch    types.FetchConfig
}

// BlockTimeDriftCalculator samples blocks from a chain and analyzes the
// time drift between contiguous blocks
type BlockTimeDriftCalculator struct {
	client   client.BlockchainClient
	settings *Settings
	planner  *sampler.Planner
	fetcher  *fetcher.Fetcher
	analyzer *DriftAnalyzer
	logger   zerolog.Logger
}

// NewBlockTimeDriftCalculator creates a new calculator instance. rng may be
// nil, in which case the planner seeds its own from the sampling config.
func NewBlockTimeDriftCalculator(c client.BlockchainClient, settings *Settings, rng *rand.Rand, progress fetcher.ProgressFunc, logger zerolog.Logger) (*BlockTimeDriftCalculator, error) {
	if settings == nil {
		settings = DefaultSettings()
	}

	planner, err := sampler.NewPlanner(&settings.Sampling, rng)
	if err != nil {
		return nil, err
	}

	analyzer, err := NewDriftAnalyzer(&settings.Drift)
	if err != nil {
		return nil, err
	}

	return &BlockTimeDriftCalculator{
		client:   c,
		settings: settings,
		planner:  planner,
		fetcher:  fetcher.New(c, fetcher.Options{Concurrency: settings.Fetch.Concurrency, Progress: progress}, logger),
		analyzer: analyzer,
		logger:   logger.With().Str("component", "calculator").Logger(),
	}, nil
}

// DefaultSettings returns the default sampling and drift settings
func DefaultSettings() *Settings {
	return &Settings{
		Sampling: types.SamplingConfig{
			ZScore:       1.96,
			MarginError:  0.05,
			StdDeviation: 0.5,
		},
		Drift: types.DriftConfig{
			DriftTime:         7200,
			Window:            2,
			RequireContiguous: true,
		},
		Fetch: types.FetchConfig{
			Concurrency: fetcher.DefaultConcurrency,
		},
	}
}

// Plan reads the chain height and decides which blocks to sample
func (c *BlockTimeDriftCalculator) Plan(ctx context.Context) (*types.SamplePlan, error) {
	latestHeight, err := c.client.GetLatestBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get latest height: %w", types.ErrProvider, err)
	}

	earliestHeight, err := c.client.GetEarliestBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get earliest height: %w", types.ErrProvider, err)
	}

	c.logger.Info().Int64("height", latestHeight).Int64("earliest", earliestHeight).Msg("fetched current block height")

	plan, err := c.planner.Plan(latestHeight, earliestHeight, c.settings.Drift.Window)
	if err != nil {
		return nil, err
	}

	if plan.FullPopulation {
		c.logger.Info().Int("population", len(plan.Heights)).Msg("using total population")
	} else {
		c.logger.Info().
			Float64("z_score", c.settings.Sampling.ZScore).
			Float64("std_deviation", c.settings.Sampling.StdDeviation).
			Str("error_margin", fmt.Sprintf("%.2f%%", c.settings.Sampling.MarginError*100)).
			Int("sample_size", plan.SampleSize).
			Int("windows", plan.WindowCount).
			Msgf("sampling %d blocks from a population of %d", len(plan.Heights), latestHeight)
	}

	return plan, nil
}

// Calculate plans a sample, fetches it and runs the drift analysis
func (c *BlockTimeDriftCalculator) Calculate(ctx context.Context) (*types.DriftReport, error) {
	plan, err := c.Plan(ctx)
	if err != nil {
		return nil, err
	}

	fetched, err := c.fetcher.Fetch(ctx, plan.Heights)
	if err != nil {
		return nil, fmt.Errorf("block fetch interrupted after %d of %d blocks: %w", len(fetched.Blocks), fetched.Requested, err)
	}

	// A sampled run estimates the population deviation; a full run measures it
	analysis, err := c.analyzer.Analyze(fetched.Blocks, !plan.FullPopulation)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %d fetched blocks (%d failed): %w", len(fetched.Blocks), fetched.Failed(), err)
	}

	if analysis.SkippedPairs > 0 {
		c.logger.Warn().Int("skipped", analysis.SkippedPairs).Msg("skipped block pairs that are not contiguous")
	}

	return &types.DriftReport{
		GeneratedAt:   time.Now().UTC(),
		Provider:      c.settings.Provider,
		Sampling:      c.settings.Sampling,
		DriftTime:     c.settings.Drift.DriftTime,
		CurrentHeight: plan.CurrentHeight,
		SampleSize:    plan.SampleSize,
		WindowSize:    plan.WindowSize,
		WindowCount:   plan.WindowCount,
		Requested:     fetched.Requested,
		Fetched:       len(fetched.Blocks),
		Failed:        fetched.Failed(),
		Analysis:      *analysis,
	}, nil
}
