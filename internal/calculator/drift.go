package calculator

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/stablelabs/blocktime-drift/pkg/stats"
	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// DriftAnalyzer measures the time between consecutive blocks of sampled
// windows and ranks the pairs that took at least the drift threshold.
//
// Timestamps are miner provided and only loosely bounded by consensus
// (within two hours of network adjusted time and above the median of the
// previous 11 blocks on Bitcoin), so negative drifts are expected and kept.
type DriftAnalyzer struct {
	config *types.DriftConfig
}

// NewDriftAnalyzer creates a new analyzer
func NewDriftAnalyzer(config *types.DriftConfig) (*DriftAnalyzer, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: drift config is required", types.ErrConfig)
	}
	if config.Window < 2 {
		return nil, fmt.Errorf("%w: window %d must be at least 2", types.ErrConfig, config.Window)
	}

	return &DriftAnalyzer{config: config}, nil
}

// Analyze splits blocks into windows of the configured size, measures every
// consecutive pair inside a window and summarizes the result. The last
// window may be shorter than the others. sample selects the Bessel-corrected
// standard deviation.
//
// With RequireContiguous set, a height gap inside a window also ends it and
// the block after the gap opens the next one. A block missing from the input
// then costs only its own window, later windows stay aligned.
//
// Analyze does not modify blocks and returns identical results for
// identical input.
func (a *DriftAnalyzer) Analyze(blocks []*types.BlockHeader, sample bool) (*types.AnalysisResult, error) {
	window := a.config.Window
	ranking := make(DriftRanking, 0, len(blocks))
	deltas := make([]float64, 0, len(blocks))
	skipped := 0

	// filled is the number of blocks in the current window so far
	filled := 0
	for i, curr := range blocks {
		if filled == 0 || filled == window {
			filled = 1
			continue
		}

		prev := blocks[i-1]
		if a.config.RequireContiguous && curr.Height != prev.Height+1 {
			skipped++
			filled = 1
			continue
		}
		filled++

		seconds, ok := checkedSub(curr.Timestamp, prev.Timestamp)
		if !ok {
			skipped++
			continue
		}

		deltas = append(deltas, float64(seconds)/60.0)
		heap.Push(&ranking, types.DriftRecord{
			DriftMinutes: seconds / 60,
			ParentHash:   prev.Hash,
			ChildHash:    curr.Hash,
			ParentHeight: prev.Height,
			ChildHeight:  curr.Height,
		})
	}

	if len(deltas) == 0 {
		return nil, fmt.Errorf("%w: no block pairs among %d blocks", types.ErrStatisticsDomain, len(blocks))
	}

	ranked := ranking.Drain(a.config.DriftTime / 60)

	mean, err := stats.Mean(deltas)
	if err != nil {
		return nil, err
	}
	if mean == 0 {
		return nil, fmt.Errorf("%w: mean block time is zero", types.ErrStatisticsDomain)
	}

	stdDev, err := stats.StandardDeviation(deltas, sample)
	if err != nil {
		return nil, err
	}

	// Blocks per hour against the drift threshold in hours
	lambda := 60 / mean
	hours := -(float64(a.config.DriftTime) / math.Pow(60, 2))

	return &types.AnalysisResult{
		RankedSample:       ranked,
		OccurrenceCount:    len(ranked),
		MeanMinutes:        mean,
		StdDeviation:       stdDev,
		PoissonProbability: stats.PoissonProbability(lambda, hours),
		PairCount:          len(deltas),
		SkippedPairs:       skipped,
		Distribution:       stats.Summarize(deltas),
	}, nil
}

// checkedSub returns a-b and false when the subtraction overflows
func checkedSub(a, b int64) (int64, bool) {
	diff := a - b
	if (b > 0 && diff > a) || (b < 0 && diff < a) {
		return 0, false
	}
	return diff, true
}
