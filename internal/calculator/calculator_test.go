package calculator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// mockClient serves a chain whose block at height h was mined at
// genesisTime + h*600, except for heights listed in slow which took
// an extra three hours
type mockClient struct {
	height    int64
	earliest  int64
	heightErr error
	failing   map[int64]bool
	slow      map[int64]bool
	fetched   atomic.Int64
}

const genesisTime = 1_231_006_505

func (m *mockClient) GetLatestBlockHeight(ctx context.Context) (int64, error) {
	return m.height, m.heightErr
}

func (m *mockClient) GetEarliestBlockHeight(ctx context.Context) (int64, error) {
	return m.earliest, nil
}

func (m *mockClient) GetBlockHash(ctx context.Context, height int64) (string, error) {
	if height > m.height {
		return "", fmt.Errorf("height %d beyond tip", height)
	}
	if m.failing[height] {
		return "", errors.New("connection reset")
	}
	return fmt.Sprintf("%064x", height), nil
}

func (m *mockClient) GetBlockHeader(ctx context.Context, hash string) (*types.BlockHeader, error) {
	var height int64
	if _, err := fmt.Sscanf(hash, "%x", &height); err != nil {
		return nil, err
	}
	m.fetched.Add(1)

	timestamp := genesisTime + height*600
	for h := range m.slow {
		if h <= height {
			timestamp += 3 * 3600
		}
	}
	return &types.BlockHeader{Height: height, Hash: hash, Timestamp: timestamp}, nil
}

func (m *mockClient) Close() error { return nil }

func newTestCalculator(t *testing.T, c *mockClient, settings *Settings) *BlockTimeDriftCalculator {
	t.Helper()
	calc, err := NewBlockTimeDriftCalculator(c, settings, rand.New(rand.NewPCG(11, 13)), nil, zerolog.Nop())
	require.NoError(t, err)
	return calc
}

func TestCalculate_Sampled(t *testing.T) {
	c := &mockClient{height: 2000}
	calc := newTestCalculator(t, c, DefaultSettings())

	report, err := calc.Calculate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2000), report.CurrentHeight)
	assert.Equal(t, 323, report.SampleSize)
	assert.Equal(t, 161, report.WindowCount)
	assert.Equal(t, 322, report.Requested)
	assert.Equal(t, 322, report.Fetched)
	assert.Zero(t, report.Failed)
	assert.Equal(t, int64(322), c.fetched.Load())

	analysis := report.Analysis
	assert.Equal(t, 161, analysis.PairCount)
	assert.Equal(t, 10.0, analysis.MeanMinutes)
	assert.Zero(t, analysis.OccurrenceCount)
}

func TestCalculate_FullPopulation(t *testing.T) {
	c := &mockClient{height: 20, earliest: 1, slow: map[int64]bool{6: true}}
	settings := DefaultSettings()
	settings.Sampling.FullPopulation = true
	calc := newTestCalculator(t, c, settings)

	report, err := calc.Calculate(context.Background())
	require.NoError(t, err)

	// heights 1..20 in windows of two: (1,2) (3,4) (5,6) ...
	assert.Equal(t, 20, report.Requested)
	assert.Equal(t, 10, report.Analysis.PairCount)
	require.Len(t, report.Analysis.RankedSample, 1)
	assert.Equal(t, int64(190), report.Analysis.RankedSample[0].DriftMinutes)
	assert.Equal(t, int64(5), report.Analysis.RankedSample[0].ParentHeight)
	assert.Equal(t, 1, report.Analysis.OccurrenceCount)
	assert.Equal(t, 28.0, report.Analysis.MeanMinutes)
	// population deviation for a full run
	assert.Equal(t, 54.0, report.Analysis.StdDeviation)
}

func TestCalculate_PartialFailure(t *testing.T) {
	c := &mockClient{height: 30, failing: map[int64]bool{3: true, 9: true}}
	settings := DefaultSettings()
	settings.Sampling.FullPopulation = true
	calc := newTestCalculator(t, c, settings)

	report, err := calc.Calculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 31, report.Requested)
	assert.Equal(t, 29, report.Fetched)
	assert.Equal(t, 2, report.Failed)
	// windows (2,3) and (8,9) are lost, every other window survives
	assert.Equal(t, 2, report.Analysis.SkippedPairs)
	assert.Equal(t, 13, report.Analysis.PairCount)
	assert.Equal(t, 10.0, report.Analysis.MeanMinutes)
}

func TestCalculate_SampledPartialFailure(t *testing.T) {
	plan, err := newTestCalculator(t, &mockClient{height: 2000}, DefaultSettings()).Plan(context.Background())
	require.NoError(t, err)

	// fail the child of the first window, the same seed plans the same heights
	c := &mockClient{height: 2000, failing: map[int64]bool{plan.Heights[1]: true}}
	report, err := newTestCalculator(t, c, DefaultSettings()).Calculate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, plan.Heights, planHeights(t, c))
	assert.GreaterOrEqual(t, report.Failed, 1)
	assert.Equal(t, report.Requested-report.Failed, report.Fetched)
	// each failed height costs at most its own window
	assert.GreaterOrEqual(t, report.Analysis.PairCount, plan.WindowCount-report.Failed)
	assert.LessOrEqual(t, report.Analysis.SkippedPairs, 2*report.Failed)
	assert.Equal(t, 10.0, report.Analysis.MeanMinutes)
}

func planHeights(t *testing.T, c *mockClient) []int64 {
	t.Helper()
	plan, err := newTestCalculator(t, c, DefaultSettings()).Plan(context.Background())
	require.NoError(t, err)
	return plan.Heights
}

func TestCalculate_ProviderUnavailable(t *testing.T) {
	c := &mockClient{heightErr: errors.New("dial tcp: connection refused")}
	calc := newTestCalculator(t, c, DefaultSettings())

	_, err := calc.Calculate(context.Background())
	assert.ErrorIs(t, err, types.ErrProvider)
	assert.NotErrorIs(t, err, types.ErrStatisticsDomain)
	assert.Zero(t, c.fetched.Load())
}

func TestCalculate_AllFetchesFail(t *testing.T) {
	failing := map[int64]bool{}
	for h := int64(0); h <= 50; h++ {
		failing[h] = true
	}
	c := &mockClient{height: 50, failing: failing}
	calc := newTestCalculator(t, c, DefaultSettings())

	_, err := calc.Calculate(context.Background())
	assert.ErrorIs(t, err, types.ErrStatisticsDomain)
	assert.NotErrorIs(t, err, types.ErrProvider)
}

func TestCalculate_InvalidPlan(t *testing.T) {
	c := &mockClient{height: 0}
	calc := newTestCalculator(t, c, DefaultSettings())

	_, err := calc.Calculate(context.Background())
	assert.ErrorIs(t, err, types.ErrPlanning)
	assert.Zero(t, c.fetched.Load())
}

func TestPlan_DeterministicWithRand(t *testing.T) {
	c := &mockClient{height: 800_000}
	first, err := newTestCalculator(t, c, DefaultSettings()).Plan(context.Background())
	require.NoError(t, err)
	second, err := newTestCalculator(t, c, DefaultSettings()).Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Heights, second.Heights)
	assert.Len(t, first.Heights, 384)
}
