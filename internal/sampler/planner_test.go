package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

func defaultSampling() *types.SamplingConfig {
	return &types.SamplingConfig{
		ZScore:       1.96,
		MarginError:  0.05,
		StdDeviation: 0.5,
		Seed:         42,
	}
}

func TestSampleSize(t *testing.T) {
	planner, err := NewPlanner(defaultSampling(), nil)
	require.NoError(t, err)

	assert.Equal(t, 323, planner.SampleSize(2000))
	assert.Equal(t, 10, planner.SampleSize(10))
}

func TestPlan_Length(t *testing.T) {
	planner, err := NewPlanner(defaultSampling(), nil)
	require.NoError(t, err)

	plan, err := planner.Plan(10, 0, 2)
	require.NoError(t, err)
	assert.Len(t, plan.Heights, 10)
	assert.Equal(t, 5, plan.WindowCount)

	for _, window := range []int{2, 3, 4, 7, 50} {
		plan, err := planner.Plan(2000, 0, window)
		require.NoError(t, err)
		assert.Equal(t, 323, plan.SampleSize)
		assert.Equal(t, (323/window)*window, len(plan.Heights), "window %d", window)
	}
}

func TestPlan_WindowsAreContiguousAndWithinChain(t *testing.T) {
	planner, err := NewPlanner(defaultSampling(), nil)
	require.NoError(t, err)

	const window = 4
	plan, err := planner.Plan(500, 1, window)
	require.NoError(t, err)

	for i := 0; i < len(plan.Heights); i += window {
		run := plan.Heights[i : i+window]
		for j := 1; j < len(run); j++ {
			assert.Equal(t, run[j-1]+1, run[j])
		}
	}
	for _, height := range plan.Heights {
		assert.GreaterOrEqual(t, height, int64(1))
		assert.LessOrEqual(t, height, int64(500))
	}
}

func TestPlan_TipIsNeverExceeded(t *testing.T) {
	planner, err := NewPlanner(defaultSampling(), nil)
	require.NoError(t, err)

	// Only one valid start exists: [3, 4, 5]
	plan, err := planner.Plan(5, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, plan.Heights)

	plan, err = planner.Plan(30, 0, 3)
	require.NoError(t, err)
	for _, height := range plan.Heights {
		assert.LessOrEqual(t, height, int64(30))
	}

	_, err = planner.Plan(5, 3, 4)
	assert.ErrorIs(t, err, types.ErrPlanning)
}

func TestPlan_DeterministicWithSeed(t *testing.T) {
	first, err := NewPlanner(defaultSampling(), nil)
	require.NoError(t, err)
	second, err := NewPlanner(defaultSampling(), nil)
	require.NoError(t, err)

	a, err := first.Plan(800000, 0, 3)
	require.NoError(t, err)
	b, err := second.Plan(800000, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, a.Heights, b.Heights)

	other := defaultSampling()
	other.Seed = 7
	third, err := NewPlanner(other, nil)
	require.NoError(t, err)
	c, err := third.Plan(800000, 0, 3)
	require.NoError(t, err)
	assert.NotEqual(t, a.Heights, c.Heights)
}

func TestPlan_FullPopulation(t *testing.T) {
	cfg := defaultSampling()
	cfg.FullPopulation = true
	planner, err := NewPlanner(cfg, nil)
	require.NoError(t, err)

	plan, err := planner.Plan(5, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, plan.Heights)
	assert.Equal(t, 6, plan.SampleSize)
	assert.True(t, plan.FullPopulation)

	plan, err = planner.Plan(5, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, plan.Heights)
}

func TestPlan_InvalidInput(t *testing.T) {
	planner, err := NewPlanner(defaultSampling(), nil)
	require.NoError(t, err)

	_, err = planner.Plan(0, 0, 2)
	assert.ErrorIs(t, err, types.ErrPlanning)

	_, err = planner.Plan(100, 0, 1)
	assert.ErrorIs(t, err, types.ErrPlanning)

	_, err = planner.Plan(100, 101, 2)
	assert.ErrorIs(t, err, types.ErrPlanning)

	// Sample size of 1 cannot fill a single window of 2
	_, err = planner.Plan(1, 0, 2)
	assert.ErrorIs(t, err, types.ErrPlanning)
}

func TestNewPlanner_Validation(t *testing.T) {
	_, err := NewPlanner(nil, nil)
	assert.ErrorIs(t, err, types.ErrPlanning)

	cfg := defaultSampling()
	cfg.MarginError = 0
	_, err = NewPlanner(cfg, nil)
	assert.ErrorIs(t, err, types.ErrPlanning)

	cfg = defaultSampling()
	cfg.StdDeviation = 1
	_, err = NewPlanner(cfg, nil)
	assert.ErrorIs(t, err, types.ErrPlanning)

	// Sampling parameters are irrelevant for the full population
	cfg = &types.SamplingConfig{FullPopulation: true}
	_, err = NewPlanner(cfg, nil)
	assert.NoError(t, err)
}
