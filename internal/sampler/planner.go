package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// MinWindowSize is the smallest window that still holds one block pair
const MinWindowSize = 2

// Planner decides which block heights to fetch
type Planner struct {
	config *types.SamplingConfig
	rng    *rand.Rand
}

// NewPlanner creates a planner. A nil rng is replaced by one seeded from
// config.Seed, or from the clock when the seed is zero.
func NewPlanner(config *types.SamplingConfig, rng *rand.Rand) (*Planner, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: sampling config is required", types.ErrPlanning)
	}

	if !config.FullPopulation {
		if config.ZScore <= 0 {
			return nil, fmt.Errorf("%w: z-score must be positive", types.ErrPlanning)
		}
		if config.MarginError <= 0 || config.MarginError >= 1 {
			return nil, fmt.Errorf("%w: margin of error must be between 0 and 1", types.ErrPlanning)
		}
		if config.StdDeviation <= 0 || config.StdDeviation >= 1 {
			return nil, fmt.Errorf("%w: standard deviation must be between 0 and 1", types.ErrPlanning)
		}
	}

	if rng == nil {
		rng = NewRand(config.Seed)
	}

	return &Planner{
		config: config,
		rng:    rng,
	}, nil
}

// NewRand returns a PCG source seeded with seed, or with the current time
// when seed is zero
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SampleSize applies the Cochran formula with the finite population
// correction for a population of the given size
func (p *Planner) SampleSize(population int64) int {
	zpq := math.Pow(p.config.ZScore, 2) * (p.config.StdDeviation * (1 - p.config.StdDeviation))
	n0 := math.Ceil(zpq / math.Pow(p.config.MarginError, 2))
	sample := n0 / (1 + ((n0 - 1) / float64(population)))

	return int(math.Ceil(sample))
}

// Plan produces the ordered heights to fetch for a chain whose tip is at
// currentHeight and whose earliest available block is floor.
//
// In sampling mode the plan is windowCount runs of windowSize consecutive
// heights, each starting at an independent uniform draw. Runs may overlap.
// Starts are drawn so the last height of a run never passes the tip.
func (p *Planner) Plan(currentHeight, floor int64, windowSize int) (*types.SamplePlan, error) {
	if currentHeight < 1 {
		return nil, fmt.Errorf("%w: current height %d must be at least 1", types.ErrPlanning, currentHeight)
	}
	if windowSize < MinWindowSize {
		return nil, fmt.Errorf("%w: window size %d must be at least %d", types.ErrPlanning, windowSize, MinWindowSize)
	}
	if floor < 0 || floor > currentHeight {
		return nil, fmt.Errorf("%w: floor height %d outside [0, %d]", types.ErrPlanning, floor, currentHeight)
	}

	plan := &types.SamplePlan{
		CurrentHeight:  currentHeight,
		FloorHeight:    floor,
		WindowSize:     windowSize,
		FullPopulation: p.config.FullPopulation,
	}

	if p.config.FullPopulation {
		plan.Heights = make([]int64, 0, currentHeight-floor+1)
		for height := floor; height <= currentHeight; height++ {
			plan.Heights = append(plan.Heights, height)
		}
		plan.SampleSize = len(plan.Heights)
		plan.WindowCount = len(plan.Heights) / windowSize
		return plan, nil
	}

	// Number of valid window starts in [floor, currentHeight-windowSize+1]
	starts := currentHeight - floor - int64(windowSize) + 2
	if starts < 1 {
		return nil, fmt.Errorf("%w: chain of %d blocks is shorter than a window of %d", types.ErrPlanning, currentHeight-floor+1, windowSize)
	}

	plan.SampleSize = p.SampleSize(currentHeight)
	plan.WindowCount = plan.SampleSize / windowSize
	if plan.WindowCount == 0 {
		return nil, fmt.Errorf("%w: sample size %d is smaller than window size %d", types.ErrPlanning, plan.SampleSize, windowSize)
	}

	plan.Heights = make([]int64, 0, plan.WindowCount*windowSize)
	for i := 0; i < plan.WindowCount; i++ {
		start := floor + p.rng.Int64N(starts)
		for offset := 0; offset < windowSize; offset++ {
			plan.Heights = append(plan.Heights, start+int64(offset))
		}
	}

	return plan, nil
}
