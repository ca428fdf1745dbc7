package types

import (
	"time"
)

// BlockHeader is the subset of a block header the drift analysis needs
type BlockHeader struct {
	Height     int64  `json:"height"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parent_hash,omitempty"`
	Timestamp  int64  `json:"timestamp"` // unix seconds, as set by the miner/proposer
}

// DriftRecord is the time elapsed between two consecutive blocks of a window
type DriftRecord struct {
	DriftMinutes int64  `json:"drift_minutes"`
	ParentHash   string `json:"parent_hash"`
	ChildHash    string `json:"child_hash"`
	ParentHeight int64  `json:"parent_height"`
	ChildHeight  int64  `json:"child_height"`
}

// Distribution summarizes the raw per-pair drift minutes
type Distribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// AnalysisResult is the outcome of a single drift analysis
type AnalysisResult struct {
	RankedSample       []DriftRecord `json:"ranked_sample"`
	OccurrenceCount    int           `json:"occurrence_count"`
	MeanMinutes        float64       `json:"mean_minutes"`
	StdDeviation       float64       `json:"std_deviation"`
	PoissonProbability float64       `json:"poisson_probability"`
	PairCount          int           `json:"pair_count"`
	SkippedPairs       int           `json:"skipped_pairs"`
	Distribution       Distribution  `json:"distribution"`
}

// SamplePlan is the ordered list of heights to fetch plus how it was derived
type SamplePlan struct {
	Heights        []int64 `json:"heights"`
	CurrentHeight  int64   `json:"current_height"`
	FloorHeight    int64   `json:"floor_height"`
	SampleSize     int     `json:"sample_size"`
	WindowSize     int     `json:"window_size"`
	WindowCount    int     `json:"window_count"`
	FullPopulation bool    `json:"full_population"`
}

// DriftReport is everything the formatter needs to render one run
type DriftReport struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	Provider      string         `json:"provider"`
	Sampling      SamplingConfig `json:"sampling"`
	DriftTime     int64          `json:"drift_time"`
	CurrentHeight int64          `json:"current_height"`
	SampleSize    int            `json:"sample_size"`
	WindowSize    int            `json:"window_size"`
	WindowCount   int            `json:"window_count"`
	Requested     int            `json:"requested"`
	Fetched       int            `json:"fetched"`
	Failed        int            `json:"failed"`
	Analysis      AnalysisResult `json:"analysis"`
}

// ChainConfig represents blockchain connection configuration
type ChainConfig struct {
	Provider    string        `json:"provider" mapstructure:"provider"` // cometbft, ethereum, bitcoin
	RPCEndpoint string        `json:"rpc_endpoint" mapstructure:"rpc_endpoint"`
	Username    string        `json:"username" mapstructure:"username"`
	Password    string        `json:"password" mapstructure:"password"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// SamplingConfig governs how many blocks are sampled
type SamplingConfig struct {
	ZScore         float64 `json:"z_score" mapstructure:"z_score"`
	MarginError    float64 `json:"margin_error" mapstructure:"margin_error"`
	StdDeviation   float64 `json:"std_deviation" mapstructure:"std_deviation"` // estimated proportion p in the Cochran formula
	FullPopulation bool    `json:"full_population" mapstructure:"full_population"`
	Seed           uint64  `json:"seed" mapstructure:"seed"` // 0 seeds from the clock
}

// DriftConfig represents drift analysis configuration
type DriftConfig struct {
	DriftTime         int64 `json:"drift_time" mapstructure:"drift_time"` // threshold in seconds
	Window            int   `json:"window" mapstructure:"window"`         // contiguous blocks per sampled window
	RequireContiguous bool  `json:"require_contiguous" mapstructure:"require_contiguous"`
}

// FetchConfig represents block fetching configuration
type FetchConfig struct {
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}
