package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/stablelabs/blocktime-drift/internal/client"
	"github.com/stablelabs/blocktime-drift/internal/fetcher"
	"github.com/stablelabs/blocktime-drift/internal/logging"
	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// EnvPrefix prefixes every environment variable read by the tool
const EnvPrefix = "BLOCKDRIFT"

// Config represents the application configuration
type Config struct {
	Chain    types.ChainConfig    `json:"chain" mapstructure:"chain"`
	Sampling types.SamplingConfig `json:"sampling" mapstructure:"sampling"`
	Drift    types.DriftConfig    `json:"drift" mapstructure:"drift"`
	Fetch    types.FetchConfig    `json:"fetch" mapstructure:"fetch"`
	Output   OutputConfig         `json:"output" mapstructure:"output"`
	Logging  logging.Config       `json:"logging" mapstructure:"logging"`
}

// OutputConfig represents output formatting configuration
type OutputConfig struct {
	Format      string `json:"format" mapstructure:"format"`             // json, text, table
	Verbose     bool   `json:"verbose" mapstructure:"verbose"`           // Show the drift distribution
	PrettyPrint bool   `json:"pretty_print" mapstructure:"pretty_print"` // Pretty print JSON
	SaveToFile  string `json:"save_to_file" mapstructure:"save_to_file"` // Save output to file
	ChartFile   string `json:"chart_file" mapstructure:"chart_file"`     // PNG chart of ranked drifts
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Chain: types.ChainConfig{
			Provider:    client.ProviderCometBFT,
			RPCEndpoint: "http://localhost:26657",
			Timeout:     30 * time.Second,
		},
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
		Output: OutputConfig{
			Format:      "table",
			PrettyPrint: true,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// ConfigureEnv makes viper read BLOCKDRIFT_* variables, mapping both
// nested keys and dashed flag names to underscores
func ConfigureEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// BuildConfig builds configuration from viper settings
func BuildConfig() (*Config, error) {
	cfg := DefaultConfig()

	// Config file sections first, flags and environment override below
	sections := []struct {
		key    string
		target any
	}{
		{"chain", &cfg.Chain},
		{"sampling", &cfg.Sampling},
		{"drift", &cfg.Drift},
		{"fetch", &cfg.Fetch},
		{"logging", &cfg.Logging},
	}
	for _, section := range sections {
		if !viper.IsSet(section.key) {
			continue
		}
		if err := viper.UnmarshalKey(section.key, section.target, decodeHook()); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal %s config: %w", types.ErrConfig, section.key, err)
		}
	}
	// output is both a section and a flag, only a map is a section
	if _, ok := viper.Get("output").(map[string]any); ok {
		if err := viper.UnmarshalKey("output", &cfg.Output, decodeHook()); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal output config: %w", types.ErrConfig, err)
		}
	}

	// Chain configuration
	if viper.IsSet("provider") {
		cfg.Chain.Provider = viper.GetString("provider")
	}
	if viper.IsSet("rpc") {
		cfg.Chain.RPCEndpoint = viper.GetString("rpc")
	}
	if viper.IsSet("username") {
		cfg.Chain.Username = viper.GetString("username")
	}
	if viper.IsSet("password") {
		cfg.Chain.Password = viper.GetString("password")
	}
	if viper.IsSet("timeout") {
		cfg.Chain.Timeout = viper.GetDuration("timeout")
	}

	// Sampling configuration
	if viper.IsSet("z-score") {
		cfg.Sampling.ZScore = viper.GetFloat64("z-score")
	}
	if viper.IsSet("margin-error") {
		cfg.Sampling.MarginError = viper.GetFloat64("margin-error")
	}
	if viper.IsSet("std-deviation") {
		cfg.Sampling.StdDeviation = viper.GetFloat64("std-deviation")
	}
	if viper.IsSet("full-population") {
		cfg.Sampling.FullPopulation = viper.GetBool("full-population")
	}
	if viper.IsSet("seed") {
		cfg.Sampling.Seed = viper.GetUint64("seed")
	}

	// Drift configuration
	if viper.IsSet("drift-time") {
		cfg.Drift.DriftTime = viper.GetInt64("drift-time")
	}
	if viper.IsSet("window") {
		cfg.Drift.Window = viper.GetInt("window")
	}
	if viper.IsSet("require-contiguous") {
		cfg.Drift.RequireContiguous = viper.GetBool("require-contiguous")
	}
	if viper.IsSet("concurrency") {
		cfg.Fetch.Concurrency = viper.GetInt("concurrency")
	}

	// Output configuration
	if format, ok := viper.Get("output").(string); ok && format != "" {
		cfg.Output.Format = format
	}
	if viper.IsSet("verbose") {
		cfg.Output.Verbose = viper.GetBool("verbose")
	}
	if viper.IsSet("pretty-print") {
		cfg.Output.PrettyPrint = viper.GetBool("pretty-print")
	}
	if viper.IsSet("save-to-file") {
		cfg.Output.SaveToFile = viper.GetString("save-to-file")
	}
	if viper.IsSet("chart") {
		cfg.Output.ChartFile = viper.GetString("chart")
	}

	if viper.IsSet("log-level") {
		cfg.Logging.Level = viper.GetString("log-level")
	}
	if viper.IsSet("log-format") {
		cfg.Logging.Format = viper.GetString("log-format")
	}

	cfg.Chain.Provider = strings.ToLower(strings.TrimSpace(cfg.Chain.Provider))
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	// Validate chain config
	validProvider := false
	for _, provider := range client.Providers() {
		if cfg.Chain.Provider == provider {
			validProvider = true
		}
	}
	if !validProvider {
		return fmt.Errorf("%w: unsupported provider: %s (must be one of %s)", types.ErrConfig, cfg.Chain.Provider, strings.Join(client.Providers(), ", "))
	}
	if cfg.Chain.RPCEndpoint == "" {
		return fmt.Errorf("%w: RPC endpoint is required (use --rpc flag or config file)", types.ErrConfig)
	}
	if cfg.Chain.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", types.ErrConfig)
	}

	// Validate sampling config
	if cfg.Sampling.ZScore <= 0 {
		return fmt.Errorf("%w: z-score must be positive", types.ErrConfig)
	}
	if cfg.Sampling.MarginError <= 0 || cfg.Sampling.MarginError >= 1 {
		return fmt.Errorf("%w: margin of error must be between 0 and 1", types.ErrConfig)
	}
	if cfg.Sampling.StdDeviation <= 0 || cfg.Sampling.StdDeviation >= 1 {
		return fmt.Errorf("%w: standard deviation must be between 0 and 1", types.ErrConfig)
	}

	// Validate drift and fetch config
	if cfg.Drift.Window < 2 {
		return fmt.Errorf("%w: window must be at least 2", types.ErrConfig)
	}
	if cfg.Fetch.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", types.ErrConfig)
	}

	// Validate output config
	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"table": true,
	}
	if !validFormats[cfg.Output.Format] {
		return fmt.Errorf("%w: invalid output format: %s (must be json, text, or table)", types.ErrConfig, cfg.Output.Format)
	}

	return nil
}

// LoadFromFile loads configuration from a file
func LoadFromFile(path string) (*Config, error) {
	viper.SetConfigFile(path)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", types.ErrConfig, err)
	}

	return BuildConfig()
}

// SaveToFile saves configuration to a file
func SaveToFile(cfg *Config, path string) error {
	v := viper.New()
	v.Set("chain", cfg.Chain)
	v.Set("sampling", cfg.Sampling)
	v.Set("drift", cfg.Drift)
	v.Set("fetch", cfg.Fetch)
	v.Set("output", cfg.Output)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
