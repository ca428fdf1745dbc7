package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stablelabs/blocktime-drift/internal/calculator"
	"github.com/stablelabs/blocktime-drift/internal/client"
	"github.com/stablelabs/blocktime-drift/internal/config"
	"github.com/stablelabs/blocktime-drift/internal/fetcher"
	"github.com/stablelabs/blocktime-drift/internal/logging"
	"github.com/stablelabs/blocktime-drift/internal/report"
	"github.com/stablelabs/blocktime-drift/pkg/types"
)

var (
	cfgFile   string
	configErr error
)

var (
	rootCmd = &cobra.Command{
		Use:   "blocktime-drift",
		Short: "Block time drift sampler",
		Long: `Samples windows of contiguous blocks from a chain, measures the time
between consecutive blocks and ranks the pairs that took longer than a
drift threshold, together with the mean block time, its standard deviation
and the Poisson probability of such a drift.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	driftCmd = &cobra.Command{
		Use:     "drift",
		Aliases: []string{"block-time-drift"},
		Short:   "Rank block time drifts above a threshold",
		Long:    `Sample the chain, fetch the sampled headers and rank the block pairs whose mining time reached the drift threshold`,
		PreRunE: bindFlags,
		RunE:    runDrift,
	}

	planCmd = &cobra.Command{
		Use:     "plan",
		Short:   "Show the sample plan without fetching blocks",
		Long:    `Read the current height and print the sample size and the heights that a drift run would fetch`,
		PreRunE: bindFlags,
		RunE:    runPlan,
	}

	configCmd = &cobra.Command{
		Use:   "config [file]",
		Short: "Generate default configuration",
		Long:  `Generate a default configuration file`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfig,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.json)")
	rootCmd.PersistentFlags().String("provider", client.ProviderCometBFT, "Chain provider ("+strings.Join(client.Providers(), ", ")+")")
	rootCmd.PersistentFlags().String("rpc", "", "RPC endpoint URL")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().Float64("z-score", 1.96, "Z-score of the confidence level")
	rootCmd.PersistentFlags().Float64("margin-error", 0.05, "Margin of error")
	rootCmd.PersistentFlags().Float64("std-deviation", 0.5, "Estimated standard deviation of the population")
	rootCmd.PersistentFlags().Bool("full-population", false, "Fetch every block instead of a sample")
	rootCmd.PersistentFlags().Uint64("seed", 0, "Sampling seed (0 for a random seed)")
	rootCmd.PersistentFlags().Int("concurrency", fetcher.DefaultConcurrency, "Concurrent block fetches")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")

	// Drift command flags
	driftCmd.Flags().Int64("drift-time", 7200, "Drift threshold in seconds")
	driftCmd.Flags().Int("window", 2, "Contiguous blocks per sampled window")
	driftCmd.Flags().Bool("require-contiguous", true, "Skip pairs whose heights are not consecutive")
	driftCmd.Flags().String("output", "", "Output format (json, text, table)")
	driftCmd.Flags().Bool("verbose", false, "Show the drift distribution")
	driftCmd.Flags().Bool("pretty-print", true, "Pretty print JSON output")
	driftCmd.Flags().String("save-to-file", "", "Also write the report to this file")
	driftCmd.Flags().String("chart", "", "Write a PNG chart of the ranked drifts to this file")

	// Plan command flags
	planCmd.Flags().Int("window", 2, "Contiguous blocks per sampled window")
	planCmd.Flags().String("output", "", "Output format (json, text, table)")

	// Bind flags to viper
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	// Add commands
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	config.ConfigureEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("%w: failed to read config file: %w", types.ErrConfig, err)
		}
	}
}

// bindFlags binds the flags of the command being run. Commands share flag
// names, so binding happens per command instead of in init.
func bindFlags(cmd *cobra.Command, args []string) error {
	if configErr != nil {
		return configErr
	}
	return viper.BindPFlags(cmd.Flags())
}

func runDrift(cmd *cobra.Command, args []string) error {
	cfg, err := config.BuildConfig()
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	logger := logging.NewLogger(cfg.Logging)

	calc, closeClient, err := newCalculator(cfg, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	result, err := calc.Calculate(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to calculate block time drift: %w", err)
	}

	opts := report.Options{
		Format:      cfg.Output.Format,
		Verbose:     cfg.Output.Verbose,
		PrettyPrint: cfg.Output.PrettyPrint,
	}
	if err := report.Write(os.Stdout, result, opts); err != nil {
		return err
	}

	if cfg.Output.SaveToFile != "" {
		if err := report.SaveToFile(cfg.Output.SaveToFile, result, opts); err != nil {
			return err
		}
		logger.Info().Str("path", cfg.Output.SaveToFile).Msg("report saved")
	}

	if cfg.Output.ChartFile != "" {
		err := report.WriteChart(cfg.Output.ChartFile, result.Analysis.RankedSample, cfg.Drift.DriftTime/60)
		switch {
		case errors.Is(err, report.ErrNothingToChart):
			logger.Warn().Str("path", cfg.Output.ChartFile).Msg("no drift reached the threshold, chart skipped")
		case err != nil:
			return err
		default:
			logger.Info().Str("path", cfg.Output.ChartFile).Msg("chart saved")
		}
	}

	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.BuildConfig()
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	logger := logging.NewLogger(cfg.Logging)

	calc, closeClient, err := newCalculator(cfg, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	plan, err := calc.Plan(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to plan sample: %w", err)
	}

	return outputPlan(plan, cfg.Output.Format)
}

func runConfig(cmd *cobra.Command, args []string) error {
	filename := "config.json"
	if len(args) > 0 {
		filename = args[0]
	}

	if err := config.SaveToFile(config.DefaultConfig(), filename); err != nil {
		return err
	}

	fmt.Printf("Default configuration written to %s\n", filename)
	return nil
}

func newCalculator(cfg *config.Config, logger zerolog.Logger) (*calculator.BlockTimeDriftCalculator, func(), error) {
	blockClient, err := client.New(&cfg.Chain)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to create client: %w", types.ErrProvider, err)
	}
	closeClient := func() {
		if err := blockClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close client")
		}
	}

	settings := &calculator.Settings{
		Provider: cfg.Chain.Provider,
		Sampling: cfg.Sampling,
		Drift:    cfg.Drift,
		Fetch:    cfg.Fetch,
	}
	calc, err := calculator.NewBlockTimeDriftCalculator(blockClient, settings, nil, progressLogger(logger), logger)
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("failed to create calculator: %w", err)
	}

	return calc, closeClient, nil
}

// progressLogger logs fetch progress in steps of roughly ten percent
func progressLogger(logger zerolog.Logger) fetcher.ProgressFunc {
	return func(done, total int) {
		step := max(1, total/10)
		if done%step == 0 || done == total {
			logger.Info().Int("done", done).Int("total", total).Msgf("fetched %d/%d blocks", done, total)
		}
	}
}

func outputPlan(plan *types.SamplePlan, format string) error {
	switch strings.TrimSpace(format) {
	case "json":
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))

	case "text", "table", "":
		fmt.Println("Sample Plan")
		fmt.Println("===========")
		fmt.Printf("Current Height: %d\n", plan.CurrentHeight)
		if plan.FullPopulation {
			fmt.Printf("Full Population: %d - %d (%d blocks)\n", plan.FloorHeight, plan.CurrentHeight, len(plan.Heights))
			return nil
		}
		fmt.Printf("Sample Size: %d blocks\n", plan.SampleSize)
		fmt.Printf("Windows: %d of %d blocks\n", plan.WindowCount, plan.WindowSize)
		fmt.Println("\nHeights:")
		for start := 0; start < len(plan.Heights); start += plan.WindowSize {
			window := plan.Heights[start:min(start+plan.WindowSize, len(plan.Heights))]
			fmt.Printf("  %d - %d\n", window[0], window[len(window)-1])
		}

	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	return nil
}

// errorHint explains the failure class of err
func errorHint(err error) string {
	switch {
	case errors.Is(err, types.ErrConfig):
		return "hint: check the flags, BLOCKDRIFT_* environment variables and config file"
	case errors.Is(err, types.ErrProvider):
		return "hint: could not reach provider, check --provider, --rpc and credentials"
	case errors.Is(err, types.ErrPlanning):
		return "hint: the chain is too short for the requested sample or window"
	case errors.Is(err, types.ErrStatisticsDomain):
		return "hint: could not compute statistics on an empty sample, check the fetch warnings above"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}
	return ""
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		stop()
		os.Exit(1)
	}
	stop()
}
