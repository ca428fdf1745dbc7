// Package report renders drift reports as a table, plain text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// Output formats
const (
	FormatTable = "table"
	FormatText  = "text"
	FormatJSON  = "json"
)

// Options control how a report is rendered
type Options struct {
	Format      string
	Verbose     bool
	PrettyPrint bool
}

// Write renders report to w in the requested format
func Write(w io.Writer, report *types.DriftReport, opts Options) error {
	switch strings.TrimSpace(opts.Format) {
	case FormatTable, "":
		return writeTable(w, report, opts.Verbose)
	case FormatText:
		return writeText(w, report, opts.Verbose)
	case FormatJSON:
		return writeJSON(w, report, opts.PrettyPrint)
	default:
		return fmt.Errorf("unsupported output format: %s", opts.Format)
	}
}

// SaveToFile renders report into the file at path, creating parent
// directories as needed
func SaveToFile(path string, report *types.DriftReport, opts Options) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := Write(file, report, opts); err != nil {
		return err
	}
	return file.Close()
}

// Summary is the one line digest printed under the table
func Summary(analysis *types.AnalysisResult) string {
	return fmt.Sprintf("Occurrences: %d, Mean: %s minutes, Standard Deviation: %s, Poisson Probability: 1 / %s hours",
		analysis.OccurrenceCount,
		rounded(analysis.MeanMinutes),
		rounded(analysis.StdDeviation),
		rounded(analysis.PoissonProbability),
	)
}

func writeTable(w io.Writer, report *types.DriftReport, verbose bool) error {
	analysis := &report.Analysis

	if _, err := fmt.Fprintln(w, "Block Times"); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Parent Block Hash", "Child Block Hash", "Mining Time"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, record := range analysis.RankedSample {
		table.Append([]string{record.ParentHash, record.ChildHash, fmt.Sprintf("%d m", record.DriftMinutes)})
	}
	table.SetCaption(true, Summary(analysis))
	table.Render()

	if verbose {
		return writeDistributionTable(w, report)
	}
	return nil
}

func writeDistributionTable(w io.Writer, report *types.DriftReport) error {
	dist := report.Analysis.Distribution

	if _, err := fmt.Fprintln(w, "\nDrift Distribution (minutes)"); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.AppendBulk([][]string{
		{"Pairs", strconv.Itoa(report.Analysis.PairCount)},
		{"Skipped Pairs", strconv.Itoa(report.Analysis.SkippedPairs)},
		{"Blocks Fetched", fmt.Sprintf("%d / %d", report.Fetched, report.Requested)},
		{"Min", fixed(dist.Min)},
		{"P25", fixed(dist.P25)},
		{"Median", fixed(dist.Median)},
		{"P75", fixed(dist.P75)},
		{"P95", fixed(dist.P95)},
		{"P99", fixed(dist.P99)},
		{"Max", fixed(dist.Max)},
	})
	table.Render()
	return nil
}

func writeText(w io.Writer, report *types.DriftReport, verbose bool) error {
	analysis := &report.Analysis

	var b strings.Builder
	b.WriteString("Block Time Drift\n")
	b.WriteString("================\n")
	if report.Provider != "" {
		fmt.Fprintf(&b, "Provider: %s\n", report.Provider)
	}
	fmt.Fprintf(&b, "Current Height: %d\n", report.CurrentHeight)
	fmt.Fprintf(&b, "Sample Size: %d blocks in %d windows of %d\n", report.SampleSize, report.WindowCount, report.WindowSize)
	fmt.Fprintf(&b, "Fetched: %d of %d (%d failed)\n", report.Fetched, report.Requested, report.Failed)
	fmt.Fprintf(&b, "Drift Threshold: %s\n", time.Duration(report.DriftTime)*time.Second)

	b.WriteString("\nStatistics (minutes):\n")
	fmt.Fprintf(&b, "  Occurrences: %d\n", analysis.OccurrenceCount)
	fmt.Fprintf(&b, "  Mean: %s\n", fixed(analysis.MeanMinutes))
	fmt.Fprintf(&b, "  Std Dev: %s\n", fixed(analysis.StdDeviation))
	fmt.Fprintf(&b, "  Poisson Probability: 1 / %s hours\n", fixed(analysis.PoissonProbability))

	if len(analysis.RankedSample) > 0 {
		b.WriteString("\nBlock Times:\n")
		for _, record := range analysis.RankedSample {
			fmt.Fprintf(&b, "  %d -> %d: %d m (%s -> %s)\n",
				record.ParentHeight, record.ChildHeight, record.DriftMinutes, record.ParentHash, record.ChildHash)
		}
	}

	if verbose {
		dist := analysis.Distribution
		b.WriteString("\nPercentiles:\n")
		fmt.Fprintf(&b, "  P25: %s\n", fixed(dist.P25))
		fmt.Fprintf(&b, "  Median: %s\n", fixed(dist.Median))
		fmt.Fprintf(&b, "  P75: %s\n", fixed(dist.P75))
		fmt.Fprintf(&b, "  P95: %s\n", fixed(dist.P95))
		fmt.Fprintf(&b, "  P99: %s\n", fixed(dist.P99))
		fmt.Fprintf(&b, "  Range: %s - %s\n", fixed(dist.Min), fixed(dist.Max))
		fmt.Fprintf(&b, "\nPairs: %d (%d skipped)\n", analysis.PairCount, analysis.SkippedPairs)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// jsonAnalysis replaces the probability with null when it is not finite
type jsonAnalysis struct {
	types.AnalysisResult
	PoissonProbability *float64 `json:"poisson_probability"`
}

type jsonReport struct {
	types.DriftReport
	Analysis jsonAnalysis `json:"analysis"`
}

func writeJSON(w io.Writer, report *types.DriftReport, pretty bool) error {
	out := jsonReport{
		DriftReport: *report,
		Analysis:    jsonAnalysis{AnalysisResult: report.Analysis},
	}
	if p := report.Analysis.PoissonProbability; !math.IsInf(p, 0) && !math.IsNaN(p) {
		out.Analysis.PoissonProbability = &p
	}

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))
	return err
}

// rounded renders v rounded to two places without trailing zeros
func rounded(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).Round(2).String()
}

// fixed renders v with exactly two places
func fixed(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
