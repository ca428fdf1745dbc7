package report

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// MaxChartBars caps how many ranked drifts are drawn
const MaxChartBars = 50

// ErrNothingToChart is returned when there is no ranked drift to draw
var ErrNothingToChart = errors.New("no ranked drifts to chart")

// WriteChart draws the highest ranked drifts as a PNG bar chart labelled by
// parent height
func WriteChart(path string, ranked []types.DriftRecord, thresholdMinutes int64) error {
	if len(ranked) == 0 {
		return ErrNothingToChart
	}
	if len(ranked) > MaxChartBars {
		ranked = ranked[:MaxChartBars]
	}

	if err := ensureDir(path); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}

	bars := make([]chart.Value, len(ranked))
	low, high := 0.0, 1.0
	for i, record := range ranked {
		value := float64(record.DriftMinutes)
		bars[i] = chart.Value{
			Label: strconv.FormatInt(record.ParentHeight, 10),
			Value: value,
		}
		low = min(low, value)
		high = max(high, value)
	}

	graph := chart.BarChart{
		Title:      fmt.Sprintf("Block Times (drift >= %d m)", thresholdMinutes),
		Width:      max(1024, 80*len(bars)+200),
		Height:     512,
		BarWidth:   40,
		BarSpacing: 20,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Name: "Minutes",
			Range: &chart.ContinuousRange{
				Min: low,
				Max: high * 1.1,
			},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
