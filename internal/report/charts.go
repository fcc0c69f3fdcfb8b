package report

import (
	"fmt"
	"io"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/quakewatch/quakewatch/internal/models"
)

// DailyCountsChart renders the per-day event counts as a PNG time series.
func DailyCountsChart(summary models.Summary, w io.Writer) error {
	if len(summary.DailyCounts) == 0 {
		return fmt.Errorf("no daily counts to chart")
	}

	timestamps := make([]time.Time, 0, len(summary.DailyCounts)+1)
	values := make([]float64, 0, len(summary.DailyCounts)+1)
	for _, dc := range summary.DailyCounts {
		day, err := time.ParseInLocation(models.DateLayout, dc.Day, time.UTC)
		if err != nil {
			return fmt.Errorf("bad day key %q: %w", dc.Day, err)
		}
		timestamps = append(timestamps, day)
		values = append(values, float64(dc.Count))
	}
	// go-chart needs at least two points per series.
	if len(timestamps) == 1 {
		timestamps = append(timestamps, timestamps[0].AddDate(0, 0, 1))
		values = append(values, values[0])
	}

	graph := chart.Chart{
		Title: "Earthquakes per Day",
		TitleStyle: chart.Style{
			FontSize: 16,
		},
		Background: chart.Style{
			Padding: chart.Box{
				Top:    20,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:  1200,
		Height: 400,
		XAxis: chart.XAxis{
			Name: "Date",
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				FontSize:    10,
			},
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Events",
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				FontSize:    10,
			},
			GridMajorStyle: chart.Style{
				StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
				StrokeWidth: 1.0,
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: "events",
				Style: chart.Style{
					StrokeColor: chart.GetDefaultColor(0),
					StrokeWidth: 2,
				},
				XValues: timestamps,
				YValues: values,
			},
		},
	}

	return graph.Render(chart.PNG, w)
}

// MagnitudeHistogramChart renders the fixed five-bucket magnitude histogram
// as a PNG bar chart.
func MagnitudeHistogramChart(summary models.Summary, w io.Writer) error {
	if len(summary.Histogram) == 0 {
		return fmt.Errorf("no histogram to chart")
	}

	bars := make([]chart.Value, 0, len(summary.Histogram))
	for _, bucket := range summary.Histogram {
		bars = append(bars, chart.Value{
			Label: bucket.Label,
			Value: float64(bucket.Count),
		})
	}

	graph := chart.BarChart{
		Title: "Events by Magnitude",
		TitleStyle: chart.Style{
			FontSize: 16,
		},
		Background: chart.Style{
			Padding: chart.Box{
				Top:    20,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:    800,
		Height:   400,
		BarWidth: 80,
		XAxis: chart.Style{
			StrokeColor: drawing.ColorBlack,
			FontSize:    10,
		},
		YAxis: chart.YAxis{
			Name: "Events",
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				FontSize:    10,
			},
		},
		Bars: bars,
	}

	return graph.Render(chart.PNG, w)
}
