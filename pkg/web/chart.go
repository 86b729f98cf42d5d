package web

import (
	"bytes"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
)

// maxChartPoints caps the scatter payload; longer walks are strided.
const maxChartPoints = 4000

// renderChart builds an HTML page with the rolling signal window and the
// walked path colored by signal.
func renderChart(readings []float64, points []heatmap.SignalPoint, deadZone float64) ([]byte, error) {
	page := components.NewPage()
	page.AddCharts(signalLine(readings, deadZone), pathScatter(points))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func signalLine(readings []float64, deadZone float64) *charts.Line {
	xs := make([]int, len(readings))
	data := make([]opts.LineData, len(readings))
	cutoff := make([]opts.LineData, len(readings))
	for i, v := range readings {
		xs[i] = i
		data[i] = opts.LineData{Value: v}
		cutoff[i] = opts.LineData{Value: deadZone}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Signal", Subtitle: "rolling window (dBm)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: -100, Max: -20, Name: "dBm"}),
	)
	line.SetXAxis(xs).
		AddSeries("signal", data).
		AddSeries("dead zone", cutoff, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	return line
}

func pathScatter(points []heatmap.SignalPoint) *charts.Scatter {
	stride := 1
	if len(points) > maxChartPoints {
		stride = (len(points) + maxChartPoints - 1) / maxChartPoints
	}
	data := make([]opts.ScatterData, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		p := points[i]
		data = append(data, opts.ScatterData{Value: []any{p.X, p.Y, p.SignalDBm}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Walked path"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 800, Name: "x"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 600, Name: "y"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(heatmap.WeakDBm),
			Max:        float32(heatmap.StrongDBm),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#ff0000", "#ffff00", "#00ff00"}},
		}),
	)
	scatter.AddSeries("path", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}
