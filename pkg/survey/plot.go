package survey

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
)

// Plot dimensions and signal axis range.
const (
	PlotWidth  = 10 * vg.Inch
	PlotHeight = 4 * vg.Inch

	plotFloorDBm = -100.0
	plotCeilDBm  = -20.0
)

// ErrNoPoints is returned when there is nothing to plot.
var ErrNoPoints = errors.New("survey: no points to plot")

// PlotSignal renders signal strength against sample index as a PNG, with a
// horizontal line at threshold (the dead-zone cutoff).
func PlotSignal(title string, points []heatmap.SignalPoint, threshold float64, width, height vg.Length) ([]byte, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "signal (dBm)"
	p.Y.Min = plotFloorDBm
	p.Y.Max = plotCeilDBm
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: float64(i), Y: pt.SignalDBm}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("signal line: %w", err)
	}
	line.Color = color.RGBA{R: 30, G: 120, B: 220, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("signal", line)

	cutoff := plotter.NewFunction(func(float64) float64 { return threshold })
	cutoff.Color = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	cutoff.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(cutoff)
	p.Legend.Add("dead zone", cutoff)
	p.Legend.Top = true

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("plot writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render plot: %w", err)
	}
	return buf.Bytes(), nil
}
