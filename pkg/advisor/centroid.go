package advisor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
)

// DeadZoneCentroid returns the mean position of every sample whose signal is
// strictly below threshold. ok is false when no sample qualifies.
func DeadZoneCentroid(points []heatmap.SignalPoint, threshold float64) (x, y float64, ok bool) {
	var xs, ys []float64
	for _, p := range points {
		if p.SignalDBm < threshold {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
		}
	}
	if len(xs) == 0 {
		return 0, 0, false
	}
	return stat.Mean(xs, nil), stat.Mean(ys, nil), true
}

// Summary describes a run of RSSI readings.
type Summary struct {
	Count       int
	Mean        float64
	StdDev      float64
	Min         float64
	Max         float64
	LargestDrop float64 // biggest fall between consecutive readings, >= 0
}

// Summarize computes a Summary. StdDev is 0 for fewer than two readings.
func Summarize(values []float64) Summary {
	s := Summary{Count: len(values)}
	if len(values) == 0 {
		return s
	}

	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)

	for i := 1; i < len(values); i++ {
		s.LargestDrop = math.Max(s.LargestDrop, values[i-1]-values[i])
	}
	return s
}

// String renders the summary for a prompt line.
func (s Summary) String() string {
	return fmt.Sprintf("mean %.1f dBm, stddev %.1f, min %.0f, max %.0f, largest drop %.0f dB",
		s.Mean, s.StdDev, s.Min, s.Max, s.LargestDrop)
}

// formatReadings renders readings as "[-61, -64, -70]".
func formatReadings(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.0f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
