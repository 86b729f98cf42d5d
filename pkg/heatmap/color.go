package heatmap

import (
	"image/color"
	"math"
)

// Signal range mapped onto the color ramp.
const (
	WeakDBm   = -90.0
	StrongDBm = -40.0
)

// Fixed palette.
var (
	Background      = rgb(0.05, 0.05, 0.05)
	RobotColor      = rgb(1, 1, 1)
	Router1Color    = rgb(0, 1, 1)
	Router2Color    = rgb(0, 0.5, 1)
	SuggestionColor = rgb(1, 0, 1)
)

// Normalize maps a dBm reading onto [0, 1]: -90 and below is 0, -40 and above is 1.
func Normalize(signal float64) float64 {
	if math.IsNaN(signal) {
		return 0
	}
	clamped := math.Max(WeakDBm, math.Min(StrongDBm, signal))
	return (clamped - WeakDBm) / (StrongDBm - WeakDBm)
}

// RampColor returns the red (weak) to green (strong) color for a normalized value.
func RampColor(norm float64) color.RGBA {
	norm = math.Max(0, math.Min(1, norm))
	return rgb(1-norm, norm, 0)
}

// SignalColor is RampColor(Normalize(signal)).
func SignalColor(signal float64) color.RGBA {
	return RampColor(Normalize(signal))
}

func rgb(r, g, b float64) color.RGBA {
	return color.RGBA{R: channel(r), G: channel(g), B: channel(b), A: 0xFF}
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
