package wifi

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
)

// rssiByDistance is measured RSSI (dBm) from an access point, one entry per
// MetresPerStep (0.5 m by default).
var rssiByDistance = [...]float64{
	-24.1, -27.9, -31.3, -34.6, -36.4,
	-42.3, -43.1, -48.8, -50.2, -54.0,
	-54.6, -59.1, -57.0, -56.4, -58.2,
	-59.0, -60.0, -61.6, -64.2, -66.2,
}

// PositionFunc reports the walker's position in display units.
type PositionFunc func() (x, y float64)

// SimulatedScanner fakes a scan of one access point placed in the display
// frame. Signal falls off with distance from the walker along a measured
// curve, plus uniform jitter.
type SimulatedScanner struct {
	SSID             string
	RouterX          float64
	RouterY          float64
	PixelsPerMetre   float64
	MetresPerStep    float64 // distance between table entries
	Jitter           float64 // +/- dBm of uniform noise
	PathLossExponent float64 // attenuation slope past the measured table

	position PositionFunc

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedScanner places a virtual router at (x, y).
func NewSimulatedScanner(ssid string, x, y float64, pos PositionFunc, seed uint64) *SimulatedScanner {
	return &SimulatedScanner{
		SSID:             ssid,
		RouterX:          x,
		RouterY:          y,
		PixelsPerMetre:   80,
		MetresPerStep:    0.5,
		Jitter:           3,
		PathLossExponent: 3,
		position:         pos,
		rng:              rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Scan returns the virtual router and a weaker neighbour network.
func (s *SimulatedScanner) Scan(ctx context.Context) ([]Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var x, y float64
	if s.position != nil {
		x, y = s.position()
	}
	metres := math.Hypot(x-s.RouterX, y-s.RouterY) / s.PixelsPerMetre
	signal := s.SignalAt(metres) + s.noise()

	return []Network{
		{SSID: s.SSID, BSSID: "02:00:00:00:00:01", Channel: 6, SignalDBm: int(math.Round(signal))},
		{SSID: "neighbour", BSSID: "02:00:00:00:00:02", Channel: 11, SignalDBm: -85},
		{SSID: "", BSSID: "02:00:00:00:00:03", Channel: 1, SignalDBm: -40},
	}, nil
}

// SignalAt interpolates the distance table. Past its end the signal keeps
// falling with a log-distance path loss of exponent PathLossExponent.
func (s *SimulatedScanner) SignalAt(metres float64) float64 {
	step := s.MetresPerStep
	if step <= 0 {
		step = 0.5
	}
	pos := math.Max(0, metres/step)
	last := len(rssiByDistance) - 1
	if pos >= float64(last) {
		end := float64(last) * step
		return rssiByDistance[last] - 10*s.PathLossExponent*math.Log10(metres/end)
	}
	i := int(pos)
	alpha := pos - float64(i)
	return rssiByDistance[i] + (rssiByDistance[i+1]-rssiByDistance[i])*alpha
}

func (s *SimulatedScanner) noise() float64 {
	if s.Jitter <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.rng.Float64()*2 - 1) * s.Jitter
}
