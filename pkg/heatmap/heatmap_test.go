package heatmap

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		signal float64
		want   float64
	}{
		{-90, 0},
		{-40, 1},
		{-65, 0.5},
		{-200, 0},
		{10, 1},
		{math.Inf(-1), 0},
		{math.Inf(1), 1},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		got := Normalize(tt.signal)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Normalize(%v) = %v, want %v", tt.signal, got, tt.want)
		}
	}

	for s := -300.0; s <= 100; s += 0.7 {
		n := Normalize(s)
		if n < 0 || n > 1 {
			t.Fatalf("Normalize(%v) = %v out of [0,1]", s, n)
		}
	}
	assert.Equal(t, Normalize(-90), Normalize(-200))
	assert.Equal(t, Normalize(-40), Normalize(10))
}

func TestSignalColor_Ramp(t *testing.T) {
	weak := SignalColor(-95)
	strong := SignalColor(-30)

	assert.Equal(t, uint8(255), weak.R)
	assert.Equal(t, uint8(0), weak.G)
	assert.Equal(t, uint8(0), strong.R)
	assert.Equal(t, uint8(255), strong.G)
}

func TestAccumulator_CapacityInvariant(t *testing.T) {
	const capacity, extra = 50, 7
	acc := NewAccumulator(capacity)

	accepted := 0
	for i := 0; i < capacity+extra; i++ {
		if acc.Append(float64(i), float64(i), -60) {
			accepted++
		}
	}

	assert.Equal(t, capacity, accepted)
	assert.Equal(t, capacity, acc.Count())
	assert.True(t, acc.Full())

	pts := acc.Points()
	require.Len(t, pts, capacity)
	for i, p := range pts {
		if p.X != float64(i) {
			t.Fatalf("point %d has x=%v, want %d (order must be preserved)", i, p.X, i)
		}
	}
}

func TestAccumulator_OnAppend(t *testing.T) {
	acc := NewAccumulator(2)
	var seen []SignalPoint
	acc.OnAppend(func(p SignalPoint) { seen = append(seen, p) })

	acc.Append(1, 2, -50)
	acc.Append(3, 4, -70)
	acc.Append(5, 6, -80) // rejected

	want := []SignalPoint{{1, 2, -50}, {3, 4, -70}}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("hook points mismatch (-want +got):\n%s", diff)
	}
}

func TestAccumulator_PointsIsCopy(t *testing.T) {
	acc := NewAccumulator(4)
	acc.Append(1, 1, -50)

	pts := acc.Points()
	pts[0].X = 99

	assert.Equal(t, 1.0, acc.Points()[0].X)
}

func smallConfig() RenderConfig {
	cfg := DefaultRenderConfig()
	cfg.Width = 200
	cfg.Height = 150
	cfg.InterpolationRadius = 30
	cfg.Workers = 3
	return cfg
}

func TestRenderSplat_Idempotent(t *testing.T) {
	cfg := smallConfig()
	acc := NewAccumulator(100)
	acc.Append(20, 20, -50)
	acc.Append(22, 21, -85)
	acc.Append(100, 60, -70)

	markers := NewMarkers()
	require.NoError(t, markers.Place(1, 150, 100))
	markers.Suggest(50, 120)

	a := RenderSplat(acc, cfg, 60, 60, markers.Snapshot())
	b := RenderSplat(acc, cfg, 60, 60, markers.Snapshot())

	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("two splat renders of unchanged state differ")
	}
}

func TestRenderSplat_LastWriteWins(t *testing.T) {
	cfg := smallConfig()
	acc := NewAccumulator(10)
	acc.Append(40, 40, -90)
	acc.Append(41, 40, -40)

	img := RenderSplat(acc, cfg, -100, -100, MarkerSet{})

	assert.Equal(t, SignalColor(-40), img.RGBAAt(40, 40))
	assert.Equal(t, SignalColor(-90), img.RGBAAt(36, 40), "left edge only covered by the first disc")
	assert.Equal(t, Background, img.RGBAAt(0, 0))
}

func TestRenderSplat_Overlays(t *testing.T) {
	cfg := smallConfig()
	acc := NewAccumulator(10)
	acc.Append(10, 10, -60)

	markers := NewMarkers()
	require.NoError(t, markers.Place(1, 100, 50))
	require.NoError(t, markers.Place(2, 150, 50))
	markers.Suggest(100, 120)

	img := RenderSplat(acc, cfg, 50, 100, markers.Snapshot())

	assert.Equal(t, RobotColor, img.RGBAAt(50, 100))
	assert.Equal(t, Router1Color, img.RGBAAt(108, 58), "router square corner")
	assert.Equal(t, Router2Color, img.RGBAAt(150, 50))
	assert.Equal(t, SuggestionColor, img.RGBAAt(110, 120), "cross arm tip")
	assert.Equal(t, Background, img.RGBAAt(110, 130), "cross corner stays empty")
}

func TestMarkers_PlaceRange(t *testing.T) {
	m := NewMarkers()
	assert.Error(t, m.Place(0, 1, 1))
	assert.Error(t, m.Place(3, 1, 1))
	require.NoError(t, m.Place(2, 5, 6))

	s := m.Snapshot()
	assert.Equal(t, RouterMarker{X: 5, Y: 6, Active: true}, s.Routers[1])
	assert.False(t, s.Routers[0].Active)

	m.Clear()
	assert.Equal(t, MarkerSet{}, m.Snapshot())
}

func TestRenderInterpolated_Boundary(t *testing.T) {
	cfg := smallConfig()
	acc := NewAccumulator(10)
	acc.Append(20, 20, -40)

	img := RenderInterpolated(acc, cfg, MarkerSet{})

	assert.Equal(t, SignalColor(-40), img.RGBAAt(20, 20), "coincident cell takes the sample's color")
	assert.Equal(t, SignalColor(-40), img.RGBAAt(40, 20), "single contributor keeps its value inside the cutoff")
	assert.Equal(t, Background, img.RGBAAt(50, 20), "d == R is outside the open cutoff")
	assert.Equal(t, Background, img.RGBAAt(180, 140))
}

func TestRenderInterpolated_WeightsNearerSample(t *testing.T) {
	cfg := smallConfig()
	acc := NewAccumulator(10)
	acc.Append(50, 50, -40)
	acc.Append(60, 50, -90)

	img := RenderInterpolated(acc, cfg, MarkerSet{})

	near := img.RGBAAt(51, 50)
	far := img.RGBAAt(59, 50)
	assert.Greater(t, near.G, far.G, "cell near the strong sample should be greener")
}

func TestRenderInterpolated_MatchesBruteForce(t *testing.T) {
	cfg := smallConfig()
	acc := NewAccumulator(100)
	for i := 0; i < 40; i++ {
		x := float64((i * 37) % cfg.Width)
		y := float64((i * 53) % cfg.Height)
		acc.Append(x, y, -90+float64(i))
	}
	acc.Append(-20, -20, -50)

	img := RenderInterpolated(acc, cfg, MarkerSet{})
	pts := acc.Points()
	r2 := cfg.InterpolationRadius * cfg.InterpolationRadius

	for y := 0; y < cfg.Height; y += 7 {
		for x := 0; x < cfg.Width; x += 11 {
			var sum, total float64
			for _, p := range pts {
				d2 := (float64(x)-p.X)*(float64(x)-p.X) + (float64(y)-p.Y)*(float64(y)-p.Y)
				if d2 < r2 {
					w := 1 / (d2 + 1)
					sum += p.SignalDBm * w
					total += w
				}
			}
			want := Background
			if total > 0 {
				want = SignalColor(sum / total)
			}
			got := img.RGBAAt(x, y)
			if !closeColor(got, want) {
				t.Fatalf("cell (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

// closeColor allows one step of rounding difference from summation order.
func closeColor(a, b color.RGBA) bool {
	near := func(x, y uint8) bool { return x == y || x == y+1 || x+1 == y }
	return near(a.R, b.R) && near(a.G, b.G) && near(a.B, b.B) && a.A == b.A
}

func TestRenderer_Toggle(t *testing.T) {
	acc := NewAccumulator(10)
	r, err := NewRenderer(acc, nil, smallConfig())
	require.NoError(t, err)

	assert.Equal(t, ModeSplat, r.Mode())
	assert.Equal(t, ModeInterpolated, r.Toggle())
	assert.Equal(t, ModeSplat, r.Toggle())

	img := r.Render(10, 10)
	assert.Equal(t, RobotColor, img.RGBAAt(10, 10))

	r.SetMode(ModeInterpolated)
	img = r.Render(10, 10)
	assert.Equal(t, Background, img.RGBAAt(10, 10), "robot is not drawn on the interpolated surface")

	_, err = NewRenderer(acc, nil, RenderConfig{})
	assert.Error(t, err)
}

func TestEncodePNG(t *testing.T) {
	img := NewGrid(8, 4)
	data, err := EncodePNG(img)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}
