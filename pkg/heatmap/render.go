package heatmap

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Mode selects which render Renderer.Render produces.
type Mode int32

const (
	ModeSplat Mode = iota
	ModeInterpolated
)

func (m Mode) String() string {
	switch m {
	case ModeSplat:
		return "splat"
	case ModeInterpolated:
		return "interpolated"
	default:
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
}

// RenderConfig holds grid geometry and drawing constants.
type RenderConfig struct {
	Width  int
	Height int

	SplatRadius int // disc radius for each logged point
	RobotRadius int

	RouterHalfSize     int
	SuggestionHalfSize int
	SuggestionArm      int // cross arm half-width

	// InterpolationRadius is the IDW cutoff in pixels; only samples with
	// d² < InterpolationRadius² contribute to a cell.
	InterpolationRadius float64

	// Workers bounds the goroutines used by RenderInterpolated. 0 uses GOMAXPROCS.
	Workers int
}

// DefaultRenderConfig returns an 800x600 grid with the standard marker sizes.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Width:               800,
		Height:              600,
		SplatRadius:         4,
		RobotRadius:         5,
		RouterHalfSize:      8,
		SuggestionHalfSize:  10,
		SuggestionArm:       3,
		InterpolationRadius: 100,
	}
}

// Validate checks the grid geometry.
func (c RenderConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("heatmap: grid size %dx%d must be positive", c.Width, c.Height)
	}
	if c.InterpolationRadius < 0 {
		return fmt.Errorf("heatmap: interpolation radius %v must not be negative", c.InterpolationRadius)
	}
	return nil
}

// NewGrid allocates a grid filled with the background color.
func NewGrid(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, Background)
	return img
}

// RenderSplat paints every logged point as a disc, overlays the robot and
// the markers. Overlapping discs are last-write-wins.
func RenderSplat(acc *Accumulator, cfg RenderConfig, robotX, robotY float64, markers MarkerSet) *image.RGBA {
	img := NewGrid(cfg.Width, cfg.Height)

	for _, p := range acc.view() {
		drawDisc(img, p.X, p.Y, cfg.SplatRadius, SignalColor(p.SignalDBm))
	}
	drawDisc(img, robotX, robotY, cfg.RobotRadius, RobotColor)
	drawMarkers(img, cfg, markers)
	return img
}

// RenderInterpolated computes an inverse-distance-weighted surface over the
// logged points. Cells with no sample inside the cutoff keep the background.
// The robot is not drawn; markers are.
func RenderInterpolated(acc *Accumulator, cfg RenderConfig, markers MarkerSet) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	idx := newBucketIndex(acc.view(), cfg.Width, cfg.Height, cfg.InterpolationRadius)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	band := (cfg.Height + workers - 1) / workers
	if band < 1 {
		band = 1
	}

	var g errgroup.Group
	for y0 := 0; y0 < cfg.Height; y0 += band {
		y1 := min(y0+band, cfg.Height)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				row := img.Pix[y*img.Stride : y*img.Stride+cfg.Width*4]
				for x := 0; x < cfg.Width; x++ {
					c := Background
					if v, ok := idx.interpolate(float64(x), float64(y)); ok {
						c = SignalColor(v)
					}
					row[x*4+0] = c.R
					row[x*4+1] = c.G
					row[x*4+2] = c.B
					row[x*4+3] = c.A
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	drawMarkers(img, cfg, markers)
	return img
}

// bucketIndex is a uniform grid of cell size r over the render area plus a
// one-cell margin. Samples further than r from every pixel are dropped.
type bucketIndex struct {
	r       float64
	r2      float64
	cols    int
	rows    int
	buckets [][]SignalPoint
}

func newBucketIndex(points []SignalPoint, width, height int, r float64) *bucketIndex {
	idx := &bucketIndex{r: r, r2: r * r}
	if r <= 0 || len(points) == 0 {
		return idx
	}
	idx.cols = int(math.Ceil(float64(width)/r)) + 2
	idx.rows = int(math.Ceil(float64(height)/r)) + 2
	idx.buckets = make([][]SignalPoint, idx.cols*idx.rows)

	for _, p := range points {
		bx, by, ok := idx.cell(p.X, p.Y)
		if !ok {
			continue
		}
		i := by*idx.cols + bx
		idx.buckets[i] = append(idx.buckets[i], p)
	}
	return idx
}

func (b *bucketIndex) cell(x, y float64) (int, int, bool) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, false
	}
	fx := math.Floor(x/b.r) + 1
	fy := math.Floor(y/b.r) + 1
	if fx < 0 || fy < 0 || fx >= float64(b.cols) || fy >= float64(b.rows) {
		return 0, 0, false
	}
	return int(fx), int(fy), true
}

// interpolate returns the weighted mean signal at (x, y) with
// weight = 1/(d²+1) over samples where d² < r².
func (b *bucketIndex) interpolate(x, y float64) (float64, bool) {
	if b.buckets == nil {
		return 0, false
	}
	cx, cy, ok := b.cell(x, y)
	if !ok {
		return 0, false
	}

	var sum, total float64
	for by := max(cy-1, 0); by <= min(cy+1, b.rows-1); by++ {
		for bx := max(cx-1, 0); bx <= min(cx+1, b.cols-1); bx++ {
			for _, p := range b.buckets[by*b.cols+bx] {
				dx := x - p.X
				dy := y - p.Y
				d2 := dx*dx + dy*dy
				if d2 >= b.r2 {
					continue
				}
				w := 1 / (d2 + 1)
				sum += p.SignalDBm * w
				total += w
			}
		}
	}
	if total == 0 {
		return 0, false
	}
	return sum / total, true
}

func drawMarkers(img *image.RGBA, cfg RenderConfig, m MarkerSet) {
	routerColors := [2]color.RGBA{Router1Color, Router2Color}
	for i, r := range m.Routers {
		if r.Active {
			drawSquare(img, r.X, r.Y, cfg.RouterHalfSize, routerColors[i])
		}
	}
	if m.Suggestion.Active {
		drawCross(img, m.Suggestion.X, m.Suggestion.Y, cfg.SuggestionHalfSize, cfg.SuggestionArm, SuggestionColor)
	}
}

func drawDisc(img *image.RGBA, x, y float64, r int, c color.RGBA) {
	cx, cy := int(math.Round(x)), int(math.Round(y))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

func drawSquare(img *image.RGBA, x, y float64, half int, c color.RGBA) {
	cx, cy := int(math.Round(x)), int(math.Round(y))
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			img.SetRGBA(cx+dx, cy+dy, c)
		}
	}
}

func drawCross(img *image.RGBA, x, y float64, half, arm int, c color.RGBA) {
	cx, cy := int(math.Round(x)), int(math.Round(y))
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			if abs(dx) < arm || abs(dy) < arm {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

func fill(img *image.RGBA, c color.RGBA) {
	px := []uint8{c.R, c.G, c.B, c.A}
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:i+4], px)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Renderer binds an accumulator and marker set to a render mode.
type Renderer struct {
	acc     *Accumulator
	markers *Markers
	cfg     RenderConfig
	mode    atomic.Int32
}

// NewRenderer creates a renderer in splat mode.
func NewRenderer(acc *Accumulator, markers *Markers, cfg RenderConfig) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if markers == nil {
		markers = NewMarkers()
	}
	return &Renderer{acc: acc, markers: markers, cfg: cfg}, nil
}

// Mode returns the active render mode.
func (r *Renderer) Mode() Mode {
	return Mode(r.mode.Load())
}

// SetMode selects the render mode.
func (r *Renderer) SetMode(m Mode) {
	r.mode.Store(int32(m))
}

// Toggle flips between splat and interpolated and returns the new mode.
func (r *Renderer) Toggle() Mode {
	for {
		old := r.mode.Load()
		next := int32(ModeInterpolated)
		if Mode(old) == ModeInterpolated {
			next = int32(ModeSplat)
		}
		if r.mode.CompareAndSwap(old, next) {
			return Mode(next)
		}
	}
}

// Config returns the grid configuration.
func (r *Renderer) Config() RenderConfig {
	return r.cfg
}

// Markers returns the marker set drawn by this renderer.
func (r *Renderer) Markers() *Markers {
	return r.markers
}

// Render produces the grid for the active mode.
func (r *Renderer) Render(robotX, robotY float64) *image.RGBA {
	markers := r.markers.Snapshot()
	if r.Mode() == ModeInterpolated {
		return RenderInterpolated(r.acc, r.cfg, markers)
	}
	return RenderSplat(r.acc, r.cfg, robotX, robotY, markers)
}

// EncodePNG encodes a rendered grid as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode heatmap png: %w", err)
	}
	return buf.Bytes(), nil
}
