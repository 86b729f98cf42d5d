//go:build cgo

package display

import (
	"context"
	"image/color"
	"log/slog"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// Tracker lamp colours, drawn beside the tracker line.
var (
	lampTracking = color.RGBA{0, 255, 0, 255}
	lampIdle     = color.RGBA{255, 0, 0, 255}
)

var keyBindings = []struct {
	keys   []ebiten.Key
	action Action
}{
	{[]ebiten.Key{ebiten.KeyO}, ActionToggleMode},
	{[]ebiten.Key{ebiten.KeyDigit1, ebiten.KeyNumpad1}, ActionRouter1},
	{[]ebiten.Key{ebiten.KeyDigit2, ebiten.KeyNumpad2}, ActionRouter2},
	{[]ebiten.Key{ebiten.KeyEnter, ebiten.KeyNumpadEnter}, ActionRecommend},
}

type window struct {
	ctx    context.Context
	ctrl   Controller
	cfg    Config
	logger *slog.Logger

	canvas   *ebiten.Image
	lamp     *ebiten.Image
	rendered time.Time
	width    int
	height   int
}

// Run opens the window and blocks until it is closed or ctx is cancelled.
// It must be called from the main goroutine.
func Run(ctx context.Context, ctrl Controller, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}

	frame := ctrl.Frame()
	w := &window{
		ctx:    ctx,
		ctrl:   ctrl,
		cfg:    cfg,
		logger: logger.With("component", "display"),
		width:  frame.Bounds().Dx(),
		height: frame.Bounds().Dy(),
	}

	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(int(float64(w.width)*cfg.Scale), int(float64(w.height)*cfg.Scale))
	ebiten.SetTPS(30)

	w.logger.Info("window opened", "width", w.width, "height", w.height)
	err := ebiten.RunGame(w)
	if err == ebiten.Termination {
		return nil
	}
	return err
}

func (w *window) Update() error {
	if w.ctx.Err() != nil {
		return ebiten.Termination
	}
	for _, b := range keyBindings {
		for _, k := range b.keys {
			if inpututil.IsKeyJustPressed(k) {
				dispatch(w.ctx, w.ctrl, b.action, w.logger)
				break
			}
		}
	}
	return nil
}

func (w *window) Draw(screen *ebiten.Image) {
	if w.canvas == nil {
		w.canvas = ebiten.NewImage(w.width, w.height)
	}
	if time.Since(w.rendered) >= w.cfg.Refresh {
		frame := w.ctrl.Frame()
		if frame.Bounds().Dx() == w.width && frame.Bounds().Dy() == w.height {
			w.canvas.WritePixels(frame.Pix)
		}
		w.rendered = time.Now()
	}
	screen.DrawImage(w.canvas, nil)

	hud := w.ctrl.HUD()
	top, bottom := Lines(hud)
	for i, line := range top {
		ebitenutil.DebugPrintAt(screen, line, 8, 8+i*16)
	}
	w.drawLamp(screen, hud.Tracking(), 8+trackerLine*16)
	ebitenutil.DebugPrintAt(screen, bottom, 8, w.height-24)
}

// drawLamp paints a small square left of the tracker line, green while
// tracking and red otherwise.
func (w *window) drawLamp(screen *ebiten.Image, tracking bool, y int) {
	if w.lamp == nil {
		w.lamp = ebiten.NewImage(6, 6)
	}
	if tracking {
		w.lamp.Fill(lampTracking)
	} else {
		w.lamp.Fill(lampIdle)
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(1, float64(y+5))
	screen.DrawImage(w.lamp, op)
}

func (w *window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return w.width, w.height
}
