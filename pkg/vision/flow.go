package vision

import (
	"context"
	"image"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/signal-splat/pkg/motion"
)

// FlowConfig tunes sparse Lucas-Kanade optical flow.
type FlowConfig struct {
	Width, Height int // working resolution

	MaxCorners  int
	Quality     float64
	MinDistance float64
	Window      int // LK search window edge in pixels
	Levels      int // pyramid levels above the base image
	ReseedFloor int // re-detect features when fewer are tracked

	OutlierLimit float64 // per-feature displacement rejected at or above this
	DeadZone     float64 // mean displacement below this snaps to zero

	RetryDelay time.Duration
	Logger     *slog.Logger
}

// DefaultFlowConfig returns the low-resolution settings tuned for webcams.
func DefaultFlowConfig() FlowConfig {
	mc := motion.DefaultConfig()
	return FlowConfig{
		Width:        320,
		Height:       240,
		MaxCorners:   200,
		Quality:      0.1,
		MinDistance:  5,
		Window:       15,
		Levels:       2,
		ReseedFloor:  mc.ReseedFloor,
		OutlierLimit: mc.OutlierLimit,
		DeadZone:     mc.FlowDeadZone,
		RetryDelay:   50 * time.Millisecond,
	}
}

// FlowTracker turns consecutive frames into FlowDelta samples.
type FlowTracker struct {
	cfg    FlowConfig
	submit Submit
	logger *slog.Logger

	criteria gocv.TermCriteria
	prevGray gocv.Mat
	prevPts  gocv.Mat
	seeded   bool
}

// NewFlowTracker creates a tracker. Close releases its OpenCV buffers.
func NewFlowTracker(cfg FlowConfig, submit Submit) *FlowTracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowTracker{
		cfg:      cfg,
		submit:   submit,
		logger:   logger.With("component", "vision.flow"),
		criteria: gocv.NewTermCriteria(gocv.Count|gocv.EPS, 10, 0.03),
		prevGray: gocv.NewMat(),
		prevPts:  gocv.NewMat(),
	}
}

// Close releases the tracker's buffers.
func (f *FlowTracker) Close() error {
	f.prevGray.Close()
	f.prevPts.Close()
	return nil
}

// Run processes frames from src until ctx is cancelled.
func (f *FlowTracker) Run(ctx context.Context, src FrameSource) {
	f.logger.Info("optical flow started", "width", f.cfg.Width, "height", f.cfg.Height)
	defer f.logger.Info("optical flow stopped")

	runFrames(ctx, src, f.cfg.RetryDelay, f.logger, func(frame gocv.Mat) {
		if d, ok := f.Step(frame); ok && f.submit != nil {
			f.submit(d)
		}
	})
}

// Step consumes one BGR frame. ok is false for the first frame and for
// frames where no feature survived filtering.
func (f *FlowTracker) Step(frame gocv.Mat) (motion.FlowDelta, bool) {
	gray := f.grayscale(frame)

	if !f.seeded {
		f.replacePrev(gray)
		f.reseed()
		f.seeded = true
		return motion.FlowDelta{}, false
	}
	if f.prevPts.Rows() == 0 {
		f.replacePrev(gray)
		f.reseed()
		return motion.FlowDelta{}, false
	}

	next := gocv.NewMat()
	status := gocv.NewMat()
	errs := gocv.NewMat()
	defer status.Close()
	defer errs.Close()

	win := image.Pt(f.cfg.Window, f.cfg.Window)
	gocv.CalcOpticalFlowPyrLKWithParams(f.prevGray, gray, f.prevPts, next, &status, &errs,
		win, f.cfg.Levels, f.criteria, 0, 1e-4)

	pairs := trackedPairs(f.prevPts, next, status)
	delta, ok := motion.FilterFlow(pairs, f.cfg.OutlierLimit, f.cfg.DeadZone)

	f.replacePrev(gray)
	f.prevPts.Close()
	f.prevPts = goodPoints(pairs)
	next.Close()

	if f.prevPts.Rows() < f.cfg.ReseedFloor {
		f.reseed()
	}
	return delta, ok
}

// grayscale resizes frame to the working size and converts it to gray.
func (f *FlowTracker) grayscale(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	src := frame
	if frame.Cols() != f.cfg.Width || frame.Rows() != f.cfg.Height {
		small := gocv.NewMat()
		defer small.Close()
		gocv.Resize(frame, &small, image.Pt(f.cfg.Width, f.cfg.Height), 0, 0, gocv.InterpolationLinear)
		src = small
	}
	if src.Channels() == 1 {
		src.CopyTo(&gray)
	} else {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

func (f *FlowTracker) replacePrev(gray gocv.Mat) {
	f.prevGray.Close()
	f.prevGray = gray
}

func (f *FlowTracker) reseed() {
	f.prevPts.Close()
	f.prevPts = gocv.NewMat()
	gocv.GoodFeaturesToTrack(f.prevGray, &f.prevPts, f.cfg.MaxCorners, f.cfg.Quality, f.cfg.MinDistance)
}

// Tracked returns the number of features carried to the next frame.
func (f *FlowTracker) Tracked() int {
	return f.prevPts.Rows()
}

// trackedPairs zips the previous and next feature positions whose LK status
// is set.
func trackedPairs(prev, next, status gocv.Mat) []motion.PointPair {
	n := min(prev.Rows(), next.Rows(), status.Rows())
	pairs := make([]motion.PointPair, 0, n)
	for i := 0; i < n; i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		o := prev.GetVecfAt(i, 0)
		c := next.GetVecfAt(i, 0)
		pairs = append(pairs, motion.PointPair{
			Old: motion.Point2{X: float64(o[0]), Y: float64(o[1])},
			New: motion.Point2{X: float64(c[0]), Y: float64(c[1])},
		})
	}
	return pairs
}

// goodPoints packs the new positions into an Nx1 CV_32FC2 feature Mat.
func goodPoints(pairs []motion.PointPair) gocv.Mat {
	if len(pairs) == 0 {
		return gocv.NewMat()
	}
	pts := make([]gocv.Point2f, len(pairs))
	for i, p := range pairs {
		pts[i] = gocv.Point2f{X: float32(p.New.X), Y: float32(p.New.Y)}
	}
	v := gocv.NewPoint2fVectorFromPoints(pts)
	defer v.Close()
	return gocv.NewMatFromPoint2fVector(v, true)
}
