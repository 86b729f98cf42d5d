package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/signal-splat/pkg/motion"
)

// Marker dictionary and the id shown on the base station.
const (
	MarkerDictionary = gocv.ArucoDict6x6_250
	BaseStationID    = 1
)

// MarkerConfig configures the fiducial tracker.
type MarkerConfig struct {
	TargetID   int
	SizeM      float64 // printed or displayed marker edge length
	Width      int     // frame width used for the approximate camera model
	Height     int
	HFOV       float64 // horizontal field of view in radians
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// DefaultMarkerConfig returns settings for a 5 cm marker on a phone screen
// seen by a typical 60 degree laptop webcam.
func DefaultMarkerConfig() MarkerConfig {
	return MarkerConfig{
		TargetID:   BaseStationID,
		SizeM:      motion.DefaultConfig().MarkerSizeM,
		Width:      640,
		Height:     480,
		HFOV:       60 * math.Pi / 180,
		RetryDelay: 50 * time.Millisecond,
	}
}

// MarkerTracker finds the base-station marker and reports its pose.
type MarkerTracker struct {
	cfg      MarkerConfig
	submit   Submit
	logger   *slog.Logger
	detector gocv.ArucoDetector
	camera   motion.CameraModel
	found    bool
}

// NewMarkerTracker creates a tracker. Close releases the detector.
func NewMarkerTracker(cfg MarkerConfig, submit Submit) *MarkerTracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dict := gocv.GetPredefinedDictionary(MarkerDictionary)
	params := gocv.NewArucoDetectorParameters()
	return &MarkerTracker{
		cfg:      cfg,
		submit:   submit,
		logger:   logger.With("component", "vision.marker", "marker_id", cfg.TargetID),
		detector: gocv.NewArucoDetectorWithParams(dict, params),
		camera:   motion.ApproxCamera(cfg.Width, cfg.Height, cfg.HFOV),
	}
}

// Close releases the detector.
func (m *MarkerTracker) Close() error {
	return m.detector.Close()
}

// Run processes frames from src until ctx is cancelled.
func (m *MarkerTracker) Run(ctx context.Context, src FrameSource) {
	m.logger.Info("marker tracker started")
	defer m.logger.Info("marker tracker stopped")

	runFrames(ctx, src, m.cfg.RetryDelay, m.logger, func(frame gocv.Mat) {
		pose := m.Detect(frame)
		if pose.Found != m.found {
			m.found = pose.Found
			if pose.Found {
				m.logger.Info("base station locked", "x_m", pose.XM, "z_m", pose.ZM)
			} else {
				m.logger.Info("base station lost")
			}
		}
		if m.submit != nil {
			m.submit(pose)
		}
	})
}

// Detect looks for the target marker in a BGR or gray frame. A frame without
// it, or with unusable corners, yields PoseEstimate{Found: false}.
func (m *MarkerTracker) Detect(frame gocv.Mat) motion.PoseEstimate {
	gray := frame
	if frame.Channels() > 1 {
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}

	corners, ids, _ := m.detector.DetectMarkers(gray)
	quad, ok := findMarker(corners, ids, m.cfg.TargetID)
	if !ok {
		return motion.PoseEstimate{}
	}

	cam := m.camera
	if frame.Cols() != m.cfg.Width || frame.Rows() != m.cfg.Height {
		cam = motion.ApproxCamera(frame.Cols(), frame.Rows(), m.cfg.HFOV)
	}
	t, err := motion.SolveMarkerPose(quad, m.cfg.SizeM, cam)
	if err != nil {
		if !errors.Is(err, motion.ErrDegenerateMarker) {
			m.logger.Debug("marker pose failed", "error", err)
		}
		return motion.PoseEstimate{}
	}
	return motion.PoseEstimate{XM: t.X, ZM: t.Z, Found: true}
}

// findMarker returns the corners of the first detection with the given id.
func findMarker(corners [][]gocv.Point2f, ids []int, id int) ([4]motion.Point2, bool) {
	var quad [4]motion.Point2
	for i, got := range ids {
		if got != id || i >= len(corners) || len(corners[i]) != 4 {
			continue
		}
		for j, c := range corners[i] {
			quad[j] = motion.Point2{X: float64(c.X), Y: float64(c.Y)}
		}
		return quad, true
	}
	return quad, false
}

// GenerateMarker writes marker id as a PNG of side pixels with a white quiet
// zone of margin pixels around it.
func GenerateMarker(id, side, margin int, path string) error {
	if side <= 0 || margin < 0 {
		return fmt.Errorf("vision: invalid marker geometry side=%d margin=%d", side, margin)
	}
	img := MarkerImage(id, side, margin)
	defer img.Close()

	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("vision: write marker to %s", path)
	}
	return nil
}

// MarkerImage renders marker id into a gray Mat with a white border; the
// caller closes it.
func MarkerImage(id, side, margin int) gocv.Mat {
	marker := gocv.NewMat()
	defer marker.Close()
	gocv.ArucoGenerateImageMarker(MarkerDictionary, id, side, &marker, 1)

	out := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0),
		side+2*margin, side+2*margin, gocv.MatTypeCV8U)
	roi := out.Region(image.Rect(margin, margin, margin+side, margin+side))
	marker.CopyTo(&roi)
	roi.Close()
	return out
}
