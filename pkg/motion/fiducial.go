package motion

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateMarker is returned when the marker corners do not span an area.
var ErrDegenerateMarker = errors.New("motion: degenerate marker corners")

// CameraModel is a pinhole camera without distortion.
type CameraModel struct {
	FX, FY float64 // focal length in pixels
	CX, CY float64 // principal point in pixels
}

// ApproxCamera builds a camera model from frame size and horizontal field of
// view (radians), for webcams that were never calibrated.
func ApproxCamera(width, height int, hfov float64) CameraModel {
	f := (float64(width) / 2) / math.Tan(hfov/2)
	return CameraModel{
		FX: f,
		FY: f,
		CX: float64(width) / 2,
		CY: float64(height) / 2,
	}
}

// Translation is the marker origin in the camera frame, in metres.
// X is lateral (right), Y is vertical (down), Z is depth (forward).
type Translation struct {
	X, Y, Z float64
}

// MarkerObjectPoints returns the physical corner coordinates of a square
// marker of edge size, in detector order: top-left, top-right, bottom-right,
// bottom-left, centred on the marker.
func MarkerObjectPoints(size float64) [4]Point2 {
	h := size / 2
	return [4]Point2{{-h, h}, {h, h}, {h, -h}, {-h, -h}}
}

// SolveMarkerPose recovers the translation of a planar square marker from its
// four image corners.
//
// The plane-to-image homography is estimated with a normalized DLT and then
// decomposed against the camera intrinsics: K^-1 H = s [r1 r2 t].
func SolveMarkerPose(corners [4]Point2, size float64, cam CameraModel) (Translation, error) {
	if size <= 0 {
		return Translation{}, fmt.Errorf("motion: marker size must be positive, got %v", size)
	}
	if cam.FX == 0 || cam.FY == 0 {
		return Translation{}, fmt.Errorf("motion: camera focal length is zero")
	}
	if math.Abs(quadArea(corners)) < 1 {
		return Translation{}, ErrDegenerateMarker
	}

	obj := MarkerObjectPoints(size)
	h, err := homography(obj[:], corners[:])
	if err != nil {
		return Translation{}, err
	}

	kinv := mat.NewDense(3, 3, []float64{
		1 / cam.FX, 0, -cam.CX / cam.FX,
		0, 1 / cam.FY, -cam.CY / cam.FY,
		0, 0, 1,
	})
	var m mat.Dense
	m.Mul(kinv, h)

	n1 := mat.Norm(m.ColView(0), 2)
	n2 := mat.Norm(m.ColView(1), 2)
	if n1+n2 == 0 {
		return Translation{}, ErrDegenerateMarker
	}
	scale := 2 / (n1 + n2)

	t := Translation{
		X: m.At(0, 2) * scale,
		Y: m.At(1, 2) * scale,
		Z: m.At(2, 2) * scale,
	}
	// The homography is only defined up to sign; the marker is in front of the camera.
	if t.Z < 0 {
		t = Translation{X: -t.X, Y: -t.Y, Z: -t.Z}
	}
	return t, nil
}

// homography estimates H with dst ~ H * src using four or more correspondences.
func homography(src, dst []Point2) (*mat.Dense, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return nil, fmt.Errorf("motion: homography needs at least 4 correspondences, got %d", len(src))
	}

	ts, ns := normalize(src)
	td, nd := normalize(dst)

	a := mat.NewDense(2*len(ns), 9, nil)
	for i := range ns {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, fmt.Errorf("motion: homography SVD did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)

	hn := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			hn.Set(r, c, v.At(r*3+c, 8))
		}
	}

	// H = Td^-1 * Hn * Ts
	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return nil, fmt.Errorf("motion: invert normalization: %w", err)
	}
	var tmp, h mat.Dense
	tmp.Mul(&tdInv, hn)
	h.Mul(&tmp, ts)
	return &h, nil
}

// normalize moves points to their centroid and scales them so the mean
// distance from the origin is sqrt(2).
func normalize(pts []Point2) (*mat.Dense, []Point2) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= n
	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}

	out := make([]Point2, len(pts))
	for i, p := range pts {
		out[i] = Point2{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})
	return t, out
}

// quadArea is the signed shoelace area of the corner polygon.
func quadArea(c [4]Point2) float64 {
	var a float64
	for i := range c {
		j := (i + 1) % len(c)
		a += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return a / 2
}

// FiducialPose is an absolute estimator fed with marker pose estimates.
type FiducialPose struct {
	originX, originY float64
	pxPerCM          float64
	mirror           bool
}

// NewFiducialPose creates a marker pose estimator.
func NewFiducialPose(cfg Config) *FiducialPose {
	return &FiducialPose{
		originX: cfg.OriginX,
		originY: cfg.OriginY,
		pxPerCM: cfg.PixelsPerCM,
		mirror:  cfg.MirrorLateral,
	}
}

// Name implements Estimator.
func (f *FiducialPose) Name() string { return "Marker Pose" }

// Estimate implements Estimator. A frame without a marker keeps the last
// known position and reports StatusLost.
func (f *FiducialPose) Estimate(s Sample) Update {
	p, ok := s.(PoseEstimate)
	if !ok {
		return Update{}
	}
	if !p.Found {
		return Update{Status: StatusLost, Changed: true}
	}

	lateral := p.XM * 100 * f.pxPerCM
	if f.mirror {
		lateral = -lateral
	}
	return Update{
		Absolute: true,
		X:        f.originX + lateral,
		Y:        f.originY + p.ZM*100*f.pxPerCM,
		Status:   StatusTracking,
		Changed:  true,
	}
}
