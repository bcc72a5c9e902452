package mesh

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultPlaneThreshold is the inlier distance in metres.
	DefaultPlaneThreshold = 0.025

	// DefaultRANSACIterations is the number of hypotheses tried per plane.
	DefaultRANSACIterations = 200

	// DefaultMinPlaneInliers is the smallest inlier set accepted as a plane.
	DefaultMinPlaneInliers = 50
)

// RANSACPlaneFitter finds planes one at a time: each round samples point
// triples, keeps the hypothesis with the most inliers, refines it by least
// squares and removes its inliers before the next round.
type RANSACPlaneFitter struct {
	Threshold  float64
	Iterations int
	MinInliers int
	RNG        *rand.Rand // nil uses a generator seeded with 1
}

// NewRANSACPlaneFitter returns a fitter with the default parameters and a
// deterministic generator.
func NewRANSACPlaneFitter(seed int64) *RANSACPlaneFitter {
	return &RANSACPlaneFitter{
		Threshold:  DefaultPlaneThreshold,
		Iterations: DefaultRANSACIterations,
		MinInliers: DefaultMinPlaneInliers,
		RNG:        rand.New(rand.NewSource(seed)),
	}
}

// FitPlanes implements PlaneFitter.
func (f *RANSACPlaneFitter) FitPlanes(points *PointGrid, mask *Mask, maxPlanes int) (*LabelGrid, []PlaneCoefficients, error) {
	if points == nil || mask == nil {
		return nil, nil, fmt.Errorf("fit planes: points and mask are required")
	}
	if !sameSize(points.Rows, points.Cols, mask.Rows, mask.Cols) {
		return nil, nil, fmt.Errorf("fit planes: points %dx%d, mask %dx%d: %w",
			points.Rows, points.Cols, mask.Rows, mask.Cols, ErrDimensionMismatch)
	}

	threshold := f.Threshold
	if threshold <= 0 {
		threshold = DefaultPlaneThreshold
	}
	iterations := f.Iterations
	if iterations <= 0 {
		iterations = DefaultRANSACIterations
	}
	minInliers := max(f.MinInliers, 3)
	maxPlanes = min(maxPlanes, int(UnassignedLabel))
	rng := f.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	labels := NewLabelGrid(points.Rows, points.Cols, UnassignedLabel)
	remaining := make([]int, 0, len(mask.Data))
	for i, ok := range mask.Data {
		if ok && validPoint(points.data[i]) {
			remaining = append(remaining, i)
		}
	}

	var planes []PlaneCoefficients
	for len(planes) < maxPlanes && len(remaining) >= minInliers {
		best, bestCount := PlaneCoefficients{}, 0
		for it := 0; it < iterations; it++ {
			a, b, c := sampleTriple(rng, len(remaining))
			plane, ok := planeThrough(points.data[remaining[a]], points.data[remaining[b]], points.data[remaining[c]])
			if !ok {
				continue
			}
			if n := countInliers(points, remaining, plane, threshold); n > bestCount {
				best, bestCount = plane, n
			}
		}
		if bestCount < minInliers {
			break
		}

		inliers := collectInliers(points, remaining, best, threshold)
		if refined, ok := refinePlane(points, inliers); ok {
			if again := collectInliers(points, remaining, refined, threshold); len(again) >= minInliers {
				best, inliers = refined, again
			}
		}

		label := int32(len(planes))
		for _, i := range inliers {
			labels.Data[i] = label
		}
		planes = append(planes, best)
		remaining = withoutLabeled(remaining, labels)
	}
	return labels, planes, nil
}

func validPoint(p r3.Vec) bool {
	return p.Z > 0 && !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.Z, 0)
}

func sampleTriple(rng *rand.Rand, n int) (int, int, int) {
	if n < 3 {
		return 0, 0, 0
	}
	a := rng.Intn(n)
	b := rng.Intn(n - 1)
	if b >= a {
		b++
	}
	c := rng.Intn(n)
	for c == a || c == b {
		c = rng.Intn(n)
	}
	return a, b, c
}

// planeThrough returns the plane through three points with its normal facing
// the camera (negative Z). ok is false for collinear points.
func planeThrough(p0, p1, p2 r3.Vec) (PlaneCoefficients, bool) {
	n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
	if r3.Norm(n) < 1e-12 {
		return PlaneCoefficients{}, false
	}
	return orientedPlane(r3.Unit(n), p0), true
}

func orientedPlane(normal, onPlane r3.Vec) PlaneCoefficients {
	if normal.Z > 0 {
		normal = r3.Scale(-1, normal)
	}
	return PlaneCoefficients{A: normal.X, B: normal.Y, C: normal.Z, D: -r3.Dot(normal, onPlane)}
}

func countInliers(points *PointGrid, idx []int, plane PlaneCoefficients, threshold float64) int {
	n := 0
	for _, i := range idx {
		if math.Abs(plane.Distance(points.data[i])) <= threshold {
			n++
		}
	}
	return n
}

func collectInliers(points *PointGrid, idx []int, plane PlaneCoefficients, threshold float64) []int {
	var out []int
	for _, i := range idx {
		if math.Abs(plane.Distance(points.data[i])) <= threshold {
			out = append(out, i)
		}
	}
	return out
}

// refinePlane fits a least-squares plane through the inliers: the normal is
// the eigenvector of the covariance matrix with the smallest eigenvalue.
func refinePlane(points *PointGrid, inliers []int) (PlaneCoefficients, bool) {
	if len(inliers) < 3 {
		return PlaneCoefficients{}, false
	}
	var centroid r3.Vec
	for _, i := range inliers {
		centroid = r3.Add(centroid, points.data[i])
	}
	centroid = r3.Scale(1/float64(len(inliers)), centroid)

	var xx, xy, xz, yy, yz, zz float64
	for _, i := range inliers {
		d := r3.Sub(points.data[i], centroid)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	cov := mat.NewSymDense(3, []float64{
		xx, xy, xz,
		xy, yy, yz,
		xz, yz, zz,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return PlaneCoefficients{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Eigenvalues are ascending, so column 0 is the normal.
	normal := r3.Vec{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	if r3.Norm(normal) < 1e-12 {
		return PlaneCoefficients{}, false
	}
	return orientedPlane(r3.Unit(normal), centroid), true
}

func withoutLabeled(idx []int, labels *LabelGrid) []int {
	out := idx[:0]
	for _, i := range idx {
		if labels.Data[i] == UnassignedLabel {
			out = append(out, i)
		}
	}
	return out
}
