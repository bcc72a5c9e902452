package mesh

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoDepthFrame returns a 20x20 grid whose left half is 1 m and right half
// 3 m from the camera.
func twoDepthFrame(t *testing.T) (*DepthMap, *PointGrid) {
	t.Helper()
	const rows, cols = 20, 20
	depth := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c < cols/2 {
				depth[r*cols+c] = 1
			} else {
				depth[r*cols+c] = 3
			}
		}
	}
	return testGrids(t, rows, cols, depth)
}

func TestRANSAC_SinglePlane(t *testing.T) {
	_, pg := testGrids(t, 20, 20, constDepth(20, 20, 2))
	labels, planes, err := NewRANSACPlaneFitter(1).FitPlanes(pg, fullMask(20, 20), 3)
	require.NoError(t, err)

	require.Len(t, planes, 1, "no points remain after the first plane")
	for _, l := range labels.Data {
		assert.Equal(t, int32(0), l)
	}

	p := planes[0]
	assert.InDelta(t, 1, r3Norm(p), 1e-9)
	assert.InDelta(t, -1, p.C, 1e-9, "normal faces the camera")
	assert.InDelta(t, 2, p.D, 1e-9)
	assert.InDelta(t, 0, p.Distance(pg.At(5, 7)), 1e-9)
}

func TestRANSAC_TwoPlanes(t *testing.T) {
	_, pg := twoDepthFrame(t)
	labels, planes, err := NewRANSACPlaneFitter(7).FitPlanes(pg, fullMask(20, 20), 2)
	require.NoError(t, err)
	require.Len(t, planes, 2)

	left, right := labels.At(0, 0), labels.At(0, 19)
	assert.NotEqual(t, left, right)
	for r := 0; r < 20; r++ {
		for c := 0; c < 20; c++ {
			if c < 10 {
				assert.Equal(t, left, labels.At(r, c))
			} else {
				assert.Equal(t, right, labels.At(r, c))
			}
		}
	}
}

func TestRANSAC_MaxPlanesLeavesRestUnassigned(t *testing.T) {
	_, pg := twoDepthFrame(t)
	labels, planes, err := NewRANSACPlaneFitter(3).FitPlanes(pg, fullMask(20, 20), 1)
	require.NoError(t, err)
	require.Len(t, planes, 1)

	var assigned, unassigned int
	for _, l := range labels.Data {
		switch l {
		case 0:
			assigned++
		case UnassignedLabel:
			unassigned++
		}
	}
	assert.Equal(t, 200, assigned)
	assert.Equal(t, 200, unassigned)
}

func TestRANSAC_MaskedAndInvalidPixelsUnassigned(t *testing.T) {
	depth := constDepth(10, 10, 1)
	depth[0] = 0
	_, pg := testGrids(t, 10, 10, depth)
	mask := fullMask(10, 10)
	mask.Set(9, 9, false)

	labels, planes, err := NewRANSACPlaneFitter(1).FitPlanes(pg, mask, 1)
	require.NoError(t, err)
	require.Len(t, planes, 1)
	assert.Equal(t, UnassignedLabel, labels.At(0, 0))
	assert.Equal(t, UnassignedLabel, labels.At(9, 9))
	assert.Equal(t, int32(0), labels.At(5, 5))
}

func TestRANSAC_TooFewPoints(t *testing.T) {
	_, pg := testGrids(t, 4, 4, constDepth(4, 4, 1))
	labels, planes, err := NewRANSACPlaneFitter(1).FitPlanes(pg, fullMask(4, 4), 2)
	require.NoError(t, err)
	assert.Empty(t, planes, "16 points is below the default minimum of inliers")
	for _, l := range labels.Data {
		assert.Equal(t, UnassignedLabel, l)
	}
}

func TestRANSAC_ZeroPlanes(t *testing.T) {
	_, pg := testGrids(t, 10, 10, constDepth(10, 10, 1))
	_, planes, err := NewRANSACPlaneFitter(1).FitPlanes(pg, fullMask(10, 10), 0)
	require.NoError(t, err)
	assert.Empty(t, planes)
}

func TestRANSAC_DimensionMismatch(t *testing.T) {
	_, pg := testGrids(t, 4, 4, constDepth(4, 4, 1))
	_, _, err := NewRANSACPlaneFitter(1).FitPlanes(pg, NewMask(3, 4), 1)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestRANSAC_Deterministic(t *testing.T) {
	_, pg := twoDepthFrame(t)
	a, _, err := NewRANSACPlaneFitter(42).FitPlanes(pg, fullMask(20, 20), 2)
	require.NoError(t, err)
	b, _, err := NewRANSACPlaneFitter(42).FitPlanes(pg, fullMask(20, 20), 2)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestRefinePlane_Tilted(t *testing.T) {
	// z = 2 + 0.5x sampled on a grid.
	const rows, cols = 5, 5
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = 1
	}
	dm, err := NewDepthMap(rows, cols, data)
	require.NoError(t, err)
	pg := DepthTo3D(dm, unitIntrinsics)
	pts := make([]int, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, y := float64(c), float64(r)
			pg.data[r*cols+c].X = x
			pg.data[r*cols+c].Y = y
			pg.data[r*cols+c].Z = 2 + 0.5*x
			pts = append(pts, r*cols+c)
		}
	}

	p, ok := refinePlane(pg, pts)
	require.True(t, ok)
	for _, i := range pts {
		assert.InDelta(t, 0, p.Distance(pg.data[i]), 1e-9)
	}
	assert.LessOrEqual(t, p.C, 0.0)
	assert.InDelta(t, 1, r3Norm(p), 1e-9)
}

func r3Norm(p PlaneCoefficients) float64 {
	return math.Sqrt(p.A*p.A + p.B*p.B + p.C*p.C)
}
