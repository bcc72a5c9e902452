package mesh

import (
	"fmt"
	"image"
	"math"
)

// DefaultDepthDiff is the face tolerance in metres used when a caller passes
// a non-positive tolerance to CalculateFaceIndices.
const DefaultDepthDiff = 0.02

// ClusterState tracks how much of a cluster's derived data is materialized.
// Derivation only advances the state; Invalidate is the only way back.
type ClusterState int

const (
	StateUninitialized ClusterState = iota
	StatePoints
	StatePointsAndFaces
)

func (s ClusterState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePoints:
		return "points"
	case StatePointsAndFaces:
		return "points+faces"
	default:
		return fmt.Sprintf("ClusterState(%d)", int(s))
	}
}

// ClusterKind records which producer created a cluster.
type ClusterKind string

const (
	KindRoot      ClusterKind = "root"
	KindPlane     ClusterKind = "plane"
	KindResidual  ClusterKind = "residual"
	KindComponent ClusterKind = "component"
)

// Cluster is a subset of an RGB-D frame's pixels with lazily derived points
// and triangle faces.
//
// The depth and point grids are shared with sibling clusters and never
// written. The mask, point index, points and faces belong to this cluster.
type Cluster struct {
	Kind    ClusterKind
	Label   int // oracle label that produced the cluster, -1 for root and residual clusters
	IsPlane bool
	Plane   *PlaneCoefficients // fitted plane for planar clusters, when the oracle returned one

	mask        *Mask
	depth       *DepthMap
	points3d    *PointGrid
	pointsIndex []int
	points      []ClusterPoint
	faceIndices []int
	state       ClusterState
}

// NewCluster creates a root cluster over a frame's grids. The mask is copied;
// depth and points3d are referenced.
func NewCluster(mask *Mask, depth *DepthMap, points3d *PointGrid) (*Cluster, error) {
	if mask == nil || depth == nil || points3d == nil {
		return nil, fmt.Errorf("new cluster: mask, depth and points3d are required")
	}
	if !sameSize(mask.Rows, mask.Cols, depth.Rows, depth.Cols) ||
		!sameSize(mask.Rows, mask.Cols, points3d.Rows, points3d.Cols) {
		return nil, fmt.Errorf("new cluster: mask %dx%d, depth %dx%d, points3d %dx%d: %w",
			mask.Rows, mask.Cols, depth.Rows, depth.Cols, points3d.Rows, points3d.Cols, ErrDimensionMismatch)
	}
	return newChild(mask.Clone(), depth, points3d, KindRoot, -1), nil
}

// newChild wraps a freshly computed mask that the new cluster takes ownership of.
func newChild(mask *Mask, depth *DepthMap, points3d *PointGrid, kind ClusterKind, label int) *Cluster {
	return &Cluster{
		Kind:     kind,
		Label:    label,
		mask:     mask,
		depth:    depth,
		points3d: points3d,
	}
}

// State returns the derivation state.
func (c *Cluster) State() ClusterState { return c.state }

// Rows returns the grid height.
func (c *Cluster) Rows() int { return c.mask.Rows }

// Cols returns the grid width.
func (c *Cluster) Cols() int { return c.mask.Cols }

// Mask returns the cluster's mask. After CalculatePoints it is the
// authoritative validity map. Callers that modify it must call Invalidate.
func (c *Cluster) Mask() *Mask { return c.mask }

// Depth returns the shared depth grid.
func (c *Cluster) Depth() *DepthMap { return c.depth }

// Points3D returns the shared point grid.
func (c *Cluster) Points3D() *PointGrid { return c.points3d }

// Invalidate discards derived points and faces.
func (c *Cluster) Invalidate() {
	c.pointsIndex = nil
	c.points = nil
	c.faceIndices = nil
	c.state = StateUninitialized
}

// NumPoints returns the number of valid points, or UnknownPoints if points
// have not been derived yet.
func (c *Cluster) NumPoints() int {
	if c.state < StatePoints {
		return UnknownPoints
	}
	return len(c.points)
}

// Points returns the derived points in row-major scan order, deriving them first if needed.
func (c *Cluster) Points() []ClusterPoint {
	c.ensurePoints()
	return c.points
}

// PointsIndex returns the index into Points for the pixel at (row, col), or
// InvalidIndex when the pixel holds no point.
func (c *Cluster) PointsIndex(row, col int) int {
	c.ensurePoints()
	if row < 0 || row >= c.mask.Rows || col < 0 || col >= c.mask.Cols {
		return InvalidIndex
	}
	return c.pointsIndex[row*c.mask.Cols+col]
}

// FaceIndices returns the flat triangle list. Nil until faces are derived.
func (c *Cluster) FaceIndices() []int {
	return c.faceIndices
}

// NumFaces returns the number of triangles derived so far.
func (c *Cluster) NumFaces() int {
	return len(c.faceIndices) / 3
}

func (c *Cluster) ensurePoints() {
	if c.state < StatePoints {
		c.CalculatePoints()
	}
}

// CalculatePoints scans the mask in row-major order and packs every pixel
// with positive depth into the point list. Mask bits over non-positive depth
// are cleared, so afterwards the mask and the point list agree. It is a no-op
// once points exist; call Invalidate first to derive them again.
func (c *Cluster) CalculatePoints() {
	if c.state >= StatePoints {
		return
	}
	rows, cols := c.mask.Rows, c.mask.Cols
	if len(c.pointsIndex) != rows*cols {
		c.pointsIndex = make([]int, rows*cols)
	}
	for i := range c.pointsIndex {
		c.pointsIndex[i] = InvalidIndex
	}
	c.points = make([]ClusterPoint, 0, len(c.points))
	c.faceIndices = nil

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			i := row*cols + col
			if !c.mask.Data[i] {
				continue
			}
			if !(c.depth.At(row, col) > 0) {
				c.mask.Data[i] = false
				continue
			}
			c.pointsIndex[i] = len(c.points)
			c.points = append(c.points, ClusterPoint{
				World: c.points3d.At(row, col),
				Pixel: image.Point{X: col, Y: row},
			})
		}
	}
	c.state = StatePoints
}

// CalculateFaceIndices emits two triangles for every 2x2 pixel block whose
// four pixels hold a point and whose depths are all within depthDiff of the
// block's top-left pixel. A non-positive depthDiff selects DefaultDepthDiff.
func (c *Cluster) CalculateFaceIndices(depthDiff float64) {
	c.ensurePoints()
	if depthDiff <= 0 {
		depthDiff = DefaultDepthDiff
	}

	rows, cols := c.mask.Rows, c.mask.Cols
	faces := make([]int, 0, len(c.points)*6)
	for i := 0; i+1 < rows; i++ {
		for j := 0; j+1 < cols; j++ {
			topLeft := c.pointsIndex[i*cols+j]
			if topLeft == InvalidIndex {
				continue
			}
			bottomLeft := c.pointsIndex[(i+1)*cols+j]
			topRight := c.pointsIndex[i*cols+j+1]
			bottomRight := c.pointsIndex[(i+1)*cols+j+1]
			if bottomLeft == InvalidIndex || topRight == InvalidIndex || bottomRight == InvalidIndex {
				continue
			}
			d := float64(c.depth.At(i, j))
			if math.Abs(d-float64(c.depth.At(i+1, j))) > depthDiff ||
				math.Abs(d-float64(c.depth.At(i, j+1))) > depthDiff ||
				math.Abs(d-float64(c.depth.At(i+1, j+1))) > depthDiff {
				continue
			}

			faces = append(faces,
				topLeft, bottomLeft, topRight,
				topRight, bottomLeft, bottomRight,
			)
		}
	}
	c.faceIndices = faces
	c.state = StatePointsAndFaces
}

// UnwrapTexCoord assigns each point the UV (x/cols, y/rows). This is a
// placeholder unwrap; it makes no attempt to avoid seams or overlap.
func (c *Cluster) UnwrapTexCoord() {
	c.ensurePoints()
	w, h := float64(c.mask.Cols), float64(c.mask.Rows)
	for i := range c.points {
		p := &c.points[i]
		p.UV = TexCoord{U: float64(p.Pixel.X) / w, V: float64(p.Pixel.Y) / h}
	}
}
