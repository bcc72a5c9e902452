package mesh

import (
	"errors"
	"fmt"
	"image"

	"gonum.org/v1/gonum/spatial/r3"
)

// InvalidIndex marks a pixel that holds no derived point.
const InvalidIndex = -1

// UnknownPoints is returned by Cluster.NumPoints before points have been derived.
const UnknownPoints = -1

var (
	// ErrDimensionMismatch is returned when grids that must be aligned differ in size.
	ErrDimensionMismatch = errors.New("grid dimensions do not match")

	// ErrNilOracle is returned when a segmentation strategy is called without its oracle.
	ErrNilOracle = errors.New("segmentation oracle is nil")

	// ErrTooManyPlanes is returned when the requested plane count reaches
	// UnassignedLabel, which the plane oracle reserves for unassigned pixels.
	ErrTooManyPlanes = errors.New("plane count must be below the unassigned label")
)

// Mask is a row-major boolean grid marking the pixels that belong to a cluster.
type Mask struct {
	Rows int
	Cols int
	Data []bool
}

// NewMask returns an all-false mask.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// At reports whether the pixel at (row, col) is set. Out-of-range pixels are unset.
func (m *Mask) At(row, col int) bool {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return false
	}
	return m.Data[row*m.Cols+col]
}

// Set updates the pixel at (row, col).
func (m *Mask) Set(row, col int, v bool) {
	m.Data[row*m.Cols+col] = v
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	data := make([]bool, len(m.Data))
	copy(data, m.Data)
	return &Mask{Rows: m.Rows, Cols: m.Cols, Data: data}
}

// DepthMap holds per-pixel depth in metres. It has no setters: once built it
// can be shared by every cluster derived from the same frame.
type DepthMap struct {
	Rows int
	Cols int
	data []float32
}

// NewDepthMap copies data (row-major, rows*cols values) into a new depth map.
func NewDepthMap(rows, cols int, data []float32) (*DepthMap, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("depth map %dx%d with %d values: %w", rows, cols, len(data), ErrDimensionMismatch)
	}
	d := make([]float32, len(data))
	copy(d, data)
	return &DepthMap{Rows: rows, Cols: cols, data: d}, nil
}

// At returns the depth at (row, col).
func (d *DepthMap) At(row, col int) float32 {
	return d.data[row*d.Cols+col]
}

// PointGrid holds one back-projected 3D point per pixel, aligned with a DepthMap.
// Like DepthMap it is read-only after construction.
type PointGrid struct {
	Rows int
	Cols int
	data []r3.Vec
}

// NewPointGrid copies data (row-major, rows*cols points) into a new grid.
func NewPointGrid(rows, cols int, data []r3.Vec) (*PointGrid, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("point grid %dx%d with %d values: %w", rows, cols, len(data), ErrDimensionMismatch)
	}
	d := make([]r3.Vec, len(data))
	copy(d, data)
	return &PointGrid{Rows: rows, Cols: cols, data: d}, nil
}

// At returns the point at (row, col).
func (g *PointGrid) At(row, col int) r3.Vec {
	return g.data[row*g.Cols+col]
}

// LabelGrid is the per-pixel integer output of the plane and component oracles.
type LabelGrid struct {
	Rows int
	Cols int
	Data []int32
}

// NewLabelGrid returns a grid filled with fill.
func NewLabelGrid(rows, cols int, fill int32) *LabelGrid {
	data := make([]int32, rows*cols)
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	return &LabelGrid{Rows: rows, Cols: cols, Data: data}
}

// At returns the label at (row, col).
func (l *LabelGrid) At(row, col int) int32 {
	return l.Data[row*l.Cols+col]
}

// Set updates the label at (row, col).
func (l *LabelGrid) Set(row, col int, v int32) {
	l.Data[row*l.Cols+col] = v
}

// TexCoord is a texture coordinate in [0,1].
type TexCoord struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// ClusterPoint is one valid pixel of a cluster with its derived attributes.
type ClusterPoint struct {
	World r3.Vec      `json:"world"`
	Pixel image.Point `json:"pixel"` // X = column, Y = row
	UV    TexCoord    `json:"uv"`
}

// PlaneCoefficients describes the plane A*x + B*y + C*z + D = 0 with a unit normal.
type PlaneCoefficients struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
}

// Normal returns the plane normal.
func (p PlaneCoefficients) Normal() r3.Vec {
	return r3.Vec{X: p.A, Y: p.B, Z: p.C}
}

// Distance returns the signed distance of pt from the plane.
func (p PlaneCoefficients) Distance(pt r3.Vec) float64 {
	return p.A*pt.X + p.B*pt.Y + p.C*pt.Z + p.D
}

func sameSize(rows, cols, otherRows, otherCols int) bool {
	return rows == otherRows && cols == otherCols
}
