package mesh

import (
	"fmt"
	"image"

	"github.com/paulmach/orb"
)

// UnassignedLabel is written by plane fitters for pixels that belong to no plane.
const UnassignedLabel int32 = 255

// PlaneFitter assigns the valid pixels of a point grid to at most maxPlanes
// planes. The returned grid has labels 0..len(planes)-1 for plane members and
// UnassignedLabel for everything else.
type PlaneFitter interface {
	FitPlanes(points *PointGrid, mask *Mask, maxPlanes int) (*LabelGrid, []PlaneCoefficients, error)
}

// ComponentStats describes one 8-connected component of a mask.
type ComponentStats struct {
	Label    int32           `json:"label"`
	Area     int             `json:"area"`
	Centroid orb.Point       `json:"centroid"` // pixel coordinates, X = column
	Bounds   image.Rectangle `json:"bounds"`
}

// ComponentLabeler labels the 8-connected components of a mask. Label 0 is
// the background; stats are returned for every label including 0, in label
// order.
type ComponentLabeler interface {
	Label(mask *Mask) (*LabelGrid, []ComponentStats, error)
}

// PlanarSegmentation splits parent into one cluster per plane label
// 0..maxPlaneNum-1 followed by one residual cluster holding every parent
// pixel with any other label. Each child is restricted to the parent mask and
// has its points derived.
//
// Children with fewer than minArea points are reported and kept; callers drop
// them with EliminateSmallClusters.
func PlanarSegmentation(parent *Cluster, fitter PlaneFitter, maxPlaneNum, minArea int) ([]*Cluster, error) {
	if fitter == nil {
		return nil, fmt.Errorf("planar segmentation: %w", ErrNilOracle)
	}
	if maxPlaneNum < 0 {
		maxPlaneNum = 0
	}
	if maxPlaneNum >= int(UnassignedLabel) {
		return nil, fmt.Errorf("planar segmentation: %d planes: %w", maxPlaneNum, ErrTooManyPlanes)
	}

	labels, planes, err := fitter.FitPlanes(parent.points3d, parent.mask, maxPlaneNum)
	if err != nil {
		return nil, fmt.Errorf("planar segmentation: fitting planes: %w", err)
	}
	if labels == nil || !sameSize(labels.Rows, labels.Cols, parent.Rows(), parent.Cols()) {
		return nil, fmt.Errorf("planar segmentation: label grid: %w", ErrDimensionMismatch)
	}

	rows, cols := parent.Rows(), parent.Cols()
	masks := make([]*Mask, maxPlaneNum+1)
	for k := range masks {
		masks[k] = NewMask(rows, cols)
	}
	residual := masks[maxPlaneNum]
	for i, inParent := range parent.mask.Data {
		if !inParent {
			continue
		}
		l := labels.Data[i]
		if l >= 0 && int(l) < maxPlaneNum {
			masks[l].Data[i] = true
		} else {
			residual.Data[i] = true
		}
	}

	clusters := make([]*Cluster, 0, maxPlaneNum+1)
	for k := 0; k < maxPlaneNum; k++ {
		c := newChild(masks[k], parent.depth, parent.points3d, KindPlane, k)
		c.IsPlane = true
		if k < len(planes) {
			p := planes[k]
			c.Plane = &p
		}
		c.CalculatePoints()
		if c.NumPoints() < minArea {
			Logf("Plane %d has %d points, below minimum area %d", k, c.NumPoints(), minArea)
		}
		clusters = append(clusters, c)
	}

	rest := newChild(residual, parent.depth, parent.points3d, KindResidual, -1)
	rest.CalculatePoints()
	clusters = append(clusters, rest)
	return clusters, nil
}

// EuclideanClustering emits one cluster per 8-connected component of the
// parent mask whose area is at least minArea. Smaller components are dropped.
// Clusters are returned in label order with points derived.
func EuclideanClustering(parent *Cluster, labeler ComponentLabeler, minArea int) ([]*Cluster, error) {
	if labeler == nil {
		return nil, fmt.Errorf("euclidean clustering: %w", ErrNilOracle)
	}

	labels, stats, err := labeler.Label(parent.mask)
	if err != nil {
		return nil, fmt.Errorf("euclidean clustering: labeling components: %w", err)
	}
	if labels == nil || !sameSize(labels.Rows, labels.Cols, parent.Rows(), parent.Cols()) {
		return nil, fmt.Errorf("euclidean clustering: label grid: %w", ErrDimensionMismatch)
	}

	rows, cols := parent.Rows(), parent.Cols()
	byLabel := make(map[int32]*Mask)
	var order []int32
	for _, s := range stats {
		if s.Label == 0 || s.Area < minArea {
			continue
		}
		if _, dup := byLabel[s.Label]; dup {
			continue
		}
		byLabel[s.Label] = NewMask(rows, cols)
		order = append(order, s.Label)
	}

	for i, l := range labels.Data {
		if m, ok := byLabel[l]; ok && parent.mask.Data[i] {
			m.Data[i] = true
		}
	}

	clusters := make([]*Cluster, 0, len(order))
	for _, l := range order {
		c := newChild(byLabel[l], parent.depth, parent.points3d, KindComponent, int(l))
		c.CalculatePoints()
		clusters = append(clusters, c)
	}
	return clusters, nil
}
