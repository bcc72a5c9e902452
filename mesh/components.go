package mesh

import (
	"fmt"
	"image"

	"github.com/paulmach/orb"
)

// UnionFindLabeler is the pure Go 8-connected component labeler. Labels are
// assigned in row-major order of each component's first pixel, starting at 1.
type UnionFindLabeler struct{}

// Label implements ComponentLabeler.
func (UnionFindLabeler) Label(mask *Mask) (*LabelGrid, []ComponentStats, error) {
	if mask == nil {
		return nil, nil, fmt.Errorf("label components: mask is required")
	}
	rows, cols := mask.Rows, mask.Cols
	labels := NewLabelGrid(rows, cols, 0)

	// First pass: provisional labels from the already-visited neighbours
	// (W, NW, N, NE), recording equivalences.
	parent := []int32{0}
	find := func(x int32) int32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int32) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !mask.Data[r*cols+c] {
				continue
			}
			var current int32
			for _, d := range [4][2]int{{0, -1}, {-1, -1}, {-1, 0}, {-1, 1}} {
				nr, nc := r+d[0], c+d[1]
				if nr < 0 || nc < 0 || nc >= cols {
					continue
				}
				l := labels.Data[nr*cols+nc]
				if l == 0 {
					continue
				}
				if current == 0 {
					current = l
				} else {
					union(current, l)
				}
			}
			if current == 0 {
				current = int32(len(parent))
				parent = append(parent, current)
			}
			labels.Data[r*cols+c] = current
		}
	}

	// Second pass: resolve to roots and renumber densely in scan order.
	dense := make(map[int32]int32)
	for i, l := range labels.Data {
		if l == 0 {
			continue
		}
		root := find(l)
		d, ok := dense[root]
		if !ok {
			d = int32(len(dense) + 1)
			dense[root] = d
		}
		labels.Data[i] = d
	}

	return labels, componentStats(labels, len(dense)), nil
}

// componentStats computes area, centroid and bounds for labels 0..n.
func componentStats(labels *LabelGrid, n int) []ComponentStats {
	stats := make([]ComponentStats, n+1)
	sumX := make([]float64, n+1)
	sumY := make([]float64, n+1)
	for i := range stats {
		stats[i].Label = int32(i)
	}
	for r := 0; r < labels.Rows; r++ {
		for c := 0; c < labels.Cols; c++ {
			s := &stats[labels.Data[r*labels.Cols+c]]
			px := image.Rect(c, r, c+1, r+1)
			if s.Area == 0 {
				s.Bounds = px
			} else {
				s.Bounds = s.Bounds.Union(px)
			}
			s.Area++
			sumX[s.Label] += float64(c)
			sumY[s.Label] += float64(r)
		}
	}
	for i := range stats {
		if stats[i].Area > 0 {
			stats[i].Centroid = orb.Point{sumX[i] / float64(stats[i].Area), sumY[i] / float64(stats[i].Area)}
		}
	}
	return stats
}
