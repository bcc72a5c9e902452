//go:build gocv

package mesh

import (
	"fmt"
	"image"

	"github.com/paulmach/orb"
	"gocv.io/x/gocv"
)

// GocvLabeler labels components with OpenCV's connectedComponentsWithStats
// (8-connectivity).
type GocvLabeler struct{}

// NewGocvLabeler returns the OpenCV labeler.
func NewGocvLabeler() (ComponentLabeler, error) {
	return GocvLabeler{}, nil
}

// Label implements ComponentLabeler.
func (GocvLabeler) Label(mask *Mask) (*LabelGrid, []ComponentStats, error) {
	if mask == nil {
		return nil, nil, fmt.Errorf("label components: mask is required")
	}

	src := gocv.NewMatWithSize(mask.Rows, mask.Cols, gocv.MatTypeCV8UC1)
	defer src.Close()
	for r := 0; r < mask.Rows; r++ {
		for c := 0; c < mask.Cols; c++ {
			if mask.Data[r*mask.Cols+c] {
				src.SetUCharAt(r, c, 255)
			}
		}
	}

	labelsMat := gocv.NewMat()
	defer labelsMat.Close()
	statsMat := gocv.NewMat()
	defer statsMat.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(src, &labelsMat, &statsMat, &centroids)
	if n <= 0 {
		return nil, nil, fmt.Errorf("label components: opencv returned %d labels", n)
	}

	labels := NewLabelGrid(mask.Rows, mask.Cols, 0)
	for r := 0; r < mask.Rows; r++ {
		for c := 0; c < mask.Cols; c++ {
			labels.Data[r*mask.Cols+c] = labelsMat.GetIntAt(r, c)
		}
	}

	stats := make([]ComponentStats, n)
	for i := 0; i < n; i++ {
		left := int(statsMat.GetIntAt(i, int(gocv.CC_STAT_LEFT)))
		top := int(statsMat.GetIntAt(i, int(gocv.CC_STAT_TOP)))
		w := int(statsMat.GetIntAt(i, int(gocv.CC_STAT_WIDTH)))
		h := int(statsMat.GetIntAt(i, int(gocv.CC_STAT_HEIGHT)))
		stats[i] = ComponentStats{
			Label:    int32(i),
			Area:     int(statsMat.GetIntAt(i, int(gocv.CC_STAT_AREA))),
			Centroid: orb.Point{centroids.GetDoubleAt(i, 0), centroids.GetDoubleAt(i, 1)},
			Bounds:   image.Rect(left, top, left+w, top+h),
		}
	}
	return labels, stats, nil
}
