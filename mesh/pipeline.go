package mesh

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one segmentation run over a frame.
type Result struct {
	RunID      string           `json:"runId"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Rows       int              `json:"rows"`
	Cols       int              `json:"cols"`
	Summaries  []ClusterSummary `json:"clusters"`

	Frame    *Frame     `json:"-"`
	Clusters []*Cluster `json:"-"`
}

// ClusterAt returns the index of the cluster that owns pixel (row, col), or -1.
func (r *Result) ClusterAt(row, col int) int {
	for i, c := range r.Clusters {
		if c.PointsIndex(row, col) != InvalidIndex {
			return i
		}
	}
	return -1
}

// NewPlaneFitter builds the RANSAC fitter described by cfg.
func NewPlaneFitter(cfg SegmentationConfig) PlaneFitter {
	f := NewRANSACPlaneFitter(cfg.Seed)
	if cfg.PlaneThreshold > 0 {
		f.Threshold = cfg.PlaneThreshold
	}
	if cfg.RANSACIterations > 0 {
		f.Iterations = cfg.RANSACIterations
	}
	if cfg.MinPlaneInliers > 0 {
		f.MinInliers = cfg.MinPlaneInliers
	}
	return f
}

// NewComponentLabeler returns the labeler named by cfg.Labeler.
func NewComponentLabeler(cfg SegmentationConfig) (ComponentLabeler, error) {
	switch cfg.Labeler {
	case "", LabelerUnionFind:
		return UnionFindLabeler{}, nil
	case LabelerGocv:
		return NewGocvLabeler()
	default:
		return nil, fmt.Errorf("unknown labeler %q", cfg.Labeler)
	}
}

// Segment runs the full pipeline on frame: planar segmentation of the root
// cluster, Euclidean clustering of the residual, small-cluster elimination,
// then faces and texture coordinates for each survivor.
func Segment(frame *Frame, cfg SegmentationConfig, fitter PlaneFitter, labeler ComponentLabeler) (*Result, error) {
	if frame == nil {
		return nil, fmt.Errorf("segment: frame is required")
	}
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Rows:      frame.Rows(),
		Cols:      frame.Cols(),
		Frame:     frame,
	}

	root, err := frame.RootCluster()
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}

	planar, err := PlanarSegmentation(root, fitter, cfg.MaxPlanes, cfg.MinArea)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	residual := planar[len(planar)-1]
	clusters := planar[:len(planar)-1]

	components, err := EuclideanClustering(residual, labeler, cfg.MinArea)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	clusters = append(clusters, components...)

	before := len(clusters)
	clusters = EliminateSmallClusters(clusters, cfg.MinPoints)
	Logf("Run %s: %d planes, %d components, %d clusters kept (min %d points)",
		res.RunID, len(planar)-1, len(components), len(clusters), cfg.MinPoints)
	if dropped := before - len(clusters); dropped > 0 {
		Logf("Run %s: dropped %d small clusters", res.RunID, dropped)
	}

	res.Summaries = make([]ClusterSummary, 0, len(clusters))
	for i, c := range clusters {
		c.CalculateFaceIndices(cfg.DepthDiff)
		c.UnwrapTexCoord()
		res.Summaries = append(res.Summaries, Summarize(i, c))
	}
	res.Clusters = clusters
	res.FinishedAt = time.Now()
	return res, nil
}
