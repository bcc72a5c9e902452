package mesh

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r3"
)

// ClusterSummary is the JSON-friendly description of one exported cluster.
type ClusterSummary struct {
	Index     int                `json:"index"`
	Kind      ClusterKind        `json:"kind"`
	Label     int                `json:"label"`
	IsPlane   bool               `json:"isPlane"`
	Plane     *PlaneCoefficients `json:"plane,omitempty"`
	Points    int                `json:"points"`
	Faces     int                `json:"faces"`
	Min       r3.Vec             `json:"min"`       // world bounding box
	Max       r3.Vec             `json:"max"`
	Footprint orb.Bound          `json:"footprint"` // pixel bounding box, X = column
	Centroid  orb.Point          `json:"centroid"`  // pixel centroid
	Outline   orb.MultiPolygon   `json:"outline,omitempty"`
}

// Summarize describes c. Points are derived if needed; faces are not.
func Summarize(index int, c *Cluster) ClusterSummary {
	pts := c.Points()
	s := ClusterSummary{
		Index:   index,
		Kind:    c.Kind,
		Label:   c.Label,
		IsPlane: c.IsPlane,
		Plane:   c.Plane,
		Points:  len(pts),
		Faces:   c.NumFaces(),
	}
	if len(pts) == 0 {
		return s
	}

	s.Min = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	s.Max = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	pixels := make(orb.MultiPoint, 0, len(pts))
	for _, p := range pts {
		s.Min = r3.Vec{X: math.Min(s.Min.X, p.World.X), Y: math.Min(s.Min.Y, p.World.Y), Z: math.Min(s.Min.Z, p.World.Z)}
		s.Max = r3.Vec{X: math.Max(s.Max.X, p.World.X), Y: math.Max(s.Max.Y, p.World.Y), Z: math.Max(s.Max.Z, p.World.Z)}
		pixels = append(pixels, orb.Point{float64(p.Pixel.X), float64(p.Pixel.Y)})
	}
	s.Footprint = pixels.Bound()
	s.Centroid, _ = planar.CentroidArea(pixels)
	s.Outline = TraceOutlines(c.Mask(), DefaultOutlineTolerance)
	return s
}
