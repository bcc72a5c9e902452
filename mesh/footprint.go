package mesh

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Footprints returns one GeoJSON feature per cluster with the summary fields
// as properties. The geometry is the traced outline when there is one, the
// pixel bounding box otherwise, and the centroid for empty clusters.
// Coordinates are image pixels (X = column, Y = row), not geographic.
func Footprints(summaries []ClusterSummary) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range summaries {
		var geom orb.Geometry = s.Footprint.ToPolygon()
		switch {
		case s.Points == 0:
			geom = s.Centroid
		case len(s.Outline) == 1:
			geom = s.Outline[0]
		case len(s.Outline) > 1:
			geom = s.Outline
		}
		f := geojson.NewFeature(geom)
		if s.Points > 0 {
			f.BBox = geojson.NewBBox(s.Footprint)
		}
		f.ID = s.Index
		f.Properties["index"] = s.Index
		f.Properties["kind"] = string(s.Kind)
		f.Properties["label"] = s.Label
		f.Properties["isPlane"] = s.IsPlane
		f.Properties["points"] = s.Points
		f.Properties["faces"] = s.Faces
		f.Properties["centroid"] = []float64{s.Centroid[0], s.Centroid[1]}
		fc.Append(f)
	}
	return fc
}

// WriteFootprints encodes the footprint collection as GeoJSON.
func WriteFootprints(w io.Writer, summaries []ClusterSummary) error {
	data, err := json.MarshalIndent(Footprints(summaries), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling footprints: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing footprints: %w", err)
	}
	return nil
}

// SaveFootprints writes footprints.geojson style output to path atomically.
func SaveFootprints(path string, summaries []ClusterSummary) error {
	if err := writeFileAtomic(path, func(w io.Writer) error {
		return WriteFootprints(w, summaries)
	}); err != nil {
		return fmt.Errorf("save footprints %s: %w", path, err)
	}
	return nil
}
