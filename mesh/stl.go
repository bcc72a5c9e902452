package mesh

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Triangles returns the cluster's faces as sdfx triangles, using the same
// axis convention as WriteOBJ (X and Y negated).
func (c *Cluster) Triangles() []*sdf.Triangle3 {
	if c.state < StatePointsAndFaces {
		c.CalculateFaceIndices(DefaultDepthDiff)
	}
	tris := make([]*sdf.Triangle3, 0, c.NumFaces())
	for i := 0; i+2 < len(c.faceIndices); i += 3 {
		var t sdf.Triangle3
		for k := 0; k < 3; k++ {
			w := c.points[c.faceIndices[i+k]].World
			t[k] = v3.Vec{X: -w.X, Y: -w.Y, Z: w.Z}
		}
		tris = append(tris, &t)
	}
	return tris
}

// SaveSTL writes the cluster mesh as binary STL. Like SaveOBJ, the target
// only appears once it is complete.
func (c *Cluster) SaveSTL(path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save stl %s: %w", path, err)
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save stl %s: %w", path, err)
	}
	if err := render.SaveSTL(tmp, c.Triangles()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save stl %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save stl %s: %w", path, err)
	}
	return nil
}
