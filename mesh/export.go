package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteOBJ writes the cluster as a Wavefront OBJ mesh: one v line per point
// with X and Y negated, one vt line per point in the same order, then one f
// line per triangle with 1-based vertex/texture indices. Faces are derived
// with DefaultDepthDiff if they have not been derived yet.
func (c *Cluster) WriteOBJ(w io.Writer) error {
	if c.state < StatePointsAndFaces {
		c.CalculateFaceIndices(DefaultDepthDiff)
	}

	bw := bufio.NewWriter(w)
	for _, p := range c.points {
		if _, err := fmt.Fprintf(bw, "v %g %g %g\n", -p.World.X, -p.World.Y, p.World.Z); err != nil {
			return fmt.Errorf("writing vertex: %w", err)
		}
	}
	for _, p := range c.points {
		if _, err := fmt.Fprintf(bw, "vt %g %g\n", p.UV.U, p.UV.V); err != nil {
			return fmt.Errorf("writing texture coordinate: %w", err)
		}
	}
	for i := 0; i+2 < len(c.faceIndices); i += 3 {
		a, b, d := c.faceIndices[i]+1, c.faceIndices[i+1]+1, c.faceIndices[i+2]+1
		if _, err := fmt.Fprintf(bw, "f %d/%d %d/%d %d/%d\n", a, a, b, b, d, d); err != nil {
			return fmt.Errorf("writing face: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing mesh: %w", err)
	}
	return nil
}

// SaveOBJ writes the cluster mesh to path. The file only appears at path
// once it has been completely written.
func (c *Cluster) SaveOBJ(path string) error {
	if err := writeFileAtomic(path, c.WriteOBJ); err != nil {
		return fmt.Errorf("save obj %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic streams write into a temporary file next to path and
// renames it into place. The temporary file is removed on every error path.
func writeFileAtomic(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
