package mesh

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ExportedFile describes one artifact written by ExportResult.
type ExportedFile struct {
	ClusterIndex int    // -1 for run-level files
	Format       string // obj, stl, geojson, png, svg
	Path         string
	Bytes        int64
}

// ExportResult writes every artifact enabled in cfg into cfg.Dir: one mesh
// file per cluster and format, footprints.geojson, and the preview images.
// onWritten is called after each file has been renamed into place; an error
// from it aborts the export.
func ExportResult(res *Result, cfg ExportConfig, onWritten func(ExportedFile) error) ([]ExportedFile, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("export: output directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: creating %s: %w", cfg.Dir, err)
	}

	var files []ExportedFile
	done := func(index int, format, path string) error {
		f := ExportedFile{ClusterIndex: index, Format: format, Path: path}
		if info, err := os.Stat(path); err == nil {
			f.Bytes = info.Size()
		}
		files = append(files, f)
		if onWritten != nil {
			if err := onWritten(f); err != nil {
				return fmt.Errorf("export: recording %s: %w", path, err)
			}
		}
		return nil
	}

	for i, c := range res.Clusters {
		if cfg.HasFormat(FormatOBJ) {
			path := filepath.Join(cfg.Dir, fmt.Sprintf("cluster_%03d.obj", i))
			if err := c.SaveOBJ(path); err != nil {
				return files, fmt.Errorf("export: %w", err)
			}
			if err := done(i, FormatOBJ, path); err != nil {
				return files, err
			}
		}
		if cfg.HasFormat(FormatSTL) {
			path := filepath.Join(cfg.Dir, fmt.Sprintf("cluster_%03d.stl", i))
			if err := c.SaveSTL(path); err != nil {
				return files, fmt.Errorf("export: %w", err)
			}
			if err := done(i, FormatSTL, path); err != nil {
				return files, err
			}
		}
	}

	if cfg.GeoJSON {
		path := filepath.Join(cfg.Dir, "footprints.geojson")
		if err := SaveFootprints(path, res.Summaries); err != nil {
			return files, fmt.Errorf("export: %w", err)
		}
		if err := done(-1, "geojson", path); err != nil {
			return files, err
		}
	}

	if cfg.Previews {
		previews := []struct {
			name, format string
			render       func() ([]byte, error)
		}{
			{"labels.png", "png", func() ([]byte, error) { return EncodePNG(RenderLabels(res)) }},
			{"mesh.png", "png", func() ([]byte, error) { return EncodePNG(RenderMeshPreview(res, MeshPreview{})) }},
			{"clusters.svg", "svg", func() ([]byte, error) {
				var buf bytes.Buffer
				err := NewVectorRenderer(res).RenderToSVG(&buf)
				return buf.Bytes(), err
			}},
		}
		for _, p := range previews {
			data, err := p.render()
			if err != nil {
				return files, fmt.Errorf("export: rendering %s: %w", p.name, err)
			}
			path := filepath.Join(cfg.Dir, p.name)
			if err := writeFileAtomic(path, func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}); err != nil {
				return files, fmt.Errorf("export: writing %s: %w", p.name, err)
			}
			if err := done(-1, p.format, path); err != nil {
				return files, err
			}
		}
	}

	Logf("Exported %d files to %s", len(files), cfg.Dir)
	return files, nil
}
