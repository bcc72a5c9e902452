package mesh

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/tiff"
	"gonum.org/v1/gonum/spatial/r3"
)

// Intrinsics are pinhole camera parameters in pixels.
type Intrinsics struct {
	FX, FY float64
	CX, CY float64
}

// DepthTo3D back-projects every pixel: X = (u-cx)*Z/fx, Y = (v-cy)*Z/fy,
// Z = depth. Pixels without positive depth map to the origin.
func DepthTo3D(depth *DepthMap, intr Intrinsics) *PointGrid {
	data := make([]r3.Vec, depth.Rows*depth.Cols)
	for v := 0; v < depth.Rows; v++ {
		for u := 0; u < depth.Cols; u++ {
			z := float64(depth.At(v, u))
			if !(z > 0) {
				continue
			}
			data[v*depth.Cols+u] = r3.Vec{
				X: (float64(u) - intr.CX) * z / intr.FX,
				Y: (float64(v) - intr.CY) * z / intr.FY,
				Z: z,
			}
		}
	}
	return &PointGrid{Rows: depth.Rows, Cols: depth.Cols, data: data}
}

// DecodeDepth reads a single-channel depth image (16-bit PNG or TIFF) and
// multiplies each raw value by scale to get metres.
func DecodeDepth(r io.Reader, scale float64) (*DepthMap, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding depth image: %w", err)
	}
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	data := make([]float32, rows*cols)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var raw uint16
			switch src := img.(type) {
			case *image.Gray16:
				raw = src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			case *image.Gray:
				raw = uint16(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			default:
				raw = color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
			}
			data[y*cols+x] = float32(float64(raw) * scale)
		}
	}
	if _, ok := img.(*image.Gray16); !ok {
		Logf("Warning: depth image is %s %T, not 16-bit grayscale", format, img)
	}
	return &DepthMap{Rows: rows, Cols: cols, data: data}, nil
}

// Frame is one registered color+depth capture with its back-projected points.
type Frame struct {
	Color      image.Image // nil when no color image was supplied
	Depth      *DepthMap
	Points     *PointGrid
	Intrinsics Intrinsics
}

// NewFrame back-projects depth and pairs it with color, which must have the
// same size when present.
func NewFrame(colorImg image.Image, depth *DepthMap, intr Intrinsics) (*Frame, error) {
	if depth == nil {
		return nil, fmt.Errorf("new frame: depth is required")
	}
	if intr.FX <= 0 || intr.FY <= 0 {
		return nil, fmt.Errorf("new frame: focal lengths must be positive")
	}
	if colorImg != nil {
		b := colorImg.Bounds()
		if !sameSize(b.Dy(), b.Dx(), depth.Rows, depth.Cols) {
			return nil, fmt.Errorf("new frame: color %dx%d, depth %dx%d: %w",
				b.Dy(), b.Dx(), depth.Rows, depth.Cols, ErrDimensionMismatch)
		}
	}
	return &Frame{
		Color:      colorImg,
		Depth:      depth,
		Points:     DepthTo3D(depth, intr),
		Intrinsics: intr,
	}, nil
}

// Rows returns the frame height.
func (f *Frame) Rows() int { return f.Depth.Rows }

// Cols returns the frame width.
func (f *Frame) Cols() int { return f.Depth.Cols }

// ValidMask marks every pixel with positive depth.
func (f *Frame) ValidMask() *Mask {
	m := NewMask(f.Depth.Rows, f.Depth.Cols)
	for i, d := range f.Depth.data {
		m.Data[i] = d > 0
	}
	return m
}

// RootCluster returns a cluster over every valid pixel, sharing the frame's grids.
func (f *Frame) RootCluster() (*Cluster, error) {
	return NewCluster(f.ValidMask(), f.Depth, f.Points)
}

// ColorAt returns the color at (row, col), or a depth-shaded gray when the
// frame has no color image.
func (f *Frame) ColorAt(row, col int) color.Color {
	if f.Color != nil {
		b := f.Color.Bounds()
		return f.Color.At(b.Min.X+col, b.Min.Y+row)
	}
	d := f.Depth.At(row, col)
	if !(d > 0) {
		return color.Black
	}
	// Near is bright; anything beyond 5 m is dark.
	shade := 255 - min(int(d*51), 200)
	return color.Gray{Y: uint8(shade)}
}

// LoadFrame reads a depth image and an optional color image from local paths
// or http(s) URLs and builds a frame with cam's intrinsics.
func LoadFrame(ctx context.Context, colorPath, depthPath string, cam CameraConfig, opts ...FetchOption) (*Frame, error) {
	if depthPath == "" {
		return nil, fmt.Errorf("load frame: depth path is required")
	}

	raw, err := readSource(ctx, depthPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("load frame: %w", err)
	}
	depth, err := DecodeDepth(bytes.NewReader(raw), cam.DepthScale)
	if err != nil {
		return nil, fmt.Errorf("load frame %s: %w", depthPath, err)
	}

	var colorImg image.Image
	if colorPath != "" {
		raw, err := readSource(ctx, colorPath, opts...)
		if err != nil {
			return nil, fmt.Errorf("load frame: %w", err)
		}
		colorImg, _, err = image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("load frame %s: decoding color image: %w", colorPath, err)
		}
	}

	return NewFrame(colorImg, depth, cam.Intrinsics())
}

func readSource(ctx context.Context, path string, opts ...FetchOption) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return FetchFrameDataWithContext(ctx, path, opts...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
