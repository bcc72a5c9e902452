package mesh

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// MeshPreview controls RenderMeshPreview.
type MeshPreview struct {
	Wireframe bool
	LineWidth float64 // wireframe stroke in pixels; non-positive means 1
}

// RenderMeshPreview draws every cluster triangle at its texture coordinates,
// filled with the frame color sampled at the triangle centroid. Pixels not
// covered by any triangle stay white, which makes holes in the mesh visible.
func RenderMeshPreview(res *Result, opt MeshPreview) image.Image {
	width, height := res.Cols, res.Rows
	ctx := gg.NewContext(width, height)
	ctx.DrawRectangle(0, 0, float64(width), float64(height))
	ctx.SetRGBA(1, 1, 1, 1)
	ctx.Fill()

	w, h := float64(width), float64(height)
	lineWidth := opt.LineWidth
	if lineWidth <= 0 {
		lineWidth = 1
	}
	for _, c := range res.Clusters {
		pts := c.Points()
		faces := c.FaceIndices()
		for f := 0; f+2 < len(faces); f += 3 {
			p0, p1, p2 := pts[faces[f]], pts[faces[f+1]], pts[faces[f+2]]

			ctx.Push()
			ctx.MoveTo(p0.UV.U*w, p0.UV.V*h)
			ctx.LineTo(p1.UV.U*w, p1.UV.V*h)
			ctx.LineTo(p2.UV.U*w, p2.UV.V*h)
			ctx.ClosePath()

			cx := (p0.Pixel.X + p1.Pixel.X + p2.Pixel.X) / 3
			cy := (p0.Pixel.Y + p1.Pixel.Y + p2.Pixel.Y) / 3
			r, g, b, _ := res.Frame.ColorAt(cy, cx).RGBA()
			fill := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}

			ctx.SetFillStyle(gg.NewSolidPattern(fill))
			if opt.Wireframe {
				ctx.SetStrokeStyle(gg.NewSolidPattern(color.RGBA{R: 0, G: 0, B: 0, A: 60}))
				ctx.SetLineWidth(lineWidth)
				ctx.FillPreserve()
				ctx.Stroke()
			} else {
				ctx.Fill()
			}
			ctx.Pop()
		}
	}
	return ctx.Image()
}
