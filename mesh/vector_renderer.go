package mesh

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// VectorRenderer draws a segmentation result as vector graphics in pixel
// units: each cluster's triangle edges, its footprint box and its centroid.
type VectorRenderer struct {
	Result     *Result
	Padding    float64           // in pixels
	Resolution canvas.Resolution // Resolution for PNG output (default: 300 DPI)
	EdgeWidth  float64
	DrawEdges  bool
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(res *Result) *VectorRenderer {
	return &VectorRenderer{
		Result:     res,
		Padding:    10,
		Resolution: canvas.DPI(300),
		EdgeWidth:  0.3,
		DrawEdges:  true,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size() (float64, float64) {
	return float64(r.Result.Cols) + 2*r.Padding, float64(r.Result.Rows) + 2*r.Padding
}

// RenderToSVG writes the result as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the result as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// Canvas y grows upwards, image rows grow downwards.
	toCanvas := func(x, y float64) (float64, float64) {
		return x + r.Padding, height - (y + r.Padding)
	}

	for i, c := range r.Result.Clusters {
		vc := ClusterColor(i)

		if r.DrawEdges {
			edgeStyle := canvas.DefaultStyle
			edgeStyle.Fill = canvas.Paint{Color: canvas.Transparent}
			edgeStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(vc)}
			edgeStyle.StrokeWidth = r.EdgeWidth

			pts := c.Points()
			faces := c.FaceIndices()
			for f := 0; f+2 < len(faces); f += 3 {
				cp := &canvas.Path{}
				for k := 0; k < 3; k++ {
					px := pts[faces[f+k]].Pixel
					x, y := toCanvas(float64(px.X), float64(px.Y))
					if k == 0 {
						cp.MoveTo(x, y)
					} else {
						cp.LineTo(x, y)
					}
				}
				cp.Close()
				renderer.RenderPath(cp, edgeStyle, canvas.Identity)
			}
		}
	}

	for _, s := range r.Result.Summaries {
		if s.Points == 0 {
			continue
		}
		solid := ClusterColor(s.Index)
		solid.A = 255

		boxStyle := canvas.DefaultStyle
		boxStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		boxStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(solid)}
		boxStyle.StrokeWidth = 1.0
		boxStyle.Dashes = []float64{4.0, 2.0}

		b := s.Footprint
		box := &canvas.Path{}
		x0, y0 := toCanvas(b.Min[0], b.Min[1])
		x1, y1 := toCanvas(b.Max[0]+1, b.Max[1]+1)
		box.MoveTo(x0, y0)
		box.LineTo(x1, y0)
		box.LineTo(x1, y1)
		box.LineTo(x0, y1)
		box.Close()
		renderer.RenderPath(box, boxStyle, canvas.Identity)

		markerStyle := canvas.DefaultStyle
		markerStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(solid)}
		markerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		markerStyle.StrokeWidth = 0.5
		cx, cy := toCanvas(s.Centroid[0], s.Centroid[1])
		renderer.RenderPath(canvas.Circle(3.0).Translate(cx, cy), markerStyle, canvas.Identity)
	}
}
