package mesh

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// clusterPalette holds the overlay colors; clusters past the end reuse it.
var clusterPalette = []color.NRGBA{
	{100, 149, 237, 160}, // Cornflower blue
	{255, 99, 71, 160},   // Tomato
	{144, 238, 144, 160}, // Light green
	{255, 215, 0, 160},   // Gold
	{186, 85, 211, 160},  // Medium orchid
	{64, 224, 208, 160},  // Turquoise
	{255, 165, 0, 160},   // Orange
	{199, 21, 133, 160},  // Medium violet red
}

// ClusterColor returns the overlay color of the i-th cluster.
func ClusterColor(i int) color.NRGBA {
	if i < 0 {
		return color.NRGBA{}
	}
	return clusterPalette[i%len(clusterPalette)]
}

// RenderLabels draws the frame with every cluster's pixels tinted in its
// palette color, the cluster index at its centroid and a legend.
func RenderLabels(res *Result) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, res.Cols, res.Rows))
	for row := 0; row < res.Rows; row++ {
		for col := 0; col < res.Cols; col++ {
			bg := color.RGBAModel.Convert(res.Frame.ColorAt(row, col)).(color.RGBA)
			img.SetRGBA(col, row, bg)
		}
	}

	for i, c := range res.Clusters {
		fg := ClusterColor(i)
		for _, p := range c.Points() {
			bg := img.RGBAAt(p.Pixel.X, p.Pixel.Y)
			img.Set(p.Pixel.X, p.Pixel.Y, blendColors(bg, fg))
		}
	}

	for _, s := range res.Summaries {
		if s.Points == 0 {
			continue
		}
		drawText(img, int(s.Centroid[0])-3, int(s.Centroid[1])+4, fmt.Sprint(s.Index), color.RGBA{0, 0, 0, 255})
	}
	drawLabelLegend(img, res.Summaries)
	return img
}

// drawLabelLegend lists each cluster with its swatch in the top-left corner.
func drawLabelLegend(img *image.RGBA, summaries []ClusterSummary) {
	y := 15
	for _, s := range summaries {
		sw := ClusterColor(s.Index)
		sw.A = 255
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-10, sw)
			}
		}
		drawText(img, 28, y, fmt.Sprintf("%d %s %d pts", s.Index, s.Kind, s.Points), color.RGBA{255, 255, 255, 255})
		y += 18
	}
}

// blendColors performs alpha blending of two colors
func blendColors(bg color.RGBA, fg color.NRGBA) color.NRGBA {
	// RGBA is premultiplied, so un-premultiply the background first
	var bgNRGBA color.NRGBA
	switch bg.A {
	case 0:
		bgNRGBA = color.NRGBA{0, 0, 0, 0}
	case 255:
		bgNRGBA = color.NRGBA{bg.R, bg.G, bg.B, 255}
	default:
		alpha32 := uint32(bg.A)
		bgNRGBA = color.NRGBA{
			R: uint8((uint32(bg.R) * 255) / alpha32),
			G: uint8((uint32(bg.G) * 255) / alpha32),
			B: uint8((uint32(bg.B) * 255) / alpha32),
			A: bg.A,
		}
	}

	alpha := float64(fg.A) / 255.0
	invAlpha := 1.0 - alpha

	return color.NRGBA{
		R: uint8(float64(fg.R)*alpha + float64(bgNRGBA.R)*invAlpha),
		G: uint8(float64(fg.G)*alpha + float64(bgNRGBA.G)*invAlpha),
		B: uint8(float64(fg.B)*alpha + float64(bgNRGBA.B)*invAlpha),
		A: 255,
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// EncodePNG returns img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
