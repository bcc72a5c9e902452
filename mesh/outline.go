package mesh

import (
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// DefaultOutlineTolerance is the Douglas-Peucker tolerance, in pixels, used
// for cluster outlines.
const DefaultOutlineTolerance = 1.0

// outlineOffsets are the 8 neighbours in clockwise screen order, starting west.
var outlineOffsets = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

// TraceOutlines returns the outer boundary of every 8-connected component of
// mask as a closed ring through the boundary pixel centres (X = column,
// Y = row), simplified with Douglas-Peucker at tolerance pixels. Rings are
// counter-clockwise. Components whose outline encloses no area, such as single
// pixels and one-pixel-wide lines, are skipped. Holes are not traced.
func TraceOutlines(mask *Mask, tolerance float64) orb.MultiPolygon {
	if mask == nil {
		return nil
	}
	labels, stats, err := UnionFindLabeler{}.Label(mask)
	if err != nil {
		return nil
	}

	var out orb.MultiPolygon
	for _, s := range stats[1:] {
		ring := traceRing(labels, s.Label, firstPixel(labels, s))
		if tolerance > 0 {
			ring = simplifyRing(ring, tolerance)
		}
		if len(ring) < 4 || math.Abs(planar.Area(ring)) == 0 {
			continue
		}
		if ring.Orientation() != orb.CCW {
			ring.Reverse()
		}
		out = append(out, orb.Polygon{ring})
	}
	return out
}

// firstPixel returns the first pixel of a component in row-major order. It
// lies on the top row of the component's bounds.
func firstPixel(labels *LabelGrid, s ComponentStats) image.Point {
	y := s.Bounds.Min.Y
	for x := s.Bounds.Min.X; x < s.Bounds.Max.X; x++ {
		if labels.At(y, x) == s.Label {
			return image.Point{X: x, Y: y}
		}
	}
	return s.Bounds.Min
}

// traceRing walks the boundary of the component containing start with Moore
// neighbour tracing. start must be the component's first pixel in row-major
// order, so its west neighbour is outside the component. The walk stops when
// it is about to repeat its first move from start.
func traceRing(labels *LabelGrid, label int32, start image.Point) orb.Ring {
	in := func(p image.Point) bool {
		if p.X < 0 || p.Y < 0 || p.X >= labels.Cols || p.Y >= labels.Rows {
			return false
		}
		return labels.At(p.Y, p.X) == label
	}

	ring := orb.Ring{{float64(start.X), float64(start.Y)}}
	cur, back := start, 0
	firstMove := -1
	limit := 4*labels.Rows*labels.Cols + 8

	for step := 0; step < limit; step++ {
		move := -1
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			if in(cur.Add(outlineOffsets[d])) {
				move = d
				break
			}
		}
		if move < 0 {
			break // isolated pixel
		}
		if cur == start && move == firstMove {
			break
		}
		if firstMove < 0 {
			firstMove = move
		}

		next := cur.Add(outlineOffsets[move])
		// The last outside neighbour examined becomes the new backtrack.
		prev := cur.Add(outlineOffsets[(move+7)%8])
		back = offsetIndex(prev.Sub(next))
		cur = next
		ring = append(ring, orb.Point{float64(cur.X), float64(cur.Y)})
	}
	return ring
}

func offsetIndex(d image.Point) int {
	for i, o := range outlineOffsets {
		if o == d {
			return i
		}
	}
	return 0
}

func simplifyRing(r orb.Ring, tolerance float64) orb.Ring {
	if s, ok := simplify.DouglasPeucker(tolerance).Simplify(r.Clone()).(orb.Ring); ok {
		return s
	}
	return r
}
