// Package geom holds the value types shared by the tile grid and the
// scheduler: extents in map units, tile coordinates and tile ranges.
package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// TransformFunc maps a point from one planar coordinate space to another.
type TransformFunc func(orb.Point) orb.Point

// Extent is an axis aligned rectangle in map units. It does not know its
// projection.
type Extent struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// EmptyExtent returns the extent that contains nothing. Extending it by a
// point yields the degenerate extent of that point.
func EmptyExtent() Extent {
	return Extent{
		MinX: math.Inf(1),
		MinY: math.Inf(1),
		MaxX: math.Inf(-1),
		MaxY: math.Inf(-1),
	}
}

// BoundingExtent builds the smallest extent that includes all points.
func BoundingExtent(points ...orb.Point) Extent {
	e := EmptyExtent()
	for _, p := range points {
		e.ExtendPoint(p)
	}
	return e
}

// ExtentFromBound converts an orb bound into an extent.
func ExtentFromBound(b orb.Bound) Extent {
	return Extent{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}

// Bound returns the extent as an orb bound.
func (e Extent) Bound() orb.Bound {
	return orb.Bound{Min: e.BottomLeft(), Max: e.TopRight()}
}

func (e Extent) IsEmpty() bool {
	return e.MinX > e.MaxX || e.MinY > e.MaxY
}

// ExtendPoint grows the extent so that it includes p.
func (e *Extent) ExtendPoint(p orb.Point) {
	e.MinX = math.Min(e.MinX, p[0])
	e.MinY = math.Min(e.MinY, p[1])
	e.MaxX = math.Max(e.MaxX, p[0])
	e.MaxY = math.Max(e.MaxY, p[1])
}

// ContainsPoint reports whether p is inside or on the edge of the extent.
func (e Extent) ContainsPoint(p orb.Point) bool {
	return e.MinX <= p[0] && p[0] <= e.MaxX &&
		e.MinY <= p[1] && p[1] <= e.MaxY
}

// ContainsExtent reports whether o is inside or on the edge of the extent.
func (e Extent) ContainsExtent(o Extent) bool {
	return e.MinX <= o.MinX && o.MaxX <= e.MaxX &&
		e.MinY <= o.MinY && o.MaxY <= e.MaxY
}

func (e Extent) BottomLeft() orb.Point  { return orb.Point{e.MinX, e.MinY} }
func (e Extent) BottomRight() orb.Point { return orb.Point{e.MaxX, e.MinY} }
func (e Extent) TopLeft() orb.Point     { return orb.Point{e.MinX, e.MaxY} }
func (e Extent) TopRight() orb.Point    { return orb.Point{e.MaxX, e.MaxY} }

func (e Extent) Width() float64  { return e.MaxX - e.MinX }
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

func (e Extent) Center() orb.Point {
	return orb.Point{(e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2}
}

// Transform applies fn to all four corners and returns their bounding
// extent. Rotations and reprojections may swap which corner ends up
// minimal on an axis, so the diagonal pair alone is not enough.
//
// Transforming an empty extent is undefined.
func (e Extent) Transform(fn TransformFunc) Extent {
	return BoundingExtent(
		fn(e.BottomLeft()),
		fn(e.BottomRight()),
		fn(e.TopLeft()),
		fn(e.TopRight()),
	)
}

// ExtentForView returns the extent covered by a viewport of size pixels
// centered on center, at the given resolution (map units per pixel) and
// rotation (radians, counter-clockwise).
func ExtentForView(center orb.Point, resolution, rotation float64, size Size) Extent {
	dx := resolution * float64(size.Width) / 2
	dy := resolution * float64(size.Height) / 2
	cos, sin := math.Cos(rotation), math.Sin(rotation)
	rotate := func(p orb.Point) orb.Point {
		return orb.Point{
			center[0] + p[0]*cos - p[1]*sin,
			center[1] + p[0]*sin + p[1]*cos,
		}
	}
	return Extent{MinX: -dx, MinY: -dy, MaxX: dx, MaxY: dy}.Transform(rotate)
}
