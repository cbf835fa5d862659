package geom

import "iter"

// TileRange is a contiguous block of tiles at one zoom level. Both bounds
// are inclusive.
type TileRange struct {
	MinX int
	MinY int
	MaxX int
	MaxY int
}

// BoundingTileRange returns the smallest range that contains all coords.
// It panics when called without coords or with coords of different zoom
// levels.
func BoundingTileRange(coords ...TileCoord) TileRange {
	if len(coords) == 0 {
		panic("geom: BoundingTileRange called without coordinates")
	}
	c0 := coords[0]
	r := TileRange{MinX: c0.X, MinY: c0.Y, MaxX: c0.X, MaxY: c0.Y}
	for _, c := range coords[1:] {
		if c.Z != c0.Z {
			panic("geom: BoundingTileRange called with mixed zoom levels")
		}
		r.MinX = min(r.MinX, c.X)
		r.MinY = min(r.MinY, c.Y)
		r.MaxX = max(r.MaxX, c.X)
		r.MaxY = max(r.MaxY, c.Y)
	}
	return r
}

func (r TileRange) Width() int  { return r.MaxX - r.MinX + 1 }
func (r TileRange) Height() int { return r.MaxY - r.MinY + 1 }

func (r TileRange) IsEmpty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY
}

// Contains reports whether c falls inside the range. The zoom level of c is
// not checked.
func (r TileRange) Contains(c TileCoord) bool {
	return r.MinX <= c.X && c.X <= r.MaxX &&
		r.MinY <= c.Y && c.Y <= r.MaxY
}

func (r TileRange) ContainsTileRange(o TileRange) bool {
	return r.MinX <= o.MinX && o.MaxX <= r.MaxX &&
		r.MinY <= o.MinY && o.MaxY <= r.MaxY
}

// Coords yields every coordinate of the range at zoom level z, row by row.
func (r TileRange) Coords(z int) iter.Seq[TileCoord] {
	return func(yield func(TileCoord) bool) {
		for y := r.MinY; y <= r.MaxY; y++ {
			for x := r.MinX; x <= r.MaxX; x++ {
				if !yield(TileCoord{Z: z, X: x, Y: y}) {
					return
				}
			}
		}
	}
}
