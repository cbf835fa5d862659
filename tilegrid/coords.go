package tilegrid

import (
	"math"

	"github.com/paulmach/orb"

	"tilesched/geom"
)

// TileCoordForPointAndResolution returns the tile containing p at the level
// nearest to resolution. A point on a tile edge belongs to the tile with
// the higher index, unless reverseIntersectionPolicy is set, in which case
// it belongs to the lower one.
func (g *TileGrid) TileCoordForPointAndResolution(p orb.Point, resolution float64, reverseIntersectionPolicy bool) geom.TileCoord {
	return g.tileCoordForPointAndZ(p, g.ZForResolution(resolution), reverseIntersectionPolicy)
}

// TileCoordForPointAndZ returns the tile containing p at level z.
func (g *TileGrid) TileCoordForPointAndZ(p orb.Point, z int) (geom.TileCoord, error) {
	if err := g.checkZ(z); err != nil {
		return geom.TileCoord{}, err
	}
	return g.tileCoordForPointAndZ(p, z, false), nil
}

func (g *TileGrid) tileCoordForPointAndZ(p orb.Point, z int, reverse bool) geom.TileCoord {
	origin := g.originAt(z)
	size := g.tileSizeAt(z)
	res := g.resolutions[z]

	x := (p[0] - origin[0]) / (res * float64(size.Width))
	y := (p[1] - origin[1]) / (res * float64(size.Height))
	if reverse {
		x = math.Ceil(x) - 1
		y = math.Ceil(y) - 1
	} else {
		x = math.Floor(x)
		y = math.Floor(y)
	}
	return geom.TileCoord{Z: z, X: int(x), Y: int(y)}
}

// TileRangeForExtentAndResolution returns the tiles covering extent at the
// level nearest to resolution. The min corner uses the default edge policy
// and the max corner the reverse one, so an extent ending exactly on a tile
// edge does not pull in the neighbouring tile.
func (g *TileGrid) TileRangeForExtentAndResolution(extent geom.Extent, resolution float64) geom.TileRange {
	return g.tileRangeForExtentAndZ(extent, g.ZForResolution(resolution))
}

func (g *TileGrid) TileRangeForExtentAndZ(extent geom.Extent, z int) (geom.TileRange, error) {
	if err := g.checkZ(z); err != nil {
		return geom.TileRange{}, err
	}
	return g.tileRangeForExtentAndZ(extent, z), nil
}

func (g *TileGrid) tileRangeForExtentAndZ(extent geom.Extent, z int) geom.TileRange {
	lo := g.tileCoordForPointAndZ(extent.BottomLeft(), z, false)
	hi := g.tileCoordForPointAndZ(extent.TopRight(), z, true)
	return geom.TileRange{MinX: lo.X, MinY: lo.Y, MaxX: hi.X, MaxY: hi.Y}
}

// TileCoordExtent returns the extent covered by the tile at c.
func (g *TileGrid) TileCoordExtent(c geom.TileCoord) (geom.Extent, error) {
	if err := g.checkZ(c.Z); err != nil {
		return geom.Extent{}, err
	}
	return g.tileCoordExtent(c), nil
}

func (g *TileGrid) tileCoordExtent(c geom.TileCoord) geom.Extent {
	return g.tileRangeExtent(c.Z, geom.TileRange{MinX: c.X, MinY: c.Y, MaxX: c.X, MaxY: c.Y})
}

func (g *TileGrid) TileCoordCenter(c geom.TileCoord) (orb.Point, error) {
	if err := g.checkZ(c.Z); err != nil {
		return orb.Point{}, err
	}
	origin := g.originAt(c.Z)
	size := g.tileSizeAt(c.Z)
	res := g.resolutions[c.Z]
	return orb.Point{
		origin[0] + (float64(c.X)+0.5)*float64(size.Width)*res,
		origin[1] + (float64(c.Y)+0.5)*float64(size.Height)*res,
	}, nil
}

func (g *TileGrid) TileCoordResolution(c geom.TileCoord) (float64, error) {
	return g.Resolution(c.Z)
}

// TileRangeExtent returns the extent covered by all tiles of r at level z.
func (g *TileGrid) TileRangeExtent(z int, r geom.TileRange) (geom.Extent, error) {
	if err := g.checkZ(z); err != nil {
		return geom.Extent{}, err
	}
	return g.tileRangeExtent(z, r), nil
}

func (g *TileGrid) tileRangeExtent(z int, r geom.TileRange) geom.Extent {
	origin := g.originAt(z)
	size := g.tileSizeAt(z)
	res := g.resolutions[z]
	w := float64(size.Width) * res
	h := float64(size.Height) * res
	return geom.Extent{
		MinX: origin[0] + float64(r.MinX)*w,
		MinY: origin[1] + float64(r.MinY)*h,
		MaxX: origin[0] + float64(r.MaxX+1)*w,
		MaxY: origin[1] + float64(r.MaxY+1)*h,
	}
}

// ForEachAncestorTileRange calls fn with the range covering c at every
// coarser level, from c.Z-1 down to 0, until fn returns true. It reports
// whether fn ever returned true.
func (g *TileGrid) ForEachAncestorTileRange(c geom.TileCoord, fn func(z int, r geom.TileRange) bool) (bool, error) {
	if err := g.checkZ(c.Z); err != nil {
		return false, err
	}
	extent := g.tileCoordExtent(c)
	for z := c.Z - 1; z >= 0; z-- {
		if fn(z, g.tileRangeForExtentAndZ(extent, z)) {
			return true, nil
		}
	}
	return false, nil
}

// ChildTileRange returns the range covering c at level c.Z+1.
func (g *TileGrid) ChildTileRange(c geom.TileCoord) (geom.TileRange, error) {
	if err := g.checkZ(c.Z); err != nil {
		return geom.TileRange{}, err
	}
	if err := g.checkZ(c.Z + 1); err != nil {
		return geom.TileRange{}, err
	}
	return g.tileRangeForExtentAndZ(g.tileCoordExtent(c), c.Z+1), nil
}

// PixelBounds is a rectangle in pixels, max exclusive.
type PixelBounds struct {
	MinX, MinY, MaxX, MaxY int
}

// PixelBounds returns where the tile at c lands, in pixels relative to the
// grid origin, when its level is drawn at resolution.
func (g *TileGrid) PixelBounds(c geom.TileCoord, resolution float64) (PixelBounds, error) {
	if err := g.checkZ(c.Z); err != nil {
		return PixelBounds{}, err
	}
	scale := resolution / g.resolutions[c.Z]
	size := g.tileSizeAt(c.Z)
	w := float64(size.Width) / scale
	h := float64(size.Height) / scale
	return PixelBounds{
		MinX: int(math.Round(float64(c.X) * w)),
		MinY: int(math.Round(float64(c.Y) * h)),
		MaxX: int(math.Round(float64(c.X+1) * w)),
		MaxY: int(math.Round(float64(c.Y+1) * h)),
	}, nil
}
