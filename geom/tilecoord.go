package geom

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// TileCoord addresses one tile of a grid. Y grows upwards from the grid
// origin.
type TileCoord struct {
	Z int
	X int
	Y int
}

// String returns the "z/x/y" hash used to key wanted tile sets.
func (c TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// MapTile converts c to the XYZ (slippy map) scheme, whose rows count
// downwards from the top of a 2^z by 2^z grid.
func (c TileCoord) MapTile() maptile.Tile {
	return maptile.Tile{
		X: uint32(c.X),
		Y: uint32(1<<uint(c.Z)) - 1 - uint32(c.Y),
		Z: maptile.Zoom(c.Z),
	}
}

// FromMapTile is the inverse of TileCoord.MapTile.
func FromMapTile(t maptile.Tile) TileCoord {
	return TileCoord{
		Z: int(t.Z),
		X: int(t.X),
		Y: (1 << uint(t.Z)) - 1 - int(t.Y),
	}
}

// Size is a width and height in pixels.
type Size struct {
	Width  int
	Height int
}
