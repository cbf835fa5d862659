package tile

import (
	"math"

	"github.com/paulmach/orb"

	"tilesched/frame"
	"tilesched/pqueue"
)

// resolutionWeight makes the zoom level dominate the ordering: one level
// (a factor two in resolution) outweighs distances of up to
// 65536*ln(2) ≈ 45426 pixels from the focus.
const resolutionWeight = 65536

// Priority ranks a tile for loading; lower loads first. It returns
// pqueue.Drop when there is no frame or the frame does not want the tile.
// Finer levels come first, and within a level tiles nearer the focus, with
// distance measured in pixels of the tile's level.
func Priority(fs *frame.State, t *Tile, center orb.Point, resolution float64) float64 {
	if fs == nil || !fs.Wants(t.Source(), t.Coord()) {
		return pqueue.Drop
	}
	dx := center[0] - fs.Focus[0]
	dy := center[1] - fs.Focus[1]
	return resolutionWeight*math.Log(resolution) + math.Hypot(dx, dy)/resolution
}
