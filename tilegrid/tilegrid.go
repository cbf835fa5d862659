// Package tilegrid maps between extents in map units and the discrete tile
// coordinates of each zoom level.
package tilegrid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"tilesched/geom"
)

// DefaultTileSize is the pixel size of tiles on grids built by NewXYZ.
const DefaultTileSize = 256

// DefaultMaxZoom is the deepest level of grids built by NewXYZ when no
// maximum zoom is given.
const DefaultMaxZoom = 42

// MercatorHalfWorld is half the width of the spherical mercator square, in
// meters.
const MercatorHalfWorld = 20037508.342789244

var (
	ErrInvalidOptions = errors.New("tilegrid: invalid options")
	ErrOutOfRange     = errors.New("tilegrid: zoom level out of range")
)

// Options configures a TileGrid. Exactly one of Origin and Origins and
// exactly one of TileSize and TileSizes must be set.
type Options struct {
	// Resolutions in map units per pixel, strictly decreasing with z.
	Resolutions []float64
	Origin      *orb.Point
	Origins     []orb.Point
	TileSize    *geom.Size
	TileSizes   []geom.Size
}

// TileGrid is read-only after construction and safe for concurrent use.
type TileGrid struct {
	resolutions []float64
	origin      *orb.Point
	origins     []orb.Point
	tileSize    *geom.Size
	tileSizes   []geom.Size
}

// New validates opts and builds a grid. Inconsistent options are rejected,
// never coerced.
func New(opts Options) (*TileGrid, error) {
	n := len(opts.Resolutions)
	if n == 0 {
		return nil, fmt.Errorf("%w: no resolutions", ErrInvalidOptions)
	}
	for i, r := range opts.Resolutions {
		if !(r > 0) || math.IsInf(r, 1) {
			return nil, fmt.Errorf("%w: resolution %d is %v", ErrInvalidOptions, i, r)
		}
		if i > 0 && !(opts.Resolutions[i-1] > r) {
			return nil, fmt.Errorf("%w: resolutions not strictly decreasing at %d", ErrInvalidOptions, i)
		}
	}

	switch {
	case opts.Origin != nil && opts.Origins != nil:
		return nil, fmt.Errorf("%w: both origin and origins set", ErrInvalidOptions)
	case opts.Origin == nil && opts.Origins == nil:
		return nil, fmt.Errorf("%w: neither origin nor origins set", ErrInvalidOptions)
	case opts.Origins != nil && len(opts.Origins) != n:
		return nil, fmt.Errorf("%w: %d origins for %d resolutions", ErrInvalidOptions, len(opts.Origins), n)
	}

	switch {
	case opts.TileSize != nil && opts.TileSizes != nil:
		return nil, fmt.Errorf("%w: both tile size and tile sizes set", ErrInvalidOptions)
	case opts.TileSize == nil && opts.TileSizes == nil:
		return nil, fmt.Errorf("%w: neither tile size nor tile sizes set", ErrInvalidOptions)
	case opts.TileSizes != nil && len(opts.TileSizes) != n:
		return nil, fmt.Errorf("%w: %d tile sizes for %d resolutions", ErrInvalidOptions, len(opts.TileSizes), n)
	}
	sizes := opts.TileSizes
	if opts.TileSize != nil {
		sizes = []geom.Size{*opts.TileSize}
	}
	for _, s := range sizes {
		if s.Width <= 0 || s.Height <= 0 {
			return nil, fmt.Errorf("%w: tile size %dx%d", ErrInvalidOptions, s.Width, s.Height)
		}
	}

	g := &TileGrid{resolutions: append([]float64(nil), opts.Resolutions...)}
	if opts.Origin != nil {
		o := *opts.Origin
		g.origin = &o
	} else {
		g.origins = append([]orb.Point(nil), opts.Origins...)
	}
	if opts.TileSize != nil {
		s := *opts.TileSize
		g.tileSize = &s
	} else {
		g.tileSizes = append([]geom.Size(nil), opts.TileSizes...)
	}
	return g, nil
}

// NewForExtent builds a grid of square tiles whose level 0 is a single tile
// covering extent, with origin at its bottom left corner and each following
// level halving the resolution.
func NewForExtent(extent geom.Extent, maxZoom int, tileSize int) (*TileGrid, error) {
	if extent.IsEmpty() {
		return nil, fmt.Errorf("%w: empty extent", ErrInvalidOptions)
	}
	if maxZoom < 0 || tileSize <= 0 {
		return nil, fmt.Errorf("%w: max zoom %d, tile size %d", ErrInvalidOptions, maxZoom, tileSize)
	}
	size := math.Max(extent.Width(), extent.Height()) / float64(tileSize)
	resolutions := make([]float64, maxZoom+1)
	for z := range resolutions {
		resolutions[z] = size / math.Pow(2, float64(z))
	}
	origin := extent.BottomLeft()
	return New(Options{
		Resolutions: resolutions,
		Origin:      &origin,
		TileSize:    &geom.Size{Width: tileSize, Height: tileSize},
	})
}

// NewXYZ builds the spherical mercator grid used by XYZ tile services.
// A maxZoom of zero or less selects DefaultMaxZoom.
func NewXYZ(maxZoom int) (*TileGrid, error) {
	if maxZoom <= 0 {
		maxZoom = DefaultMaxZoom
	}
	world := geom.Extent{
		MinX: -MercatorHalfWorld,
		MinY: -MercatorHalfWorld,
		MaxX: MercatorHalfWorld,
		MaxY: MercatorHalfWorld,
	}
	return NewForExtent(world, maxZoom, DefaultTileSize)
}

func (g *TileGrid) NumLevels() int { return len(g.resolutions) }

// Resolutions returns a copy of the per level resolutions.
func (g *TileGrid) Resolutions() []float64 {
	return append([]float64(nil), g.resolutions...)
}

func (g *TileGrid) checkZ(z int) error {
	if z < 0 || z >= len(g.resolutions) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, z, len(g.resolutions))
	}
	return nil
}

func (g *TileGrid) Resolution(z int) (float64, error) {
	if err := g.checkZ(z); err != nil {
		return 0, err
	}
	return g.resolutions[z], nil
}

func (g *TileGrid) Origin(z int) (orb.Point, error) {
	if err := g.checkZ(z); err != nil {
		return orb.Point{}, err
	}
	return g.originAt(z), nil
}

func (g *TileGrid) TileSize(z int) (geom.Size, error) {
	if err := g.checkZ(z); err != nil {
		return geom.Size{}, err
	}
	return g.tileSizeAt(z), nil
}

// originAt and tileSizeAt expect z to be checked already.
func (g *TileGrid) originAt(z int) orb.Point {
	if g.origin != nil {
		return *g.origin
	}
	return g.origins[z]
}

func (g *TileGrid) tileSizeAt(z int) geom.Size {
	if g.tileSize != nil {
		return *g.tileSize
	}
	return g.tileSizes[z]
}

// ZForResolution returns the level whose resolution is nearest to
// resolution. A resolution exactly halfway between two levels snaps to the
// lower index, i.e. the coarser level. Resolutions beyond either end clamp
// to the first or last level.
func (g *TileGrid) ZForResolution(resolution float64) int {
	n := len(g.resolutions)
	// first level whose resolution is at or below the target
	i := sort.Search(n, func(i int) bool { return g.resolutions[i] <= resolution })
	switch {
	case i == 0:
		return 0
	case i == n:
		return n - 1
	}
	if g.resolutions[i-1]-resolution <= resolution-g.resolutions[i] {
		return i - 1
	}
	return i
}
