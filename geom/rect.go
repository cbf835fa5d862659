package geom

// Rect is the geometry shared by Extent (map units) and TileRange (tile
// indices).
type Rect[N int | float64] interface {
	Width() N
	Height() N
	IsEmpty() bool
}

var (
	_ Rect[float64] = Extent{}
	_ Rect[int]     = TileRange{}
)

// Area returns the area of r, or zero when r is empty. For a TileRange it
// is the number of tiles.
func Area[N int | float64](r Rect[N]) N {
	if r.IsEmpty() {
		return 0
	}
	return r.Width() * r.Height()
}
