// Package tile holds map tiles and the scheduler that decides, frame by
// frame, which of them start loading.
package tile

import (
	"context"
	"sync"

	"tilesched/geom"
)

// State is the lifecycle state of a tile.
//
//	Idle -> Loading -> Loaded | Error
//	Loading -> Aborted
//
// Loaded, Error and Aborted are terminal; a new attempt needs a new Tile.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Error
	Aborted
)

var stateNames = [...]string{"idle", "loading", "loaded", "error", "aborted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Loaded || s == Error || s == Aborted
}

// Loader fetches the bytes of a tile. It is called from its own goroutine
// and should honour ctx.
type Loader interface {
	LoadTile(ctx context.Context, t *Tile) ([]byte, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, t *Tile) ([]byte, error)

func (f LoaderFunc) LoadTile(ctx context.Context, t *Tile) ([]byte, error) {
	return f(ctx, t)
}

// Tile is owned by its source. Its state only changes through a Queue.
type Tile struct {
	coord  geom.TileCoord
	source string
	loader Loader

	mu    sync.Mutex
	state State
	data  []byte
	err   error
}

func New(coord geom.TileCoord, source string, loader Loader) *Tile {
	return &Tile{coord: coord, source: source, loader: loader}
}

func (t *Tile) Coord() geom.TileCoord { return t.coord }

// Source returns the key of the source the tile belongs to.
func (t *Tile) Source() string { return t.source }

// Key identifies the tile across sources.
func (t *Tile) Key() string { return t.source + "/" + t.coord.String() }

func (t *Tile) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Data returns the loaded bytes, nil unless the tile is Loaded.
func (t *Tile) Data() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// Err returns the load failure of a tile in the Error state.
func (t *Tile) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// transition moves the tile from one state to another and reports whether
// it was in the expected state.
func (t *Tile) transition(from, to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return false
	}
	t.state = to
	return true
}

// finish ends a load that is still in the Loading state.
func (t *Tile) finish(data []byte, err error) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Loading {
		return t.state, false
	}
	if err != nil {
		t.state = Error
		t.err = err
	} else {
		t.state = Loaded
		t.data = data
	}
	return t.state, true
}
