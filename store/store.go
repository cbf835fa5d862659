// Package store persists loaded tiles.
package store

import (
	"errors"

	"tilesched/geom"
)

var ErrClosed = errors.New("store: closed")

// Store keeps tile bytes by coordinate. Coordinates are grid coordinates
// with rows counted from the bottom (TMS order).
type Store interface {
	// Get returns the stored bytes, or ok == false when the tile is absent.
	Get(c geom.TileCoord) (data []byte, ok bool, err error)
	Put(c geom.TileCoord, data []byte) error
	Close() error
}
