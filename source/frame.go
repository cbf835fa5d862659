package source

import (
	"tilesched/frame"
	"tilesched/geom"
	"tilesched/tile"
)

// Coverage summarizes how well the source can draw one frame.
type Coverage struct {
	Z     int
	Range geom.TileRange
	// Ready tiles are loaded.
	Ready int
	// Placeholder tiles are not loaded but have a loaded ancestor that can
	// be drawn scaled up instead.
	Placeholder int
	// Missing tiles have nothing to draw yet.
	Missing int
	// Queued counts tiles newly handed to the scheduler.
	Queued int
}

// Complete reports whether every wanted tile is loaded.
func (c Coverage) Complete() bool {
	return c.Placeholder == 0 && c.Missing == 0
}

// PrepareFrame declares on fs every tile the source needs to cover the
// frame extent and queues the idle ones on q.
func (s *Source) PrepareFrame(fs *frame.State, q *tile.Queue) Coverage {
	if fs == nil {
		return Coverage{}
	}
	z := s.grid.ZForResolution(fs.View.Resolution)
	// z comes from the grid itself, so it is always in range.
	res, _ := s.grid.Resolution(z)
	r, _ := s.grid.TileRangeForExtentAndZ(fs.Extent, z)
	if s.extent != nil {
		limit, _ := s.grid.TileRangeForExtentAndZ(*s.extent, z)
		r = intersect(r, limit)
	}

	cov := Coverage{Z: z, Range: r}
	for c := range r.Coords(z) {
		fs.Want(s.key, c)
		t := s.Tile(c)
		switch t.State() {
		case tile.Loaded:
			cov.Ready++
			continue
		case tile.Idle:
			center, _ := s.grid.TileCoordCenter(c)
			if q.Enqueue(fs, t, center, res) {
				cov.Queued++
			}
		}
		if s.hasLoadedAncestor(c) {
			cov.Placeholder++
		} else {
			cov.Missing++
		}
	}
	return cov
}

func (s *Source) hasLoadedAncestor(c geom.TileCoord) bool {
	found, _ := s.grid.ForEachAncestorTileRange(c, func(z int, r geom.TileRange) bool {
		for ac := range r.Coords(z) {
			if t, ok := s.lookup(ac); ok && t.State() == tile.Loaded {
				return true
			}
		}
		return false
	})
	return found
}

func intersect(a, b geom.TileRange) geom.TileRange {
	return geom.TileRange{
		MinX: max(a.MinX, b.MinX),
		MinY: max(a.MinY, b.MinY),
		MaxX: min(a.MaxX, b.MaxX),
		MaxY: min(a.MaxY, b.MaxY),
	}
}

// Prune forgets tiles fs does not want. Unwanted loads in flight are
// aborted on q, idle and failed tiles are dropped (a failed tile wanted
// again later starts over with fresh retries), and loaded tiles are
// evicted only while more than MaxCached are kept. It returns the number of
// tiles removed from the cache and the number of aborted loads.
func (s *Source) Prune(fs *frame.State, q *tile.Queue) (evicted, aborted int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for c, t := range s.tiles {
		if fs.Wants(s.key, c) {
			if t.State() == tile.Loaded {
				loaded++
			}
			continue
		}
		switch t.State() {
		case tile.Loading:
			if q.Abort(t.Key()) {
				aborted++
			}
		case tile.Loaded:
			loaded++
		default:
			if q.Contains(t.Key()) {
				continue
			}
			delete(s.tiles, c)
			delete(s.failures, c)
			evicted++
		}
	}

	if s.maxCached <= 0 || loaded <= s.maxCached {
		return evicted, aborted
	}
	for c, t := range s.tiles {
		if loaded <= s.maxCached {
			break
		}
		if t.State() == tile.Loaded && !fs.Wants(s.key, c) {
			delete(s.tiles, c)
			evicted++
			loaded--
		}
	}
	return evicted, aborted
}
