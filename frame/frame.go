// Package frame describes what the viewport looks like for one rendered
// frame, and which tiles each source wants for it.
package frame

import (
	"time"

	"github.com/paulmach/orb"

	"tilesched/geom"
)

// Hints describe what the view is doing while a frame is rendered.
type Hints uint8

const (
	Animating Hints = 1 << iota
	Interacting
)

// Has reports whether any of the hints in o are set.
func (h Hints) Has(o Hints) bool { return h&o != 0 }

// Busy reports whether the view is animating or being interacted with.
func (h Hints) Busy() bool { return h.Has(Animating | Interacting) }

func (h Hints) String() string {
	switch {
	case h.Has(Animating) && h.Has(Interacting):
		return "animating|interacting"
	case h.Has(Animating):
		return "animating"
	case h.Has(Interacting):
		return "interacting"
	}
	return "static"
}

// View is the 2D view state: center in map units, resolution in map units
// per pixel, rotation in radians and size in pixels.
type View struct {
	Center     orb.Point
	Resolution float64
	Rotation   float64
	Size       geom.Size
}

// Extent returns the axis aligned extent covering the rotated view.
func (v View) Extent() geom.Extent {
	return geom.ExtentForView(v.Center, v.Resolution, v.Rotation, v.Size)
}

// State is the snapshot of one frame. Sources declare wanted tiles on it
// while the frame is prepared; afterwards it is only read.
type State struct {
	Time   time.Time
	View   View
	Focus  orb.Point
	Extent geom.Extent
	Hints  Hints

	wanted map[string]map[string]struct{}
}

// New builds the state for a frame showing view. Focus is where tile loading
// is centered, usually the view center.
func New(t time.Time, view View, focus orb.Point, hints Hints) *State {
	return &State{
		Time:   t,
		View:   view,
		Focus:  focus,
		Extent: view.Extent(),
		Hints:  hints,
		wanted: make(map[string]map[string]struct{}),
	}
}

// Want records that source needs the tile at c for this frame.
func (s *State) Want(source string, c geom.TileCoord) {
	coords, ok := s.wanted[source]
	if !ok {
		coords = make(map[string]struct{})
		s.wanted[source] = coords
	}
	coords[c.String()] = struct{}{}
}

// Wants reports whether source declared the tile at c. A nil state wants
// nothing.
func (s *State) Wants(source string, c geom.TileCoord) bool {
	if s == nil {
		return false
	}
	coords, ok := s.wanted[source]
	if !ok {
		return false
	}
	_, ok = coords[c.String()]
	return ok
}

// WantedCount returns how many tiles source declared.
func (s *State) WantedCount(source string) int {
	if s == nil {
		return 0
	}
	return len(s.wanted[source])
}

// Sources returns the keys of all sources that declared tiles.
func (s *State) Sources() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.wanted))
	for k := range s.wanted {
		keys = append(keys, k)
	}
	return keys
}

// SameView reports whether prev showed the same view with the same focus.
func (s *State) SameView(prev *State) bool {
	if s == nil || prev == nil {
		return false
	}
	return s.View == prev.View && s.Focus == prev.Focus
}
