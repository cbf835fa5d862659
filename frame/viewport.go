package frame

import (
	"sync"
	"time"

	"github.com/paulmach/orb"

	"tilesched/geom"
)

// Viewport is the mutable view that frames are taken from. Hints are
// counted, so nested animations and interactions are tracked correctly.
type Viewport struct {
	mu          sync.Mutex
	view        View
	focus       *orb.Point
	animating   int
	interacting int
}

func NewViewport(view View) *Viewport {
	return &Viewport{view: view}
}

func (v *Viewport) View() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

func (v *Viewport) SetCenter(c orb.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view.Center = c
}

func (v *Viewport) SetResolution(r float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view.Resolution = r
}

func (v *Viewport) SetRotation(r float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view.Rotation = r
}

func (v *Viewport) SetSize(s geom.Size) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view.Size = s
}

// SetFocus overrides the focus, typically with the pointer position.
func (v *Viewport) SetFocus(p orb.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.focus = &p
}

// ClearFocus restores the view center as focus, e.g. when the pointer
// leaves the map.
func (v *Viewport) ClearFocus() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.focus = nil
}

func (v *Viewport) BeginAnimation() { v.adjust(&v.animating, 1) }
func (v *Viewport) EndAnimation()   { v.adjust(&v.animating, -1) }

func (v *Viewport) BeginInteraction() { v.adjust(&v.interacting, 1) }
func (v *Viewport) EndInteraction()   { v.adjust(&v.interacting, -1) }

func (v *Viewport) adjust(counter *int, delta int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	*counter = max(0, *counter+delta)
}

func (v *Viewport) Hints() Hints {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hints()
}

func (v *Viewport) hints() Hints {
	var h Hints
	if v.animating > 0 {
		h |= Animating
	}
	if v.interacting > 0 {
		h |= Interacting
	}
	return h
}

// Frame snapshots the viewport into a fresh frame state. It returns nil
// while the view is undefined (no resolution or empty size).
func (v *Viewport) Frame(t time.Time) *State {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !(v.view.Resolution > 0) || v.view.Size.Width <= 0 || v.view.Size.Height <= 0 {
		return nil
	}
	focus := v.view.Center
	if v.focus != nil {
		focus = *v.focus
	}
	return New(t, v.view, focus, v.hints())
}
