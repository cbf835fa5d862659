package tile

import (
	"context"

	"tilesched/frame"
)

// Budget caps tile loads for one frame.
type Budget struct {
	MaxTotalLoading int
	MaxNewLoads     int
}

var (
	// StaticBudget lets a still view finish its frame as fast as possible.
	StaticBudget = Budget{MaxTotalLoading: 16, MaxNewLoads: 16}
	// BusyBudget keeps loads from causing jank while the view animates or
	// is interacted with, and avoids loading tiles that are about to leave
	// the view.
	BusyBudget = Budget{MaxTotalLoading: 8, MaxNewLoads: 2}
)

// Policy admits tile loads once per rendered frame.
type Policy struct {
	Static Budget
	Busy   Budget
	// AlwaysReprioritize reprioritizes on every tick instead of only after
	// the view moved.
	AlwaysReprioritize bool

	last *frame.State
}

func NewPolicy() *Policy {
	return &Policy{Static: StaticBudget, Busy: BusyBudget}
}

// Budget returns the budget for the frame fs.
func (p *Policy) Budget(fs *frame.State) Budget {
	if fs != nil && fs.Hints.Busy() {
		return p.Busy
	}
	return p.Static
}

// PostRender runs after a frame was rendered: when tiles are pending and
// the loading cap leaves room, it reprioritizes the queue if the view
// changed and starts new loads within the frame's budget. It returns the
// number of loads started.
func (p *Policy) PostRender(ctx context.Context, q *Queue, fs *frame.State) int {
	if q.IsEmpty() {
		return 0
	}
	b := p.Budget(fs)
	if q.TilesLoading() >= b.MaxTotalLoading {
		return 0
	}
	if p.AlwaysReprioritize || p.last == nil || !fs.SameView(p.last) {
		q.Reprioritize(fs)
		p.last = fs
	}
	return q.LoadMoreTiles(ctx, b.MaxTotalLoading, b.MaxNewLoads)
}
