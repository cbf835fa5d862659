package tile

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"tilesched/frame"
	"tilesched/pqueue"
)

// ErrNoLoader is the load error of a tile created without a Loader.
var ErrNoLoader = errors.New("tile: no loader")

// Completion is posted by a finished load.
type Completion struct {
	Tile *Tile
	Data []byte
	Err  error
}

type queued struct {
	tile       *Tile
	center     orb.Point
	resolution float64
}

// Queue schedules tile loads. It owns the pending queue and the count of
// loads in flight; the frame loop calls Reprioritize and LoadMoreTiles once
// per frame and feeds Completions back through Complete.
type Queue struct {
	log         logrus.FieldLogger
	pending     *pqueue.Queue[string, *queued]
	completions chan Completion

	mu        sync.Mutex
	loading   int
	inflight  map[*Tile]struct{}
	listeners []func(*Tile)
}

type Option func(*Queue)

func WithLogger(l logrus.FieldLogger) Option {
	return func(q *Queue) { q.log = l }
}

// WithCompletionBuffer sets how many finished loads may wait for the frame
// loop before loader goroutines block.
func WithCompletionBuffer(n int) Option {
	return func(q *Queue) { q.completions = make(chan Completion, n) }
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		log:      logrus.StandardLogger(),
		pending:  pqueue.New(func(e *queued) string { return e.tile.Key() }),
		inflight: make(map[*Tile]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.completions == nil {
		q.completions = make(chan Completion, 64)
	}
	return q
}

// OnChange registers fn to be called when a wanted tile finishes loading,
// successfully or not.
func (q *Queue) OnChange(fn func(*Tile)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// Enqueue queues an idle tile whose center and level resolution are given,
// prioritized against fs. It reports whether the tile was queued; tiles
// that are not idle, already queued or not wanted by fs are not.
func (q *Queue) Enqueue(fs *frame.State, t *Tile, center orb.Point, resolution float64) bool {
	if t.State() != Idle {
		return false
	}
	e := &queued{tile: t, center: center, resolution: resolution}
	ok, err := q.pending.Enqueue(e, Priority(fs, t, center, resolution))
	return ok && err == nil
}

// Contains reports whether the tile with the given key waits in the queue.
func (q *Queue) Contains(key string) bool { return q.pending.Contains(key) }

// Len returns the number of tiles waiting to load.
func (q *Queue) Len() int { return q.pending.Len() }

func (q *Queue) IsEmpty() bool { return q.pending.IsEmpty() }

// TilesLoading returns the number of loads in flight.
func (q *Queue) TilesLoading() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loading
}

// Reprioritize recomputes every pending priority against fs and drops the
// tiles fs no longer wants. It returns the number of dropped tiles.
func (q *Queue) Reprioritize(fs *frame.State) int {
	dropped := q.pending.Reprioritize(func(e *queued) float64 {
		return Priority(fs, e.tile, e.center, e.resolution)
	})
	if dropped > 0 {
		q.log.Debugf("dropped %d unwanted tiles, %d pending", dropped, q.pending.Len())
	}
	return dropped
}

// LoadMoreTiles starts loading the most urgent pending tiles until
// maxTotalLoading loads are in flight, maxNewLoads loads were started or the
// queue is empty. Loads run on their own goroutines with ctx; each posts
// exactly one Completion. It returns the number of loads started.
func (q *Queue) LoadMoreTiles(ctx context.Context, maxTotalLoading, maxNewLoads int) int {
	started := 0
	for started < maxNewLoads && q.TilesLoading() < maxTotalLoading {
		e, err := q.pending.Dequeue()
		if err != nil {
			break
		}
		t := e.tile
		if !t.transition(Idle, Loading) {
			continue
		}
		q.mu.Lock()
		q.loading++
		q.inflight[t] = struct{}{}
		q.mu.Unlock()
		started++

		go q.load(ctx, t)
	}
	if started > 0 {
		q.log.Debugf("started %d tile loads, %d loading, %d pending", started, q.TilesLoading(), q.pending.Len())
	}
	return started
}

func (q *Queue) load(ctx context.Context, t *Tile) {
	var c Completion
	c.Tile = t
	if t.loader == nil {
		c.Err = ErrNoLoader
	} else {
		c.Data, c.Err = t.loader.LoadTile(ctx, t)
	}
	// Once ctx is done nobody drains the channel anymore.
	select {
	case q.completions <- c:
	case <-ctx.Done():
	}
}

// Completions delivers finished loads. The frame loop passes each one to
// Complete.
func (q *Queue) Completions() <-chan Completion {
	return q.completions
}

// Complete settles a finished load against the current frame. The tile
// moves to Loaded or Error and the loading count drops. Listeners are only
// notified when fs still wants the tile; completions of aborted, unwanted
// or already settled loads are absorbed. It reports whether listeners were
// notified.
func (q *Queue) Complete(fs *frame.State, c Completion) bool {
	t := c.Tile
	key := t.Key()
	entry := q.log.WithField("tile", key)

	q.mu.Lock()
	if _, ok := q.inflight[t]; !ok {
		q.mu.Unlock()
		entry.Debugf("ignoring duplicate completion")
		return false
	}
	delete(q.inflight, t)
	q.loading--
	listeners := q.listeners
	q.mu.Unlock()

	state, ok := t.finish(c.Data, c.Err)
	if !ok {
		entry.Debugf("discarding %s tile", state)
		return false
	}
	if state == Error {
		entry.Warnf("tile load failed: %v", c.Err)
	}
	if !fs.Wants(t.Source(), t.Coord()) {
		entry.Debugf("tile %s but no longer wanted", state)
		return false
	}
	for _, fn := range listeners {
		fn(t)
	}
	return true
}

// Drain settles every completion that is already available without
// blocking and returns how many it handled.
func (q *Queue) Drain(fs *frame.State) int {
	n := 0
	for {
		select {
		case c := <-q.completions:
			q.Complete(fs, c)
			n++
		default:
			return n
		}
	}
}

// Abort cancels the tile with the given key. A pending tile leaves the
// queue and stays idle. A tile in flight becomes Aborted; its load runs to
// completion and the result is discarded. It reports whether anything was
// cancelled.
func (q *Queue) Abort(key string) bool {
	if q.pending.Remove(key) == nil {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	// A reissued coord may have an older aborted load still in flight.
	aborted := false
	for t := range q.inflight {
		if t.Key() == key && t.transition(Loading, Aborted) {
			aborted = true
		}
	}
	return aborted
}
