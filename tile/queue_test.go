package tile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilesched/frame"
	"tilesched/geom"
	"tilesched/pqueue"
	"tilesched/tile"
)

const testSource = "test"

var testView = frame.View{
	Center:     orb.Point{0, 0},
	Resolution: 1,
	Size:       geom.Size{Width: 256, Height: 256},
}

func newFrame(hints frame.Hints, coords ...geom.TileCoord) *frame.State {
	fs := frame.New(time.Now(), testView, testView.Center, hints)
	for _, c := range coords {
		fs.Want(testSource, c)
	}
	return fs
}

// gate blocks every load until released.
type gate struct {
	release chan struct{}

	mu      sync.Mutex
	started []string
}

func newGate() *gate { return &gate{release: make(chan struct{})} }

func (g *gate) LoadTile(ctx context.Context, t *tile.Tile) ([]byte, error) {
	g.mu.Lock()
	g.started = append(g.started, t.Key())
	g.mu.Unlock()
	select {
	case <-g.release:
		return []byte(t.Key()), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var instant = tile.LoaderFunc(func(_ context.Context, t *tile.Tile) ([]byte, error) {
	return []byte(t.Key()), nil
})

type pendingTile struct {
	tile   *tile.Tile
	center orb.Point
}

// row builds n tiles at level z along the x axis, 10 map units apart, so
// their priorities increase with x.
func row(n int, loader tile.Loader) []pendingTile {
	tiles := make([]pendingTile, n)
	for i := range tiles {
		c := geom.TileCoord{Z: 5, X: i, Y: 0}
		tiles[i] = pendingTile{
			tile:   tile.New(c, testSource, loader),
			center: orb.Point{float64(i) * 10, 0},
		}
	}
	return tiles
}

func coordsOf(tiles []pendingTile) []geom.TileCoord {
	coords := make([]geom.TileCoord, len(tiles))
	for i, p := range tiles {
		coords[i] = p.tile.Coord()
	}
	return coords
}

func enqueueAll(t *testing.T, q *tile.Queue, fs *frame.State, tiles []pendingTile) {
	t.Helper()
	for _, p := range tiles {
		require.True(t, q.Enqueue(fs, p.tile, p.center, 1), "enqueue %s", p.tile.Key())
	}
}

// settle waits for n completions and hands them to the queue.
func settle(t *testing.T, q *tile.Queue, fs *frame.State, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case c := <-q.Completions():
			q.Complete(fs, c)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for completion %d of %d", i+1, n)
		}
	}
}

func TestPriority(t *testing.T) {
	tl := tile.New(geom.TileCoord{Z: 2, X: 1, Y: 1}, testSource, nil)

	assert.Equal(t, pqueue.Drop, tile.Priority(nil, tl, orb.Point{}, 1))
	assert.Equal(t, pqueue.Drop, tile.Priority(newFrame(0), tl, orb.Point{}, 1))

	fs := newFrame(0, tl.Coord())
	assert.Equal(t, 0.0, tile.Priority(fs, tl, orb.Point{0, 0}, 1))
	assert.InDelta(t, 5.0, tile.Priority(fs, tl, orb.Point{3, 4}, 1), 1e-9)

	// One level finer wins over tens of thousands of pixels of distance.
	fine := tile.Priority(fs, tl, orb.Point{40000, 0}, 1)
	coarse := tile.Priority(fs, tl, orb.Point{0, 0}, 2)
	assert.Less(t, fine, coarse)
}

func TestNearerTileLoadsFirst(t *testing.T) {
	g := newGate()
	near := tile.New(geom.TileCoord{Z: 4, X: 1, Y: 0}, testSource, g)
	far := tile.New(geom.TileCoord{Z: 4, X: 9, Y: 0}, testSource, g)
	fs := newFrame(0, near.Coord(), far.Coord())

	nearP := tile.Priority(fs, near, orb.Point{10, 0}, 1)
	farP := tile.Priority(fs, far, orb.Point{100, 0}, 1)
	assert.Less(t, nearP, farP)

	q := tile.NewQueue()
	require.True(t, q.Enqueue(fs, far, orb.Point{100, 0}, 1))
	require.True(t, q.Enqueue(fs, near, orb.Point{10, 0}, 1))

	ctx := context.Background()
	assert.Equal(t, 1, q.LoadMoreTiles(ctx, 16, 1))
	assert.Equal(t, tile.Loading, near.State())
	assert.Equal(t, tile.Idle, far.State())
	assert.True(t, q.Contains(far.Key()))

	close(g.release)
	settle(t, q, fs, 1)
	assert.Equal(t, tile.Loaded, near.State())
}

func TestLoadMoreTilesRespectsBudget(t *testing.T) {
	g := newGate()
	tiles := row(10, g)
	fs := newFrame(frame.Animating, coordsOf(tiles)...)
	q := tile.NewQueue()
	enqueueAll(t, q, fs, tiles)

	ctx := context.Background()
	assert.Equal(t, 2, q.LoadMoreTiles(ctx, 8, 2))
	for i, p := range tiles {
		want := tile.Idle
		if i < 2 {
			want = tile.Loading
		}
		assert.Equal(t, want, p.tile.State(), "tile %d", i)
	}
	assert.Equal(t, 2, q.TilesLoading())

	for q.TilesLoading() < 8 {
		require.Equal(t, 2, q.LoadMoreTiles(ctx, 8, 2))
	}
	assert.Equal(t, 8, q.TilesLoading())
	assert.Equal(t, 0, q.LoadMoreTiles(ctx, 8, 2))
	assert.Equal(t, 2, q.Len())

	close(g.release)
	settle(t, q, fs, 8)
	assert.Equal(t, 0, q.TilesLoading())
	for _, p := range tiles[:8] {
		assert.Equal(t, tile.Loaded, p.tile.State())
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.ElementsMatch(t, []string{
		"test/5/0/0", "test/5/1/0", "test/5/2/0", "test/5/3/0",
		"test/5/4/0", "test/5/5/0", "test/5/6/0", "test/5/7/0",
	}, g.started)
}

func TestLoadMoreTilesEmptyQueue(t *testing.T) {
	q := tile.NewQueue()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.LoadMoreTiles(context.Background(), 16, 16))
}

func TestEnqueueRejects(t *testing.T) {
	tl := tile.New(geom.TileCoord{Z: 1}, testSource, instant)
	q := tile.NewQueue()

	assert.False(t, q.Enqueue(newFrame(0), tl, orb.Point{}, 1), "unwanted tile")
	assert.False(t, q.Enqueue(nil, tl, orb.Point{}, 1), "no frame")

	fs := newFrame(0, tl.Coord())
	assert.True(t, q.Enqueue(fs, tl, orb.Point{}, 1))
	assert.False(t, q.Enqueue(fs, tl, orb.Point{}, 1), "already queued")

	require.Equal(t, 1, q.LoadMoreTiles(context.Background(), 1, 1))
	assert.False(t, q.Enqueue(fs, tl, orb.Point{}, 1), "loading")
	settle(t, q, fs, 1)
	assert.False(t, q.Enqueue(fs, tl, orb.Point{}, 1), "loaded")
}

func TestReprioritizeDropsUnwanted(t *testing.T) {
	tiles := row(6, instant)
	q := tile.NewQueue()
	enqueueAll(t, q, newFrame(0, coordsOf(tiles)...), tiles)

	// The view moved: only the last two tiles are still wanted.
	fs := newFrame(0, coordsOf(tiles[4:])...)
	assert.Equal(t, 4, q.Reprioritize(fs))
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, 2, q.LoadMoreTiles(context.Background(), 16, 16))
	settle(t, q, fs, 2)
	for i, p := range tiles {
		want := tile.Idle
		if i >= 4 {
			want = tile.Loaded
		}
		assert.Equal(t, want, p.tile.State(), "tile %d", i)
	}

	assert.Equal(t, 0, q.Reprioritize(nil))
}

func TestReprioritizeWithoutFrameEmptiesQueue(t *testing.T) {
	tiles := row(5, instant)
	q := tile.NewQueue()
	enqueueAll(t, q, newFrame(0, coordsOf(tiles)...), tiles)

	assert.Equal(t, 5, q.Reprioritize(nil))
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.LoadMoreTiles(context.Background(), 16, 16))
}

func TestStaleCompletion(t *testing.T) {
	g := newGate()
	c := geom.TileCoord{Z: 3, X: 1, Y: 1}
	tl := tile.New(c, testSource, g)
	q := tile.NewQueue()

	var changed []string
	q.OnChange(func(t *tile.Tile) { changed = append(changed, t.Key()) })

	fs := newFrame(0, c)
	require.True(t, q.Enqueue(fs, tl, orb.Point{}, 1))
	require.Equal(t, 1, q.LoadMoreTiles(context.Background(), 16, 16))

	// The viewport pans away before the load completes.
	panned := newFrame(0, geom.TileCoord{Z: 3, X: 7, Y: 7})
	assert.Equal(t, 0, q.Reprioritize(panned))

	close(g.release)
	var done tile.Completion
	select {
	case done = <-q.Completions():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	assert.NotPanics(t, func() {
		assert.False(t, q.Complete(panned, done))
	})
	assert.Empty(t, changed)
	assert.Equal(t, 0, q.TilesLoading())
	assert.Equal(t, tile.Loaded, tl.State())
	assert.False(t, q.Contains(tl.Key()))

	// Duplicate completions are absorbed too.
	assert.False(t, q.Complete(fs, done))
	assert.Equal(t, 0, q.TilesLoading())
	assert.Empty(t, changed)

	q.Reprioritize(panned)
	assert.True(t, q.IsEmpty())
}

func TestCompletionNotifiesWantedTiles(t *testing.T) {
	tiles := row(3, instant)
	fs := newFrame(0, coordsOf(tiles)...)
	q := tile.NewQueue()

	var mu sync.Mutex
	var changed []string
	q.OnChange(func(t *tile.Tile) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, t.Key())
	})

	enqueueAll(t, q, fs, tiles)
	require.Equal(t, 3, q.LoadMoreTiles(context.Background(), 16, 16))
	settle(t, q, fs, 3)

	assert.ElementsMatch(t, []string{"test/5/0/0", "test/5/1/0", "test/5/2/0"}, changed)
	for _, p := range tiles {
		assert.Equal(t, []byte(p.tile.Key()), p.tile.Data())
	}
}

func TestLoadError(t *testing.T) {
	errBoom := errors.New("boom")
	failing := tile.LoaderFunc(func(context.Context, *tile.Tile) ([]byte, error) {
		return nil, errBoom
	})
	tl := tile.New(geom.TileCoord{Z: 2}, testSource, failing)
	orphan := tile.New(geom.TileCoord{Z: 2, X: 1}, testSource, nil)
	fs := newFrame(0, tl.Coord(), orphan.Coord())

	q := tile.NewQueue()
	notified := 0
	q.OnChange(func(*tile.Tile) { notified++ })

	require.True(t, q.Enqueue(fs, tl, orb.Point{}, 1))
	require.True(t, q.Enqueue(fs, orphan, orb.Point{1, 0}, 1))
	require.Equal(t, 2, q.LoadMoreTiles(context.Background(), 16, 16))
	settle(t, q, fs, 2)

	assert.Equal(t, tile.Error, tl.State())
	assert.ErrorIs(t, tl.Err(), errBoom)
	assert.Equal(t, tile.Error, orphan.State())
	assert.ErrorIs(t, orphan.Err(), tile.ErrNoLoader)
	assert.Nil(t, tl.Data())
	assert.Equal(t, 2, notified)
	assert.Equal(t, 0, q.TilesLoading())
}

func TestAbort(t *testing.T) {
	g := newGate()
	tiles := row(3, g)
	fs := newFrame(0, coordsOf(tiles)...)
	q := tile.NewQueue()

	notified := 0
	q.OnChange(func(*tile.Tile) { notified++ })

	enqueueAll(t, q, fs, tiles)
	require.Equal(t, 1, q.LoadMoreTiles(context.Background(), 16, 1))
	inflight, pending := tiles[0].tile, tiles[2].tile

	assert.True(t, q.Abort(pending.Key()))
	assert.False(t, q.Contains(pending.Key()))
	assert.Equal(t, tile.Idle, pending.State())

	assert.True(t, q.Abort(inflight.Key()))
	assert.Equal(t, tile.Aborted, inflight.State())
	assert.Equal(t, 1, q.TilesLoading(), "aborted load still holds its slot")
	assert.False(t, q.Abort(inflight.Key()))
	assert.False(t, q.Abort("test/9/9/9"))

	close(g.release)
	settle(t, q, fs, 1)
	assert.Equal(t, tile.Aborted, inflight.State())
	assert.Nil(t, inflight.Data())
	assert.Equal(t, 0, q.TilesLoading())
	assert.Equal(t, 0, notified)
	assert.Equal(t, 1, q.Len())
}

func TestDrain(t *testing.T) {
	tiles := row(4, instant)
	fs := newFrame(0, coordsOf(tiles)...)
	q := tile.NewQueue(tile.WithCompletionBuffer(4))
	enqueueAll(t, q, fs, tiles)
	require.Equal(t, 4, q.LoadMoreTiles(context.Background(), 16, 16))

	handled := 0
	deadline := time.Now().Add(5 * time.Second)
	for handled < 4 && time.Now().Before(deadline) {
		handled += q.Drain(fs)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 4, handled)
	assert.Equal(t, 0, q.TilesLoading())
	assert.Equal(t, 0, q.Drain(fs))
}

func TestAbortThenReissueSameCoord(t *testing.T) {
	g := newGate()
	c := geom.TileCoord{Z: 3, X: 1, Y: 1}
	fs := newFrame(0, c)
	q := tile.NewQueue()

	notified := 0
	q.OnChange(func(*tile.Tile) { notified++ })

	old := tile.New(c, testSource, g)
	require.True(t, q.Enqueue(fs, old, orb.Point{}, 1))
	require.Equal(t, 1, q.LoadMoreTiles(context.Background(), 16, 16))
	require.True(t, q.Abort(old.Key()))

	fresh := tile.New(c, testSource, g)
	require.True(t, q.Enqueue(fs, fresh, orb.Point{}, 1))
	require.Equal(t, 1, q.LoadMoreTiles(context.Background(), 16, 16))
	assert.Equal(t, 2, q.TilesLoading())

	close(g.release)
	settle(t, q, fs, 2)
	assert.Equal(t, 0, q.TilesLoading())
	assert.Equal(t, tile.Aborted, old.State())
	assert.Equal(t, tile.Loaded, fresh.State())
	assert.Equal(t, 1, notified)
}
