package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilesched/geom"
)

const testPath = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [0, 0]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 0], [1, 1]]}}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadPath(t *testing.T) {
	ls, err := loadPath(writeFile(t, "path.geojson", testPath))
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 0}, {1, 1}}, ls)

	_, err = loadPath(writeFile(t, "empty.geojson", `{"type": "FeatureCollection", "features": []}`))
	assert.ErrorIs(t, err, errNoPath)

	_, err = loadPath(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestFlight(t *testing.T) {
	f := &flight{
		line:   orb.LineString{{0, 0}, {10, 0}, {10, 10}},
		cum:    []float64{0, 10, 20},
		length: 20,
	}
	approx := cmpopts.EquateApprox(0, 1e-9)
	for _, tc := range []struct {
		d    float64
		want orb.Point
	}{
		{-5, orb.Point{0, 0}},
		{0, orb.Point{0, 0}},
		{4, orb.Point{4, 0}},
		{10, orb.Point{10, 0}},
		{15, orb.Point{10, 5}},
		{25, orb.Point{10, 10}},
	} {
		if diff := cmp.Diff(tc.want, f.At(tc.d), approx); diff != "" {
			t.Errorf("At(%v) mismatch (-want +got):\n%s", tc.d, diff)
		}
	}
	assert.False(t, f.Done(19))
	assert.True(t, f.Done(20))

	g := newFlight(orb.LineString{{0, 0}, {1, 0}})
	assert.InDelta(t, 111319.49, g.length, 0.01)
	assert.Equal(t, orb.Point{0, 0}, g.At(0))
}

func TestInitConf(t *testing.T) {
	err := InitConf(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	err = InitConf(writeFile(t, "nosrc.toml", "[view]\nzoom = 3\n"))
	assert.Error(t, err)

	p := writeFile(t, "conf.toml", `
[view]
zoom = 3

[[sources]]
name = "osm"
url = "http://t/{z}/{x}/{y}.png"
rate = 2.5
`)
	require.NoError(t, InitConf(p))
	assert.Equal(t, 3, conf.View.Zoom)
	assert.Equal(t, 1024, conf.View.Width)
	assert.Equal(t, 16, conf.Task.StaticTotal)
	assert.Equal(t, 2, conf.Task.BusyNew)
	assert.Equal(t, "mbtiles", conf.Store.Format)
	assert.Equal(t, []SourceConf{{Name: "osm", URL: "http://t/{z}/{x}/{y}.png", Rate: 2.5}}, conf.Sources)
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	conf = new(Conf)
	conf.Store.Directory = dir
	sc := SourceConf{Name: "osm", Format: "png"}
	c := geom.TileCoord{Z: 1, X: 1, Y: 0}

	for _, format := range []string{"dir", "mbtiles"} {
		t.Run(format, func(t *testing.T) {
			conf.Store.Format = format
			conf.Store.Journal = true
			st, err := openStore(sc, log)
			require.NoError(t, err)
			require.NoError(t, st.Put(c, []byte("png")))
			require.NoError(t, st.Close())

			conf.Store.Journal = false
			st, err = openStore(sc, log)
			require.NoError(t, err)
			data, ok, err := st.Get(c)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "png", string(data))
			require.NoError(t, st.Close())
		})
	}
	assert.FileExists(t, filepath.Join(dir, "osm.mbtiles"))
	assert.FileExists(t, filepath.Join(dir, "osm.journal"))
	assert.FileExists(t, filepath.Join(dir, "osm", "1", "1", "0.png"))

	conf.Store.Format = "none"
	st, err := openStore(sc, log)
	assert.NoError(t, err)
	assert.Nil(t, st)

	conf.Store.Format = "s3"
	_, err = openStore(sc, log)
	assert.Error(t, err)
}

// runConf points a one-source session at srv with a 256 px view at zoom 3.
func runConf(t *testing.T, srv *httptest.Server) {
	t.Helper()
	SafeExitInst = new(SafeExit)
	log.SetOutput(io.Discard)
	conf = new(Conf)
	conf.Path.Geojson = writeFile(t, "path.geojson", testPath)
	conf.View.Width = 256
	conf.View.Height = 256
	conf.View.Zoom = 3
	conf.View.MaxZoom = 5
	conf.View.FPS = 100
	conf.View.Speed = 1e6
	conf.Task = TaskConf{StaticTotal: 16, StaticNew: 16, BusyTotal: 8, BusyNew: 2, BufSize: 8, Timeout: 5}
	conf.Store.Format = "none"
	conf.Sources = []SourceConf{{Name: "osm", URL: srv.URL + "/{z}/{x}/{y}.png"}}
}

func TestRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, r.URL.Path)
	}))
	defer srv.Close()
	runConf(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := newSession()
	require.NoError(t, err)
	require.NoError(t, s.fly(ctx))

	// The path ends in the first frame, whose view covers 2x2 tiles at
	// zoom 3; every one of them is counted as loaded exactly once.
	assert.Equal(t, 4, s.loaded)
	assert.EqualValues(t, 4, hits.Load())
	assert.True(t, s.queue.IsEmpty())
	assert.Zero(t, s.queue.TilesLoading())
}

func TestRenderFrameCountsDrainedTiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Path)
	}))
	defer srv.Close()
	runConf(t, srv)

	ctx := context.Background()
	s, err := newSession()
	require.NoError(t, err)
	s.renderFrame(ctx, s.view.Frame(time.Now()))
	require.Equal(t, 4, s.queue.TilesLoading())

	// Let every load finish before the next frame drains them.
	deadline := time.Now().Add(5 * time.Second)
	for len(s.queue.Completions()) < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Len(t, s.queue.Completions(), 4)

	s.renderFrame(ctx, s.view.Frame(time.Now()))
	assert.Equal(t, 4, s.loaded)
	assert.Zero(t, s.queue.TilesLoading())
}
