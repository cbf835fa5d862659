// Package source provides XYZ/TMS tile layer sources: they declare the
// tiles a frame needs, own those tiles and fetch them over HTTP.
package source

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	"golang.org/x/time/rate"

	"tilesched/geom"
	"tilesched/store"
	"tilesched/tile"
	"tilesched/tilegrid"
)

// Tile formats
const (
	PNG  = "png"
	JPG  = "jpg"
	PBF  = "pbf"
	WEBP = "webp"
)

// Row numbering schemes of tile URLs
const (
	SchemeXYZ = "xyz" // rows counted from the top
	SchemeTMS = "tms" // rows counted from the bottom
)

var (
	ErrInvalidOptions = errors.New("source: invalid options")
	ErrStatus         = errors.New("source: unexpected status")
	ErrEmptyTile      = errors.New("source: empty tile")
)

type Options struct {
	// Key identifies the source in frame states; generated when empty.
	Key string
	// URL template with {z}, {x} and {y} or {-y} placeholders. {-y} is the
	// row in the opposite scheme.
	URL    string
	Grid   *tilegrid.TileGrid
	Format string
	Scheme string
	// Extent limits the tiles the source declares, e.g. to the world.
	Extent  *geom.Extent
	Client  *http.Client
	Limiter *rate.Limiter
	Store   store.Store
	Logger  logrus.FieldLogger
	// MaxCached bounds the number of loaded tiles kept for placeholders.
	MaxCached int
	// Retries is how many times a failed tile is loaded again while it
	// stays cached.
	Retries int
}

// Source is a tiled layer source. It implements tile.Loader for its own
// tiles.
type Source struct {
	key       string
	url       string
	format    string
	scheme    string
	grid      *tilegrid.TileGrid
	extent    *geom.Extent
	client    *http.Client
	limiter   *rate.Limiter
	store     store.Store
	log       logrus.FieldLogger
	maxCached int
	retries   int

	mu       sync.Mutex
	tiles    map[geom.TileCoord]*tile.Tile
	failures map[geom.TileCoord]int
}

var _ tile.Loader = (*Source)(nil)

func New(opts Options) (*Source, error) {
	if opts.Grid == nil {
		return nil, fmt.Errorf("%w: no tile grid", ErrInvalidOptions)
	}
	for _, p := range []string{"{z}", "{x}"} {
		if !strings.Contains(opts.URL, p) {
			return nil, fmt.Errorf("%w: placeholder %s not found in %q", ErrInvalidOptions, p, opts.URL)
		}
	}
	if !strings.Contains(opts.URL, "{y}") && !strings.Contains(opts.URL, "{-y}") {
		return nil, fmt.Errorf("%w: placeholder {y} not found in %q", ErrInvalidOptions, opts.URL)
	}

	s := &Source{
		key:       opts.Key,
		url:       opts.URL,
		format:    opts.Format,
		scheme:    opts.Scheme,
		grid:      opts.Grid,
		extent:    opts.Extent,
		client:    opts.Client,
		limiter:   opts.Limiter,
		store:     opts.Store,
		log:       opts.Logger,
		maxCached: opts.MaxCached,
		retries:   opts.Retries,
		tiles:     make(map[geom.TileCoord]*tile.Tile),
		failures:  make(map[geom.TileCoord]int),
	}
	switch s.scheme {
	case "":
		s.scheme = SchemeXYZ
	case SchemeXYZ, SchemeTMS:
	default:
		return nil, fmt.Errorf("%w: unknown scheme %q", ErrInvalidOptions, s.scheme)
	}
	if s.key == "" {
		id, err := shortid.Generate()
		if err != nil {
			return nil, err
		}
		s.key = id
	}
	if s.format == "" {
		s.format = PNG
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.log = s.log.WithField("source", s.key)
	return s, nil
}

func (s *Source) Key() string { return s.key }

func (s *Source) Grid() *tilegrid.TileGrid { return s.grid }

// TileURL expands the URL template for the tile at c.
func (s *Source) TileURL(c geom.TileCoord) string {
	tms := c.Y
	xyz := (1 << uint(c.Z)) - 1 - c.Y
	y, flipped := xyz, tms
	if s.scheme == SchemeTMS {
		y, flipped = tms, xyz
	}
	url := strings.Replace(s.url, "{x}", strconv.Itoa(c.X), -1)
	url = strings.Replace(url, "{-y}", strconv.Itoa(flipped), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(y), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(c.Z), -1)
	return url
}

// Tile returns the cached tile at c, creating it when absent. An aborted
// tile is replaced by a fresh one, and so is a failed tile until it has
// used up its retries.
func (s *Source) Tile(c geom.TileCoord) *tile.Tile {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tiles[c]
	if ok {
		switch t.State() {
		case tile.Aborted:
		case tile.Error:
			if s.failures[c] >= s.retries {
				return t
			}
			s.failures[c]++
		default:
			return t
		}
	}
	t = tile.New(c, s.key, s)
	s.tiles[c] = t
	return t
}

func (s *Source) lookup(c geom.TileCoord) (*tile.Tile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiles[c]
	return t, ok
}

// Len returns the number of cached tiles.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}
