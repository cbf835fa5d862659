package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

var errNoPath = errors.New("no LineString in path")

// loadPath reads the first LineString of a GeoJSON file. Coordinates are
// longitude/latitude.
func loadPath(path string) (orb.LineString, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal feature: %w", err)
	}
	for _, f := range fc.Features {
		if ls, ok := f.Geometry.(orb.LineString); ok && len(ls) > 0 {
			return ls, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", path, errNoPath)
}

// pathTiles counts the tiles the path crosses at zoom z.
func pathTiles(ls orb.LineString, z int) int64 {
	return tilecover.CollectionCount(orb.Collection{ls}, maptile.Zoom(z))
}

// flight moves a point along a line at constant speed.
type flight struct {
	line   orb.LineString // web mercator
	cum    []float64      // distance from the start to each vertex
	length float64
}

func newFlight(lonlat orb.LineString) *flight {
	f := &flight{
		line: make(orb.LineString, len(lonlat)),
		cum:  make([]float64, len(lonlat)),
	}
	for i, p := range lonlat {
		f.line[i] = project.Point(p, project.WGS84.ToMercator)
		if i > 0 {
			f.length += planar.Distance(f.line[i-1], f.line[i])
		}
		f.cum[i] = f.length
	}
	return f
}

// At returns the position d map units along the line, clamped to its ends.
func (f *flight) At(d float64) orb.Point {
	if d <= 0 {
		return f.line[0]
	}
	for i := 1; i < len(f.line); i++ {
		if d > f.cum[i] {
			continue
		}
		seg := f.cum[i] - f.cum[i-1]
		if seg == 0 {
			return f.line[i]
		}
		t := (d - f.cum[i-1]) / seg
		a, b := f.line[i-1], f.line[i]
		return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
	}
	return f.line[len(f.line)-1]
}

func (f *flight) Done(d float64) bool { return d >= f.length }
