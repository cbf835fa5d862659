package store

import (
	"fmt"
	"os"
	"path/filepath"

	"tilesched/geom"
)

// Dir stores each tile as <root>/<z>/<x>/<y>.<format>.
type Dir struct {
	root   string
	format string
}

func NewDir(root, format string) (*Dir, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, err
	}
	return &Dir{root: root, format: format}, nil
}

func (d *Dir) path(c geom.TileCoord) string {
	return filepath.Join(d.root, fmt.Sprintf("%d", c.Z), fmt.Sprintf("%d", c.X), fmt.Sprintf("%d.%s", c.Y, d.format))
}

func (d *Dir) Get(c geom.TileCoord) ([]byte, bool, error) {
	data, err := os.ReadFile(d.path(c))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *Dir) Put(c geom.TileCoord, data []byte) error {
	p := d.path(c)
	if err := os.MkdirAll(filepath.Dir(p), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (d *Dir) Close() error { return nil }
