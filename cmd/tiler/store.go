package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"tilesched/store"
)

// openStore opens the tile store of one source as configured in [store].
// It returns a nil Store when storing is disabled.
func openStore(sc SourceConf, log logrus.FieldLogger) (store.Store, error) {
	dir := conf.Store.Directory
	var st store.Store
	switch conf.Store.Format {
	case "", "none":
		return nil, nil
	case "dir":
		d, err := store.NewDir(filepath.Join(dir, sc.Name), sc.Format)
		if err != nil {
			return nil, err
		}
		st = d
	case "mbtiles":
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
		m, err := store.OpenMBTiles(filepath.Join(dir, sc.Name+".mbtiles"), map[string]string{
			"name":        sc.Name,
			"format":      sc.Format,
			"type":        "baselayer",
			"version":     conf.App.Version,
			"description": conf.App.Title,
		}, log)
		if err != nil {
			return nil, err
		}
		st = m
	default:
		return nil, fmt.Errorf("unknown store format %q", conf.Store.Format)
	}

	if !conf.Store.Journal {
		return st, nil
	}
	j, err := store.OpenJournal(filepath.Join(dir, sc.Name+".journal"), st, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	return j, nil
}
