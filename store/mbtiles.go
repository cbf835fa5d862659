package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"tilesched/geom"
)

// MBTiles stores tiles in an MBTiles sqlite database. Rows are TMS rows,
// which are the grid rows of a bottom-left origin grid.
type MBTiles struct {
	db  *sql.DB
	get *sql.Stmt
	put *sql.Stmt
	log logrus.FieldLogger
}

// OpenMBTiles opens or creates the database at path and merges metadata
// into its metadata table.
func OpenMBTiles(path string, metadata map[string]string, log logrus.FieldLogger) (m *MBTiles, err error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (name TEXT PRIMARY KEY, value TEXT);
		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER,
			tile_column INTEGER,
			tile_row INTEGER,
			tile_data BLOB
		);
		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
	`)
	if err != nil {
		return nil, fmt.Errorf("create mbtiles schema: %w", err)
	}

	for k, v := range metadata {
		if _, err = db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", k, v); err != nil {
			return nil, err
		}
	}

	get, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		return nil, err
	}
	put, err := db.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		get.Close()
		return nil, err
	}
	log.Debugf("opened mbtiles %s", path)
	return &MBTiles{db: db, get: get, put: put, log: log}, nil
}

func (m *MBTiles) Get(c geom.TileCoord) ([]byte, bool, error) {
	var data []byte
	err := m.get.QueryRow(c.Z, c.X, c.Y).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *MBTiles) Put(c geom.TileCoord, data []byte) error {
	_, err := m.put.Exec(c.Z, c.X, c.Y, data)
	return err
}

// Metadata returns the metadata table.
func (m *MBTiles) Metadata() (map[string]string, error) {
	rows, err := m.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}
	return metadata, rows.Err()
}

func (m *MBTiles) Close() error {
	return errors.Join(m.get.Close(), m.put.Close(), m.db.Close())
}
