package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"tilesched/tile"
)

// LoadTile fetches the tile bytes: from the store when it has them, over
// HTTP otherwise. Fetched tiles are written back to the store; vector tiles
// are stored gzip compressed.
func (s *Source) LoadTile(ctx context.Context, t *tile.Tile) ([]byte, error) {
	c := t.Coord()
	log := s.log.WithFields(logrus.Fields{"z": c.Z, "x": c.X, "y": c.Y})

	if s.store != nil {
		data, ok, err := s.store.Get(c)
		switch {
		case err != nil:
			log.Warnf("read stored tile: %v", err)
		case ok:
			log.Debugf("tile from store, %.2f kb", float32(len(data))/1024.0)
			return data, nil
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	url := s.TileURL(c)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrStatus, url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTile, url)
	}

	if s.format == PBF && !isGzip(body) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		body = buf.Bytes()
	}

	if s.store != nil {
		if err := s.store.Put(c, body); err != nil {
			log.Errorf("store tile: %v", err)
		}
	}

	log.Debugf("%dms, %.2f kb, %s", time.Since(start).Milliseconds(), float32(len(body))/1024.0, url)
	return body, nil
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}
