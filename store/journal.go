package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"tilesched/geom"
)

// Journal wraps a Store and appends the coordinate of every stored tile to
// a log file, one "z-x-y" line each. On the next run the log tells which
// tiles exist without asking the backing store, so lookups of tiles that
// were never stored are answered from memory.
type Journal struct {
	backing Store
	file    *os.File
	log     logrus.FieldLogger

	saveChan chan geom.TileCoord
	done     chan struct{}

	mu       sync.RWMutex
	recorded map[string]struct{}
	closed   bool
}

func journalKey(c geom.TileCoord) string {
	return fmt.Sprintf("%d-%d-%d", c.Z, c.X, c.Y)
}

// OpenJournal opens or creates the journal at path in front of backing.
func OpenJournal(path string, backing Store, log logrus.FieldLogger) (*Journal, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	recorded := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			recorded[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, fmt.Errorf("read journal: %w", err)
	}

	j := &Journal{
		backing:  backing,
		file:     file,
		log:      log,
		saveChan: make(chan geom.TileCoord, 64),
		done:     make(chan struct{}),
		recorded: recorded,
	}
	log.Infof("journal %s: %d tiles recorded", path, len(recorded))
	go j.run()
	return j, nil
}

func (j *Journal) run() {
	defer close(j.done)
	for c := range j.saveChan {
		if _, err := j.file.WriteString(journalKey(c) + "\n"); err != nil {
			j.log.Errorf("write journal: %v", err)
		}
	}
}

// Has reports whether the tile at c was stored through the journal.
func (j *Journal) Has(c geom.TileCoord) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	_, ok := j.recorded[journalKey(c)]
	return ok
}

// Len returns the number of recorded tiles.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.recorded)
}

func (j *Journal) Get(c geom.TileCoord) ([]byte, bool, error) {
	if !j.Has(c) {
		return nil, false, nil
	}
	return j.backing.Get(c)
}

func (j *Journal) Put(c geom.TileCoord, data []byte) error {
	j.mu.RLock()
	closed := j.closed
	j.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := j.backing.Put(c, data); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	key := journalKey(c)
	if _, ok := j.recorded[key]; ok {
		return nil
	}
	j.recorded[key] = struct{}{}
	j.saveChan <- c
	return nil
}

// Close flushes pending records and closes the journal and the backing
// store.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.saveChan)
	j.mu.Unlock()

	<-j.done
	return errors.Join(j.file.Close(), j.backing.Close())
}
