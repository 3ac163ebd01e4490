package nodeindex

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const sparseShards = 64

// SparseCache is an in-memory node index for small extracts, where a dense
// file indexed by node ID would be mostly empty. It can be persisted with
// Save and reloaded with LoadSparse so repeated runs skip nothing.
type SparseCache struct {
	shards [sparseShards]sparseShard
}

type sparseShard struct {
	mu    sync.RWMutex
	nodes map[int64]uint64
}

// snapshotEntry is one record of a gob snapshot
type snapshotEntry struct {
	ID    int64
	Coord uint64
}

// NewSparse returns an empty sparse cache
func NewSparse() *SparseCache {
	c := &SparseCache{}
	for i := range c.shards {
		c.shards[i].nodes = make(map[int64]uint64)
	}
	return c
}

// LoadSparse restores a cache written by Save. A missing file yields an
// empty cache.
func LoadSparse(path string) (*SparseCache, error) {
	c := NewSparse()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to open sparse cache snapshot: %w", err)
	}
	defer f.Close()

	dec := gob.NewDecoder(bufio.NewReader(f))
	for {
		var e snapshotEntry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode sparse cache snapshot: %w", err)
		}
		c.shard(e.ID).nodes[e.ID] = e.Coord
	}
	return c, nil
}

// Save writes the cache contents to path. The snapshot is written to a
// temporary file first and renamed into place.
func (c *SparseCache) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create sparse cache snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := gob.NewEncoder(w)
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for id, coord := range s.nodes {
			if err := enc.Encode(snapshotEntry{ID: id, Coord: coord}); err != nil {
				s.mu.RUnlock()
				tmp.Close()
				return fmt.Errorf("failed to encode sparse cache snapshot: %w", err)
			}
		}
		s.mu.RUnlock()
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write sparse cache snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close sparse cache snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move sparse cache snapshot into place: %w", err)
	}
	return nil
}

// Len returns the number of cached nodes
func (c *SparseCache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.nodes)
		s.mu.RUnlock()
	}
	return n
}

// Accessor returns a handle onto the shared maps
func (c *SparseCache) Accessor() Accessor {
	return sparseAccessor{cache: c}
}

// Close is a no-op; the maps are released with the cache
func (c *SparseCache) Close() error {
	return nil
}

func (c *SparseCache) shard(nodeID int64) *sparseShard {
	return &c.shards[uint64(nodeID)%sparseShards]
}

type sparseAccessor struct {
	cache *SparseCache
}

func (a sparseAccessor) Put(nodeID int64, lat, lon float64) error {
	if nodeID < 0 {
		return nil
	}
	s := a.cache.shard(nodeID)
	s.mu.Lock()
	s.nodes[nodeID] = pack(lat, lon)
	s.mu.Unlock()
	return nil
}

func (a sparseAccessor) Get(nodeID int64) (lat, lon float64, ok bool) {
	if nodeID < 0 {
		return 0, 0, false
	}
	s := a.cache.shard(nodeID)
	s.mu.RLock()
	v, ok := s.nodes[nodeID]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	lat, lon = unpack(v)
	return lat, lon, true
}

func (a sparseAccessor) Close() error {
	return nil
}
