package nodeindex

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// GrowFunc is notified whenever the dense cache file is extended
type GrowFunc func(oldSize, newSize int64)

// DenseCache is a file-backed node index sized for planet imports.
// Node coordinates are stored at offset = nodeID * 8, giving O(1) lookup.
// The file is extended in pageSize steps on demand. On Linux the unwritten
// ranges stay sparse, so disk usage follows the nodes actually stored.
type DenseCache struct {
	file     *os.File
	pageSize int64
	onGrow   GrowFunc

	mu   sync.Mutex
	size int64
}

// OpenDense opens (or creates) a dense cache file. An existing file is reused,
// so a planet cache survives between runs.
func OpenDense(path string, pageSize int64, onGrow GrowFunc) (*DenseCache, error) {
	if pageSize < entrySize {
		return nil, fmt.Errorf("page size %d is smaller than one entry", pageSize)
	}
	// Round the page size to whole entries so slots never straddle a page
	pageSize -= pageSize % entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open dense cache file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat dense cache file: %w", err)
	}

	return &DenseCache{
		file:     f,
		pageSize: pageSize,
		onGrow:   onGrow,
		size:     info.Size(),
	}, nil
}

// Size returns the current length of the backing file
func (c *DenseCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Accessor returns a new accessor with its own view of the file
func (c *DenseCache) Accessor() Accessor {
	return &denseAccessor{cache: c}
}

// Close closes the backing file
func (c *DenseCache) Close() error {
	return c.file.Close()
}

// grow extends the file so it holds at least need bytes and returns the new size
func (c *DenseCache) grow(need int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if need <= c.size {
		return c.size, nil
	}

	newSize := (need + c.pageSize - 1) / c.pageSize * c.pageSize
	if err := c.file.Truncate(newSize); err != nil {
		return 0, fmt.Errorf("failed to grow dense cache to %d bytes: %w", newSize, err)
	}

	oldSize := c.size
	c.size = newSize
	if c.onGrow != nil {
		c.onGrow(oldSize, newSize)
	}
	return newSize, nil
}

// denseAccessor maps the shared file privately. Mappings are MAP_SHARED, so
// every accessor sees the same pages; only the mapped length differs, and each
// accessor remaps itself when it needs a slot beyond its current view.
type denseAccessor struct {
	cache *DenseCache
	data  mmap.MMap
}

// Put stores a node's coordinates, growing the file if needed
func (a *denseAccessor) Put(nodeID int64, lat, lon float64) error {
	if nodeID < 0 {
		return nil // Negative IDs only appear in unsaved editor data
	}

	offset := nodeID * entrySize
	if offset+entrySize > int64(len(a.data)) {
		size, err := a.cache.grow(offset + entrySize)
		if err != nil {
			return err
		}
		if err := a.remap(size); err != nil {
			return err
		}
	}

	atomic.StoreUint64(a.slot(offset), pack(lat, lon))
	return nil
}

// Get retrieves a node's coordinates.
// Returns (0, 0, false) if the node was never written.
func (a *denseAccessor) Get(nodeID int64) (lat, lon float64, ok bool) {
	if nodeID < 0 {
		return 0, 0, false
	}

	offset := nodeID * entrySize
	if offset+entrySize > int64(len(a.data)) {
		// Another accessor may have grown the file since we mapped it
		size := a.cache.Size()
		if offset+entrySize > size {
			return 0, 0, false
		}
		if err := a.remap(size); err != nil {
			return 0, 0, false
		}
	}

	v := atomic.LoadUint64(a.slot(offset))
	if v == 0 {
		return 0, 0, false
	}
	lat, lon = unpack(v)
	return lat, lon, true
}

// Close flushes and unmaps the accessor's view
func (a *denseAccessor) Close() error {
	if a.data == nil {
		return nil
	}
	data := a.data
	a.data = nil
	if err := data.Flush(); err != nil {
		data.Unmap()
		return fmt.Errorf("failed to flush dense cache: %w", err)
	}
	return data.Unmap()
}

func (a *denseAccessor) slot(offset int64) *uint64 {
	return (*uint64)(unsafe.Pointer(&a.data[offset]))
}

// remap replaces the accessor's view with one covering size bytes
func (a *denseAccessor) remap(size int64) error {
	if a.data != nil {
		if err := a.data.Unmap(); err != nil {
			return fmt.Errorf("failed to unmap dense cache: %w", err)
		}
		a.data = nil
	}

	data, err := mmap.MapRegion(a.cache.file, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap dense cache: %w", err)
	}
	a.data = data
	return nil
}
