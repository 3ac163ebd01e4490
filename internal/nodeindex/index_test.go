package nodeindex

import (
	"math"
	"path/filepath"
	"sync"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-7
}

func TestPackUnpack(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
	}{
		{name: "Monaco", lat: 43.7384, lon: 7.4246},
		{name: "southwest", lat: -33.8688, lon: -151.2093},
		{name: "extremes", lat: -90, lon: 180},
		{name: "full precision", lat: 51.5074456, lon: -0.1277653},
		{name: "null island", lat: 0, lon: 0},
		{name: "north pole", lat: 90, lon: -180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon := unpack(pack(tt.lat, tt.lon))
			if !almostEqual(lat, tt.lat) || !almostEqual(lon, tt.lon) {
				t.Errorf("got (%v, %v), want (%v, %v)", lat, lon, tt.lat, tt.lon)
			}
			if pack(tt.lat, tt.lon) == 0 {
				t.Error("written slot must never be zero")
			}
		})
	}
}

// exerciseCache runs the same checks against any Cache implementation
func exerciseCache(t *testing.T, c Cache) {
	t.Helper()

	a := c.Accessor()
	defer a.Close()

	if err := a.Put(42, 43.7384, 7.4246); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Put(100000, -12.5, 130.25); err != nil {
		t.Fatalf("put: %v", err)
	}

	lat, lon, ok := a.Get(42)
	if !ok || !almostEqual(lat, 43.7384) || !almostEqual(lon, 7.4246) {
		t.Errorf("Get(42) = (%v, %v, %v)", lat, lon, ok)
	}

	// Second accessor sees writes made through the first
	b := c.Accessor()
	defer b.Close()
	lat, lon, ok = b.Get(100000)
	if !ok || !almostEqual(lat, -12.5) || !almostEqual(lon, 130.25) {
		t.Errorf("Get(100000) via second accessor = (%v, %v, %v)", lat, lon, ok)
	}

	if _, _, ok := a.Get(43); ok {
		t.Error("expected unwritten node to be missing")
	}
	if _, _, ok := a.Get(1 << 40); ok {
		t.Error("expected node beyond the index to be missing")
	}

	// Null Island is a real location, not an empty slot
	if err := a.Put(77, 0, 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	lat, lon, ok = b.Get(77)
	if !ok || lat != 0 || lon != 0 {
		t.Errorf("Get(77) = (%v, %v, %v), want (0, 0, true)", lat, lon, ok)
	}

	if err := a.Put(-5, 1, 1); err != nil {
		t.Errorf("negative id put returned error: %v", err)
	}
	if _, _, ok := a.Get(-5); ok {
		t.Error("expected negative id to be ignored")
	}
}

func TestDenseCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.cache")
	c, err := OpenDense(path, 4096, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	exerciseCache(t, c)
}

func TestDenseCacheGrowsInPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.cache")

	var grows [][2]int64
	c, err := OpenDense(path, 4096, func(oldSize, newSize int64) {
		grows = append(grows, [2]int64{oldSize, newSize})
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	a := c.Accessor()
	defer a.Close()

	// Node 511 is the last slot of the first page
	if err := a.Put(511, 1, 1); err != nil {
		t.Fatal(err)
	}
	if c.Size() != 4096 {
		t.Errorf("expected size 4096, got %d", c.Size())
	}
	if err := a.Put(512, 1, 1); err != nil {
		t.Fatal(err)
	}
	if c.Size() != 8192 {
		t.Errorf("expected size 8192, got %d", c.Size())
	}

	if len(grows) != 2 {
		t.Fatalf("expected 2 grow events, got %d", len(grows))
	}
	if grows[1] != [2]int64{4096, 8192} {
		t.Errorf("unexpected grow event %v", grows[1])
	}
}

func TestDenseCacheReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.cache")

	c, err := OpenDense(path, 4096, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := c.Accessor()
	if err := a.Put(7, 10.5, 20.5); err != nil {
		t.Fatal(err)
	}
	a.Close()
	c.Close()

	c, err = OpenDense(path, 4096, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	a = c.Accessor()
	defer a.Close()

	lat, lon, ok := a.Get(7)
	if !ok || !almostEqual(lat, 10.5) || !almostEqual(lon, 20.5) {
		t.Errorf("expected node to survive reopen, got (%v, %v, %v)", lat, lon, ok)
	}
}

func TestDenseCacheConcurrentAccessors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.cache")
	c, err := OpenDense(path, 4096, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	const workers = 4
	const perWorker = 2000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			a := c.Accessor()
			defer a.Close()
			for i := 0; i < perWorker; i++ {
				id := int64(i*workers + w + 1)
				if err := a.Put(id, float64(id)/1e4, 1); err != nil {
					t.Errorf("put %d: %v", id, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	a := c.Accessor()
	defer a.Close()
	for id := int64(1); id <= workers*perWorker; id++ {
		lat, _, ok := a.Get(id)
		if !ok || !almostEqual(lat, float64(id)/1e4) {
			t.Fatalf("node %d: got (%v, %v)", id, lat, ok)
		}
	}
}

func TestOpenDenseRejectsTinyPage(t *testing.T) {
	if _, err := OpenDense(filepath.Join(t.TempDir(), "x"), 4, nil); err == nil {
		t.Error("expected error for page smaller than one entry")
	}
}

func TestSparseCache(t *testing.T) {
	exerciseCache(t, NewSparse())
}

func TestSparseCacheSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.cache")

	// Missing snapshot yields an empty cache
	c, err := LoadSparse(path)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d nodes", c.Len())
	}

	a := c.Accessor()
	for id := int64(1); id <= 100; id++ {
		if err := a.Put(id, float64(id), -float64(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := LoadSparse(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored.Len() != 100 {
		t.Fatalf("expected 100 nodes, got %d", restored.Len())
	}
	lat, lon, ok := restored.Accessor().Get(37)
	if !ok || !almostEqual(lat, 37) || !almostEqual(lon, -37) {
		t.Errorf("Get(37) = (%v, %v, %v)", lat, lon, ok)
	}
}
