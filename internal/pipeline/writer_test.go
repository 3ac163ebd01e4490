package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/wegman-software/osm2rdf-go/internal/ttl"
)

func readGz(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	return string(data)
}

func runWriter(t *testing.T, dir string, maxSize int, batches ...[]Statement) WriterStats {
	t.Helper()
	in := make(chan []Statement, len(batches))
	for _, b := range batches {
		in <- b
	}
	close(in)
	stats, err := NewWriter(dir, maxSize).Run(in)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	return stats
}

func create(elem ttl.Element, id, ts int64, body string) Statement {
	return Statement{Kind: Create, Elem: elem, ID: id, Timestamp: ts, Value: []byte(body)}
}

func TestWriterSingleFile(t *testing.T) {
	dir := t.TempDir()
	stats := runWriter(t, dir, 1<<20,
		[]Statement{
			create(ttl.Node, 42, 2000, "osmm:type \"n\".\n"),
			{Kind: Skip},
			{Kind: Delete, Elem: ttl.Way, ID: 5},
		},
		[]Statement{create(ttl.Way, 7, 1000, "osmm:type \"w\".\n")},
	)

	if stats.Files != 2 {
		t.Fatalf("expected data file plus trailer, got %d files", stats.Files)
	}
	if stats.Deletes != 1 {
		t.Errorf("expected 1 delete, got %d", stats.Deletes)
	}
	if stats.MaxTimestamp != 2000 {
		t.Errorf("expected max timestamp 2000, got %d", stats.MaxTimestamp)
	}

	data := readGz(t, filepath.Join(dir, FileName(0)))
	header := string(ttl.Header())
	want := header + "\nosmnode:42\nosmm:type \"n\".\n" + "\nosmway:7\nosmm:type \"w\".\n"
	if data != want {
		t.Errorf("got\n%s\nwant\n%s", data, want)
	}
	if strings.Contains(data, "osmway:5") {
		t.Error("deleted element must not be written")
	}

	trailer := readGz(t, filepath.Join(dir, FileName(1)))
	wantTrailer := header + "\nosmroot: schema:dateModified \"1970-01-01T00:00:02Z\"^^xsd:dateTime.\n"
	if trailer != wantTrailer {
		t.Errorf("trailer got\n%s\nwant\n%s", trailer, wantTrailer)
	}
	if stats.Bytes != int64(len(data)+len(trailer)) {
		t.Errorf("expected %d bytes, got %d", len(data)+len(trailer), stats.Bytes)
	}
}

func TestWriterRotation(t *testing.T) {
	dir := t.TempDir()
	body := strings.Repeat("x", 100)
	stats := runWriter(t, dir, len(ttl.Header())+50, []Statement{
		create(ttl.Node, 1, 10, body),
		create(ttl.Node, 2, 30, body),
		create(ttl.Node, 3, 20, body),
	})

	// Every element crosses the threshold, so each lands in its own file
	if stats.Files != 4 {
		t.Fatalf("expected 3 data files and a trailer, got %d", stats.Files)
	}
	for i, id := range []string{"osmnode:1", "osmnode:2", "osmnode:3"} {
		data := readGz(t, filepath.Join(dir, FileName(i)))
		if !strings.HasPrefix(data, "@prefix ") {
			t.Errorf("file %d missing prefix header", i)
		}
		if strings.Count(data, "\nosmnode:") != 1 || !strings.Contains(data, id) {
			t.Errorf("file %d: expected only %s", i, id)
		}
	}

	trailer := readGz(t, filepath.Join(dir, FileName(3)))
	if !strings.Contains(trailer, "\"1970-01-01T00:00:00.03Z\"^^xsd:dateTime") {
		t.Errorf("expected newest timestamp in trailer, got\n%s", trailer)
	}
}

func TestWriterEmptyInput(t *testing.T) {
	dir := t.TempDir()
	stats := runWriter(t, dir, 1<<20, []Statement{{Kind: Skip}})
	if stats.Files != 1 {
		t.Fatalf("expected only the trailer, got %d files", stats.Files)
	}
	trailer := readGz(t, filepath.Join(dir, FileName(0)))
	if !strings.HasSuffix(trailer, "\nosmroot: schema:dateModified \"1970-01-01T00:00:00Z\"^^xsd:dateTime.\n") {
		t.Errorf("unexpected trailer %q", trailer)
	}
}

func TestWriterMissingDirectory(t *testing.T) {
	in := make(chan []Statement, 1)
	in <- []Statement{create(ttl.Node, 1, 1, "x.\n")}
	close(in)
	if _, err := NewWriter(filepath.Join(t.TempDir(), "missing"), 1<<20).Run(in); err == nil {
		t.Error("expected error for missing output directory")
	}
}
