// Package pbf reads OSM PBF files as a sequence of element groups.
package pbf

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/wegman-software/osm2rdf-go/internal/ttl"
)

// Scanner is the part of *osmpbf.Scanner the reader depends on
type Scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// Group is a batch of consecutive elements handed to a single worker.
// Elements inside a group are processed nodes first, then ways, then relations.
type Group struct {
	Nodes     []*osm.Node
	Ways      []*osm.Way
	Relations []*osm.Relation
}

// Len returns the number of elements in the group
func (g *Group) Len() int {
	return len(g.Nodes) + len(g.Ways) + len(g.Relations)
}

// HasDependents reports whether the group holds elements that read node
// coordinates from the cache
func (g *Group) HasDependents() bool {
	return len(g.Ways) > 0 || len(g.Relations) > 0
}

// Reader batches scanned elements into groups
type Reader struct {
	scanner   Scanner
	groupSize int
	file      *os.File
	size      int64
}

// Open starts decoding the PBF file at path using procs decoder goroutines
func Open(ctx context.Context, path string, groupSize, procs int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}

	r := NewReader(osmpbf.New(ctx, f, procs), groupSize)
	r.file = f
	r.size = info.Size()
	return r, nil
}

// NewReader wraps an already configured scanner
func NewReader(scanner Scanner, groupSize int) *Reader {
	if groupSize < 1 {
		groupSize = 1
	}
	return &Reader{scanner: scanner, groupSize: groupSize}
}

// Next returns the next group of up to groupSize elements.
// io.EOF is returned once the input is exhausted.
func (r *Reader) Next(ctx context.Context) (*Group, error) {
	g := &Group{}
	n := 0
	for n < r.groupSize {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !r.scanner.Scan() {
			break
		}
		switch o := r.scanner.Object().(type) {
		case *osm.Node:
			g.Nodes = append(g.Nodes, o)
		case *osm.Way:
			g.Ways = append(g.Ways, o)
		case *osm.Relation:
			g.Relations = append(g.Relations, o)
		default:
			continue
		}
		n++
	}

	if n > 0 {
		return g, nil
	}
	if err := r.scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return nil, io.EOF
}

// Size returns the input file size in bytes, or 0 for a wrapped scanner
func (r *Reader) Size() int64 {
	return r.size
}

// ScannedBytes returns how far into the input the decoder has progressed
func (r *Reader) ScannedBytes() int64 {
	if s, ok := r.scanner.(interface{ FullyScannedBytes() int64 }); ok {
		return s.FullyScannedBytes()
	}
	return 0
}

// Close stops the decoder and closes the input file
func (r *Reader) Close() error {
	err := r.scanner.Close()
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NodeInfo extracts the rendered metadata of a node
func NodeInfo(n *osm.Node) ttl.Info {
	return info(n.Visible, n.Version, n.User, n.Timestamp, n.ChangesetID)
}

// WayInfo extracts the rendered metadata of a way
func WayInfo(w *osm.Way) ttl.Info {
	return info(w.Visible, w.Version, w.User, w.Timestamp, w.ChangesetID)
}

// RelationInfo extracts the rendered metadata of a relation
func RelationInfo(r *osm.Relation) ttl.Info {
	return info(r.Visible, r.Version, r.User, r.Timestamp, r.ChangesetID)
}

func info(visible bool, version int, user string, ts time.Time, changeset osm.ChangesetID) ttl.Info {
	var ms int64
	if !ts.IsZero() {
		ms = ts.UnixMilli()
	}
	return ttl.Info{
		Deleted:   !visible,
		Version:   version,
		User:      user,
		Timestamp: ms,
		Changeset: int64(changeset),
	}
}
