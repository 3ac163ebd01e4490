package pipeline

import (
	"context"
	"fmt"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2rdf-go/internal/geom"
	"github.com/wegman-software/osm2rdf-go/internal/logger"
	"github.com/wegman-software/osm2rdf-go/internal/nodeindex"
	"github.com/wegman-software/osm2rdf-go/internal/pbf"
	"github.com/wegman-software/osm2rdf-go/internal/ttl"
)

// TagFilter rewrites an element's tags before rendering
type TagFilter interface {
	FilterTags(kind string, id int64, tags osm.Tags) (osm.Tags, bool, error)
}

// EmitFunc hands a batch of statements to the writer
type EmitFunc func(ctx context.Context, batch []Statement) error

// Worker turns element groups into statements. A Worker is owned by one
// goroutine at a time and is reused across groups.
type Worker struct {
	cache     nodeindex.Accessor
	filter    TagFilter
	batchSize int
	builder   *ttl.Builder
	stats     Stats
	lats      []float64
	lons      []float64
	log       *zap.Logger
}

// NewWorker creates a worker reading and writing coordinates through cache.
// filter may be nil.
func NewWorker(cache nodeindex.Accessor, filter TagFilter, batchSize int) *Worker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Worker{
		cache:     cache,
		filter:    filter,
		batchSize: batchSize,
		builder:   ttl.NewBuilder(4096),
		log:       logger.Named("worker"),
	}
}

// Process renders every element of g and emits the statements in batches.
// A batch is flushed once it grows past the batch size; the remainder is
// flushed when the group is done.
func (w *Worker) Process(ctx context.Context, g *pbf.Group, emit EmitFunc) error {
	batch := make([]Statement, 0, w.batchSize+1)
	push := func(s Statement) error {
		batch = append(batch, s)
		if len(batch) > w.batchSize {
			if err := emit(ctx, batch); err != nil {
				return err
			}
			batch = make([]Statement, 0, w.batchSize+1)
		}
		return nil
	}

	for _, n := range g.Nodes {
		s, err := w.node(n)
		if err != nil {
			return err
		}
		if err := push(s); err != nil {
			return err
		}
	}
	for _, way := range g.Ways {
		s, err := w.way(way)
		if err != nil {
			return err
		}
		if err := push(s); err != nil {
			return err
		}
	}
	for _, r := range g.Relations {
		s, err := w.relation(r)
		if err != nil {
			return err
		}
		if err := push(s); err != nil {
			return err
		}
	}

	if len(batch) > 0 {
		return emit(ctx, batch)
	}
	return nil
}

// Finish returns the stats gathered since the previous Finish and resets them.
// Each call accounts for one processed group.
func (w *Worker) Finish() Stats {
	s := w.stats
	s.Blocks = 1
	w.stats = Stats{}
	return s
}

func (w *Worker) node(n *osm.Node) (Statement, error) {
	id := int64(n.ID)
	info := pbf.NodeInfo(n)
	if info.Deleted {
		w.stats.DeletedNodes++
		return Statement{Kind: Delete, Elem: ttl.Node, ID: id}, nil
	}

	if err := w.cache.Put(id, n.Lat, n.Lon); err != nil {
		return Statement{}, fmt.Errorf("failed to cache node %d: %w", id, err)
	}

	if err := w.addTags(ttl.Node, id, n.Tags); err != nil {
		return Statement{}, err
	}
	if w.builder.Empty() {
		w.stats.SkippedNodes++
		return Statement{Kind: Skip}, nil
	}

	w.builder.AddPoint(n.Lat, n.Lon)
	w.builder.AddType(ttl.Node)
	w.stats.AddedNodes++
	return w.create(ttl.Node, id, info), nil
}

func (w *Worker) way(way *osm.Way) (Statement, error) {
	id := int64(way.ID)
	info := pbf.WayInfo(way)
	if info.Deleted {
		w.stats.DeletedWays++
		return Statement{Kind: Delete, Elem: ttl.Way, ID: id}, nil
	}

	if err := w.addTags(ttl.Way, id, way.Tags); err != nil {
		return Statement{}, err
	}
	w.builder.AddType(ttl.Way)
	w.addWayGeometry(way.Nodes)

	w.stats.AddedWays++
	return w.create(ttl.Way, id, info), nil
}

// addWayGeometry renders isClosed and the line centroid. Geometry problems
// are recorded on the element as osmm:loc:error.
func (w *Worker) addWayGeometry(nodes osm.WayNodes) {
	w.lats = w.lats[:0]
	w.lons = w.lons[:0]
	for _, wn := range nodes {
		lat, lon, ok := w.cache.Get(int64(wn.ID))
		if !ok {
			// Closedness is still known from the node references
			closed := len(nodes) > 1 && nodes[0].ID == nodes[len(nodes)-1].ID
			w.builder.AddBool("osmm:isClosed", closed)
			w.builder.AddString("osmm:loc:error", fmt.Sprintf("missing coordinates for node %d", wn.ID))
			return
		}
		w.lats = append(w.lats, lat)
		w.lons = append(w.lons, lon)
	}

	closed, center, err := geom.Analyze(geom.Line(w.lats, w.lons))
	w.builder.AddBool("osmm:isClosed", closed)
	if err != nil {
		w.builder.AddString("osmm:loc:error", err.Error())
		return
	}
	w.builder.AddPoint(center.Lat(), center.Lon())
}

func (w *Worker) relation(r *osm.Relation) (Statement, error) {
	id := int64(r.ID)
	info := pbf.RelationInfo(r)
	if info.Deleted {
		w.stats.DeletedRelations++
		return Statement{Kind: Delete, Elem: ttl.Relation, ID: id}, nil
	}

	if err := w.addTags(ttl.Relation, id, r.Tags); err != nil {
		return Statement{}, err
	}
	w.builder.AddType(ttl.Relation)

	for _, m := range r.Members {
		elem, err := ttl.ElementFromType(m.Type)
		if err != nil {
			w.log.Debug("Skipping relation member", zap.Int64("relation", id), zap.Error(err))
			continue
		}
		w.builder.AddMember(elem, m.Ref, m.Role)
	}

	w.stats.AddedRelations++
	return w.create(ttl.Relation, id, info), nil
}

func (w *Worker) addTags(elem ttl.Element, id int64, tags osm.Tags) error {
	if w.filter != nil {
		filtered, _, err := w.filter.FilterTags(elem.String(), id, tags)
		if err != nil {
			return err
		}
		tags = filtered
	}
	w.builder.AddTags(tags)
	return nil
}

func (w *Worker) create(elem ttl.Element, id int64, info ttl.Info) Statement {
	return Statement{
		Kind:      Create,
		Elem:      elem,
		ID:        id,
		Timestamp: info.Timestamp,
		Value:     w.builder.Finalize(info),
	}
}
