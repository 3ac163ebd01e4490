// Package ttl renders OSM elements as Turtle statement blocks.
//
// Each element becomes one block of the form
//
//	osmnode:42
//	osmt:name "Cafe";
//	osmm:loc "Point(13.4 52.5)"^^geo:wktLiteral;
//	osmm:type "n";
//	osmm:version "3"^^xsd:integer;
//	...
//	osmm:changeset "123"^^xsd:integer.
//
// The subject line is written by the output writer; this package produces the
// predicate/object body.
package ttl

import (
	"fmt"

	"github.com/paulmach/osm"
)

// Element identifies the kind of an OSM element
type Element uint8

const (
	Node Element = iota
	Way
	Relation
)

// Namespace returns the prefix used for element subjects
func (e Element) Namespace() string {
	switch e {
	case Way:
		return "osmway"
	case Relation:
		return "osmrel"
	default:
		return "osmnode"
	}
}

// Code returns the single-letter type marker
func (e Element) Code() byte {
	switch e {
	case Way:
		return 'w'
	case Relation:
		return 'r'
	default:
		return 'n'
	}
}

func (e Element) String() string {
	switch e {
	case Way:
		return "way"
	case Relation:
		return "relation"
	default:
		return "node"
	}
}

// ElementFromType maps an osm member type onto an Element
func ElementFromType(t osm.Type) (Element, error) {
	switch t {
	case osm.TypeNode:
		return Node, nil
	case osm.TypeWay:
		return Way, nil
	case osm.TypeRelation:
		return Relation, nil
	}
	return 0, fmt.Errorf("unsupported member type %q", t)
}

// Prefix is a Turtle namespace declaration
type Prefix struct {
	Name string
	IRI  string
}

// Prefixes lists every namespace used in generated output
var Prefixes = []Prefix{
	{"wd", "http://www.wikidata.org/entity/"},
	{"xsd", "http://www.w3.org/2001/XMLSchema#"},
	{"geo", "http://www.opengis.net/ont/geosparql#"},
	{"schema", "http://schema.org/"},
	{"osmroot", "https://www.openstreetmap.org"},
	{"osmnode", "https://www.openstreetmap.org/node/"},
	{"osmway", "https://www.openstreetmap.org/way/"},
	{"osmrel", "https://www.openstreetmap.org/relation/"},
	{"osmt", "https://wiki.openstreetmap.org/wiki/Key:"},
	{"osmm", "https://www.openstreetmap.org/meta/"},
}

// Header returns the prefix block written at the top of every output file
func Header() []byte {
	var buf []byte
	for _, p := range Prefixes {
		buf = append(buf, "@prefix "...)
		buf = append(buf, p.Name...)
		buf = append(buf, ": <"...)
		buf = append(buf, p.IRI...)
		buf = append(buf, ">.\n"...)
	}
	return buf
}

// Info carries the per-element metadata rendered by Finalize
type Info struct {
	Deleted   bool
	Version   int
	User      string
	Timestamp int64 // milliseconds since the Unix epoch
	Changeset int64
}
