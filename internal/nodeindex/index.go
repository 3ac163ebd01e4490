// Package nodeindex stores node coordinates so way geometry can be resolved
// from node references.
//
// Coordinates are kept as fixed-point pairs (degrees * 1e7), packed into a
// single uint64 slot per node. Latitude is stored shifted so the high word of
// a written slot is never zero, which leaves an all-zero slot free to mean
// "not written". A Cache is shared by every worker of a run;
// each worker obtains its own Accessor. Accessors may be used concurrently
// without external locking. Reading a node before any worker has written it
// is the caller's problem: Get reports ok=false and zero coordinates.
package nodeindex

import "math"

const (
	// Each node entry: lat (int32) + lon (int32) = 8 bytes
	entrySize = 8
	// Fixed-point scale (7 decimal places, the precision of OSM data)
	coordScale = 1e7
	// Added to the scaled latitude; maps -90° to 1
	latOffset = 90*coordScale + 1
)

// Cache owns the backing store for node coordinates
type Cache interface {
	// Accessor returns a handle for one worker.
	Accessor() Accessor
	// Close releases the backing store. Accessors must be closed first.
	Close() error
}

// Accessor reads and writes node coordinates on behalf of one worker
type Accessor interface {
	Put(nodeID int64, lat, lon float64) error
	Get(nodeID int64) (lat, lon float64, ok bool)
	Close() error
}

// pack converts a coordinate pair to its slot representation
func pack(lat, lon float64) uint64 {
	latInt := int64(math.Round(lat*coordScale)) + latOffset
	lonInt := int32(math.Round(lon * coordScale))
	return uint64(uint32(latInt))<<32 | uint64(uint32(lonInt))
}

// unpack is the inverse of pack
func unpack(v uint64) (lat, lon float64) {
	latInt := int64(uint32(v>>32)) - latOffset
	lonInt := int32(uint32(v))
	return float64(latInt) / coordScale, float64(lonInt) / coordScale
}
