// Package geom derives the summary geometry attached to ways: whether the
// node sequence closes on itself and a representative point for the line.
package geom

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrEmpty is returned for a way without resolvable points
var ErrEmpty = errors.New("way has no points")

// ErrInvalidCenter is returned when the centroid cannot be computed
var ErrInvalidCenter = errors.New("centroid is not a finite point")

// Line builds an orb line from (lat, lon) pairs. orb points are (x=lon, y=lat).
func Line(lats, lons []float64) orb.LineString {
	ls := make(orb.LineString, len(lats))
	for i := range lats {
		ls[i] = orb.Point{lons[i], lats[i]}
	}
	return ls
}

// Analyze reports whether the line ends where it starts and returns its
// length-weighted centroid. A single point or a zero-length line yields the
// first point.
func Analyze(ls orb.LineString) (closed bool, center orb.Point, err error) {
	if len(ls) == 0 {
		return false, orb.Point{}, ErrEmpty
	}

	closed = len(ls) > 1 && ls[0] == ls[len(ls)-1]

	if planar.Length(ls) == 0 {
		center = ls[0]
	} else {
		center, _ = planar.CentroidArea(ls)
	}

	if !finite(center.X()) || !finite(center.Y()) {
		return closed, orb.Point{}, ErrInvalidCenter
	}
	return closed, center, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
