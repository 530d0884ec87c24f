// Package geo converts simulation-space vectors into simplefeatures
// geometries so traces can be stored as WKB and exported as WKT.
//
// Object space is a local Cartesian frame; no projection is applied and the
// geometries carry no SRID.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrInvalidCoordinates is returned for NaN or infinite coordinates.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrShortTrack is returned when a track has fewer than two points.
var ErrShortTrack = errors.New("track needs at least 2 points")

func finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// PointFromVec3 builds an XYZ point.
func PointFromVec3(v mgl64.Vec3) (geom.Point, error) {
	if !finite(v) {
		return geom.NewEmptyPoint(geom.DimXYZ), ErrInvalidCoordinates
	}
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v[0], Y: v[1]},
		Z:    v[2],
		Type: geom.DimXYZ,
	}), nil
}

// Vec3FromPoint reads an XY or XYZ point back into a vector. An empty point
// yields the zero vector.
func Vec3FromPoint(p geom.Point) mgl64.Vec3 {
	c, ok := p.Coordinates()
	if !ok {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{c.X, c.Y, c.Z}
}

// Track builds an XYZ line string through positions in order. Consecutive
// duplicates are collapsed so a resting object does not produce zero-length
// segments.
func Track(positions []mgl64.Vec3) (geom.LineString, error) {
	flat := make([]float64, 0, len(positions)*3)
	var last mgl64.Vec3
	for i, p := range positions {
		if !finite(p) {
			return geom.LineString{}, fmt.Errorf("position %d: %w", i, ErrInvalidCoordinates)
		}
		if len(flat) > 0 && p == last {
			continue
		}
		flat = append(flat, p[0], p[1], p[2])
		last = p
	}
	if len(flat) < 6 {
		return geom.LineString{}, ErrShortTrack
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ)), nil
}
