// Package geo implements the coordinates stage's bounding-box
// normalization and merge step. Grounded on cidr.MergeIPNets's
// overlap-merge algorithm, generalized from one-dimensional IP ranges to
// two-dimensional geographic bounding boxes: the teacher collapses
// overlapping/adjacent CIDR ranges into the smallest equivalent set, this
// collapses overlapping/adjacent bounding boxes the same way. Unlike 1D
// intervals, merging axis-aligned rectangles has no single-pass O(n log n)
// form that stays exact (two rectangles can overlap without either
// containing the other, and their union is not itself a rectangle), so
// this merges by repeatedly unioning any pair of boxes that intersect or
// touch until no further merge applies — simpler than the teacher's sweep
// line, correct for the same "consolidate cluster extents" purpose.
package geo

import "github.com/paulmach/orb"

// Coordinate is a normalized (longitude, latitude) pair extracted by the
// geospatial parser backend.
type Coordinate struct {
	Lon float64
	Lat float64
}

// Normalize clamps a coordinate into valid WGS84 ranges and wraps
// longitude into [-180, 180), the same defensive floor the teacher's
// iputils applies to IP parsing before trusting a value.
func Normalize(c Coordinate) Coordinate {
	lat := c.Lat
	if lat > 90 {
		lat = 90
	} else if lat < -90 {
		lat = -90
	}

	lon := c.Lon
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}

	return Coordinate{Lon: lon, Lat: lat}
}

// BoundOf returns the degenerate (point) bound for a single coordinate.
func BoundOf(c Coordinate) orb.Bound {
	p := orb.Point{c.Lon, c.Lat}
	return orb.Bound{Min: p, Max: p}
}

// MergeBounds consolidates overlapping or touching bounding boxes into
// their union, the geospatial analogue of the teacher's CIDR-range
// consolidation. The result holds no two boxes that intersect or touch.
func MergeBounds(bounds []orb.Bound) []orb.Bound {
	if len(bounds) <= 1 {
		return bounds
	}

	merged := append([]orb.Bound(nil), bounds...)

	for {
		mergedAny := false
		for i := 0; i < len(merged); i++ {
			for j := i + 1; j < len(merged); j++ {
				if touchesOrOverlaps(merged[i], merged[j]) {
					merged[i] = merged[i].Union(merged[j])
					merged = append(merged[:j], merged[j+1:]...)
					mergedAny = true
					break
				}
			}
			if mergedAny {
				break
			}
		}
		if !mergedAny {
			break
		}
	}

	return merged
}

// touchesOrOverlaps reports whether a and b overlap or share an edge.
// orb.Bound.Intersects already treats a shared edge as intersecting
// (closed-interval comparison on both axes), which is exactly the
// "adjacent or overlapping" test the teacher applies to CIDR ranges.
func touchesOrOverlaps(a, b orb.Bound) bool {
	return a.Intersects(b)
}
