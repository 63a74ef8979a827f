// Planar geometry used for route deviation scoring.
//
// Positions live in an abstract planar map space (x = lng, y = lat) whose unit is
// the same as the off-route thresholds. Distances are plain Euclidean, no geodesic
// correction is applied.
package geometry

import (
	"math"

	"courierwatch/internal/telemetry"
)

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// FromPosition maps a telemetry position onto the plane.
func FromPosition(p telemetry.Position) Point {
	return Point{X: p.Lng, Y: p.Lat}
}

// Distance returns the Euclidean distance between p and q.
func Distance(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// DistancePointToSegment returns the minimum distance from p to the segment a-b.
// The projection is clamped to the segment; a degenerate segment (a == b) yields
// the distance from p to a.
func DistancePointToSegment(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return Distance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return Distance(p, Point{X: a.X + t*dx, Y: a.Y + t*dy})
}
