// Package trail keeps the bounded breadcrumb history of each courier.
package trail

import (
	"time"

	"courierwatch/internal/telemetry"
)

// DefaultRetention is the breadcrumb window used when none is configured.
const DefaultRetention = 5 * time.Minute

// Point is one breadcrumb.
type Point struct {
	Position  telemetry.Position `json:"position"`
	Timestamp time.Time          `json:"ts"`
}

// Book holds one chronological trail per courier. Trails are created on the
// first append and survive (possibly empty) until the Book is discarded.
type Book struct {
	retention time.Duration
	trails    map[string][]Point
}

// NewBook creates a Book that keeps points for the given retention window.
func NewBook(retention time.Duration) *Book {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Book{retention: retention, trails: make(map[string][]Point)}
}

// Retention returns the configured window.
func (b *Book) Retention() time.Duration { return b.retention }

// Append adds one point to the courier's trail. Callers append in
// chronological order; the store guarantees this for applied reports.
func (b *Book) Append(id string, pos telemetry.Position, ts time.Time) {
	b.trails[id] = append(b.trails[id], Point{Position: pos, Timestamp: ts})
}

// Prune drops every point older than the retention window relative to now.
func (b *Book) Prune(id string, now time.Time) {
	pts, ok := b.trails[id]
	if !ok {
		return
	}
	cut := 0
	for cut < len(pts) && now.Sub(pts[cut].Timestamp) > b.retention {
		cut++
	}
	if cut == 0 {
		return
	}
	// copy down so the backing array does not keep expired points reachable
	n := copy(pts, pts[cut:])
	clear(pts[n:])
	b.trails[id] = pts[:n]
}

// PruneAll prunes every trail.
func (b *Book) PruneAll(now time.Time) {
	for id := range b.trails {
		b.Prune(id, now)
	}
}

// History returns a copy of the courier's trail, oldest first.
func (b *Book) History(id string) []Point {
	pts := b.trails[id]
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// Len returns the number of points currently held for id.
func (b *Book) Len(id string) int { return len(b.trails[id]) }

// Has reports whether a trail was ever created for id.
func (b *Book) Has(id string) bool {
	_, ok := b.trails[id]
	return ok
}

// Snapshot copies every trail.
func (b *Book) Snapshot() map[string][]Point {
	out := make(map[string][]Point, len(b.trails))
	for id := range b.trails {
		out[id] = b.History(id)
	}
	return out
}

// Within filters pts to those inside window relative to now.
func Within(pts []Point, now time.Time, window time.Duration) []Point {
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		if now.Sub(p.Timestamp) <= window {
			out = append(out, p)
		}
	}
	return out
}
