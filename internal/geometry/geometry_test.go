package geometry

import (
	"math"
	"testing"

	"courierwatch/internal/telemetry"
)

const eps = 1e-9

func TestDistancePointToSegment(t *testing.T) {
	a, b := Point{0, 0}, Point{10, 0}
	cases := []struct {
		name string
		p    Point
		want float64
	}{
		{"above middle", Point{5, 9}, 9},
		{"below middle", Point{5, -7}, 7},
		{"on segment", Point{3, 0}, 0},
		{"past end clamps", Point{13, 4}, 5},
		{"before start clamps", Point{-3, -4}, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DistancePointToSegment(tc.p, a, b)
			if math.Abs(got-tc.want) > eps {
				t.Fatalf("distance = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDistancePointToSegmentDegenerate(t *testing.T) {
	points := []Point{{0, 0}, {3, 4}, {-2.5, 7.25}, {100, -100}}
	a := Point{1.5, -2}
	for _, p := range points {
		got := DistancePointToSegment(p, a, a)
		want := math.Hypot(p.X-a.X, p.Y-a.Y)
		if math.Abs(got-want) > eps {
			t.Fatalf("degenerate distance for %+v = %v, want %v", p, got, want)
		}
	}
}

func TestDistancePointToSegmentSymmetric(t *testing.T) {
	p, a, b := Point{2, 3}, Point{-1, 1}, Point{4, -2}
	if d1, d2 := DistancePointToSegment(p, a, b), DistancePointToSegment(p, b, a); math.Abs(d1-d2) > eps {
		t.Fatalf("segment direction changed distance: %v vs %v", d1, d2)
	}
}

func TestFromPosition(t *testing.T) {
	p := FromPosition(telemetry.Position{Lat: 9, Lng: 5})
	if p != (Point{X: 5, Y: 9}) {
		t.Fatalf("FromPosition = %+v", p)
	}
}
