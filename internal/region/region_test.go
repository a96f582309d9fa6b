package region

import (
	"testing"

	"github.com/nupi-ai/comfort/internal/geometry"
)

func TestClassifyOutside(t *testing.T) {
	rects := []geometry.Rect{{Top: 100, Left: 100, Width: 400, Height: 200}}
	got := Classify(geometry.Point{X: 50, Y: 50}, rects)
	if got.InBody || got.InTriggerZone {
		t.Fatalf("expected outside, got %+v", got)
	}
}

func TestClassifyBodyAndTriggerZone(t *testing.T) {
	rects := []geometry.Rect{{Top: 100, Left: 100, Width: 400, Height: 200}}

	cases := []struct {
		name string
		p    geometry.Point
		want Classification
	}{
		{"upper body", geometry.Point{X: 300, Y: 150}, Classification{InBody: true}},
		{"band start", geometry.Point{X: 300, Y: 260}, Classification{InBody: true, InTriggerZone: true}},
		{"bottom edge", geometry.Point{X: 300, Y: 300}, Classification{InBody: true, InTriggerZone: true}},
		{"just above band", geometry.Point{X: 300, Y: 259}, Classification{InBody: true}},
		{"below video", geometry.Point{X: 300, Y: 301}, Classification{}},
		{"band row but left of video", geometry.Point{X: 99, Y: 280}, Classification{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.p, rects); got != tc.want {
				t.Fatalf("Classify(%+v) = %+v, want %+v", tc.p, got, tc.want)
			}
		})
	}
}

func TestClassifyUnionOfRects(t *testing.T) {
	rects := []geometry.Rect{
		{Top: 0, Left: 0, Width: 100, Height: 100},
		{Top: 0, Left: 200, Width: 100, Height: 100},
	}
	if got := Classify(geometry.Point{X: 250, Y: 95}, rects); !got.InTriggerZone || !got.InBody {
		t.Fatalf("expected second rect trigger zone, got %+v", got)
	}
	if got := Classify(geometry.Point{X: 150, Y: 95}, rects); got.InBody {
		t.Fatalf("gap between rects must be outside, got %+v", got)
	}
}

// A point at top+0.8h is in the band, a point at top+0.79h is not, for any rect.
func TestTriggerZoneContainment(t *testing.T) {
	rects := []geometry.Rect{
		{Top: 0, Left: 0, Width: 1, Height: 1},
		{Top: 175, Left: 0, Width: 800, Height: 450},
		{Top: 0, Left: 546.875, Width: 506.25, Height: 900},
		{Top: 13.3, Left: 7.7, Width: 333.3, Height: 77.7},
		{Top: -50, Left: -50, Width: 4096, Height: 2160},
	}
	for _, r := range rects {
		x := r.Left + r.Width/2
		for _, share := range []float64{0.8, 0.85, 0.9, 0.99, 1.0} {
			p := geometry.Point{X: x, Y: r.Top + share*r.Height}
			if got := Classify(p, []geometry.Rect{r}); !got.InTriggerZone {
				t.Fatalf("rect %+v share %.2f: expected trigger zone, got %+v", r, share, got)
			}
		}
		p := geometry.Point{X: x, Y: r.Top + 0.79*r.Height}
		if got := Classify(p, []geometry.Rect{r}); got.InTriggerZone || !got.InBody {
			t.Fatalf("rect %+v share 0.79: expected body only, got %+v", r, got)
		}
	}
}

func TestClassifierFraction(t *testing.T) {
	c := NewClassifier(0.5)
	r := []geometry.Rect{{Top: 0, Left: 0, Width: 100, Height: 100}}
	if got := c.Classify(geometry.Point{X: 50, Y: 55}, r); !got.InTriggerZone {
		t.Fatalf("expected half-height band, got %+v", got)
	}
	if NewClassifier(0).Fraction != DefaultTriggerFraction {
		t.Fatalf("expected fallback fraction")
	}
	if NewClassifier(1.5).Fraction != DefaultTriggerFraction {
		t.Fatalf("expected fallback fraction")
	}
}

func TestClassifyIgnoresEmptyRects(t *testing.T) {
	r := []geometry.Rect{{Top: 10, Left: 10}}
	if got := Classify(geometry.Point{X: 10, Y: 10}, r); got.InBody {
		t.Fatalf("empty rect must not capture points, got %+v", got)
	}
}
