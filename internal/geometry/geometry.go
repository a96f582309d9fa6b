// Package geometry maps intrinsic video sizes onto the viewport.
package geometry

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are strictly positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// AspectRatio returns width/height, or 0 for an invalid size.
func (s Size) AspectRatio() float64 {
	if !s.Valid() {
		return 0
	}
	return s.Width / s.Height
}

// Point is a cursor position in viewport coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a render rectangle in viewport coordinates.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether p lies inside r. Edges are inclusive, matching
// getBoundingClientRect hit tests in the page.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right() &&
		p.Y >= r.Top && p.Y <= r.Bottom()
}

// Within reports whether r lies completely inside a viewport of the given size.
func (r Rect) Within(viewport Size) bool {
	const eps = 1e-9
	return r.Left >= -eps && r.Top >= -eps &&
		r.Right() <= viewport.Width+eps && r.Bottom() <= viewport.Height+eps
}

// Fit computes the letterbox/pillarbox rectangle for a video of the given
// intrinsic size inside the viewport. The result covers the full length of the
// longer axis and is centred on the shorter one. Invalid sizes yield a zero Rect.
func Fit(intrinsic, viewport Size) Rect {
	if !intrinsic.Valid() || !viewport.Valid() {
		return Rect{}
	}

	videoAR := intrinsic.AspectRatio()
	viewportAR := viewport.AspectRatio()

	if videoAR > viewportAR {
		// Relatively wider than the viewport: pin the width.
		height := viewport.Width / videoAR
		return Rect{
			Top:    (viewport.Height - height) / 2,
			Left:   0,
			Width:  viewport.Width,
			Height: height,
		}
	}

	width := viewport.Height * videoAR
	return Rect{
		Top:    0,
		Left:   (viewport.Width - width) / 2,
		Width:  width,
		Height: viewport.Height,
	}
}
