// Package region classifies cursor positions against maximised video rectangles.
package region

import "github.com/nupi-ai/comfort/internal/geometry"

// DefaultTriggerFraction is the height share of the bottom band that reveals controls.
const DefaultTriggerFraction = 0.2

// Classification is the outcome of a hover test.
type Classification struct {
	InBody        bool `json:"inBody"`
	InTriggerZone bool `json:"inTriggerZone"`
}

// Classifier tests points against a set of rectangles using a configurable
// trigger-zone fraction.
type Classifier struct {
	Fraction float64
}

// NewClassifier returns a classifier for the given bottom-band fraction.
// Values outside (0,1) fall back to DefaultTriggerFraction.
func NewClassifier(fraction float64) Classifier {
	if fraction <= 0 || fraction >= 1 {
		fraction = DefaultTriggerFraction
	}
	return Classifier{Fraction: fraction}
}

// Classify evaluates p over the union of rects.
func (c Classifier) Classify(p geometry.Point, rects []geometry.Rect) Classification {
	fraction := c.Fraction
	if fraction <= 0 || fraction >= 1 {
		fraction = DefaultTriggerFraction
	}

	var out Classification
	for _, r := range rects {
		if r.Empty() || !r.Contains(p) {
			continue
		}
		out.InBody = true
		if p.Y >= triggerTop(r, fraction) {
			out.InTriggerZone = true
		}
		if out.InTriggerZone {
			break
		}
	}
	return out
}

// Classify evaluates p with the default trigger fraction.
func Classify(p geometry.Point, rects []geometry.Rect) Classification {
	return Classifier{Fraction: DefaultTriggerFraction}.Classify(p, rects)
}

// triggerTop is the y coordinate where the bottom band starts.
func triggerTop(r geometry.Rect, fraction float64) float64 {
	return r.Top + (1-fraction)*r.Height
}
