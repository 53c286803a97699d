package output

import (
	"image/color"
	"math"
)

const (
	ClassFlood    = "flood"
	ClassNonFlood = "non_flood"
)

// ColorMap holds the map colours per class. Pixels without a class (NaN) are
// left transparent.
var ColorMap = map[string]color.RGBA{
	ClassFlood:    {R: 139, G: 0, B: 0, A: 255},
	ClassNonFlood: {R: 70, G: 130, B: 180, A: 96},
}

// classify maps a pixel value onto a ColorMap class. ok is false for NaN.
func classify(v, threshold float64) (class string, ok bool) {
	switch {
	case math.IsNaN(v):
		return "", false
	case v > threshold:
		return ClassFlood, true
	default:
		return ClassNonFlood, true
	}
}
