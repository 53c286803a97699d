package flood

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var ErrInvalidWindow = errors.New("invalid speckle window")

// MedianFilter smooths one raster of width x height values with a centered
// window x window median. NaN values are ignored, windows are truncated at the
// raster edges and a window holding only NaN yields NaN. When a window holds
// an even number of values the lower of the two middle values is taken, so the
// result is always one of the input values and binary rasters stay binary.
func MedianFilter(src []float64, width, height, window int) ([]float64, error) {
	if window < 1 || window%2 == 0 {
		return nil, fmt.Errorf("%w: %d, must be a positive odd number", ErrInvalidWindow, window)
	}
	if len(src) != width*height {
		return nil, fmt.Errorf("raster has %d values, want %dx%d", len(src), width, height)
	}
	half := window / 2
	dst := make([]float64, len(src))
	buf := make([]float64, 0, window*window)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			buf = buf[:0]
			for r := max(0, row-half); r <= min(height-1, row+half); r++ {
				for c := max(0, col-half); c <= min(width-1, col+half); c++ {
					if v := src[r*width+c]; !math.IsNaN(v) {
						buf = append(buf, v)
					}
				}
			}
			dst[row*width+col] = median(buf)
		}
	}
	return dst, nil
}

// median sorts values in place.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	slices.Sort(values)
	return values[(n-1)/2]
}
