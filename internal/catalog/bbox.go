// Package catalog searches the STAC catalogs that serve the backscatter,
// harmonic parameter, incidence angle and land cover collections, and parses
// the bounding boxes and datetime expressions of user requests.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

var (
	ErrInvalidBBox     = errors.New("invalid bounding box")
	ErrInvalidDatetime = errors.New("invalid datetime")
)

// ParseBBox validates minLon, minLat, maxLon, maxLat.
func ParseBBox(values []float64) (orb.Bound, error) {
	if len(values) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: want 4 values, got %d", ErrInvalidBBox, len(values))
	}
	minLon, minLat, maxLon, maxLat := values[0], values[1], values[2], values[3]
	for _, v := range values {
		if math.IsNaN(v) {
			return orb.Bound{}, fmt.Errorf("%w: NaN coordinate", ErrInvalidBBox)
		}
	}
	if minLon < -180 || maxLon > 180 || minLat < -90 || maxLat > 90 {
		return orb.Bound{}, fmt.Errorf("%w: %v is outside the geographic range", ErrInvalidBBox, values)
	}
	if !(minLon < maxLon) || !(minLat < maxLat) {
		return orb.Bound{}, fmt.Errorf("%w: min must be below max, got %v", ErrInvalidBBox, values)
	}
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}, nil
}

// ParseBBoxString parses "minLon,minLat,maxLon,maxLat".
func ParseBBoxString(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: %q", ErrInvalidBBox, s)
		}
		values = append(values, v)
	}
	return ParseBBox(values)
}

// BBoxValues returns the STAC representation of b.
func BBoxValues(b orb.Bound) []float64 {
	return []float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
}
