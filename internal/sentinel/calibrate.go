package sentinel

import (
	"errors"
	"fmt"
	"math"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
)

var ErrMissingBandMetadata = errors.New("missing band metadata")

// BandCalibration holds the scale and nodata of one band.
type BandCalibration struct {
	Scale     float64
	Nodata    float64
	HasNodata bool
}

// LookupCalibration reads the calibration of band from the first item. All
// items of a collection share their calibration parameters.
func LookupCalibration(items []Item, band string) (BandCalibration, error) {
	if len(items) == 0 {
		return BandCalibration{}, fmt.Errorf("%w: no items to read band %s from", ErrMissingBandMetadata, band)
	}
	asset, ok := items[0].Assets[band]
	if !ok {
		return BandCalibration{}, fmt.Errorf("%w: item %s has no asset %s", ErrMissingBandMetadata, items[0].ID, band)
	}
	if len(asset.RasterBands) == 0 || asset.RasterBands[0].Scale == nil {
		return BandCalibration{}, fmt.Errorf("%w: asset %s of item %s has no scale", ErrMissingBandMetadata, band, items[0].ID)
	}
	rb := asset.RasterBands[0]
	cal := BandCalibration{Scale: *rb.Scale}
	if rb.Nodata != nil {
		cal.Nodata = float64(*rb.Nodata)
		cal.HasNodata = true
	}
	return cal, nil
}

// Apply converts a raw value to physical units. Nodata becomes NaN.
func (b BandCalibration) Apply(raw float64) float64 {
	if b.HasNodata && (raw == b.Nodata || (math.IsNaN(b.Nodata) && math.IsNaN(raw))) {
		return math.NaN()
	}
	return raw / b.Scale
}

// Calibrate returns a copy of raw in which every listed band is converted to
// physical units with the calibration of the first item.
func Calibrate(raw *datacube.Cube, items []Item, bands ...string) (*datacube.Cube, error) {
	out := raw.Clone()
	for _, band := range bands {
		cal, err := LookupCalibration(items, band)
		if err != nil {
			return nil, err
		}
		src, err := raw.Var(band)
		if err != nil {
			return nil, err
		}
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = cal.Apply(v)
		}
		if err := out.SetVar(band, dst); err != nil {
			return nil, err
		}
	}
	return out, nil
}
