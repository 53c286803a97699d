package flood

import (
	"errors"
	"fmt"
)

// Calibration holds the empirical constants of the classifier. The defaults
// were fitted for Sentinel-1 VV backscatter over Europe.
type Calibration struct {
	// expected water backscatter = WaterSlope*MPLIA + WaterIntercept
	WaterSlope     float64
	WaterIntercept float64
	WaterStd       float64

	MinIncidence         float64
	MaxIncidence         float64
	SeparationFactor     float64
	OutlierFactor        float64
	ProbabilityThreshold float64

	PermanentWaterClass float64
}

func DefaultCalibration() Calibration {
	return Calibration{
		WaterSlope:           -0.394181,
		WaterIntercept:       -4.142015,
		WaterStd:             2.754041,
		MinIncidence:         27,
		MaxIncidence:         48,
		SeparationFactor:     0.5,
		OutlierFactor:        3,
		ProbabilityThreshold: 0.8,
		PermanentWaterClass:  80,
	}
}

func (c Calibration) Validate() error {
	if !(c.WaterStd > 0) {
		return errors.New("water backscatter std must be positive")
	}
	if c.MinIncidence > c.MaxIncidence {
		return fmt.Errorf("incidence range [%g, %g] is empty", c.MinIncidence, c.MaxIncidence)
	}
	if c.ProbabilityThreshold < 0 || c.ProbabilityThreshold > 1 {
		return fmt.Errorf("probability threshold %g is outside [0, 1]", c.ProbabilityThreshold)
	}
	return nil
}
