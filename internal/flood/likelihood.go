package flood

import (
	"math"
	"time"
)

const omega = 2 * math.Pi / 365

// Harmonics are the coefficients of the seasonal land backscatter model of one
// pixel.
type Harmonics struct {
	M0, S1, C1, S2, C2, S3, C3 float64
}

// ExpectedLand evaluates the three term harmonic model at day of year doy.
func (h Harmonics) ExpectedLand(doy float64) float64 {
	wt := omega * doy
	return h.M0 +
		h.S1*math.Sin(wt) + h.C1*math.Cos(wt) +
		h.S2*math.Sin(2*wt) + h.C2*math.Cos(2*wt) +
		h.S3*math.Sin(3*wt) + h.C3*math.Cos(3*wt)
}

// ExpectedWater is the water backscatter predicted from the projected local
// incidence angle.
func (c Calibration) ExpectedWater(incidence float64) float64 {
	return incidence*c.WaterSlope + c.WaterIntercept
}

// DayOfYear returns the ordinal day of t in UTC, starting at 1.
func DayOfYear(t time.Time) float64 {
	return float64(t.UTC().YearDay())
}
