package flood

import (
	"math"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"gonum.org/v1/gonum/floats"
)

// StepSummary describes one time step of a result cube.
type StepSummary struct {
	Time     time.Time `json:"time" csv:"time"`
	Valid    int       `json:"valid" csv:"valid"`
	Flooded  int       `json:"flooded" csv:"flooded"`
	Fraction float64   `json:"fraction" csv:"fraction"`
	Mean     float64   `json:"mean" csv:"mean"`
}

// Summarize counts, per step, the valid pixels of variable name and those
// above threshold. For a decision cube use a threshold of 0.5.
func Summarize(c *datacube.Cube, name string, threshold float64) ([]StepSummary, error) {
	if _, err := c.Var(name); err != nil {
		return nil, err
	}
	out := make([]StepSummary, c.Steps())
	for i := range out {
		step := c.Step(name, i)
		valid := make([]float64, 0, len(step))
		for _, v := range step {
			if !math.IsNaN(v) {
				valid = append(valid, v)
			}
		}
		s := StepSummary{
			Valid:   len(valid),
			Flooded: floats.Count(func(v float64) bool { return v > threshold }, valid),
		}
		if i < len(c.Time) {
			s.Time = c.Time[i]
		}
		if s.Valid > 0 {
			s.Fraction = float64(s.Flooded) / float64(s.Valid)
			s.Mean = floats.Sum(valid) / float64(s.Valid)
		}
		out[i] = s
	}
	return out, nil
}
