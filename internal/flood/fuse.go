package flood

import (
	"fmt"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/sentinel"
)

// Variable names of the fused cube.
const (
	VarSig0      = sentinel.Sig0
	VarIncidence = "MPLIA"
	VarStd       = "STD"
	VarLandCover = "wcover"

	VarWaterBackscatter = "wbsc"
	VarLandBackscatter  = "hbsc"
	VarNonFloodPost     = "nf_post_prob"
	VarFloodPost        = "f_post_prob"
	VarDecision         = "decision"
)

// HarmonicBands are the per-orbit harmonic model parameters.
var HarmonicBands = []string{"C1", "C2", "C3", "M0", "S1", "S2", "S3", VarStd}

var (
	BackscatterSchema = datacube.Schema{Name: "backscatter", Dim: datacube.DimTime, Vars: []string{VarSig0}}
	ParameterSchema   = datacube.Schema{Name: "harmonic parameters", Dim: datacube.DimOrbit, Vars: HarmonicBands}
	IncidenceSchema   = datacube.Schema{Name: "incidence angle", Dim: datacube.DimOrbit, Vars: []string{VarIncidence}}
	LandCoverSchema   = datacube.Schema{Name: "land cover", Vars: []string{VarLandCover}}
)

// Inputs are the aligned cubes of one request. LandCover is optional.
type Inputs struct {
	Backscatter *datacube.Cube
	Parameters  *datacube.Cube
	Incidence   *datacube.Cube
	LandCover   *datacube.Cube
}

// Fuse merges the aligned cubes into one time indexed cube holding every
// variable of the inputs. Pixels of the permanent water class are set to NaN
// and time steps without any backscatter are dropped. The auxiliary cubes must
// be indexed by the orbit keys of the backscatter cube, in the same order.
func Fuse(in Inputs, permanentWater float64) (*datacube.Cube, error) {
	if err := BackscatterSchema.Validate(in.Backscatter); err != nil {
		return nil, err
	}
	if err := ParameterSchema.Validate(in.Parameters); err != nil {
		return nil, err
	}
	if err := IncidenceSchema.Validate(in.Incidence); err != nil {
		return nil, err
	}
	if in.Backscatter.Orbit == nil {
		return nil, fmt.Errorf("%w: backscatter cube has no orbit labels", datacube.ErrSchemaMismatch)
	}

	fused, err := datacube.Merge(in.Backscatter.WithDim(datacube.DimOrbit), in.Incidence, in.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to merge cubes: %w", err)
	}

	if in.LandCover != nil {
		if err := LandCoverSchema.Validate(in.LandCover); err != nil {
			return nil, err
		}
		if !in.LandCover.Grid.Equal(fused.Grid) {
			return nil, fmt.Errorf("%w: land cover %s, backscatter %s", datacube.ErrGridMismatch, in.LandCover.Grid, fused.Grid)
		}
		if in.LandCover.Steps() != 1 {
			return nil, fmt.Errorf("%w: land cover must be a single layer, got %d steps", datacube.ErrSchemaMismatch, in.LandCover.Steps())
		}
		fused, err = fused.MaskWhere(in.LandCover.Step(VarLandCover, 0), func(v float64) bool {
			return v == permanentWater
		})
		if err != nil {
			return nil, err
		}
	}

	return fused.WithDim(datacube.DimTime).DropAllNaN(VarSig0)
}
