package sentinel

import (
	"fmt"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
)

// Sig0 is the semantic name of the calibrated backscatter variable.
const Sig0 = "sig0"

// AlignPrimary prepares the backscatter cube. The raw cube has one step per
// item. The result is indexed by unique acquisition time and carries, for each
// time, the orbit key of the first acquisition recorded at that time. The
// returned orbit keys are used to reindex the auxiliary cubes.
func AlignPrimary(raw *datacube.Cube, items []Item, band string) (*datacube.Cube, []string, error) {
	if raw.Steps() != len(items) {
		return nil, nil, fmt.Errorf("backscatter cube has %d steps for %d items", raw.Steps(), len(items))
	}
	dc, err := Calibrate(raw, items, band)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to calibrate %s: %w", band, err)
	}
	if band != Sig0 {
		if dc, err = dc.RenameVar(band, Sig0); err != nil {
			return nil, nil, err
		}
	}
	orbits, err := OrbitKeys(items)
	if err != nil {
		return nil, nil, err
	}
	dc.Dim = datacube.DimTime
	dc.Time = Datetimes(items)
	if dc, err = dc.WithOrbits(orbits); err != nil {
		return nil, nil, err
	}
	if dc, err = dc.DropAllNaN(); err != nil {
		return nil, nil, err
	}
	if dc, err = dc.SortByTime(); err != nil {
		return nil, nil, err
	}

	kept := firstOrbitPerTime(dc)

	if dc, err = dc.GroupByTime(); err != nil {
		return nil, nil, err
	}
	if dc, err = dc.WithOrbits(kept); err != nil {
		return nil, nil, err
	}
	return dc, kept, nil
}

// firstOrbitPerTime returns, for every distinct time of a time-sorted cube, the
// orbit of the first step recorded at that time.
func firstOrbitPerTime(dc *datacube.Cube) []string {
	var orbits []string
	for i, t := range dc.Time {
		if i > 0 && dc.Time[i-1].Equal(t) {
			continue
		}
		orbits = append(orbits, dc.Orbit[i])
	}
	return orbits
}

// AlignAuxiliary prepares a per-orbit cube (incidence angle, harmonic
// parameters): it is calibrated, indexed by orbit key, averaged per orbit and
// then reindexed onto the given orbit keys. An orbit missing from the cube
// aborts with datacube.ErrOrbitNotFound.
func AlignAuxiliary(raw *datacube.Cube, items []Item, bands []string, orbits []string) (*datacube.Cube, error) {
	if raw.Steps() != len(items) {
		return nil, fmt.Errorf("auxiliary cube has %d steps for %d items", raw.Steps(), len(items))
	}
	dc, err := Calibrate(raw, items, bands...)
	if err != nil {
		return nil, fmt.Errorf("failed to calibrate %v: %w", bands, err)
	}
	keys, err := OrbitKeys(items)
	if err != nil {
		return nil, err
	}
	dc = dc.WithDim(datacube.DimOrbit)
	dc.Time = nil
	if dc, err = dc.WithOrbits(keys); err != nil {
		return nil, err
	}
	if dc, err = dc.GroupByOrbit(); err != nil {
		return nil, err
	}
	dc, err = dc.SelectOrbits(orbits)
	if err != nil {
		return nil, fmt.Errorf("auxiliary %v does not cover the backscatter orbits: %w", bands, err)
	}
	return dc, nil
}
