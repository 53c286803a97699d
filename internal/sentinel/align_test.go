package sentinel_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/sentinel"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func ptr(f float64) *float64 { return &f }

func nodata(f float64) *sentinel.Nodata {
	n := sentinel.Nodata(f)
	return &n
}

func item(id string, at time.Time, state string, orbit int, bands ...string) sentinel.Item {
	assets := make(map[string]sentinel.Asset)
	for _, b := range bands {
		assets[b] = sentinel.Asset{
			Href:        "/data/" + id + "_" + b + ".tif",
			RasterBands: []sentinel.RasterBand{{Scale: ptr(10), Nodata: nodata(-9999)}},
		}
	}
	return sentinel.Item{
		ID:         id,
		Properties: sentinel.Properties{Datetime: at, OrbitState: state, RelativeOrbit: orbit},
		Assets:     assets,
	}
}

func at(day, hour int) time.Time {
	return time.Date(2022, 10, day, hour, 0, 0, 0, time.UTC)
}

// two pixels per step
var testGrid = datacube.Grid{CRS: "EPSG:27704", GeoTransform: [6]float64{0, 20, 0, 20, 0, -20}, Width: 2, Height: 1}

func rawCube(t *testing.T, band string, values []float64) *datacube.Cube {
	t.Helper()
	c := datacube.New(datacube.DimTime, len(values)/testGrid.Pixels(), testGrid)
	require.NoError(t, c.SetVar(band, values))
	return c
}

func TestItem_UnmarshalSTAC(t *testing.T) {
	raw := `{
		"id": "S1A_IW_GRDH_1SDV_20221011",
		"collection": "SENTINEL1_SIG0_20M",
		"properties": {"datetime": "2022-10-11T05:25:01Z", "sat:orbit_state": "descending", "sat:relative_orbit": 22},
		"assets": {"VV": {"href": "https://data.eodc.eu/VV.tif", "raster:bands": [{"scale": 10, "nodata": "-9999"}]}}
	}`
	var it sentinel.Item
	require.NoError(t, json.Unmarshal([]byte(raw), &it))

	key, err := sentinel.OrbitKey(it)
	require.NoError(t, err)
	assert.Equal(t, "D22", key)

	cal, err := sentinel.LookupCalibration([]sentinel.Item{it}, "VV")
	require.NoError(t, err)
	assert.Equal(t, sentinel.BandCalibration{Scale: 10, Nodata: -9999, HasNodata: true}, cal)
}

func TestOrbitKey(t *testing.T) {
	key, err := sentinel.OrbitKey(item("a", at(1, 5), "ascending", 117))
	require.NoError(t, err)
	assert.Equal(t, "A117", key)

	_, err = sentinel.OrbitKey(item("b", at(1, 5), "", 117))
	assert.Error(t, err)
}

func TestCalibrate(t *testing.T) {
	items := []sentinel.Item{item("a", at(1, 5), "ascending", 117, "VV")}
	raw := rawCube(t, "VV", []float64{-9999, -105})

	out, err := sentinel.Calibrate(raw, items, "VV")
	require.NoError(t, err)
	vv, _ := out.Var("VV")
	if diff := cmp.Diff([]float64{nan, -10.5}, vv, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("calibrated values (-want +got):\n%s", diff)
	}
	rawVV, _ := raw.Var("VV")
	assert.Equal(t, []float64{-9999, -105}, rawVV, "input must not be modified")

	_, err = sentinel.Calibrate(raw, items, "VH")
	assert.ErrorIs(t, err, sentinel.ErrMissingBandMetadata)
	_, err = sentinel.Calibrate(raw, nil, "VV")
	assert.ErrorIs(t, err, sentinel.ErrMissingBandMetadata)
}

func TestAlignPrimary_DuplicateTimestampsKeepFirstOrbit(t *testing.T) {
	items := []sentinel.Item{
		item("late", at(3, 5), "ascending", 117, "VV"),
		item("dup-first", at(1, 5), "descending", 22, "VV"),
		item("dup-second", at(1, 5), "ascending", 44, "VV"),
		item("empty", at(2, 5), "ascending", 117, "VV"),
	}
	raw := rawCube(t, "VV", []float64{
		-70, -80,
		10, -9999,
		20, -9999,
		-9999, -9999,
	})

	dc, orbits, err := sentinel.AlignPrimary(raw, items, "VV")
	require.NoError(t, err)

	assert.Equal(t, []string{"D22", "A117"}, orbits)
	assert.Equal(t, orbits, dc.Orbit)
	assert.Equal(t, []time.Time{at(1, 5), at(3, 5)}, dc.Time)
	assert.Equal(t, []string{sentinel.Sig0}, dc.Vars())

	sig0, _ := dc.Var(sentinel.Sig0)
	if diff := cmp.Diff([]float64{1.5, nan, -7, -8}, sig0, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("sig0 (-want +got):\n%s", diff)
	}
}

func TestAlignPrimary_RejectsItemCountMismatch(t *testing.T) {
	raw := rawCube(t, "VV", []float64{1, 2})
	_, _, err := sentinel.AlignPrimary(raw, nil, "VV")
	assert.Error(t, err)
}

func TestAlignAuxiliary_ReindexesOntoPrimaryOrbits(t *testing.T) {
	items := []sentinel.Item{
		item("p1", at(1, 0), "descending", 22, "MPLIA"),
		item("p2", at(2, 0), "ascending", 117, "MPLIA"),
		item("p3", at(3, 0), "descending", 22, "MPLIA"),
	}
	raw := rawCube(t, "MPLIA", []float64{
		300, 320,
		400, -9999,
		340, 360,
	})

	dc, err := sentinel.AlignAuxiliary(raw, items, []string{"MPLIA"}, []string{"A117", "D22", "D22"})
	require.NoError(t, err)

	assert.Equal(t, datacube.DimOrbit, dc.Dim)
	assert.Equal(t, []string{"A117", "D22", "D22"}, dc.Orbit)
	plia, _ := dc.Var("MPLIA")
	if diff := cmp.Diff([]float64{40, nan, 32, 34, 32, 34}, plia, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("MPLIA (-want +got):\n%s", diff)
	}
}

func TestAlignAuxiliary_MissingOrbitIsFatal(t *testing.T) {
	items := []sentinel.Item{item("p1", at(1, 0), "descending", 22, "MPLIA")}
	raw := rawCube(t, "MPLIA", []float64{300, 320})

	_, err := sentinel.AlignAuxiliary(raw, items, []string{"MPLIA"}, []string{"D22", "A117"})
	assert.ErrorIs(t, err, datacube.ErrOrbitNotFound)
}
