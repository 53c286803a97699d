package reproject_test

import (
	"math"
	"testing"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/compute"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/reproject"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func newPool(t *testing.T) *compute.Pool {
	pool := compute.NewPool(2)
	t.Cleanup(pool.Stop)
	return pool
}

// requireCRS skips the test when the local PROJ database cannot build a
// transformation between the two CRS.
func requireCRS(t *testing.T, src, dst string) {
	t.Helper()
	tr, err := reproject.NewGDALTransformer(src, dst)
	if err != nil {
		t.Skipf("GDAL cannot transform %s to %s: %v", src, dst, err)
	}
	tr.Close()
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// A 4x4 raster of ones over [10, 10.08] x [50, 50.08] with 0.02 pixels.
func geographic(t *testing.T, steps int) *datacube.Cube {
	g := datacube.Grid{CRS: reproject.Geographic, GeoTransform: [6]float64{10, 0.02, 0, 50.08, 0, -0.02}, Width: 4, Height: 4}
	c := datacube.New(datacube.DimTime, steps, g)
	require.NoError(t, c.SetVar("decision", ones(16*steps)))
	return c
}

func TestReproject_Equi7UniformRaster(t *testing.T) {
	requireCRS(t, "EPSG:27704", reproject.Geographic)
	r, err := reproject.New(reproject.Geographic, reproject.Nearest, newPool(t))
	require.NoError(t, err)

	// 3x3 metre pixels centered on x, y in {0, 1, 2} of the Equi7 Africa grid
	g := datacube.Grid{CRS: "EPSG:27704", GeoTransform: [6]float64{-0.5, 1, 0, 2.5, 0, -1}, Width: 3, Height: 3}
	in := datacube.New(datacube.DimTime, 1, g)
	require.NoError(t, in.SetVar("decision", ones(9)))

	out, err := r.Reproject(in, orb.Bound{Min: orb.Point{-30, 16}, Max: orb.Point{-29, 17}})
	require.NoError(t, err)

	assert.Equal(t, reproject.Geographic, out.Grid.CRS)
	require.Equal(t, 4, out.Grid.Width)
	require.Equal(t, 4, out.Grid.Height)
	b := out.Grid.Bounds()
	assert.InDelta(t, -29.9, b[0], 0.1)
	assert.InDelta(t, 16.1, b[1], 0.1)

	got, _ := out.Var("decision")
	want := []float64{
		nan, nan, 1, nan,
		nan, 1, 1, 1,
		1, 1, 1, 1,
		nan, 1, 1, nan,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("reprojected (-want +got):\n%s", diff)
	}
}

func TestReproject_ClipsToBox(t *testing.T) {
	requireCRS(t, reproject.Geographic, reproject.Geographic)
	r, err := reproject.New("", "", newPool(t))
	require.NoError(t, err)

	in := geographic(t, 2)
	in.Time = []time.Time{time.Date(2022, 10, 11, 0, 0, 0, 0, time.UTC), time.Date(2022, 10, 23, 0, 0, 0, 0, time.UTC)}
	in.Orbit = []string{"D22", "A117"}

	out, err := r.Reproject(in, orb.Bound{Min: orb.Point{9.98, 49.98}, Max: orb.Point{10.06, 50.06}})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Grid.Width)
	assert.Equal(t, 3, out.Grid.Height)
	assert.InDelta(t, 10, out.Grid.GeoTransform[0], 1e-9)
	assert.InDelta(t, 50.06, out.Grid.GeoTransform[3], 1e-9)
	assert.Equal(t, in.Time, out.Time)
	assert.Equal(t, in.Orbit, out.Orbit)

	got, _ := out.Var("decision")
	assert.Equal(t, ones(18), got)
}

func TestReproject_EmptyBoxKeepsFootprint(t *testing.T) {
	requireCRS(t, reproject.Geographic, reproject.Geographic)
	r, err := reproject.New(reproject.Geographic, reproject.Nearest, newPool(t))
	require.NoError(t, err)

	in := geographic(t, 1)
	src, _ := in.Var("decision")
	src[5] = nan

	out, err := r.Reproject(in, orb.Bound{})
	require.NoError(t, err)
	assert.True(t, out.Grid.Equal(in.Grid), "got %s", out.Grid)
	got, _ := out.Var("decision")
	if diff := cmp.Diff(src, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("reprojected (-want +got):\n%s", diff)
	}
}

func TestReproject_Bilinear(t *testing.T) {
	requireCRS(t, reproject.Geographic, reproject.Geographic)
	r, err := reproject.New(reproject.Geographic, reproject.Bilinear, newPool(t))
	require.NoError(t, err)

	in := geographic(t, 1)
	ramp := make([]float64, 16)
	for i := range ramp {
		ramp[i] = float64(i % 4)
	}
	require.NoError(t, in.SetVar("decision", ramp))

	out, err := r.Reproject(in, orb.Bound{})
	require.NoError(t, err)
	got, _ := out.Var("decision")
	assert.InDeltaSlice(t, ramp, got, 1e-6)
}

func TestReproject_NoOverlap(t *testing.T) {
	requireCRS(t, reproject.Geographic, reproject.Geographic)
	r, err := reproject.New(reproject.Geographic, reproject.Nearest, newPool(t))
	require.NoError(t, err)

	_, err = r.Reproject(geographic(t, 1), orb.Bound{Min: orb.Point{-30, 16}, Max: orb.Point{-29, 17}})
	assert.ErrorIs(t, err, reproject.ErrNoOverlap)
}
