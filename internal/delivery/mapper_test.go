package delivery_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/catalog"
	"github.com/forest-guardian/flood-mapper/internal/compute"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/delivery"
	"github.com/forest-guardian/flood-mapper/internal/flood"
	"github.com/forest-guardian/flood-mapper/internal/logging"
	"github.com/forest-guardian/flood-mapper/internal/observability"
	"github.com/forest-guardian/flood-mapper/internal/sentinel"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sig0Collection = "SENTINEL1_SIG0_20M"
	hparCollection = "SENTINEL1_HPAR"
	pliaCollection = "SENTINEL1_MPLIA"
	wcCollection   = "urn:eop:VITO:ESA_WorldCover_10m_2021_AWS_V2"
	wcBand         = "ESA_WORLDCOVER_10M_MAP"
)

var (
	nan    = math.NaN()
	grid   = datacube.Grid{CRS: "EPSG:27704", GeoTransform: [6]float64{4800000, 20, 0, 1200040, 0, -20}, Width: 2, Height: 2}
	bbox   = orb.Bound{Min: orb.Point{12.3, 54.3}, Max: orb.Point{13.1, 54.6}}
	period = catalog.Interval{Start: time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2022, 10, 31, 0, 0, 0, 0, time.UTC)}
)

func ptr(f float64) *float64 { return &f }

func item(id, collection string, at time.Time, state string, orbit int, scale float64, bands ...string) sentinel.Item {
	nodata := sentinel.Nodata(-9999)
	assets := make(map[string]sentinel.Asset)
	for _, b := range bands {
		assets[b] = sentinel.Asset{
			Href:        fmt.Sprintf("/data/%s_%s.tif", id, b),
			RasterBands: []sentinel.RasterBand{{Scale: ptr(scale), Nodata: &nodata}},
		}
	}
	return sentinel.Item{
		ID:         id,
		Collection: collection,
		Properties: sentinel.Properties{Datetime: at, OrbitState: state, RelativeOrbit: orbit},
		Assets:     assets,
	}
}

type fakeSearcher struct {
	items map[string][]sentinel.Item
}

func (s *fakeSearcher) Search(ctx context.Context, q catalog.Query) ([]sentinel.Item, error) {
	if q.Collections[0] == sig0Collection && q.Datetime == nil {
		return nil, fmt.Errorf("backscatter must be searched with a datetime")
	}
	return s.items[q.Collections[0]], nil
}

// fakeLoader serves raw rasters per collection and band, one 2x2 raster per
// item in item order.
type fakeLoader struct {
	rasters map[string]map[string][]float64
}

func (l *fakeLoader) Load(ctx context.Context, items []sentinel.Item, bands []string, g datacube.Grid) (*datacube.Cube, error) {
	c := datacube.New(datacube.DimTime, len(items), g)
	c.Time = sentinel.Datetimes(items)
	for _, b := range bands {
		data, ok := l.rasters[items[0].Collection][b]
		if !ok {
			return nil, fmt.Errorf("no raster for %s %s", items[0].Collection, b)
		}
		if err := c.SetVar(b, append([]float64(nil), data...)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func fixtures() (*fakeSearcher, *fakeLoader) {
	t0 := time.Date(2022, 10, 11, 5, 25, 1, 0, time.UTC)
	t1 := time.Date(2022, 10, 17, 17, 4, 0, 0, time.UTC)
	t2 := time.Date(2022, 10, 23, 5, 25, 0, 0, time.UTC)
	ref := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	searcher := &fakeSearcher{items: map[string][]sentinel.Item{
		sig0Collection: {
			item("s0", sig0Collection, t0, "descending", 22, 10, "VV"),
			item("s1", sig0Collection, t1, "ascending", 117, 10, "VV"),
			item("s2", sig0Collection, t2, "descending", 22, 10, "VV"),
		},
		hparCollection: {
			item("h0", hparCollection, ref, "descending", 22, 1, flood.HarmonicBands...),
			item("h1", hparCollection, ref, "ascending", 117, 1, flood.HarmonicBands...),
		},
		pliaCollection: {
			item("p0", pliaCollection, ref, "descending", 22, 1, flood.VarIncidence),
			item("p1", pliaCollection, ref, "ascending", 117, 1, flood.VarIncidence),
		},
	}}

	zeros := make([]float64, 8)
	hpar := map[string][]float64{
		"M0":         {-10, -10, -10, -10, -10, -10, -10, -10},
		"C1":         {0, 1, 0, 0, 0, 1, 0, 0},
		flood.VarStd: {2, 2, 2, 2, 2, 2, -9999, 2},
	}
	for _, b := range []string{"C2", "C3", "S1", "S2", "S3"} {
		hpar[b] = zeros
	}
	loader := &fakeLoader{rasters: map[string]map[string][]float64{
		sig0Collection: {"VV": {
			-200, -100, -140, -220,
			-90, -210, -140, -190,
			-250, -9999, -150, -300,
		}},
		hparCollection: hpar,
		pliaCollection: {flood.VarIncidence: {
			35, 35, 35, 50,
			35, 35, 35, 35,
		}},
		wcCollection: {wcBand: {
			nan, 10, nan, 10,
			80, nan, 50, nan,
		}},
	}}
	return searcher, loader
}

func newMapper(t *testing.T, searcher, landCover catalog.Searcher, loader delivery.Loader, metrics *observability.Metrics) *delivery.Mapper {
	t.Helper()
	pool := compute.NewPool(2)
	t.Cleanup(pool.Stop)
	pipeline, err := flood.NewPipeline(pool, flood.DefaultCalibration(), 1, nil, logging.Nop(), metrics)
	require.NoError(t, err)

	cfg := delivery.Config{
		Sig0Collection:       sig0Collection,
		HparCollection:       hparCollection,
		PliaCollection:       pliaCollection,
		LandCoverCollection:  wcCollection,
		LandCoverBand:        wcBand,
		ProbabilityThreshold: 0.8,
	}
	grids := func(orb.Bound) (datacube.Grid, error) { return grid, nil }
	return delivery.NewMapper(cfg, searcher, landCover, loader, grids, pipeline, clockwork.NewFakeClock(), logging.Nop(), metrics)
}

func TestMapper_Decision(t *testing.T) {
	searcher, loader := fixtures()
	metrics := observability.NewMetricsForTesting()
	m := newMapper(t, searcher, nil, loader, metrics)

	res, err := m.Run(context.Background(), delivery.Request{BBox: bbox, Datetime: period})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, delivery.ModeDecision, res.Mode)
	got, err := res.Cube.Var(flood.VarDecision)
	require.NoError(t, err)
	want := []float64{
		1, 0, 0, 0,
		0, 1, nan, 1,
		1, nan, 1, 0,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("decision (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"D22", "A117", "D22"}, res.Cube.Orbit)

	require.Len(t, res.Summaries, 3)
	assert.Equal(t, 3, res.Summaries[2].Valid)
	assert.Equal(t, 2, res.Summaries[2].Flooded)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("decision", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ItemsLoaded.WithLabelValues(sig0Collection)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FloodedPixels))
}

func TestMapper_Probability(t *testing.T) {
	searcher, loader := fixtures()
	m := newMapper(t, searcher, nil, loader, nil)

	res, err := m.Run(context.Background(), delivery.Request{BBox: bbox, Datetime: period, Mode: delivery.ModeProbability})
	require.NoError(t, err)
	assert.Equal(t, flood.VarFloodPost, res.Variable)

	f, _ := res.Cube.Var(flood.VarFloodPost)
	assert.InDelta(t, 0.658719, f[2], 1e-6)
	assert.True(t, math.IsNaN(f[6]))
	for _, v := range f {
		if !math.IsNaN(v) {
			assert.True(t, v >= 0 && v <= 1)
		}
	}
}

func TestMapper_LandCoverMasksPermanentWater(t *testing.T) {
	searcher, loader := fixtures()
	landCover := &fakeSearcher{items: map[string][]sentinel.Item{
		wcCollection: {
			item("wc0", wcCollection, time.Time{}, "", 0, 1, wcBand),
			item("wc1", wcCollection, time.Time{}, "", 0, 1, wcBand),
		},
	}}
	m := newMapper(t, searcher, landCover, loader, nil)

	res, err := m.Run(context.Background(), delivery.Request{BBox: bbox, Datetime: period})
	require.NoError(t, err)
	got, _ := res.Cube.Var(flood.VarDecision)
	want := []float64{
		nan, 0, 0, 0,
		nan, 1, nan, 1,
		nan, nan, 1, 0,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("decision (-want +got):\n%s", diff)
	}
}

func TestMapper_AllPermanentWater(t *testing.T) {
	searcher, loader := fixtures()
	loader.rasters[wcCollection][wcBand] = []float64{80, 80, 80, 80, 80, 80, 80, 80}
	landCover := &fakeSearcher{items: map[string][]sentinel.Item{
		wcCollection: {
			item("wc0", wcCollection, time.Time{}, "", 0, 1, wcBand),
			item("wc1", wcCollection, time.Time{}, "", 0, 1, wcBand),
		},
	}}
	metrics := observability.NewMetricsForTesting()
	m := newMapper(t, searcher, landCover, loader, metrics)

	for _, mode := range []string{delivery.ModeDecision, delivery.ModeProbability} {
		res, err := m.Run(context.Background(), delivery.Request{BBox: bbox, Datetime: period, Mode: mode})
		assert.Nil(t, res, mode)
		assert.ErrorIs(t, err, delivery.ErrNoAcquisitions, mode)
		assert.ErrorContains(t, err, "masked", mode)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("decision", "error")))
}

func TestMapper_MissingOrbitAborts(t *testing.T) {
	searcher, loader := fixtures()
	searcher.items[pliaCollection] = searcher.items[pliaCollection][:1]
	loader.rasters[pliaCollection][flood.VarIncidence] = []float64{35, 35, 35, 50}
	metrics := observability.NewMetricsForTesting()
	m := newMapper(t, searcher, nil, loader, metrics)

	res, err := m.Run(context.Background(), delivery.Request{BBox: bbox, Datetime: period})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, datacube.ErrOrbitNotFound)
	assert.ErrorContains(t, err, "A117")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("decision", "error")))
}

func TestMapper_Errors(t *testing.T) {
	searcher, loader := fixtures()
	m := newMapper(t, searcher, nil, loader, nil)

	_, err := m.Run(context.Background(), delivery.Request{BBox: bbox, Datetime: period, Mode: "histogram"})
	assert.ErrorIs(t, err, delivery.ErrInvalidMode)

	searcher.items[sig0Collection] = nil
	_, err = m.Run(context.Background(), delivery.Request{BBox: bbox, Datetime: period})
	assert.ErrorIs(t, err, delivery.ErrNoAcquisitions)
}
