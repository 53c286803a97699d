// Package delivery runs flood mapping requests end to end: catalog search,
// loading, alignment and the flood pipeline.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/catalog"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/flood"
	"github.com/forest-guardian/flood-mapper/internal/observability"
	"github.com/forest-guardian/flood-mapper/internal/sentinel"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ModeDecision    = "decision"
	ModeProbability = "probability"
)

var (
	ErrInvalidMode    = errors.New("invalid mode")
	ErrNoAcquisitions = errors.New("no acquisitions found")
)

// Loader reads the given bands of every item onto grid, one step per item.
type Loader interface {
	Load(ctx context.Context, items []sentinel.Item, bands []string, grid datacube.Grid) (*datacube.Cube, error)
}

// GridBuilder returns the working grid covering a geographic bounding box.
type GridBuilder func(bbox orb.Bound) (datacube.Grid, error)

type Config struct {
	Sig0Collection       string
	Sig0Band             string
	HparCollection       string
	PliaCollection       string
	LandCoverCollection  string
	LandCoverBand        string
	ProbabilityThreshold float64
}

type Request struct {
	BBox     orb.Bound
	Datetime catalog.Interval
	Mode     string
}

type Result struct {
	RequestID string
	Mode      string
	Variable  string
	Threshold float64
	Cube      *datacube.Cube
	Summaries []flood.StepSummary
	Duration  time.Duration
}

type Mapper struct {
	cfg       Config
	searcher  catalog.Searcher
	landCover catalog.Searcher
	loader    Loader
	grids     GridBuilder
	pipeline  *flood.Pipeline
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewMapper creates a Mapper. landCover may be nil, which disables the
// permanent water mask.
func NewMapper(cfg Config, searcher, landCover catalog.Searcher, loader Loader, grids GridBuilder, pipeline *flood.Pipeline, clock clockwork.Clock, logger *zap.Logger, metrics *observability.Metrics) *Mapper {
	if cfg.Sig0Band == "" {
		cfg.Sig0Band = "VV"
	}
	if cfg.LandCoverCollection == "" {
		landCover = nil
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Mapper{
		cfg:       cfg,
		searcher:  searcher,
		landCover: landCover,
		loader:    loader,
		grids:     grids,
		pipeline:  pipeline,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run maps floods for one request. Any failure aborts the whole request.
func (m *Mapper) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == "" {
		req.Mode = ModeDecision
	}
	if req.Mode != ModeDecision && req.Mode != ModeProbability {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}

	start := m.clock.Now()
	id := uuid.NewString()
	logger := m.logger.With(zap.String("request_id", id), zap.String("mode", req.Mode))
	logger.Info("flood mapping started",
		zap.Float64s("bbox", catalog.BBoxValues(req.BBox)),
		zap.String("datetime", req.Datetime.String()))

	res, err := m.run(ctx, logger, req)
	elapsed := m.clock.Since(start)
	m.metrics.RequestDuration.WithLabelValues(req.Mode).Observe(elapsed.Seconds())
	if err != nil {
		m.metrics.RequestsTotal.WithLabelValues(req.Mode, "error").Inc()
		logger.Error("flood mapping failed", zap.Error(err), zap.Duration("duration", elapsed))
		return nil, err
	}
	m.metrics.RequestsTotal.WithLabelValues(req.Mode, "success").Inc()

	res.RequestID = id
	res.Duration = elapsed
	if n := len(res.Summaries); n > 0 {
		m.metrics.FloodedPixels.Set(float64(res.Summaries[n-1].Flooded))
	}
	logger.Info("flood mapping finished", zap.Int("steps", res.Cube.Steps()), zap.Duration("duration", elapsed))
	return res, nil
}

func (m *Mapper) run(ctx context.Context, logger *zap.Logger, req Request) (*Result, error) {
	grid, err := m.grids(req.BBox)
	if err != nil {
		return nil, fmt.Errorf("failed to build working grid: %w", err)
	}

	in, err := m.prepare(ctx, logger, req, grid)
	if err != nil {
		return nil, err
	}

	res := &Result{Mode: req.Mode}
	threshold := 0.5
	switch req.Mode {
	case ModeDecision:
		res.Variable = flood.VarDecision
		res.Cube, err = m.pipeline.Decision(in, req.BBox)
	case ModeProbability:
		res.Variable = flood.VarFloodPost
		threshold = m.cfg.ProbabilityThreshold
		res.Cube, err = m.pipeline.Probability(in, req.BBox)
	}
	if err != nil {
		return nil, err
	}
	if res.Cube.Steps() == 0 {
		return nil, fmt.Errorf("%w: every acquisition is masked over %v", ErrNoAcquisitions, catalog.BBoxValues(req.BBox))
	}
	res.Threshold = threshold
	if res.Summaries, err = flood.Summarize(res.Cube, res.Variable, threshold); err != nil {
		return nil, err
	}
	return res, nil
}

// prepare searches, loads and aligns the input cubes. The auxiliary cubes are
// fetched concurrently once the backscatter orbits are known.
func (m *Mapper) prepare(ctx context.Context, logger *zap.Logger, req Request, grid datacube.Grid) (flood.Inputs, error) {
	var in flood.Inputs

	stage := m.clock.Now()
	items, err := m.searcher.Search(ctx, catalog.Query{
		Collections: []string{m.cfg.Sig0Collection},
		BBox:        req.BBox,
		Datetime:    &req.Datetime,
	})
	if err != nil {
		return in, fmt.Errorf("failed to search backscatter: %w", err)
	}
	if len(items) == 0 {
		return in, fmt.Errorf("%w: %s over %v during %s", ErrNoAcquisitions, m.cfg.Sig0Collection, catalog.BBoxValues(req.BBox), req.Datetime)
	}
	raw, err := m.loader.Load(ctx, items, []string{m.cfg.Sig0Band}, grid)
	if err != nil {
		return in, fmt.Errorf("failed to load backscatter: %w", err)
	}
	m.metrics.ItemsLoaded.WithLabelValues(m.cfg.Sig0Collection).Add(float64(len(items)))

	var orbits []string
	in.Backscatter, orbits, err = sentinel.AlignPrimary(raw, items, m.cfg.Sig0Band)
	if err != nil {
		return in, err
	}
	if in.Backscatter.Steps() == 0 {
		return in, fmt.Errorf("%w: every backscatter acquisition is empty", ErrNoAcquisitions)
	}
	logger.Info("backscatter aligned", zap.Int("items", len(items)), zap.Int("steps", in.Backscatter.Steps()), zap.Strings("orbits", orbits))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := m.auxiliary(gctx, m.cfg.HparCollection, flood.HarmonicBands, req.BBox, grid, orbits)
		in.Parameters = c
		return err
	})
	g.Go(func() error {
		c, err := m.auxiliary(gctx, m.cfg.PliaCollection, []string{flood.VarIncidence}, req.BBox, grid, orbits)
		in.Incidence = c
		return err
	})
	if m.landCover != nil {
		g.Go(func() error {
			c, err := m.landCoverLayer(gctx, req.BBox, grid)
			in.LandCover = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return in, err
	}
	m.metrics.StageDuration.WithLabelValues("align").Observe(m.clock.Since(stage).Seconds())
	return in, nil
}

func (m *Mapper) auxiliary(ctx context.Context, collection string, bands []string, bbox orb.Bound, grid datacube.Grid, orbits []string) (*datacube.Cube, error) {
	items, err := m.searcher.Search(ctx, catalog.Query{Collections: []string{collection}, BBox: bbox})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s over %v", ErrNoAcquisitions, collection, catalog.BBoxValues(bbox))
	}
	raw, err := m.loader.Load(ctx, items, bands, grid)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}
	m.metrics.ItemsLoaded.WithLabelValues(collection).Add(float64(len(items)))

	c, err := sentinel.AlignAuxiliary(raw, items, bands, orbits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", collection, err)
	}
	return c, nil
}

// landCoverLayer mosaics the land cover tiles into a single layer. A bbox
// without land cover tiles yields no mask.
func (m *Mapper) landCoverLayer(ctx context.Context, bbox orb.Bound, grid datacube.Grid) (*datacube.Cube, error) {
	items, err := m.landCover.Search(ctx, catalog.Query{Collections: []string{m.cfg.LandCoverCollection}, BBox: bbox})
	if err != nil {
		return nil, fmt.Errorf("failed to search land cover: %w", err)
	}
	if len(items) == 0 {
		m.logger.Warn("no land cover tiles, permanent water is not masked", zap.Float64s("bbox", catalog.BBoxValues(bbox)))
		return nil, nil
	}
	raw, err := m.loader.Load(ctx, items, []string{m.cfg.LandCoverBand}, grid)
	if err != nil {
		return nil, fmt.Errorf("failed to load land cover: %w", err)
	}
	m.metrics.ItemsLoaded.WithLabelValues(m.cfg.LandCoverCollection).Add(float64(len(items)))
	return raw.Mosaic().RenameVar(m.cfg.LandCoverBand, flood.VarLandCover)
}
