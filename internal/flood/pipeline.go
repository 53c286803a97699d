package flood

import (
	"fmt"

	"github.com/forest-guardian/flood-mapper/internal/compute"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/observability"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Reprojector moves a cube from its working grid to the output grid and clips
// it to a geographic bounding box.
type Reprojector interface {
	Reproject(c *datacube.Cube, bbox orb.Bound) (*datacube.Cube, error)
}

// Pipeline runs the numeric stages on the shared worker pool. Every stage
// returns a new, fully computed cube, so a Pipeline can serve concurrent
// requests.
type Pipeline struct {
	pool        *compute.Pool
	cal         Calibration
	window      int
	reprojector Reprojector
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewPipeline creates a Pipeline. A nil reprojector leaves results on the
// working grid.
func NewPipeline(pool *compute.Pool, cal Calibration, window int, reprojector Reprojector, logger *zap.Logger, metrics *observability.Metrics) (*Pipeline, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}
	if window < 1 || window%2 == 0 {
		return nil, fmt.Errorf("%w: %d, must be a positive odd number", ErrInvalidWindow, window)
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Pipeline{
		pool:        pool,
		cal:         cal,
		window:      window,
		reprojector: reprojector,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// Decision returns the quality filtered flood decision, valued 0, 1 or NaN,
// smoothed and reprojected onto the output grid.
func (p *Pipeline) Decision(in Inputs, bbox orb.Bound) (*datacube.Cube, error) {
	classified, err := p.fuseAndClassify(in)
	if err != nil {
		return nil, err
	}
	filtered, err := p.QualityFilter(classified)
	if err != nil {
		return nil, err
	}
	smoothed, err := p.Speckle(filtered)
	if err != nil {
		return nil, err
	}
	return p.reproject(smoothed, bbox)
}

// Probability returns the flood posterior probability, reprojected onto the
// output grid, without quality filtering.
func (p *Pipeline) Probability(in Inputs, bbox orb.Bound) (*datacube.Cube, error) {
	classified, err := p.fuseAndClassify(in)
	if err != nil {
		return nil, err
	}
	prob, err := classified.Only(VarFloodPost)
	if err != nil {
		return nil, err
	}
	return p.reproject(prob, bbox)
}

func (p *Pipeline) fuseAndClassify(in Inputs) (*datacube.Cube, error) {
	fused, err := p.Fuse(in)
	if err != nil {
		return nil, err
	}
	return p.Classify(fused)
}

func (p *Pipeline) Fuse(in Inputs) (*datacube.Cube, error) {
	defer prometheus.NewTimer(p.metrics.StageDuration.WithLabelValues("fuse")).ObserveDuration()

	fused, err := Fuse(in, p.cal.PermanentWaterClass)
	if err != nil {
		return nil, fmt.Errorf("failed to fuse cubes: %w", err)
	}
	p.logger.Debug("fused cubes",
		zap.Int("steps", fused.Steps()),
		zap.Strings("vars", fused.Vars()),
		zap.Bool("land_cover", in.LandCover != nil))
	return fused, nil
}

// Classify adds the expected water and land backscatter, both posteriors and
// the unfiltered decision to a fused cube.
func (p *Pipeline) Classify(fused *datacube.Cube) (*datacube.Cube, error) {
	defer prometheus.NewTimer(p.metrics.StageDuration.WithLabelValues("classify")).ObserveDuration()

	if len(fused.Time) != fused.Steps() {
		return nil, fmt.Errorf("%w: fused cube needs one time label per step", datacube.ErrSchemaMismatch)
	}
	in := make(map[string][]float64)
	for _, name := range append([]string{VarSig0, VarIncidence}, HarmonicBands...) {
		data, err := fused.Var(name)
		if err != nil {
			return nil, err
		}
		in[name] = data
	}

	size := len(in[VarSig0])
	wbsc := make([]float64, size)
	hbsc := make([]float64, size)
	nf := make([]float64, size)
	f := make([]float64, size)
	decision := make([]float64, size)

	n := fused.Grid.Pixels()
	err := p.pool.Run(fused.Steps(), func(i int) error {
		doy := DayOfYear(fused.Time[i])
		for k := i * n; k < (i+1)*n; k++ {
			h := Harmonics{
				M0: in["M0"][k],
				S1: in["S1"][k], C1: in["C1"][k],
				S2: in["S2"][k], C2: in["C2"][k],
				S3: in["S3"][k], C3: in["C3"][k],
			}
			wbsc[k] = p.cal.ExpectedWater(in[VarIncidence][k])
			hbsc[k] = h.ExpectedLand(doy)
			nf[k], f[k], decision[k] = Posterior(in[VarSig0][k], in[VarStd][k], wbsc[k], hbsc[k], p.cal.WaterStd)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := fused.Clone()
	for _, v := range []struct {
		name string
		data []float64
	}{
		{VarWaterBackscatter, wbsc},
		{VarLandBackscatter, hbsc},
		{VarNonFloodPost, nf},
		{VarFloodPost, f},
		{VarDecision, decision},
	} {
		if err := out.SetVar(v.name, v.data); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// QualityFilter returns a cube holding only the decision, with every pixel
// that fails a quality mask set to 0.
func (p *Pipeline) QualityFilter(classified *datacube.Cube) (*datacube.Cube, error) {
	defer prometheus.NewTimer(p.metrics.StageDuration.WithLabelValues("filter")).ObserveDuration()

	names := []string{VarDecision, VarSig0, VarStd, VarIncidence, VarWaterBackscatter, VarLandBackscatter, VarFloodPost}
	in := make([][]float64, len(names))
	for j, name := range names {
		data, err := classified.Var(name)
		if err != nil {
			return nil, err
		}
		in[j] = data
	}

	out := make([]float64, len(in[0]))
	n := classified.Grid.Pixels()
	err := p.pool.Run(classified.Steps(), func(i int) error {
		for k := i * n; k < (i+1)*n; k++ {
			out[k] = p.cal.Filter(in[0][k], in[1][k], in[2][k], in[3][k], in[4][k], in[5][k], in[6][k])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res, err := classified.Only()
	if err != nil {
		return nil, err
	}
	if err := res.SetVar(VarDecision, out); err != nil {
		return nil, err
	}
	p.logger.Debug("quality filter applied", zap.Int("steps", res.Steps()), zap.Int("discarded", discarded(in[0], out)))
	return res, nil
}

// Speckle applies the median filter to every variable of every step.
func (p *Pipeline) Speckle(c *datacube.Cube) (*datacube.Cube, error) {
	defer prometheus.NewTimer(p.metrics.StageDuration.WithLabelValues("speckle")).ObserveDuration()

	out := c.Clone()
	if p.window == 1 {
		return out, nil
	}
	n := c.Grid.Pixels()
	for _, name := range c.Vars() {
		dst, _ := out.Var(name)
		err := p.pool.Run(c.Steps(), func(i int) error {
			smoothed, err := MedianFilter(c.Step(name, i), c.Grid.Width, c.Grid.Height, p.window)
			if err != nil {
				return err
			}
			copy(dst[i*n:(i+1)*n], smoothed)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to filter speckle of %s: %w", name, err)
		}
	}
	return out, nil
}

func (p *Pipeline) reproject(c *datacube.Cube, bbox orb.Bound) (*datacube.Cube, error) {
	if p.reprojector == nil {
		return c, nil
	}
	defer prometheus.NewTimer(p.metrics.StageDuration.WithLabelValues("reproject")).ObserveDuration()

	out, err := p.reprojector.Reproject(c, bbox)
	if err != nil {
		return nil, fmt.Errorf("failed to reproject result: %w", err)
	}
	return out, nil
}

// discarded counts the decisions the quality masks turned from 1 into 0.
func discarded(before, after []float64) int {
	count := 0
	for k, v := range before {
		if v == 1 && after[k] == 0 {
			count++
		}
	}
	return count
}
