package sentinel

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var registerDrivers sync.Once

// GDALLoader reads item assets with GDAL and warps them onto a working grid.
type GDALLoader struct {
	logger       *zap.Logger
	concurrency  int
	showProgress bool
}

func NewGDALLoader(logger *zap.Logger, concurrency int, showProgress bool) *GDALLoader {
	registerDrivers.Do(godal.RegisterAll)
	if concurrency < 1 {
		concurrency = 1
	}
	return &GDALLoader{logger: logger, concurrency: concurrency, showProgress: showProgress}
}

// Load returns a cube with one step per item and one variable per band. Values
// are raw: calibration happens in the aligner. Pixels outside an asset's
// footprint are NaN.
func (l *GDALLoader) Load(ctx context.Context, items []Item, bands []string, grid datacube.Grid) (*datacube.Cube, error) {
	n := grid.Pixels()
	data := make(map[string][]float64, len(bands))
	for _, band := range bands {
		data[band] = make([]float64, len(items)*n)
	}

	total := int64(len(items) * len(bands))
	var bar *progressbar.ProgressBar
	if l.showProgress {
		bar = progressbar.Default(total, fmt.Sprintf("Loading %s", strings.Join(bands, ",")))
	} else {
		bar = progressbar.DefaultSilent(total)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, item := range items {
		for _, band := range bands {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				asset, ok := item.Assets[band]
				if !ok {
					return fmt.Errorf("%w: item %s has no asset %s", ErrMissingBandMetadata, item.ID, band)
				}
				dst := data[band][i*n : (i+1)*n]
				if err := warpInto(asset.Href, grid, dst); err != nil {
					return fmt.Errorf("failed to load %s of item %s: %w", band, item.ID, err)
				}
				bar.Add(1)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	bar.Finish()

	l.logger.Debug("loaded assets", zap.Int("items", len(items)), zap.Strings("bands", bands), zap.Stringer("grid", grid))

	cube := datacube.New(datacube.DimTime, len(items), grid)
	cube.Time = Datetimes(items)
	for _, band := range bands {
		if err := cube.SetVar(band, data[band]); err != nil {
			return nil, err
		}
	}
	return cube, nil
}

func warpInto(href string, grid datacube.Grid, dst []float64) error {
	ds, err := godal.Open(gdalPath(href), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return fmt.Errorf("failed to open raster: %w", err)
	}
	defer ds.Close()

	b := grid.Bounds()
	warped, err := ds.Warp("", []string{
		"-of", "MEM",
		"-t_srs", grid.CRS,
		"-te", ftoa(b[0]), ftoa(b[1]), ftoa(b[2]), ftoa(b[3]),
		"-ts", strconv.Itoa(grid.Width), strconv.Itoa(grid.Height),
		"-r", "near",
		"-ot", "Float64",
		"-dstnodata", "nan",
	})
	if err != nil {
		return fmt.Errorf("failed to warp raster: %w", err)
	}
	defer warped.Close()

	bands := warped.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("warped raster has no bands")
	}
	if err := bands[0].Read(0, 0, dst, grid.Width, grid.Height); err != nil {
		return fmt.Errorf("failed to read raster data: %w", err)
	}
	if nd, ok := bands[0].NoData(); ok && !math.IsNaN(nd) {
		for i, v := range dst {
			if v == nd {
				dst[i] = math.NaN()
			}
		}
	}
	return nil
}

func gdalPath(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return "/vsicurl/" + href
	}
	return href
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
