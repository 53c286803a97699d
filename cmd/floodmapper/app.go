package main

import (
	"context"
	"os"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/cache"
	"github.com/forest-guardian/flood-mapper/internal/catalog"
	"github.com/forest-guardian/flood-mapper/internal/compute"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/delivery"
	"github.com/forest-guardian/flood-mapper/internal/flood"
	"github.com/forest-guardian/flood-mapper/internal/logging"
	"github.com/forest-guardian/flood-mapper/internal/notification"
	"github.com/forest-guardian/flood-mapper/internal/observability"
	"github.com/forest-guardian/flood-mapper/internal/properties"
	"github.com/forest-guardian/flood-mapper/internal/reproject"
	"github.com/forest-guardian/flood-mapper/internal/sentinel"
	"github.com/forest-guardian/flood-mapper/internal/ui"
	"github.com/forest-guardian/flood-mapper/output"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// app holds the wired services of one process.
type app struct {
	cfg      *properties.Config
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *observability.Metrics
	pool     *compute.Pool
	mapper   *delivery.Mapper
	notifier *notification.Discord
}

func newApp(flags *rootFlags, showProgress bool) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Debug)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()
	pool := compute.NewPool(cfg.Compute.Workers)

	reprojector, err := reproject.New(cfg.Grid.TargetCRS, cfg.Grid.Resampling, pool)
	if err != nil {
		pool.Stop()
		return nil, err
	}
	pipeline, err := flood.NewPipeline(pool, calibration(cfg.Calibration), cfg.Compute.SpeckleWindow, reprojector, logger, metrics)
	if err != nil {
		pool.Stop()
		return nil, err
	}

	items := cache.NewFileCache[[]sentinel.Item](cfg.STAC.CacheDir, cfg.STAC.CacheTTL, clock)
	stac := catalog.NewClient(catalog.ClientConfig{
		BaseURL:      cfg.STAC.APIURL,
		Timeout:      cfg.STAC.Timeout,
		Retries:      cfg.STAC.Retries,
		Backoff:      2 * time.Second,
		PageSize:     cfg.STAC.PageSize,
		ClientID:     cfg.STAC.ClientID,
		ClientSecret: cfg.STAC.ClientSecret,
		TokenURL:     cfg.STAC.TokenURL,
	}, clock, logger.Named("stac"), metrics)

	var landCover catalog.Searcher
	if cfg.STAC.LandCoverCollection != "" {
		lc := catalog.NewClient(catalog.ClientConfig{
			BaseURL:  cfg.STAC.LandCoverAPIURL,
			Timeout:  cfg.STAC.Timeout,
			Retries:  cfg.STAC.Retries,
			Backoff:  2 * time.Second,
			PageSize: cfg.STAC.PageSize,
		}, clock, logger.Named("landcover"), metrics)
		landCover = catalog.NewCachedSearcher(lc, items, logger)
	}

	grids := func(bbox orb.Bound) (datacube.Grid, error) {
		return reproject.WorkingGrid(bbox, cfg.Grid.CRS, cfg.Grid.Resolution, reproject.NewGDALTransformer)
	}

	mapper := delivery.NewMapper(delivery.Config{
		Sig0Collection:       cfg.STAC.Sig0Collection,
		HparCollection:       cfg.STAC.HparCollection,
		PliaCollection:       cfg.STAC.PliaCollection,
		LandCoverCollection:  cfg.STAC.LandCoverCollection,
		LandCoverBand:        cfg.STAC.LandCoverBand,
		ProbabilityThreshold: cfg.Calibration.ProbabilityThreshold,
	},
		catalog.NewCachedSearcher(stac, items, logger),
		landCover,
		sentinel.NewGDALLoader(logger.Named("loader"), cfg.Compute.LoadWorkers, showProgress),
		grids, pipeline, clock, logger, metrics)

	return &app{
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		pool:     pool,
		mapper:   mapper,
		notifier: notification.NewDiscord(cfg.Notification.DiscordErrorURL, cfg.Notification.DiscordSuccessURL),
	}, nil
}

func calibration(c properties.CalibrationConfig) flood.Calibration {
	return flood.Calibration{
		WaterSlope:           c.WaterSlope,
		WaterIntercept:       c.WaterIntercept,
		WaterStd:             c.WaterStd,
		MinIncidence:         c.MinIncidence,
		MaxIncidence:         c.MaxIncidence,
		SeparationFactor:     c.SeparationFactor,
		OutlierFactor:        c.OutlierFactor,
		ProbabilityThreshold: c.ProbabilityThreshold,
		PermanentWaterClass:  c.PermanentWaterClass,
	}
}

func (a *app) interactive(ctx context.Context) error {
	console := ui.NewConsole(os.Stdin, os.Stdout, a.clock)
	menu := ui.NewMenu(console, a.mapper, a.notifier, output.Options{
		Dir:     a.cfg.Output.Dir,
		Formats: []string{output.FormatGeoTIFF, output.FormatPNG, output.FormatGeoJSON},
	})
	menu.PrintBanner()
	menu.Show(ctx)
	return nil
}

func (a *app) Close() {
	a.pool.Stop()
	_ = a.logger.Sync()
}

func (a *app) notify(ctx context.Context, msg string, failed bool) {
	send := a.notifier.SendSuccess
	if failed {
		send = a.notifier.SendError
	}
	if err := send(ctx, msg); err != nil {
		a.logger.Warn("failed to send notification", zap.Error(err))
	}
}
