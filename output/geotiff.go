package output

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
)

var registerDrivers sync.Once

// WriteGeoTIFF stores variable name as a tiled Float64 GeoTIFF with one band
// per step. NaN is the nodata value and each band carries its acquisition
// time as DATETIME metadata.
func WriteGeoTIFF(path string, c *datacube.Cube, name string) (string, error) {
	registerDrivers.Do(godal.RegisterAll)
	if !strings.HasSuffix(path, ".tif") {
		path += ".tif"
	}
	if _, err := c.Var(name); err != nil {
		return "", err
	}
	if c.Steps() == 0 {
		return "", fmt.Errorf("cube has no steps")
	}

	ds, err := godal.Create(godal.GTiff, path, c.Steps(), godal.Float64, c.Grid.Width, c.Grid.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeBands(ds, c, name); err != nil {
		ds.Close()
		return "", err
	}
	if err := ds.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

func writeBands(ds *godal.Dataset, c *datacube.Cube, name string) error {
	if err := ds.SetGeoTransform(c.Grid.GeoTransform); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	sr, err := godal.NewSpatialRef(c.Grid.CRS)
	if err != nil {
		return fmt.Errorf("invalid crs %q: %w", c.Grid.CRS, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}
	if err := ds.SetMetadata("VARIABLE", name); err != nil {
		return err
	}

	for i, band := range ds.Bands() {
		if err := band.SetNoData(math.NaN()); err != nil {
			return fmt.Errorf("failed to set nodata of band %d: %w", i+1, err)
		}
		if i < len(c.Time) {
			if err := band.SetMetadata("DATETIME", c.Time[i].UTC().Format(time.RFC3339)); err != nil {
				return err
			}
		}
		if err := band.Write(0, 0, c.Step(name, i), c.Grid.Width, c.Grid.Height); err != nil {
			return fmt.Errorf("failed to write band %d: %w", i+1, err)
		}
	}
	return nil
}
