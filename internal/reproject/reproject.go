// Package reproject moves result cubes from the equal-area working grid to a
// user facing CRS and builds working grids from geographic bounding boxes.
package reproject

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/flood-mapper/internal/compute"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/paulmach/orb"
)

var (
	ErrUnsupportedResampling = errors.New("unsupported resampling")
	ErrNoOverlap             = errors.New("bbox does not overlap the reprojected raster")
)

const (
	Nearest  = "nearest"
	Bilinear = "bilinear"
)

// gdalResampling maps resampling names to gdalwarp -r values.
var gdalResampling = map[string]string{
	Nearest:  "near",
	Bilinear: "bilinear",
}

// Reprojector warps cubes onto the target CRS with GDAL and clips the result
// to the requested bounding box.
type Reprojector struct {
	target     string
	resampling string
	pool       *compute.Pool
}

func New(target, resampling string, pool *compute.Pool) (*Reprojector, error) {
	if resampling == "" {
		resampling = Nearest
	}
	if _, ok := gdalResampling[resampling]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedResampling, resampling)
	}
	if target == "" {
		target = Geographic
	}
	return &Reprojector{target: target, resampling: resampling, pool: pool}, nil
}

// Reproject returns every variable of c warped onto the target CRS and then
// clipped to bbox, given in target CRS coordinates. The output grid is the one
// GDAL suggests for the whole footprint, cut down to the pixels whose centers
// lie inside bbox. An empty bbox keeps the full footprint.
func (r *Reprojector) Reproject(c *datacube.Cube, bbox orb.Bound) (*datacube.Cube, error) {
	registerDrivers.Do(godal.RegisterAll)

	full, err := r.footprintGrid(c.Grid)
	if err != nil {
		return nil, err
	}
	dst := full
	if bbox.Max.X() > bbox.Min.X() && bbox.Max.Y() > bbox.Min.Y() {
		if dst, err = clip(full, bbox); err != nil {
			return nil, err
		}
	}

	names := c.Vars()
	n := dst.Pixels()
	data := make([][]float64, len(names))
	for j := range names {
		data[j] = make([]float64, c.Steps()*n)
	}
	steps := c.Steps()
	if len(names) == 0 {
		steps = 0
	}
	err = r.pool.Run(steps, func(i int) error {
		src := make([][]float64, len(names))
		out := make([][]float64, len(names))
		for j, name := range names {
			src[j] = c.Step(name, i)
			out[j] = data[j][i*n : (i+1)*n]
		}
		if err := r.warp(c.Grid, src, dst, out); err != nil {
			return fmt.Errorf("failed to reproject step %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cube := datacube.New(c.Dim, c.Steps(), dst)
	cube.Time = c.Time
	cube.Orbit = c.Orbit
	for j, name := range names {
		if err := cube.SetVar(name, data[j]); err != nil {
			return nil, err
		}
	}
	return cube, nil
}

// footprintGrid asks GDAL for the output grid covering all of src in the
// target CRS by warping an empty single band raster.
func (r *Reprojector) footprintGrid(src datacube.Grid) (datacube.Grid, error) {
	ds, err := memDataset(src, nil)
	if err != nil {
		return datacube.Grid{}, err
	}
	defer ds.Close()

	warped, err := ds.Warp("", []string{"-of", "MEM", "-t_srs", r.target, "-ot", "Byte"})
	if err != nil {
		return datacube.Grid{}, fmt.Errorf("failed to compute footprint of %s in %s: %w", src, r.target, err)
	}
	defer warped.Close()

	gt, err := warped.GeoTransform()
	if err != nil {
		return datacube.Grid{}, fmt.Errorf("failed to read warped geotransform: %w", err)
	}
	st := warped.Structure()
	return datacube.Grid{CRS: r.target, GeoTransform: gt, Width: st.SizeX, Height: st.SizeY}, nil
}

// warp resamples one step, one slice per variable, from src onto dst.
func (r *Reprojector) warp(src datacube.Grid, values [][]float64, dst datacube.Grid, out [][]float64) error {
	ds, err := memDataset(src, values)
	if err != nil {
		return err
	}
	defer ds.Close()

	b := dst.Bounds()
	warped, err := ds.Warp("", []string{
		"-of", "MEM",
		"-t_srs", r.target,
		"-te", ftoa(b[0]), ftoa(b[1]), ftoa(b[2]), ftoa(b[3]),
		"-ts", strconv.Itoa(dst.Width), strconv.Itoa(dst.Height),
		"-r", gdalResampling[r.resampling],
		"-ot", "Float64",
		"-dstnodata", "nan",
	})
	if err != nil {
		return fmt.Errorf("failed to warp raster: %w", err)
	}
	defer warped.Close()

	bands := warped.Bands()
	if len(bands) != len(out) {
		return fmt.Errorf("warped raster has %d bands, want %d", len(bands), len(out))
	}
	for j, band := range bands {
		if err := band.Read(0, 0, out[j], dst.Width, dst.Height); err != nil {
			return fmt.Errorf("failed to read band %d: %w", j+1, err)
		}
	}
	return nil
}

// memDataset creates an in-memory Float64 raster on g holding one band per
// entry of values, with NaN as nodata. No values gives a single empty band.
func memDataset(g datacube.Grid, values [][]float64) (*godal.Dataset, error) {
	ds, err := godal.Create(godal.Memory, "", max(1, len(values)), godal.Float64, g.Width, g.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory raster: %w", err)
	}
	if err := georeference(ds, g); err != nil {
		ds.Close()
		return nil, err
	}
	for j, band := range ds.Bands() {
		if err := band.SetNoData(math.NaN()); err != nil {
			ds.Close()
			return nil, fmt.Errorf("failed to set nodata of band %d: %w", j+1, err)
		}
		if j >= len(values) {
			continue
		}
		if err := band.Write(0, 0, values[j], g.Width, g.Height); err != nil {
			ds.Close()
			return nil, fmt.Errorf("failed to write band %d: %w", j+1, err)
		}
	}
	return ds, nil
}

func georeference(ds *godal.Dataset, g datacube.Grid) error {
	if err := ds.SetGeoTransform(g.GeoTransform); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	sr, err := godal.NewSpatialRef(g.CRS)
	if err != nil {
		return fmt.Errorf("invalid crs %q: %w", g.CRS, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}
	return nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
