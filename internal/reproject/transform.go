package reproject

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
)

// Geographic is the default output CRS.
const Geographic = "EPSG:4326"

// Transformer converts coordinates between two CRS in place. x is the easting
// or longitude. *godal.Transform has the same TransformEx method.
type Transformer interface {
	TransformEx(x, y, z []float64, successful []bool) error
	Close()
}

// TransformerFactory creates a Transformer from src to dst. CRS are given in
// any form GDAL accepts, such as "EPSG:27704" or WKT.
type TransformerFactory func(src, dst string) (Transformer, error)

var registerDrivers sync.Once

type gdalTransformer struct {
	src, dst *godal.SpatialRef
	tr       *godal.Transform
}

// NewGDALTransformer is the TransformerFactory backed by GDAL/PROJ. Axis order
// is longitude first.
func NewGDALTransformer(src, dst string) (Transformer, error) {
	registerDrivers.Do(godal.RegisterAll)

	srcSR, err := godal.NewSpatialRef(src)
	if err != nil {
		return nil, fmt.Errorf("invalid source crs %q: %w", src, err)
	}
	dstSR, err := godal.NewSpatialRef(dst)
	if err != nil {
		srcSR.Close()
		return nil, fmt.Errorf("invalid target crs %q: %w", dst, err)
	}
	tr, err := godal.NewTransform(srcSR, dstSR)
	if err != nil {
		srcSR.Close()
		dstSR.Close()
		return nil, fmt.Errorf("failed to create transform %s -> %s: %w", src, dst, err)
	}
	return &gdalTransformer{src: srcSR, dst: dstSR, tr: tr}, nil
}

func (t *gdalTransformer) TransformEx(x, y, z []float64, successful []bool) error {
	return t.tr.TransformEx(x, y, z, successful)
}

func (t *gdalTransformer) Close() {
	t.tr.Close()
	t.src.Close()
	t.dst.Close()
}

// transformPoints converts the points in place and reports which succeeded.
// A batch level error marks every point as failed.
func transformPoints(t Transformer, xs, ys []float64) []bool {
	ok := make([]bool, len(xs))
	if err := t.TransformEx(xs, ys, nil, ok); err != nil {
		for i := range ok {
			ok[i] = false
		}
	}
	return ok
}
