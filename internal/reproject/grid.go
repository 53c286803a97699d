package reproject

import (
	"fmt"
	"math"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/paulmach/orb"
)

// edgeSamples is the number of points sampled along each bbox edge when
// estimating its footprint in another CRS.
const edgeSamples = 21

// WorkingGrid returns the grid in crs, with square pixels of the given
// resolution, that covers the geographic bbox. The grid is snapped outward to
// multiples of the resolution so that requests over neighbouring boxes share
// pixel edges.
func WorkingGrid(bbox orb.Bound, crs string, resolution float64, transforms TransformerFactory) (datacube.Grid, error) {
	if !(resolution > 0) {
		return datacube.Grid{}, fmt.Errorf("resolution must be positive, got %g", resolution)
	}
	t, err := transforms(Geographic, crs)
	if err != nil {
		return datacube.Grid{}, err
	}
	defer t.Close()

	b, err := footprint(t, bbox)
	if err != nil {
		return datacube.Grid{}, fmt.Errorf("failed to project bbox into %s: %w", crs, err)
	}

	minX := math.Floor(b.Min.X()/resolution) * resolution
	maxX := math.Ceil(b.Max.X()/resolution) * resolution
	minY := math.Floor(b.Min.Y()/resolution) * resolution
	maxY := math.Ceil(b.Max.Y()/resolution) * resolution
	return datacube.Grid{
		CRS:          crs,
		GeoTransform: [6]float64{minX, resolution, 0, maxY, 0, -resolution},
		Width:        max(1, int(math.Round((maxX-minX)/resolution))),
		Height:       max(1, int(math.Round((maxY-minY)/resolution))),
	}, nil
}

// footprint transforms points sampled along the edges of b and returns their
// bounding box.
func footprint(t Transformer, b orb.Bound) (orb.Bound, error) {
	var xs, ys []float64
	for i := 0; i < edgeSamples; i++ {
		f := float64(i) / float64(edgeSamples-1)
		x := b.Min.X() + f*(b.Max.X()-b.Min.X())
		y := b.Min.Y() + f*(b.Max.Y()-b.Min.Y())
		xs = append(xs, x, x, b.Min.X(), b.Max.X())
		ys = append(ys, b.Min.Y(), b.Max.Y(), y, y)
	}
	ok := transformPoints(t, xs, ys)

	var out orb.Bound
	valid := 0
	for i := range xs {
		if !ok[i] || math.IsNaN(xs[i]) || math.IsNaN(ys[i]) || math.IsInf(xs[i], 0) || math.IsInf(ys[i], 0) {
			continue
		}
		p := orb.Point{xs[i], ys[i]}
		if valid == 0 {
			out = p.Bound()
		}
		out = out.Extend(p)
		valid++
	}
	if valid == 0 {
		return orb.Bound{}, fmt.Errorf("no corner of %v can be transformed", b)
	}
	return out, nil
}

// clip returns the window of the north-up grid g made of the pixels whose
// centers lie inside bbox.
func clip(g datacube.Grid, bbox orb.Bound) (datacube.Grid, error) {
	gt := g.GeoTransform
	col0 := max(0, int(math.Ceil((bbox.Min.X()-gt[0])/gt[1]-0.5)))
	col1 := min(g.Width-1, int(math.Floor((bbox.Max.X()-gt[0])/gt[1]-0.5)))
	row0 := max(0, int(math.Ceil((bbox.Max.Y()-gt[3])/gt[5]-0.5)))
	row1 := min(g.Height-1, int(math.Floor((bbox.Min.Y()-gt[3])/gt[5]-0.5)))
	if col0 > col1 || row0 > row1 {
		return datacube.Grid{}, fmt.Errorf("%w: %v against %s", ErrNoOverlap, bbox, g)
	}
	gt[0] += float64(col0) * gt[1]
	gt[3] += float64(row0) * gt[5]
	return datacube.Grid{
		CRS:          g.CRS,
		GeoTransform: gt,
		Width:        col1 - col0 + 1,
		Height:       row1 - row0 + 1,
	}, nil
}
