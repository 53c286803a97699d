package datacube

import (
	"fmt"
	"math"
)

// Grid is a north-up raster grid. GeoTransform follows the GDAL convention:
// x = gt[0] + col*gt[1] + row*gt[2], y = gt[3] + col*gt[4] + row*gt[5].
type Grid struct {
	CRS          string
	GeoTransform [6]float64
	Width        int
	Height       int
}

func (g Grid) Pixels() int {
	return g.Width * g.Height
}

func (g Grid) String() string {
	return fmt.Sprintf("%s %dx%d", g.CRS, g.Width, g.Height)
}

// PixelCenter returns the CRS coordinates of the center of pixel (col, row).
func (g Grid) PixelCenter(col, row int) (float64, float64) {
	gt := g.GeoTransform
	x := gt[0] + gt[1]*(float64(col)+0.5) + gt[2]*(float64(row)+0.5)
	y := gt[3] + gt[4]*(float64(col)+0.5) + gt[5]*(float64(row)+0.5)
	return x, y
}

// Index returns the pixel containing the CRS point (x, y). ok is false when the
// point falls outside the grid.
func (g Grid) Index(x, y float64) (col, row int, ok bool) {
	gt := g.GeoTransform
	col = int(math.Floor((x - gt[0]) / gt[1]))
	row = int(math.Floor((y - gt[3]) / gt[5]))
	if col < 0 || col >= g.Width || row < 0 || row >= g.Height {
		return 0, 0, false
	}
	return col, row, true
}

// Bounds returns minX, minY, maxX, maxY of the grid footprint.
func (g Grid) Bounds() [4]float64 {
	gt := g.GeoTransform
	x0, x1 := gt[0], gt[0]+gt[1]*float64(g.Width)
	y0, y1 := gt[3], gt[3]+gt[5]*float64(g.Height)
	return [4]float64{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

// Equal reports whether two grids describe the same pixels.
func (g Grid) Equal(o Grid) bool {
	if g.CRS != o.CRS || g.Width != o.Width || g.Height != o.Height {
		return false
	}
	for i := range g.GeoTransform {
		if math.Abs(g.GeoTransform[i]-o.GeoTransform[i]) > 1e-9 {
			return false
		}
	}
	return true
}
