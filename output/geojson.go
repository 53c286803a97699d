package output

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// PixelFeatures returns one point feature per pixel of the given step whose
// value exceeds threshold. Points sit on pixel centers in the cube CRS, which
// is EPSG:4326 for pipeline results.
func PixelFeatures(c *datacube.Cube, name string, step int, threshold float64) (*geojson.FeatureCollection, error) {
	if _, err := c.Var(name); err != nil {
		return nil, err
	}
	if step < 0 || step >= c.Steps() {
		return nil, fmt.Errorf("step %d out of range [0, %d)", step, c.Steps())
	}

	fc := geojson.NewFeatureCollection()
	values := c.Step(name, step)
	for row := 0; row < c.Grid.Height; row++ {
		for col := 0; col < c.Grid.Width; col++ {
			v := values[row*c.Grid.Width+col]
			if math.IsNaN(v) || v <= threshold {
				continue
			}
			x, y := c.Grid.PixelCenter(col, row)
			f := geojson.NewFeature(orb.Point{x, y})
			f.Properties[name] = v
			if step < len(c.Time) {
				f.Properties["time"] = c.Time[step].UTC().Format(time.RFC3339)
			}
			fc.Append(f)
		}
	}
	return fc, nil
}

func WriteGeoJSON(path string, fc *geojson.FeatureCollection) (string, error) {
	if !strings.HasSuffix(path, ".geojson") {
		path += ".geojson"
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
