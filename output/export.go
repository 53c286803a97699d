// Package output writes flood mapping results to disk.
package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest-guardian/flood-mapper/internal/delivery"
)

const (
	FormatGeoTIFF   = "tif"
	FormatPNG       = "png"
	FormatGeoJSON   = "geojson"
	FormatCSV       = "csv"
	FormatAnimation = "avi"
)

var Formats = []string{FormatGeoTIFF, FormatPNG, FormatGeoJSON, FormatCSV, FormatAnimation}

// Options controls Export. PNG and GeoJSON exports show the most recent step.
type Options struct {
	Dir     string
	Name    string
	Formats []string
	Scale   int
	FPS     int
}

// Export writes res in every requested format and returns the created paths.
func Export(res *delivery.Result, opts Options) ([]string, error) {
	if res.Cube.Steps() == 0 {
		return nil, fmt.Errorf("%w: result has no time steps", delivery.ErrNoAcquisitions)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%s_%s", res.Mode, res.RequestID)
	}
	base := filepath.Join(opts.Dir, name)
	last := res.Cube.Steps() - 1

	var paths []string
	for _, format := range opts.Formats {
		var (
			path string
			err  error
		)
		switch format {
		case FormatGeoTIFF:
			path, err = WriteGeoTIFF(base, res.Cube, res.Variable)
		case FormatPNG:
			path, err = WritePNG(base, res.Cube, res.Variable, last, res.Threshold, opts.Scale)
		case FormatGeoJSON:
			fc, ferr := PixelFeatures(res.Cube, res.Variable, last, res.Threshold)
			if ferr != nil {
				return paths, ferr
			}
			path, err = WriteGeoJSON(base, fc)
		case FormatCSV:
			if path, err = WriteCSV(base, res.Cube, res.Variable); err == nil {
				paths = append(paths, path)
				path, err = WriteSummaryCSV(base+"_summary", res.Summaries)
			}
		case FormatAnimation:
			path, err = WriteAnimation(base, res.Cube, res.Variable, res.Threshold, opts.Scale, opts.FPS)
		default:
			return paths, fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", format, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
