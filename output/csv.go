package output

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/flood"
	"github.com/gocarina/gocsv"
)

type PixelRow struct {
	Time  string  `csv:"time"`
	Lon   float64 `csv:"lon"`
	Lat   float64 `csv:"lat"`
	Value float64 `csv:"value"`
}

// PixelRows flattens every valid pixel of variable name, step by step.
func PixelRows(c *datacube.Cube, name string) ([]PixelRow, error) {
	if _, err := c.Var(name); err != nil {
		return nil, err
	}
	var rows []PixelRow
	for i := 0; i < c.Steps(); i++ {
		var at string
		if i < len(c.Time) {
			at = c.Time[i].UTC().Format(time.RFC3339)
		}
		values := c.Step(name, i)
		for row := 0; row < c.Grid.Height; row++ {
			for col := 0; col < c.Grid.Width; col++ {
				v := values[row*c.Grid.Width+col]
				if math.IsNaN(v) {
					continue
				}
				x, y := c.Grid.PixelCenter(col, row)
				rows = append(rows, PixelRow{Time: at, Lon: x, Lat: y, Value: v})
			}
		}
	}
	return rows, nil
}

func WriteCSV(path string, c *datacube.Cube, name string) (string, error) {
	rows, err := PixelRows(c, name)
	if err != nil {
		return "", err
	}
	return marshalFile(path, &rows)
}

func WriteSummaryCSV(path string, summaries []flood.StepSummary) (string, error) {
	return marshalFile(path, &summaries)
}

func marshalFile(path string, rows interface{}) (string, error) {
	if !strings.HasSuffix(path, ".csv") {
		path += ".csv"
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()
	if err := gocsv.MarshalFile(rows, file); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
