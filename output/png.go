package output

import (
	"fmt"
	"image"
	"strings"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/flood-mapper/internal/datacube"
)

// RenderStep draws one step of variable name. Every pixel becomes a
// scale×scale square coloured with ColorMap.
func RenderStep(c *datacube.Cube, name string, step int, threshold float64, scale int) (image.Image, error) {
	if _, err := c.Var(name); err != nil {
		return nil, err
	}
	if step < 0 || step >= c.Steps() {
		return nil, fmt.Errorf("step %d out of range [0, %d)", step, c.Steps())
	}
	if scale < 1 {
		scale = 1
	}

	width, height := c.Grid.Width, c.Grid.Height
	dc := gg.NewContext(width*scale, height*scale)
	values := c.Step(name, step)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			class, ok := classify(values[row*width+col], threshold)
			if !ok {
				continue
			}
			dc.SetColor(ColorMap[class])
			dc.DrawRectangle(float64(col*scale), float64(row*scale), float64(scale), float64(scale))
			dc.Fill()
		}
	}
	return dc.Image(), nil
}

// WritePNG renders one step into a PNG file.
func WritePNG(path string, c *datacube.Cube, name string, step int, threshold float64, scale int) (string, error) {
	if !strings.HasSuffix(path, ".png") {
		path += ".png"
	}
	img, err := RenderStep(c, name, step, threshold, scale)
	if err != nil {
		return "", err
	}
	if err := gg.SavePNG(path, img); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return path, nil
}
