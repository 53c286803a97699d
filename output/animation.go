package output

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"strings"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/icza/mjpeg"
)

// WriteAnimation renders every step of variable name and stores them as an
// MJPEG AVI, one frame per step. Transparent pixels are drawn over white.
func WriteAnimation(path string, c *datacube.Cube, name string, threshold float64, scale, fps int) (string, error) {
	if !strings.HasSuffix(path, ".avi") {
		path += ".avi"
	}
	if c.Steps() == 0 {
		return "", errors.New("no steps to animate")
	}
	if fps < 1 {
		fps = 2
	}
	if scale < 1 {
		scale = 1
	}

	writer, err := mjpeg.New(path, int32(c.Grid.Width*scale), int32(c.Grid.Height*scale), int32(fps))
	if err != nil {
		return "", fmt.Errorf("failed to create video: %w", err)
	}
	for i := 0; i < c.Steps(); i++ {
		img, err := RenderStep(c, name, i, threshold, scale)
		if err != nil {
			writer.Close()
			return "", err
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: 100}); err != nil {
			writer.Close()
			return "", err
		}
		if err := writer.AddFrame(buf.Bytes()); err != nil {
			writer.Close()
			return "", fmt.Errorf("failed to add frame %d: %w", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func flatten(img image.Image) image.Image {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}
