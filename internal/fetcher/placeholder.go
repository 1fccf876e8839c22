package fetcher

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/geowidget/tilefetch/internal/tile"
)

var (
	placeholderOnce sync.Once
	placeholderImg  image.Image
	placeholderRaw  []byte
)

// placeholderImage returns the fixed fallback tile shown when no real
// tile data is available by any path. Rendered once, shared by every
// delivery; never written to the store.
func placeholderImage() image.Image {
	renderPlaceholder()
	return placeholderImg
}

func placeholderPNG() []byte {
	renderPlaceholder()
	return placeholderRaw
}

func renderPlaceholder() {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, tile.Size, tile.Size))

		bg := color.RGBA{235, 235, 235, 255}
		draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

		borderColor := color.RGBA{170, 170, 170, 255}
		borders := []image.Rectangle{
			image.Rect(0, 0, tile.Size, 1),
			image.Rect(0, tile.Size-1, tile.Size, tile.Size),
			image.Rect(0, 0, 1, tile.Size),
			image.Rect(tile.Size-1, 0, tile.Size, tile.Size),
		}
		for _, rect := range borders {
			draw.Draw(img, rect, &image.Uniform{borderColor}, image.Point{}, draw.Src)
		}

		drawCenteredText(img, "no data", 118)
		drawCenteredText(img, "check connection", 138)

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			placeholderRaw = buf.Bytes()
		}
		placeholderImg = img
	})
}

func drawCenteredText(img *image.RGBA, text string, baseline int) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{90, 90, 90, 255}),
		Face: face,
	}

	width := d.MeasureString(text).Round()
	d.Dot = fixed.Point26_6{
		X: fixed.I((tile.Size - width) / 2),
		Y: fixed.I(baseline),
	}
	d.DrawString(text)
}
