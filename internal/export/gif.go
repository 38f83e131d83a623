package export

import (
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
)

// gifEncoder accumulates quantized frames and writes the animation in one
// shot on Close; the GIF container needs the full frame list up front.
type gifEncoder struct {
	w     io.Writer
	anim  gif.GIF
	delay int // per-frame delay in 100ths of a second
}

func newGIFEncoder(w io.Writer, opts Options) *gifEncoder {
	delay := 100 / opts.FPS
	if delay < 2 {
		// Browsers treat sub-20ms GIF delays unreliably.
		delay = 2
	}
	return &gifEncoder{w: w, delay: delay}
}

func (e *gifEncoder) AddFrame(img *image.RGBA) error {
	bounds := img.Bounds()
	paletted := image.NewPaletted(bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(paletted, bounds, img, bounds.Min)

	e.anim.Image = append(e.anim.Image, paletted)
	e.anim.Delay = append(e.anim.Delay, e.delay)
	return nil
}

func (e *gifEncoder) Close() error {
	if len(e.anim.Image) == 0 {
		return nil
	}
	return gif.EncodeAll(e.w, &e.anim)
}
