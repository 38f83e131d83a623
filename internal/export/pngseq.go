package export

import (
	"archive/zip"
	"fmt"
	"image"
	"image/png"
	"io"
)

// pngSequenceEncoder streams numbered PNG frames into a zip archive.
type pngSequenceEncoder struct {
	zw    *zip.Writer
	frame int
}

func newPNGSequenceEncoder(w io.Writer) *pngSequenceEncoder {
	return &pngSequenceEncoder{zw: zip.NewWriter(w)}
}

func (e *pngSequenceEncoder) AddFrame(img *image.RGBA) error {
	f, err := e.zw.Create(fmt.Sprintf("frame_%03d.png", e.frame))
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		return err
	}
	e.frame++
	return nil
}

func (e *pngSequenceEncoder) Close() error {
	return e.zw.Close()
}
