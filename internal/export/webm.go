package export

import (
	"fmt"
	"image"
	"io"
	"os/exec"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// webmEncoder pipes raw RGBA frames into an ffmpeg VP9 encode. Frames are
// written as they arrive; Close signals end-of-stream and waits for the
// muxer to finish.
type webmEncoder struct {
	pw        *io.PipeWriter
	done      chan error
	frameSize int
}

func newWebMEncoder(w io.Writer, opts Options) (*webmEncoder, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	// Quality 1-100 maps onto VP9's CRF scale, where lower is better.
	crf := 10 + (100-opts.Quality)*40/100

	pr, pw := io.Pipe()
	stream := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"framerate": opts.FPS,
	}).Output("pipe:1", ffmpeg.KwArgs{
		"f":       "webm",
		"c:v":     "libvpx-vp9",
		"crf":     crf,
		"b:v":     "0",
		"pix_fmt": "yuv420p",
	}).WithInput(pr).WithOutput(w).Silent(true)

	enc := &webmEncoder{
		pw:        pw,
		done:      make(chan error, 1),
		frameSize: opts.Width * opts.Height * 4,
	}
	go func() {
		err := stream.Run()
		// Unblock any writer stuck mid-frame if ffmpeg died early.
		pr.CloseWithError(err)
		enc.done <- err
	}()
	return enc, nil
}

func (e *webmEncoder) AddFrame(img *image.RGBA) error {
	if len(img.Pix) != e.frameSize || img.Stride != img.Rect.Dx()*4 {
		return fmt.Errorf("frame size %dx%d does not match encoder configuration", img.Rect.Dx(), img.Rect.Dy())
	}
	if _, err := e.pw.Write(img.Pix); err != nil {
		return fmt.Errorf("write frame to ffmpeg: %w", err)
	}
	return nil
}

func (e *webmEncoder) Close() error {
	e.pw.Close()
	if err := <-e.done; err != nil {
		return fmt.Errorf("ffmpeg encode: %w", err)
	}
	return nil
}
