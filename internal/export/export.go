// Package export drives the frame renderer across every iteration of a run
// and encodes the frames into a downloadable animation artifact. Encoding is
// strictly sequential: GIF and video encoders are stateful, so frames are
// rendered and fed in increasing iteration order, with cancellation checked
// only at frame boundaries.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/arclight-robotics/planview/internal/replay"
)

// ErrCancelled marks a user-requested abort. It is a normal termination
// path, distinct from encoder or render failures, so callers can suppress
// the error alert they would show for a real failure.
var ErrCancelled = errors.New("export cancelled")

// Format selects the output encoding.
type Format string

const (
	FormatGIF         Format = "gif"
	FormatWebM        Format = "webm"
	FormatPNGSequence Format = "png-sequence"
)

// ParseFormat validates a client-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatGIF, FormatWebM, FormatPNGSequence:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Extension returns the artifact's file extension, dot included. The PNG
// sequence ships as a zip archive of individual frames.
func (f Format) Extension() string {
	switch f {
	case FormatGIF:
		return ".gif"
	case FormatWebM:
		return ".webm"
	case FormatPNGSequence:
		return ".zip"
	}
	return ""
}

// ContentType returns the MIME type served for the artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatGIF:
		return "image/gif"
	case FormatWebM:
		return "video/webm"
	case FormatPNGSequence:
		return "application/zip"
	}
	return "application/octet-stream"
}

// Options are the caller-supplied encoding parameters.
type Options struct {
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FPS      int    `json:"fps"`
	// Quality ranges 1-100; only the webm encoder uses it.
	Quality int `json:"quality"`
}

// WithDefaults fills unset fields with the console defaults.
func (o Options) WithDefaults() Options {
	if o.Filename == "" {
		o.Filename = "cem-replay"
	}
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.FPS <= 0 {
		o.FPS = 10
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 75
	}
	return o
}

// Progress reports export advancement after each encoded frame.
type Progress struct {
	CurrentFrame int     `json:"current_frame"`
	Percent      float64 `json:"percent"`
}

// FrameRenderer is satisfied by render.Renderer. The exporter owns the
// surfaces it passes in; they are never shared with the live preview.
type FrameRenderer interface {
	RenderFrame(frameIdx int, ds *replay.RunDataset, img *image.RGBA) error
}

// Encoder consumes frames in order and writes the encoded artifact on Close.
type Encoder interface {
	AddFrame(img *image.RGBA) error
	Close() error
}

// Exporter renders and encodes complete runs.
type Exporter struct {
	renderer FrameRenderer
}

// NewExporter returns an exporter backed by the given frame renderer.
func NewExporter(r FrameRenderer) *Exporter {
	return &Exporter{renderer: r}
}

// Export renders every iteration of ds in order, encodes the frames as
// format, and writes the artifact to w. onProgress (optional) fires after
// each completed frame. Cancelling ctx stops the export before the next
// frame is rendered and returns ErrCancelled; the bytes already written to
// w are the caller's to discard.
func (e *Exporter) Export(ctx context.Context, ds *replay.RunDataset, format Format, opts Options, w io.Writer, onProgress func(Progress)) error {
	if ds == nil || ds.Len() == 0 {
		return fmt.Errorf("export: empty dataset")
	}
	opts = opts.WithDefaults()

	enc, err := newEncoder(format, w, opts)
	if err != nil {
		return fmt.Errorf("export: init %s encoder: %w", format, err)
	}

	total := ds.Len()
	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			// Drain the encoder so external processes shut down, but
			// the artifact is void either way.
			enc.Close()
			return ErrCancelled
		default:
		}

		frame := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
		if err := e.renderer.RenderFrame(i, ds, frame); err != nil {
			enc.Close()
			return fmt.Errorf("export: render frame %d: %w", i, err)
		}
		if err := enc.AddFrame(frame); err != nil {
			enc.Close()
			return fmt.Errorf("export: encode frame %d: %w", i, err)
		}
		if onProgress != nil {
			onProgress(Progress{
				CurrentFrame: i,
				Percent:      float64(i+1) / float64(total) * 100,
			})
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("export: finalize %s: %w", format, err)
	}
	return nil
}

func newEncoder(format Format, w io.Writer, opts Options) (Encoder, error) {
	switch format {
	case FormatGIF:
		return newGIFEncoder(w, opts), nil
	case FormatPNGSequence:
		return newPNGSequenceEncoder(w), nil
	case FormatWebM:
		return newWebMEncoder(w, opts)
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}
