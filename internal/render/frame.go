// Package render draws replay frames. The renderer is a pure function of
// (frame index, dataset) onto a caller-supplied RGBA surface, with no
// reference to wall-clock time or shared mutable state, so the interactive
// preview path and the headless export path produce identical pixels.
package render

import (
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/arclight-robotics/planview/internal/replay"
)

var (
	sampleColor  = color.RGBA{R: 80, G: 130, B: 190, A: 255}
	eliteColor   = color.RGBA{R: 235, G: 120, B: 35, A: 255}
	meanColor    = color.RGBA{R: 25, G: 25, B: 25, A: 255}
	currentColor = color.RGBA{R: 200, G: 30, B: 30, A: 255}
)

// Renderer draws one replay frame at a time. The zero value is not usable;
// construct with NewRenderer.
type Renderer struct {
	// axisMargin pads the fixed data bounds so edge samples are not
	// clipped by the frame of the plot.
	axisMargin float64
}

// NewRenderer returns a frame renderer with default styling.
func NewRenderer() *Renderer {
	return &Renderer{axisMargin: 0.05}
}

// RenderFrame draws iteration frameIdx of ds onto img: a header title, the
// sample-distribution panel, the best-energy evolution panel, and a stats
// panel. Axis ranges come from the dataset-wide bounds and energy range so
// the geometry never jumps between frames. Two calls with the same inputs
// produce byte-identical pixels.
func (r *Renderer) RenderFrame(frameIdx int, ds *replay.RunDataset, img *image.RGBA) error {
	if img == nil {
		return fmt.Errorf("render frame %d: nil drawing surface", frameIdx)
	}
	if ds == nil || ds.Len() == 0 {
		return fmt.Errorf("render frame %d: empty dataset", frameIdx)
	}
	if frameIdx < 0 || frameIdx >= ds.Len() {
		return fmt.Errorf("render frame %d: out of range [0, %d)", frameIdx, ds.Len())
	}

	stddraw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, stddraw.Src)

	c := vgimg.NewWith(vgimg.UseImage(img))
	dc := vgdraw.New(c)
	w, h := c.Size()

	titleH := h / 10
	leftW := w * 11 / 20

	// Header strip across the top.
	header := vgdraw.Crop(dc, 0, 0, h-titleH, 0)
	r.titlePlot(frameIdx, ds).Draw(header)

	// Distribution panel fills the left column.
	distPlot, err := r.distributionPlot(frameIdx, ds)
	if err != nil {
		return fmt.Errorf("render frame %d: distribution: %w", frameIdx, err)
	}
	distPlot.Draw(vgdraw.Crop(dc, 0, leftW-w, 0, -titleH))

	// Energy evolution on the upper right, stats below it.
	rightH := (h - titleH) * 3 / 5
	energyPlot, err := r.energyPlot(frameIdx, ds)
	if err != nil {
		return fmt.Errorf("render frame %d: energy: %w", frameIdx, err)
	}
	energyPlot.Draw(vgdraw.Crop(dc, leftW, 0, h-titleH-rightH, -titleH))

	statsPlot, err := r.statsPlot(frameIdx, ds)
	if err != nil {
		return fmt.Errorf("render frame %d: stats: %w", frameIdx, err)
	}
	statsPlot.Draw(vgdraw.Crop(dc, leftW, 0, 0, -(titleH+rightH)))

	return nil
}

func (r *Renderer) titlePlot(frameIdx int, ds *replay.RunDataset) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Iteration %d / %d", frameIdx+1, ds.Len())
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.HideAxes()
	return p
}

// distributionPlot scatters the iteration's samples inside the run-wide
// bounds, distinguishing elites, and marks the sampling mean with a ring.
func (r *Renderer) distributionPlot(frameIdx int, ds *replay.RunDataset) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Sample Distribution"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Add(plotter.NewGrid())

	snap := ds.Snapshots[frameIdx]
	if len(snap.Samples) == 0 {
		// Backend-driven runs carry only the energy trace; render an
		// explicit insufficient-data notice instead of a fabricated
		// scatter.
		return r.placeholderPlot(p, "insufficient sample data")
	}

	b := ds.Bounds()
	r.fixAxes(p, b)

	var normal, elite plotter.XYs
	for _, s := range snap.Samples {
		xy := plotter.XY{X: s.X, Y: s.Y}
		if s.Elite {
			elite = append(elite, xy)
		} else {
			normal = append(normal, xy)
		}
	}

	normalScatter, err := plotter.NewScatter(normal)
	if err != nil {
		return nil, err
	}
	normalScatter.GlyphStyle = vgdraw.GlyphStyle{
		Color:  sampleColor,
		Radius: vg.Points(1.5),
		Shape:  vgdraw.CircleGlyph{},
	}

	eliteScatter, err := plotter.NewScatter(elite)
	if err != nil {
		return nil, err
	}
	eliteScatter.GlyphStyle = vgdraw.GlyphStyle{
		Color:  eliteColor,
		Radius: vg.Points(3),
		Shape:  vgdraw.CircleGlyph{},
	}

	meanScatter, err := plotter.NewScatter(plotter.XYs{{X: snap.Mean[0], Y: snap.Mean[1]}})
	if err != nil {
		return nil, err
	}
	meanScatter.GlyphStyle = vgdraw.GlyphStyle{
		Color:  meanColor,
		Radius: vg.Points(5),
		Shape:  vgdraw.RingGlyph{},
	}

	p.Add(normalScatter, eliteScatter, meanScatter)
	p.Legend.Add("samples", normalScatter)
	p.Legend.Add("elite", eliteScatter)
	p.Legend.Add("mean", meanScatter)
	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// energyPlot draws the best-energy trace through frameIdx on a fixed
// dataset-wide scale. Point colors follow the progress ramp: the fraction of
// the run completed, not the energy value, so the hue reads as convergence
// trajectory.
func (r *Renderer) energyPlot(frameIdx int, ds *replay.RunDataset) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Best Energy"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Energy"
	p.Add(plotter.NewGrid())

	total := ds.Len()
	eMin, eMax := ds.EnergyRange()
	margin := (eMax - eMin) * r.axisMargin
	if margin == 0 {
		margin = 1
	}
	p.X.Min, p.X.Max = 1, float64(total)
	if total == 1 {
		p.X.Max = 2
	}
	p.Y.Min, p.Y.Max = eMin-margin, eMax+margin

	pts := make(plotter.XYs, frameIdx+1)
	for i := 0; i <= frameIdx; i++ {
		pts[i] = plotter.XY{X: float64(i + 1), Y: ds.Snapshots[i].BestEnergy}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	line.Width = vg.Points(1)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	denom := total - 1
	if denom < 1 {
		denom = 1
	}
	cur := frameIdx
	scatter.GlyphStyleFunc = func(i int) vgdraw.GlyphStyle {
		style := vgdraw.GlyphStyle{
			Color:  ProgressColor(float64(i) / float64(denom)),
			Radius: vg.Points(2.5),
			Shape:  vgdraw.CircleGlyph{},
		}
		if i == cur {
			style.Color = currentColor
			style.Radius = vg.Points(4)
		}
		return style
	}

	p.Add(line, scatter)
	return p, nil
}

func (r *Renderer) statsPlot(frameIdx int, ds *replay.RunDataset) (*plot.Plot, error) {
	snap := ds.Snapshots[frameIdx]

	lines := []string{
		fmt.Sprintf("best energy: %.3f", snap.BestEnergy),
	}
	if len(snap.Samples) > 0 {
		lines = append(lines,
			fmt.Sprintf("mean: [%.2f, %.2f, %.2f]", snap.Mean[0], snap.Mean[1], snap.Mean[2]),
			fmt.Sprintf("std dev: %.3f", snap.StdDev),
			fmt.Sprintf("elites: %d / %d", snap.EliteCount, snap.TotalSamples),
		)
	} else {
		lines = append(lines, "population stats unavailable")
	}

	p := plot.New()
	p.Title.Text = "Statistics"
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	xys := make(plotter.XYs, len(lines))
	for i := range lines {
		xys[i] = plotter.XY{X: 0.05, Y: 0.85 - 0.2*float64(i)}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: lines})
	if err != nil {
		return nil, err
	}
	p.Add(labels)
	return p, nil
}

func (r *Renderer) placeholderPlot(p *plot.Plot, msg string) (*plot.Plot, error) {
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	labels, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    plotter.XYs{{X: 0.3, Y: 0.5}},
		Labels: []string{msg},
	})
	if err != nil {
		return nil, err
	}
	p.Add(labels)
	return p, nil
}

// fixAxes pins the plot's ranges to the run-wide bounds with a small margin.
// A degenerate axis gets a unit range centered on the single value.
func (r *Renderer) fixAxes(p *plot.Plot, b replay.Bounds) {
	xSpan := b.MaxX - b.MinX
	ySpan := b.MaxY - b.MinY
	if xSpan == 0 {
		p.X.Min, p.X.Max = b.MinX-0.5, b.MaxX+0.5
	} else {
		p.X.Min = b.MinX - xSpan*r.axisMargin
		p.X.Max = b.MaxX + xSpan*r.axisMargin
	}
	if ySpan == 0 {
		p.Y.Min, p.Y.Max = b.MinY-0.5, b.MaxY+0.5
	} else {
		p.Y.Min = b.MinY - ySpan*r.axisMargin
		p.Y.Max = b.MaxY + ySpan*r.axisMargin
	}
}
