// This file separates chart data preparation from rendering for improved
// testability: handlers call Prepare* and feed the result to either the JSON
// endpoint or the eCharts page.
package console

import (
	"fmt"
	"image/color"

	"github.com/arclight-robotics/planview/internal/render"
	"github.com/arclight-robotics/planview/internal/replay"
)

// SamplePoint is one sample mapped into drawing-surface coordinates.
type SamplePoint struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
	Energy float64 `json:"energy"`
	Elite  bool    `json:"elite"`
}

// IterationChartData holds prepared data for one iteration's charts.
type IterationChartData struct {
	Iteration       int           `json:"iteration"`
	TotalIterations int           `json:"total_iterations"`
	Points          []SamplePoint `json:"points"`
	Mean            SamplePoint   `json:"mean"`
	MeanWorld       [3]float64    `json:"mean_world"`
	StdDev          float64       `json:"std_dev"`
	BestEnergy      float64       `json:"best_energy"`
	EliteCount      int           `json:"elite_count"`
	TotalSamples    int           `json:"total_samples"`
	EnergyTrace     []float64     `json:"energy_trace"`
	ProgressColor   string        `json:"progress_color"`
	HasSamples      bool          `json:"has_samples"`
}

// PrepareIterationChartData maps one iteration onto a width x height drawing
// surface. The mapping uses the dataset-wide bounds so the frame of reference
// stays fixed across the whole replay.
func PrepareIterationChartData(ds *replay.RunDataset, iteration, width, height, padding int) (*IterationChartData, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("dataset has no iterations")
	}
	if iteration < 1 || iteration > ds.Len() {
		return nil, fmt.Errorf("iteration %d out of range [1, %d]", iteration, ds.Len())
	}

	snap := ds.Snapshots[iteration-1]
	bounds := ds.Bounds()

	points := make([]SamplePoint, 0, len(snap.Samples))
	for _, s := range snap.Samples {
		p := replay.MapToDrawing(s.X, s.Y, bounds, float64(width), float64(height), float64(padding))
		points = append(points, SamplePoint{
			X:      s.X,
			Y:      s.Y,
			CX:     p.X,
			CY:     p.Y,
			Energy: s.Energy,
			Elite:  s.Elite,
		})
	}

	meanPt := replay.MapToDrawing(snap.Mean[0], snap.Mean[1], bounds, float64(width), float64(height), float64(padding))

	frac := 0.0
	if ds.Len() > 1 {
		frac = float64(iteration-1) / float64(ds.Len()-1)
	}

	return &IterationChartData{
		Iteration:       iteration,
		TotalIterations: ds.Len(),
		Points:          points,
		Mean:            SamplePoint{X: snap.Mean[0], Y: snap.Mean[1], CX: meanPt.X, CY: meanPt.Y},
		MeanWorld:       snap.Mean,
		StdDev:          snap.StdDev,
		BestEnergy:      snap.BestEnergy,
		EliteCount:      snap.EliteCount,
		TotalSamples:    snap.TotalSamples,
		EnergyTrace:     ds.BestEnergyTrace(),
		ProgressColor:   hexColor(render.ProgressColor(frac)),
		HasSamples:      len(snap.Samples) > 0,
	}, nil
}

func hexColor(c color.Color) string {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	return fmt.Sprintf("#%02x%02x%02x", rgba.R, rgba.G, rgba.B)
}
