package console

import (
	"testing"

	"github.com/arclight-robotics/planview/internal/replay"
	"github.com/arclight-robotics/planview/internal/testutil"
)

func TestPrepareIterationChartData(t *testing.T) {
	ds := testutil.SeededDataset(t, 6, 80, 11)

	data, err := PrepareIterationChartData(ds, 3, 800, 600, 40)
	if err != nil {
		t.Fatalf("PrepareIterationChartData() error: %v", err)
	}

	if data.Iteration != 3 || data.TotalIterations != 6 {
		t.Errorf("iteration = %d/%d, want 3/6", data.Iteration, data.TotalIterations)
	}
	if len(data.Points) != 80 {
		t.Fatalf("len(Points) = %d, want 80", len(data.Points))
	}
	if len(data.EnergyTrace) != 6 {
		t.Errorf("len(EnergyTrace) = %d, want 6", len(data.EnergyTrace))
	}
	if !data.HasSamples {
		t.Error("HasSamples = false for a synthetic run")
	}

	elites := 0
	for i, p := range data.Points {
		if p.CX < 40 || p.CX > 760 {
			t.Errorf("point %d: CX = %v outside padded surface", i, p.CX)
		}
		if p.CY < 40 || p.CY > 560 {
			t.Errorf("point %d: CY = %v outside padded surface", i, p.CY)
		}
		if p.Elite {
			elites++
		}
	}
	if elites != data.EliteCount {
		t.Errorf("elite points = %d, want %d", elites, data.EliteCount)
	}

	if data.ProgressColor == "" || data.ProgressColor[0] != '#' || len(data.ProgressColor) != 7 {
		t.Errorf("ProgressColor = %q, want #rrggbb", data.ProgressColor)
	}
}

func TestPrepareIterationChartDataRangeErrors(t *testing.T) {
	ds := testutil.SeededDataset(t, 4, 40, 3)

	if _, err := PrepareIterationChartData(ds, 0, 800, 600, 40); err == nil {
		t.Error("iteration 0 accepted")
	}
	if _, err := PrepareIterationChartData(ds, 5, 800, 600, 40); err == nil {
		t.Error("iteration past the end accepted")
	}
	if _, err := PrepareIterationChartData(nil, 1, 800, 600, 40); err == nil {
		t.Error("nil dataset accepted")
	}
}

func TestPrepareIterationChartDataEnergyTraceOnly(t *testing.T) {
	ds := replay.EnergyTraceDataset([]float64{5, 3, 2, 1.5})

	data, err := PrepareIterationChartData(ds, 2, 800, 600, 40)
	if err != nil {
		t.Fatalf("PrepareIterationChartData() error: %v", err)
	}
	if data.HasSamples {
		t.Error("HasSamples = true for an energy-trace dataset")
	}
	if len(data.Points) != 0 {
		t.Errorf("len(Points) = %d, want 0", len(data.Points))
	}
	if len(data.EnergyTrace) != 4 {
		t.Errorf("len(EnergyTrace) = %d, want 4", len(data.EnergyTrace))
	}
}
