// Package replay holds the data model and playback machinery for replaying a
// cross-entropy-method optimization run: per-iteration sample populations,
// the coordinate mapping used by every rendering path, a synthetic run
// generator for demo mode, and the timed playback scheduler.
package replay

import "math"

// SampleRecord is one candidate action evaluated during a CEM iteration.
// Energy is the objective value (lower is better); Elite marks membership in
// the lowest-energy subset used to reseed the next iteration.
type SampleRecord struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Energy float64 `json:"energy"`
	Elite  bool    `json:"elite"`
}

// IterationSnapshot records the state of one CEM generation.
type IterationSnapshot struct {
	// Iteration is the 1-based generation number within the run.
	Iteration    int            `json:"iteration"`
	Samples      []SampleRecord `json:"samples"`
	Mean         [3]float64     `json:"mean"`
	StdDev       float64        `json:"std_dev"`
	BestEnergy   float64        `json:"best_energy"`
	EliteCount   int            `json:"elite_count"`
	TotalSamples int            `json:"total_samples"`
}

// Bounds holds the XY extent of every sample across an entire run. The
// extent is computed once per dataset so the axes stay fixed during playback
// instead of re-fitting to each iteration.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// RunDataset is an immutable ordered sequence of iteration snapshots for one
// optimization run. Bounds and the energy range are memoized at construction;
// callers must not mutate Snapshots after handing them to NewRunDataset.
type RunDataset struct {
	Snapshots []IterationSnapshot `json:"snapshots"`

	bounds    Bounds
	energyMin float64
	energyMax float64
}

// NewRunDataset wraps snapshots into a dataset, computing the run-wide sample
// bounds and best-energy range up front.
func NewRunDataset(snapshots []IterationSnapshot) *RunDataset {
	ds := &RunDataset{Snapshots: snapshots}
	ds.bounds = computeBounds(snapshots)
	ds.energyMin, ds.energyMax = computeEnergyRange(snapshots)
	return ds
}

// EnergyTraceDataset builds a degraded dataset from a bare best-energy trace,
// the only per-iteration detail the planning backend reports. Snapshots carry
// no sample populations; renderers detect this via HasSamples and fall back
// to an explicit insufficient-data presentation for the distribution panel.
func EnergyTraceDataset(history []float64) *RunDataset {
	snapshots := make([]IterationSnapshot, len(history))
	best := math.Inf(1)
	for i, e := range history {
		if e < best {
			best = e
		}
		snapshots[i] = IterationSnapshot{
			Iteration:  i + 1,
			BestEnergy: best,
		}
	}
	return NewRunDataset(snapshots)
}

// Len returns the number of iterations in the run.
func (ds *RunDataset) Len() int { return len(ds.Snapshots) }

// Bounds returns the run-wide XY extent of all samples.
func (ds *RunDataset) Bounds() Bounds { return ds.bounds }

// EnergyRange returns the min and max BestEnergy across the whole run, used
// to fix the energy chart's scale for every frame.
func (ds *RunDataset) EnergyRange() (min, max float64) {
	return ds.energyMin, ds.energyMax
}

// HasSamples reports whether the dataset carries per-sample populations.
// Backend-driven runs only supply the scalar energy trace.
func (ds *RunDataset) HasSamples() bool {
	for _, snap := range ds.Snapshots {
		if len(snap.Samples) > 0 {
			return true
		}
	}
	return false
}

// BestEnergyTrace returns the BestEnergy sequence in iteration order.
func (ds *RunDataset) BestEnergyTrace() []float64 {
	trace := make([]float64, len(ds.Snapshots))
	for i, snap := range ds.Snapshots {
		trace[i] = snap.BestEnergy
	}
	return trace
}

func computeBounds(snapshots []IterationSnapshot) Bounds {
	b := Bounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
	}
	seen := false
	for _, snap := range snapshots {
		for _, s := range snap.Samples {
			seen = true
			b.MinX = math.Min(b.MinX, s.X)
			b.MaxX = math.Max(b.MaxX, s.X)
			b.MinY = math.Min(b.MinY, s.Y)
			b.MaxY = math.Max(b.MaxY, s.Y)
		}
	}
	if !seen {
		return Bounds{}
	}
	return b
}

func computeEnergyRange(snapshots []IterationSnapshot) (min, max float64) {
	if len(snapshots) == 0 {
		return 0, 0
	}
	min, max = math.Inf(1), math.Inf(-1)
	for _, snap := range snapshots {
		min = math.Min(min, snap.BestEnergy)
		max = math.Max(max, snap.BestEnergy)
	}
	return min, max
}
