package replay

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// GeneratorConfig tunes the synthetic run generator. The zero value is not
// usable; start from DefaultGeneratorConfig.
type GeneratorConfig struct {
	// Target is the optimum the synthetic search converges toward.
	Target [3]float64
	// InitialStdDev is the spread of the first sampling distribution.
	InitialStdDev float64
	// StdDevFloor stops the spread collapsing to zero past convergence.
	StdDevFloor float64
	// Contraction scales the elite spread between iterations.
	Contraction float64
	// NoiseScale bounds the positive noise added to each sample's energy.
	NoiseScale float64
	// Rand supplies the pseudo-random source. Nil means a fresh
	// time-seeded source per call.
	Rand *rand.Rand
}

// DefaultGeneratorConfig returns the demo constants used by the console when
// no explicit configuration is given.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Target:        [3]float64{3, -1.5, 0.8},
		InitialStdDev: 5,
		StdDevFloor:   0.3,
		Contraction:   0.9,
		NoiseScale:    0.1,
	}
}

// Generate produces a synthetic run with the default demo configuration.
func Generate(totalIterations, totalSamples int, eliteFraction float64) (*RunDataset, error) {
	return GenerateWithConfig(totalIterations, totalSamples, eliteFraction, DefaultGeneratorConfig())
}

// GenerateWithConfig produces a CEM-shaped synthetic run: each iteration
// samples uniformly within mean±stdDev per axis, scores samples by distance
// to the target plus positive noise, keeps the lowest-energy elite fraction,
// and reseeds the next iteration from the elite centroid with a contracted
// spread. The shape invariants (constant population, exact elite counts,
// non-increasing spread down to the floor) hold for any valid parameters.
func GenerateWithConfig(totalIterations, totalSamples int, eliteFraction float64, cfg GeneratorConfig) (*RunDataset, error) {
	if totalIterations < 1 {
		return nil, fmt.Errorf("totalIterations must be >= 1, got %d", totalIterations)
	}
	if totalSamples < 1 {
		return nil, fmt.Errorf("totalSamples must be >= 1, got %d", totalSamples)
	}
	eliteCount := int(float64(totalSamples) * eliteFraction)
	if eliteCount < 1 {
		return nil, fmt.Errorf("eliteFraction %.3f of %d samples leaves no elites", eliteFraction, totalSamples)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	mean := [3]float64{}
	stdDev := cfg.InitialStdDev

	snapshots := make([]IterationSnapshot, 0, totalIterations)
	for iter := 1; iter <= totalIterations; iter++ {
		samples := make([]SampleRecord, totalSamples)
		for i := range samples {
			s := SampleRecord{
				X: mean[0] + (rng.Float64()*2-1)*stdDev,
				Y: mean[1] + (rng.Float64()*2-1)*stdDev,
				Z: mean[2] + (rng.Float64()*2-1)*stdDev,
			}
			dx := s.X - cfg.Target[0]
			dy := s.Y - cfg.Target[1]
			dz := s.Z - cfg.Target[2]
			s.Energy = math.Sqrt(dx*dx+dy*dy+dz*dz) + rng.Float64()*cfg.NoiseScale
			samples[i] = s
		}

		// Stable sort keeps original order among equal energies, so the
		// elite set is exactly the eliteCount lowest-energy samples with
		// deterministic tie-breaking.
		sort.SliceStable(samples, func(a, b int) bool {
			return samples[a].Energy < samples[b].Energy
		})
		for i := 0; i < eliteCount; i++ {
			samples[i].Elite = true
		}

		eliteX := make([]float64, eliteCount)
		var cx, cy, cz float64
		for i := 0; i < eliteCount; i++ {
			cx += samples[i].X
			cy += samples[i].Y
			cz += samples[i].Z
			eliteX[i] = samples[i].X
		}
		newMean := [3]float64{
			cx / float64(eliteCount),
			cy / float64(eliteCount),
			cz / float64(eliteCount),
		}

		snapshots = append(snapshots, IterationSnapshot{
			Iteration:    iter,
			Samples:      samples,
			Mean:         newMean,
			StdDev:       stdDev,
			BestEnergy:   samples[0].Energy,
			EliteCount:   eliteCount,
			TotalSamples: totalSamples,
		})

		mean = newMean
		stdDev = math.Max(stat.PopStdDev(eliteX, nil)*cfg.Contraction, cfg.StdDevFloor)
	}

	return NewRunDataset(snapshots), nil
}
