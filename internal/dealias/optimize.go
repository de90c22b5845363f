package dealias

import (
	"log/slog"
	"math"

	"github.com/zssherman/cpol-processing/internal/gatefilter"
	"github.com/zssherman/cpol-processing/internal/radar"
)

const (
	// MaxOffsetBound bounds every optimised region offset to
	// [-MaxOffsetBound, MaxOffsetBound] Nyquist intervals. A safety bound,
	// not a physical one.
	MaxOffsetBound = 5

	// maxOptimizerIterations is the optimizer's whole stopping contract:
	// exhausting it is normal termination, not a failure.
	maxOptimizerIterations = 20

	// optimizerTolerance stops the descent early once an iteration improves
	// the sweep cost by less than this many m/s.
	optimizerTolerance = 1e-3
)

// ConstrainWithSounding refines the baseline dealiased field against a
// simulated wind field derived from a radiosounding. Per sweep, it segments
// the raw (wrapped) velocities into regions and minimises
//
//	cost(offsets) = sum over regions |mean(vel) + offset*interval - mean(sim)|
//
// over bounded integer offsets, where interval is the full Nyquist ambiguity
// interval (twice the Nyquist velocity). The descent uses the sign of each
// region's residual as its sub-gradient: the objective is piecewise linear,
// so the gradient is a sign-based constant rather than a true derivative at
// the kinks. Offsets are rounded to whole intervals before application and a
// rounded offset is only applied when it does not worsen its region's
// residual, so the post-optimization cost never exceeds the baseline cost.
//
// Sweeps that segment into zero regions are left unmodified from baseline.
func ConstrainWithSounding(vol *radar.Volume, gf *gatefilter.GateFilter, baseline *radar.Field, velName, soundingName string, opts Options, logger *slog.Logger) (*radar.Field, error) {
	opts = opts.withDefaults()

	vel, err := vol.Field(velName)
	if err != nil {
		return nil, err
	}
	sim, err := vol.Field(soundingName)
	if err != nil {
		return nil, err
	}
	nyquist, err := vol.EnsureNyquist(velName)
	if err != nil {
		return nil, err
	}
	interval := 2 * nyquist

	out := baseline.Clone()
	out.StandardName = "corrected_radial_velocity"
	out.Description = "Velocity unfolded using the region-based dealiasing algorithm, constrained by radiosounding simulated winds."
	out.NyquistVelocity = nyquist

	limits := intervalLimits(nyquist, opts.IntervalSplits)
	mask := gf.Mask()

	for si, sweep := range vol.Sweeps {
		nRays := sweep.NRays()
		rawSweep := vel.SweepData(sweep)
		maskSweep := mask[sweep.Start*vol.NGates : sweep.End*vol.NGates]
		curSweep := out.SweepData(sweep)
		simSweep := sim.SweepData(sweep)

		labels, nRegions := FindRegions(rawSweep, maskSweep, nRays, vol.NGates, limits, opts.WrapAzimuth)
		if nRegions == 0 {
			continue
		}

		curMean, simMean, valid := regionMeans(curSweep, simSweep, labels, nRegions)
		offsets := optimizeOffsets(curMean, simMean, valid, interval)

		applied := 0
		for l := 1; l <= nRegions; l++ {
			k := offsets[l]
			if k == 0 || !valid[l] {
				continue
			}
			shift := float64(k) * interval
			for i, lab := range labels {
				if int(lab) == l && !math.IsNaN(curSweep[i]) {
					curSweep[i] += shift
				}
			}
			applied++
		}
		if applied > 0 {
			logger.Debug("sounding constraint adjusted regions",
				slog.Int("sweep", si), slog.Int("regions", applied))
		}
	}
	return out, nil
}

// regionMeans computes per-region means of the current velocities and the
// simulated winds, skipping NaN gates. valid marks regions with finite means
// on both sides; the others contribute nothing to the cost.
func regionMeans(cur, sim []float64, labels []int32, nRegions int) (curMean, simMean []float64, valid []bool) {
	curSum := make([]float64, nRegions+1)
	curN := make([]int, nRegions+1)
	simSum := make([]float64, nRegions+1)
	simN := make([]int, nRegions+1)

	for i, l := range labels {
		if l == 0 {
			continue
		}
		if v := cur[i]; !math.IsNaN(v) {
			curSum[l] += v
			curN[l]++
		}
		if v := sim[i]; !math.IsNaN(v) {
			simSum[l] += v
			simN[l]++
		}
	}

	curMean = make([]float64, nRegions+1)
	simMean = make([]float64, nRegions+1)
	valid = make([]bool, nRegions+1)
	for l := 1; l <= nRegions; l++ {
		if curN[l] == 0 || simN[l] == 0 {
			continue
		}
		curMean[l] = curSum[l] / float64(curN[l])
		simMean[l] = simSum[l] / float64(simN[l])
		valid[l] = true
	}
	return curMean, simMean, valid
}

// optimizeOffsets runs the bounded sign-sub-gradient descent and returns the
// rounded integer offsets, index 1..nRegions. The zero vector (the baseline)
// is always a candidate, and a rounded offset is dropped whenever it would
// worsen its region's residual, so the result never costs more than the
// baseline.
func optimizeOffsets(curMean, simMean []float64, valid []bool, interval float64) []int {
	n := len(curMean) - 1
	offsets := make([]float64, n+1)
	best := make([]float64, n+1)
	bestCost := offsetCost(offsets, curMean, simMean, valid, interval)

	for iter := 0; iter < maxOptimizerIterations; iter++ {
		for l := 1; l <= n; l++ {
			if !valid[l] {
				continue
			}
			residual := curMean[l] + offsets[l]*interval - simMean[l]
			// Sign-based sub-gradient: step one interval against the
			// residual, clamped to the safety bound.
			if residual > 0 {
				offsets[l]--
			} else if residual < 0 {
				offsets[l]++
			}
			offsets[l] = math.Max(-MaxOffsetBound, math.Min(MaxOffsetBound, offsets[l]))
		}

		cost := offsetCost(offsets, curMean, simMean, valid, interval)
		if cost < bestCost-optimizerTolerance {
			bestCost = cost
			copy(best, offsets)
		} else if cost >= bestCost {
			// Oscillating around the minimum: nothing further to gain from
			// unit steps on a piecewise-linear objective.
			break
		}
	}

	rounded := make([]int, n+1)
	for l := 1; l <= n; l++ {
		if !valid[l] {
			continue
		}
		k := int(math.Round(best[l]))
		before := math.Abs(curMean[l] - simMean[l])
		after := math.Abs(curMean[l] + float64(k)*interval - simMean[l])
		if after <= before {
			rounded[l] = k
		}
	}
	return rounded
}

func offsetCost(offsets, curMean, simMean []float64, valid []bool, interval float64) float64 {
	var cost float64
	for l := 1; l < len(curMean); l++ {
		if !valid[l] {
			continue
		}
		if v := math.Abs(curMean[l] + offsets[l]*interval - simMean[l]); !math.IsNaN(v) {
			cost += v
		}
	}
	return cost
}
