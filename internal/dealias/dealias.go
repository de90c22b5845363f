package dealias

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/zssherman/cpol-processing/internal/gatefilter"
	"github.com/zssherman/cpol-processing/internal/radar"
)

// maxPropagationOffset is a sanity bound on propagated offsets. An offset
// beyond it means the region graph is malformed, not that the atmosphere
// folded fifty times.
const maxPropagationOffset = 50

// Result carries the corrected velocity field and which algorithm path
// produced each sweep.
type Result struct {
	Field *radar.Field
	// FallbackSweeps lists sweep indices where region propagation failed and
	// per-ray unfolding was used instead.
	FallbackSweeps []int
}

// Dealias produces the unfolded velocity field: every unmasked gate receives
// raw + 2*nyquist*offset with the offset chosen per region so neighbouring
// regions stay continuous. Region adjacency wraps around the azimuthal
// boundary. Masked gates are left as NaN fill.
//
// Sweeps whose region graph turns out inconsistent are recovered with a
// per-ray unfolding that uses only the scalar Nyquist velocity.
func Dealias(vol *radar.Volume, gf *gatefilter.GateFilter, velName string, opts Options, logger *slog.Logger) (*Result, error) {
	opts = opts.withDefaults()

	vel, err := vol.Field(velName)
	if err != nil {
		return nil, err
	}
	nyquist, err := vol.EnsureNyquist(velName)
	if err != nil {
		return nil, err
	}

	out := radar.NewField(velName+"_unfolded", vol.NRays, vol.NGates)
	out.Units = "m/s"
	out.StandardName = "corrected_radial_velocity"
	out.Description = "Velocity unfolded using the region-based dealiasing algorithm."
	out.NyquistVelocity = nyquist

	limits := intervalLimits(nyquist, opts.IntervalSplits)
	mask := gf.Mask()
	result := &Result{Field: out}

	for si, sweep := range vol.Sweeps {
		nRays := sweep.NRays()
		velSweep := vel.SweepData(sweep)
		maskSweep := mask[sweep.Start*vol.NGates : sweep.End*vol.NGates]
		outSweep := out.SweepData(sweep)

		offsets, labels, err := dealiasSweep(velSweep, maskSweep, nRays, vol.NGates, nyquist, limits, opts)
		if err != nil {
			logger.Warn("region dealiasing failed for sweep, falling back to per-ray unfolding",
				slog.Int("sweep", si), slog.String("reason", err.Error()))
			unfoldSweepByRay(velSweep, maskSweep, nRays, vol.NGates, nyquist, outSweep)
			result.FallbackSweeps = append(result.FallbackSweeps, si)
			continue
		}

		for i, l := range labels {
			if l > 0 {
				outSweep[i] = velSweep[i] + 2*nyquist*float64(offsets[l])
			}
		}
	}

	if len(result.FallbackSweeps) > 0 {
		out.Description = "Velocity unfolded using the region-based dealiasing algorithm (per-ray fallback on some sweeps)."
	}
	return result, nil
}

// dealiasSweep segments one sweep and propagates offsets over its region
// graph. Returns the per-region offsets (indexed by label) and the labels.
func dealiasSweep(vel []float64, excluded []bool, nRays, nGates int, nyquist float64, limits []float64, opts Options) ([]int, []int32, error) {
	labels, nRegions := FindRegions(vel, excluded, nRays, nGates, limits, opts.WrapAzimuth)
	if nRegions == 0 {
		if n := countUnmasked(vel, excluded); n > 0 {
			return nil, nil, fmt.Errorf("no regions found for %d unmasked gates: %w", n, ErrSegmentation)
		}
		// Fully masked sweep: nothing to unfold.
		return make([]int, 1), labels, nil
	}

	graph := buildGraph(vel, labels, nRegions, nRays, nGates, opts)
	offsets, err := propagateOffsets(graph, nyquist)
	if err != nil {
		return nil, nil, err
	}
	return offsets, labels, nil
}

// propagateOffsets walks the region graph breadth-first from the largest
// region outward, always crossing the strongest unvisited boundary next.
// Each new region gets the integer offset minimising the mean velocity
// discontinuity across the boundary it was reached through. Disconnected
// graph components are seeded independently with offset zero.
func propagateOffsets(g *regionGraph, nyquist float64) ([]int, error) {
	offsets := make([]int, g.nRegions+1)
	visited := make([]bool, g.nRegions+1)

	for {
		seed := int32(0)
		for l := int32(1); l <= int32(g.nRegions); l++ {
			if !visited[l] && (seed == 0 || g.size[l] > g.size[seed]) {
				seed = l
			}
		}
		if seed == 0 {
			return offsets, nil
		}
		visited[seed] = true
		offsets[seed] = 0

		for {
			// Strongest edge from the visited set into the frontier.
			var best *edgeStat
			for l := int32(1); l <= int32(g.nRegions); l++ {
				if !visited[l] {
					continue
				}
				for _, ei := range g.adj[l] {
					e := g.edges[ei]
					if visited[e.lo] == visited[e.hi] {
						continue
					}
					if best == nil || e.n > best.n {
						best = e
					}
				}
			}
			if best == nil {
				break
			}

			from, to := best.lo, best.hi
			fromMean, toMean := best.sumLo/float64(best.n), best.sumHi/float64(best.n)
			if visited[to] {
				from, to = to, from
				fromMean, toMean = toMean, fromMean
			}

			corrected := fromMean + 2*nyquist*float64(offsets[from])
			k := int(math.Round((corrected - toMean) / (2 * nyquist)))
			if k > maxPropagationOffset || k < -maxPropagationOffset {
				return nil, fmt.Errorf("offset %d for region %d exceeds propagation bound: %w", k, to, ErrSegmentation)
			}
			offsets[to] = k
			visited[to] = true
		}
	}
}

// unfoldSweepByRay is the degraded path: each ray is unfolded independently
// by keeping consecutive unmasked gates within one Nyquist co-interval of
// each other. No region graph, no cross-ray continuity.
func unfoldSweepByRay(vel []float64, excluded []bool, nRays, nGates int, nyquist float64, out []float64) {
	for r := 0; r < nRays; r++ {
		row := r * nGates
		prev := math.NaN()
		for g := 0; g < nGates; g++ {
			v := vel[row+g]
			if excluded[row+g] || math.IsNaN(v) {
				continue
			}
			if !math.IsNaN(prev) {
				v += 2 * nyquist * math.Round((prev-v)/(2*nyquist))
			}
			out[row+g] = v
			prev = v
		}
	}
}

func countUnmasked(vel []float64, excluded []bool) int {
	n := 0
	for i, e := range excluded {
		if !e && !math.IsNaN(vel[i]) {
			n++
		}
	}
	return n
}
