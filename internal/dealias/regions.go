// Package dealias recovers unambiguous Doppler velocity from wrapped
// measurements. The baseline pass segments each sweep into regions of
// mutually consistent velocity, builds an explicit region adjacency graph
// (with azimuthal wraparound) and propagates integer Nyquist-interval offsets
// across it. An optional refinement pass constrains the per-region offsets
// against an independently simulated wind field.
package dealias

import (
	"errors"
	"math"
	"sort"
)

// ErrSegmentation reports a malformed region graph for a sweep: no regions
// despite unmasked gates, or offset propagation running away. Callers recover
// by falling back to per-ray unfolding for the affected sweep.
var ErrSegmentation = errors.New("sweep region segmentation inconsistent")

// Options tunes segmentation and offset propagation.
type Options struct {
	// IntervalSplits is the number of sub-intervals the Nyquist co-interval
	// [-nyquist, nyquist] is divided into when segmenting. More splits give
	// smaller, more numerous regions.
	IntervalSplits int

	// SkipAlongRay is the largest run of masked gates along a ray that
	// adjacency may bridge. Zero allows only direct neighbours.
	SkipAlongRay int

	// SkipBetweenRays is the largest gate-index separation allowed when
	// matching a gate to its neighbour in the adjacent ray.
	SkipBetweenRays int

	// WrapAzimuth treats the first and last ray of a sweep as adjacent.
	// Correct for 360-degree PPI sweeps and on by default.
	WrapAzimuth bool
}

// DefaultOptions mirror the production configuration: three interval splits
// and a generous between-ray skip so rays separated by long masked stretches
// still connect.
func DefaultOptions() Options {
	return Options{
		IntervalSplits:  3,
		SkipAlongRay:    2,
		SkipBetweenRays: 100,
		WrapAzimuth:     true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.IntervalSplits <= 0 {
		o.IntervalSplits = d.IntervalSplits
	}
	if o.SkipAlongRay < 0 {
		o.SkipAlongRay = d.SkipAlongRay
	}
	if o.SkipBetweenRays < 0 {
		o.SkipBetweenRays = d.SkipBetweenRays
	}
	return o
}

// intervalLimits splits [-nyquist, nyquist] into k equal sub-intervals and
// returns the k+1 boundaries.
func intervalLimits(nyquist float64, k int) []float64 {
	limits := make([]float64, k+1)
	width := 2 * nyquist / float64(k)
	for i := range limits {
		limits[i] = -nyquist + float64(i)*width
	}
	return limits
}

// digitize returns the sub-interval index of v, clamping values beyond the
// outer limits into the end bins so slightly out-of-range measurements still
// join a region.
func digitize(v float64, limits []float64) int {
	if v < limits[0] {
		return 0
	}
	last := len(limits) - 2
	for i := 0; i < last; i++ {
		if v < limits[i+1] {
			return i
		}
	}
	return last
}

// FindRegions partitions the unmasked gates of one sweep into connected
// regions of consistent velocity. Two neighbouring gates join the same region
// when their velocities fall into the same Nyquist sub-interval, which bounds
// any intra-region gate-to-gate difference by the sub-interval width.
//
// vel and excluded are sweep-local rays-by-gates arrays in row-major order.
// The returned label array has 0 for masked gates and 1..n for regions; every
// unmasked gate belongs to exactly one region.
func FindRegions(vel []float64, excluded []bool, nRays, nGates int, limits []float64, wrapAzimuth bool) ([]int32, int) {
	labels := make([]int32, len(vel))
	bins := make([]int8, len(vel))
	for i, v := range vel {
		if excluded[i] || math.IsNaN(v) {
			bins[i] = -1
			continue
		}
		bins[i] = int8(digitize(v, limits))
	}

	var next int32
	var stack []int
	for start := range bins {
		if bins[start] < 0 || labels[start] != 0 {
			continue
		}
		next++
		bin := bins[start]
		labels[start] = next
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			ray, gate := idx/nGates, idx%nGates

			visit := func(n int) {
				if bins[n] == bin && labels[n] == 0 {
					labels[n] = next
					stack = append(stack, n)
				}
			}
			if gate > 0 {
				visit(idx - 1)
			}
			if gate < nGates-1 {
				visit(idx + 1)
			}
			if ray > 0 {
				visit(idx - nGates)
			} else if wrapAzimuth && nRays > 2 {
				visit((nRays-1)*nGates + gate)
			}
			if ray < nRays-1 {
				visit(idx + nGates)
			} else if wrapAzimuth && nRays > 2 {
				visit(gate)
			}
		}
	}
	return labels, int(next)
}

// edgeStat accumulates the boundary statistics of one region pair: the sum of
// velocities sampled on each side of the shared boundary and the number of
// boundary gate pairs.
type edgeStat struct {
	lo, hi       int32 // region labels, lo < hi
	sumLo, sumHi float64
	n            int
}

// regionGraph is the explicit adjacency structure of one sweep's regions,
// built once and then walked by offset propagation.
type regionGraph struct {
	nRegions int
	size     []int       // gates per region, index 1..nRegions
	edges    []*edgeStat // all distinct region pairs with a shared boundary
	adj      [][]int     // region label -> indices into edges
}

// buildGraph scans every neighbouring unmasked gate pair of the sweep and
// accumulates boundary statistics between distinct regions. Along a ray,
// masked runs up to skipAlongRay gates may be bridged; between rays a gate
// pairs with the nearest unmasked gate of the next ray within
// skipBetweenRays. Ray adjacency wraps azimuthally when requested.
func buildGraph(vel []float64, labels []int32, nRegions, nRays, nGates int, opts Options) *regionGraph {
	g := &regionGraph{
		nRegions: nRegions,
		size:     make([]int, nRegions+1),
		adj:      make([][]int, nRegions+1),
	}
	for _, l := range labels {
		if l > 0 {
			g.size[l]++
		}
	}

	index := make(map[[2]int32]int)
	record := func(a, b int32, va, vb float64) {
		if a == b || a == 0 || b == 0 {
			return
		}
		if a > b {
			a, b = b, a
			va, vb = vb, va
		}
		key := [2]int32{a, b}
		i, ok := index[key]
		if !ok {
			i = len(g.edges)
			index[key] = i
			g.edges = append(g.edges, &edgeStat{lo: a, hi: b})
			g.adj[a] = append(g.adj[a], i)
			g.adj[b] = append(g.adj[b], i)
		}
		e := g.edges[i]
		e.sumLo += va
		e.sumHi += vb
		e.n++
	}

	// Per-ray lists of unmasked gate indices, for nearest-neighbour matching
	// between rays.
	unmasked := make([][]int, nRays)
	for r := 0; r < nRays; r++ {
		for gate := 0; gate < nGates; gate++ {
			if labels[r*nGates+gate] > 0 {
				unmasked[r] = append(unmasked[r], gate)
			}
		}
	}

	for r := 0; r < nRays; r++ {
		row := r * nGates
		gates := unmasked[r]

		// Along-ray neighbours, bridging masked runs up to the skip bound.
		for i := 0; i+1 < len(gates); i++ {
			ga, gb := gates[i], gates[i+1]
			if gb-ga-1 > opts.SkipAlongRay {
				continue
			}
			record(labels[row+ga], labels[row+gb], vel[row+ga], vel[row+gb])
		}

		// Between-ray neighbours, ray r to ray r+1 (wrapping to ray 0).
		rn := r + 1
		if rn == nRays {
			if !opts.WrapAzimuth || nRays <= 2 {
				continue
			}
			rn = 0
		}
		nextRow := rn * nGates
		nextGates := unmasked[rn]
		for _, gate := range gates {
			match, ok := nearestGate(nextGates, gate, opts.SkipBetweenRays)
			if !ok {
				continue
			}
			record(labels[row+gate], labels[nextRow+match], vel[row+gate], vel[nextRow+match])
		}
	}
	return g
}

// nearestGate finds the entry of sorted closest to gate, within maxDist.
// Ties resolve to the lower index so the result is deterministic.
func nearestGate(sorted []int, gate, maxDist int) (int, bool) {
	i := sort.SearchInts(sorted, gate)
	best, bestDist := -1, maxDist+1
	if i > 0 {
		if d := gate - sorted[i-1]; d < bestDist {
			best, bestDist = sorted[i-1], d
		}
	}
	if i < len(sorted) {
		if d := sorted[i] - gate; d < bestDist {
			best, bestDist = sorted[i], d
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
