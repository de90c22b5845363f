// Package gatefilter builds and applies per-gate quality masks. A GateFilter
// marks gates to be excluded from every downstream correction step, composed
// from independent range and threshold rules on the volume's quality fields.
package gatefilter

import (
	"fmt"
	"math"

	"github.com/zssherman/cpol-processing/internal/radar"
)

// GateFilter is a boolean exclusion mask with the shape of a volume's fields.
// Rules compose by OR of exclusions, so application order never matters and
// re-applying a rule is a no-op.
type GateFilter struct {
	nRays, nGates int
	excluded      []bool
}

// New returns a filter of the given shape with every gate included.
func New(nRays, nGates int) *GateFilter {
	return &GateFilter{
		nRays:    nRays,
		nGates:   nGates,
		excluded: make([]bool, nRays*nGates),
	}
}

// Shape returns the filter's (rays, gates) dimensions.
func (g *GateFilter) Shape() (int, int) { return g.nRays, g.nGates }

// Excluded reports whether the gate at (ray, gate) is excluded.
func (g *GateFilter) Excluded(ray, gate int) bool { return g.excluded[ray*g.nGates+gate] }

// ExcludedAt reports exclusion by flat index.
func (g *GateFilter) ExcludedAt(i int) bool { return g.excluded[i] }

// Exclude marks a single gate excluded.
func (g *GateFilter) Exclude(ray, gate int) { g.excluded[ray*g.nGates+gate] = true }

// IncludedCount returns the number of gates still included.
func (g *GateFilter) IncludedCount() int {
	n := 0
	for _, e := range g.excluded {
		if !e {
			n++
		}
	}
	return n
}

// Mask returns the underlying exclusion slice. The slice aliases the filter;
// callers must not modify it.
func (g *GateFilter) Mask() []bool { return g.excluded }

// Clone returns a deep copy of the filter.
func (g *GateFilter) Clone() *GateFilter {
	c := New(g.nRays, g.nGates)
	copy(c.excluded, g.excluded)
	return c
}

func (g *GateFilter) checkShape(f *radar.Field) error {
	if f.NRays != g.nRays || f.NGates != g.nGates {
		return fmt.Errorf("field %q shape %dx%d does not match filter %dx%d: %w",
			f.Name, f.NRays, f.NGates, g.nRays, g.nGates, radar.ErrPreconditionViolation)
	}
	return nil
}

// ExcludeOutside excludes gates where f falls outside [lo, hi]. NaN gates are
// excluded as well.
func (g *GateFilter) ExcludeOutside(f *radar.Field, lo, hi float64) error {
	if err := g.checkShape(f); err != nil {
		return err
	}
	for i, v := range f.Data {
		if math.IsNaN(v) || v < lo || v > hi {
			g.excluded[i] = true
		}
	}
	return nil
}

// ExcludeBelow excludes gates where f is below v or NaN.
func (g *GateFilter) ExcludeBelow(f *radar.Field, v float64) error {
	if err := g.checkShape(f); err != nil {
		return err
	}
	for i, x := range f.Data {
		if math.IsNaN(x) || x < v {
			g.excluded[i] = true
		}
	}
	return nil
}

// IncludeBelow requires f to be below v for a gate to stay included: gates at
// or above v (or NaN) are excluded. The rule layers as an AND condition on
// top of the existing exclusions, preserving OR-of-exclusions composition.
func (g *GateFilter) IncludeBelow(f *radar.Field, v float64) error {
	if err := g.checkShape(f); err != nil {
		return err
	}
	for i, x := range f.Data {
		if math.IsNaN(x) || x >= v {
			g.excluded[i] = true
		}
	}
	return nil
}

// Apply returns a copy of f with every excluded gate set to NaN. The input
// field is left untouched.
func (g *GateFilter) Apply(f *radar.Field) (*radar.Field, error) {
	if err := g.checkShape(f); err != nil {
		return nil, err
	}
	out := f.Clone()
	for i, e := range g.excluded {
		if e {
			out.Data[i] = math.NaN()
		}
	}
	return out, nil
}
