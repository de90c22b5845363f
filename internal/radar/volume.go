// Package radar defines the in-memory model for a single radar scan volume:
// a stack of PPI sweeps, each a rectangular rays-by-gates grid, with named
// measurement fields spanning the whole volume.
//
// The layout follows the usual polar-volume convention: the ray axis runs
// across all sweeps of the volume, and a sweep is a contiguous ray range.
// Every field of a volume shares the same rays-by-gates shape.
package radar

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrPreconditionViolation marks a fatal input defect: a component was invoked
// on a volume missing a required field, or with an empty/degenerate field.
// Callers abort processing of the whole volume when they see it.
var ErrPreconditionViolation = errors.New("precondition violation")

// Sweep is a contiguous ray range [Start, End) within a volume, all at the
// same antenna elevation.
type Sweep struct {
	Start     int     // index of the first ray of the sweep
	End       int     // one past the last ray of the sweep
	Elevation float64 // antenna elevation in degrees
}

// NRays returns the number of rays in the sweep.
func (s Sweep) NRays() int { return s.End - s.Start }

// Field is a named rays-by-gates array of floating-point measurements plus
// unit and naming metadata. Missing or filtered gates hold NaN.
type Field struct {
	Name         string
	Units        string
	StandardName string
	Description  string

	// NyquistVelocity records the ambiguity half-width used to produce the
	// field, for downstream consumers. Zero when not applicable.
	NyquistVelocity float64

	NRays  int
	NGates int
	Data   []float64 // row-major, NRays*NGates, NaN = missing
}

// NewField allocates a field of the given shape with every gate set to NaN.
func NewField(name string, nRays, nGates int) *Field {
	data := make([]float64, nRays*nGates)
	for i := range data {
		data[i] = math.NaN()
	}
	return &Field{Name: name, NRays: nRays, NGates: nGates, Data: data}
}

// Index converts a (ray, gate) pair into an offset into Data.
func (f *Field) Index(ray, gate int) int { return ray*f.NGates + gate }

// At returns the value at (ray, gate).
func (f *Field) At(ray, gate int) float64 { return f.Data[ray*f.NGates+gate] }

// Set stores a value at (ray, gate).
func (f *Field) Set(ray, gate int, v float64) { f.Data[ray*f.NGates+gate] = v }

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	c := *f
	c.Data = make([]float64, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// SweepData returns the slice of Data covering the given sweep. The slice
// aliases the field's backing array.
func (f *Field) SweepData(s Sweep) []float64 {
	return f.Data[s.Start*f.NGates : s.End*f.NGates]
}

// MaxAbs returns the largest finite absolute value in the field, or 0 when
// the field holds no finite values.
func (f *Field) MaxAbs() float64 {
	var m float64
	for _, v := range f.Data {
		if a := math.Abs(v); !math.IsNaN(v) && a > m {
			m = a
		}
	}
	return m
}

// HasFiniteData reports whether at least one gate holds a finite value.
func (f *Field) HasFiniteData() bool {
	for _, v := range f.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// Volume is one radar scan volume. Components treat it as read-only input and
// return new Fields; only the pipeline orchestrator merges results back in.
type Volume struct {
	Instrument string
	Time       time.Time

	NRays  int
	NGates int

	Azimuth   []float64 // degrees, one per ray
	Elevation []float64 // degrees, one per ray
	Range     []float64 // metres to gate centres, one per gate

	Sweeps []Sweep

	// NyquistVelocity is the Doppler ambiguity half-width in m/s for the
	// whole volume. Zero means unknown; see EnsureNyquist.
	NyquistVelocity float64

	Fields map[string]*Field
}

// Field returns the named field or an ErrPreconditionViolation when absent.
func (v *Volume) Field(name string) (*Field, error) {
	f, ok := v.Fields[name]
	if !ok {
		return nil, fmt.Errorf("field %q missing from volume: %w", name, ErrPreconditionViolation)
	}
	return f, nil
}

// HasField reports whether the named field exists on the volume.
func (v *Volume) HasField(name string) bool {
	_, ok := v.Fields[name]
	return ok
}

// AddField attaches a field to the volume under f.Name, replacing any
// existing field with the same name.
func (v *Volume) AddField(f *Field) {
	if v.Fields == nil {
		v.Fields = make(map[string]*Field)
	}
	v.Fields[f.Name] = f
}

// RemoveField detaches the named field. Removing an absent field is a no-op.
func (v *Volume) RemoveField(name string) {
	delete(v.Fields, name)
}

// RenameField moves the field stored under oldName to newName, updating the
// field's Name. It reports whether the field existed.
func (v *Volume) RenameField(oldName, newName string) bool {
	f, ok := v.Fields[oldName]
	if !ok {
		return false
	}
	delete(v.Fields, oldName)
	f.Name = newName
	v.Fields[newName] = f
	return true
}

// EnsureNyquist backfills the volume Nyquist velocity from the largest
// absolute value of the named velocity field when the instrument metadata
// did not carry one. Returns the effective Nyquist velocity.
func (v *Volume) EnsureNyquist(velName string) (float64, error) {
	if v.NyquistVelocity > 0 && !math.IsInf(v.NyquistVelocity, 0) {
		return v.NyquistVelocity, nil
	}
	vel, err := v.Field(velName)
	if err != nil {
		return 0, err
	}
	m := vel.MaxAbs()
	if m <= 0 {
		return 0, fmt.Errorf("cannot derive Nyquist velocity from empty field %q: %w", velName, ErrPreconditionViolation)
	}
	v.NyquistVelocity = m
	return m, nil
}

// Validate checks the structural invariants of the volume: consistent axis
// lengths, non-empty sweeps covering the ray axis, and uniform field shapes.
func (v *Volume) Validate() error {
	if v.NRays <= 0 || v.NGates <= 0 {
		return fmt.Errorf("volume has no gates (%d rays x %d gates): %w", v.NRays, v.NGates, ErrPreconditionViolation)
	}
	if len(v.Azimuth) != v.NRays {
		return fmt.Errorf("azimuth axis has %d entries, want %d: %w", len(v.Azimuth), v.NRays, ErrPreconditionViolation)
	}
	if len(v.Sweeps) == 0 {
		return fmt.Errorf("volume has no sweeps: %w", ErrPreconditionViolation)
	}
	prev := 0
	for i, s := range v.Sweeps {
		if s.Start != prev || s.End <= s.Start || s.End > v.NRays {
			return fmt.Errorf("sweep %d has malformed ray range [%d, %d): %w", i, s.Start, s.End, ErrPreconditionViolation)
		}
		prev = s.End
	}
	if prev != v.NRays {
		return fmt.Errorf("sweeps cover %d of %d rays: %w", prev, v.NRays, ErrPreconditionViolation)
	}
	for name, f := range v.Fields {
		if f.NRays != v.NRays || f.NGates != v.NGates || len(f.Data) != v.NRays*v.NGates {
			return fmt.Errorf("field %q shape %dx%d does not match volume %dx%d: %w",
				name, f.NRays, f.NGates, v.NRays, v.NGates, ErrPreconditionViolation)
		}
	}
	return nil
}
