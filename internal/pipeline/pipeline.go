// Package pipeline drives the per-volume production line: precondition
// checks, quality masking, Doppler dealiasing with optional sounding
// constraint, gate-filter hardcoding and field renaming. Components receive
// the volume read-only and return new fields; only the Processor merges
// results back into the volume.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zssherman/cpol-processing/internal/dealias"
	"github.com/zssherman/cpol-processing/internal/gatefilter"
	"github.com/zssherman/cpol-processing/internal/radar"
)

// FieldNames maps the pipeline's roles onto the volume's field names. The
// zero value is completed with the documented instrument defaults.
type FieldNames struct {
	Refl     string `yaml:"refl"`
	PhiDP    string `yaml:"phidp"`
	RhoHV    string `yaml:"rhohv"`
	ZDR      string `yaml:"zdr"`
	Vel      string `yaml:"vel"`
	Sounding string `yaml:"sounding"`
}

// DefaultFieldNames returns the CPOL level-1a naming scheme.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		Refl:     "DBZ",
		PhiDP:    "PHIDP",
		RhoHV:    "RHOHV_CORR",
		ZDR:      "ZDR",
		Vel:      "VEL",
		Sounding: "sim_velocity",
	}
}

func (n FieldNames) withDefaults() FieldNames {
	d := DefaultFieldNames()
	if n.Refl == "" {
		n.Refl = d.Refl
	}
	if n.PhiDP == "" {
		n.PhiDP = d.PhiDP
	}
	if n.RhoHV == "" {
		n.RhoHV = d.RhoHV
	}
	if n.ZDR == "" {
		n.ZDR = d.ZDR
	}
	if n.Vel == "" {
		n.Vel = d.Vel
	}
	if n.Sounding == "" {
		n.Sounding = d.Sounding
	}
	return n
}

// Standard output names for the fields the pipeline keeps.
const (
	unfoldedVelField = "VEL_UNFOLDED"

	// Algorithm path labels recorded on the result.
	PathRegionBased         = "region_based"
	PathSoundingConstrain   = "region_based+sounding_constraint"
	PathVelocityUnavailable = "no_velocity"
)

// renameTable maps working field names to their standard semantic names on
// the finished volume.
var renameTable = [][2]string{
	{"VEL", "raw_velocity"},
	{unfoldedVelField, "velocity"},
	{"DBZ", "reflectivity"},
	{"RHOHV_CORR", "cross_correlation_ratio"},
	{"ZDR", "differential_reflectivity"},
	{"PHIDP", "differential_phase"},
	{"WIDTH", "spectrum_width"},
	{"SNR", "signal_to_noise_ratio"},
}

// hardcodeFields have the gate filter burned into their data before output.
var hardcodeFields = []string{"reflectivity", "differential_reflectivity"}

// goodKeys is the whitelist of fields kept on the finished volume; working
// fields are dropped.
var goodKeys = map[string]struct{}{
	"raw_velocity":              {},
	"velocity":                  {},
	"reflectivity":              {},
	"cross_correlation_ratio":   {},
	"differential_reflectivity": {},
	"differential_phase":        {},
	"spectrum_width":            {},
	"signal_to_noise_ratio":     {},
	"simulated_radial_velocity": {},
}

// Option configures a Processor.
type Option func(*Processor)

// WithSoundingConstraint enables the sounding-constrained refinement pass
// when the volume carries a simulated wind field.
func WithSoundingConstraint(enabled bool) Option {
	return func(p *Processor) { p.constrainSounding = enabled }
}

// WithDealiasOptions overrides the dealiasing options.
func WithDealiasOptions(opts dealias.Options) Option {
	return func(p *Processor) { p.dealiasOpts = opts }
}

// WithFieldNames overrides the field naming scheme.
func WithFieldNames(names FieldNames) Option {
	return func(p *Processor) { p.names = names.withDefaults() }
}

// Processor runs the production line on one volume at a time. It holds no
// per-volume state and is safe to reuse across volumes, one at a time per
// instance.
type Processor struct {
	names             FieldNames
	dealiasOpts       dealias.Options
	constrainSounding bool
	logger            *slog.Logger
}

// New creates a Processor with the given logger and options.
func New(logger *slog.Logger, options ...Option) *Processor {
	p := &Processor{
		names:       DefaultFieldNames(),
		dealiasOpts: dealias.DefaultOptions(),
		logger:      logger,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Result reports what the production line did to a volume.
type Result struct {
	// GateFilter is the finalized quality mask, exposed for reuse by every
	// other correction stage.
	GateFilter *gatefilter.GateFilter
	// AlgorithmPath names which dealiasing path produced the velocity field.
	AlgorithmPath string
	// NyquistVelocity is the ambiguity half-width used for unfolding.
	NyquistVelocity float64
	// FallbackSweeps lists sweeps dealiased by the per-ray fallback.
	FallbackSweeps []int
	// Elapsed is the total processing time.
	Elapsed time.Duration
}

// Process runs the full production line on vol, mutating it in place:
// fields are added, hardcoded against the gate filter, renamed to standard
// names and the working set trimmed. A fatal precondition violation leaves
// the volume unusable and must abort the caller's handling of it.
func (p *Processor) Process(vol *radar.Volume) (*Result, error) {
	start := time.Now()

	if err := p.checkPreconditions(vol); err != nil {
		return nil, err
	}

	res := &Result{AlgorithmPath: PathVelocityUnavailable}

	// Seasons without a cross-correlation field get a permissive synthetic
	// one so the mask builder can run; it is removed again before output.
	fakeRhoHV := p.backfillRhoHV(vol)

	gfStart := time.Now()
	gf, err := gatefilter.Build(vol, p.logger, p.names.Refl, p.names.PhiDP, p.names.RhoHV, p.names.ZDR)
	if err != nil {
		return nil, fmt.Errorf("building gate filter: %w", err)
	}
	res.GateFilter = gf
	p.logger.Debug("gate filter built",
		slog.Int("included_gates", gf.IncludedCount()),
		slog.Duration("elapsed", time.Since(gfStart)))

	if vol.HasField(p.names.Vel) {
		if err := p.unfoldVelocity(vol, gf, res); err != nil {
			return nil, err
		}
	} else {
		p.logger.Warn("velocity field missing, skipping dealiasing", slog.String("field", p.names.Vel))
	}

	if fakeRhoHV {
		vol.RemoveField(p.names.RhoHV)
	}

	p.finalizeFields(vol, gf)

	res.Elapsed = time.Since(start)
	return res, nil
}

func (p *Processor) checkPreconditions(vol *radar.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	refl, err := vol.Field(p.names.Refl)
	if err != nil {
		return err
	}
	if !refl.HasFiniteData() {
		return fmt.Errorf("reflectivity field %q is empty: %w", p.names.Refl, radar.ErrPreconditionViolation)
	}
	return nil
}

// backfillRhoHV adds an all-ones cross-correlation field when the volume has
// none, reporting whether it did.
func (p *Processor) backfillRhoHV(vol *radar.Volume) bool {
	if vol.HasField(p.names.RhoHV) {
		return false
	}
	rho := radar.NewField(p.names.RhoHV, vol.NRays, vol.NGates)
	rho.Units = "unitless"
	rho.StandardName = "cross_correlation_ratio"
	rho.Description = "Synthetic cross-correlation ratio (instrument did not record one)."
	for i := range rho.Data {
		rho.Data[i] = 1
	}
	vol.AddField(rho)
	p.logger.Warn("cross-correlation field missing, using synthetic all-ones field",
		slog.String("field", p.names.RhoHV))
	return true
}

func (p *Processor) unfoldVelocity(vol *radar.Volume, gf *gatefilter.GateFilter, res *Result) error {
	nyquist, err := vol.EnsureNyquist(p.names.Vel)
	if err != nil {
		return err
	}
	res.NyquistVelocity = nyquist

	dlStart := time.Now()
	dl, err := dealias.Dealias(vol, gf, p.names.Vel, p.dealiasOpts, p.logger)
	if err != nil {
		return fmt.Errorf("dealiasing velocity: %w", err)
	}
	res.AlgorithmPath = PathRegionBased
	res.FallbackSweeps = dl.FallbackSweeps
	unfolded := dl.Field

	if p.constrainSounding && vol.HasField(p.names.Sounding) {
		constrained, err := dealias.ConstrainWithSounding(vol, gf, unfolded, p.names.Vel, p.names.Sounding, p.dealiasOpts, p.logger)
		if err != nil {
			return fmt.Errorf("constraining velocity with sounding: %w", err)
		}
		unfolded = constrained
		res.AlgorithmPath = PathSoundingConstrain
	}

	unfolded.Name = unfoldedVelField
	vol.AddField(unfolded)
	p.logger.Info("velocity unfolded",
		slog.String("path", res.AlgorithmPath),
		slog.Float64("nyquist", nyquist),
		slog.Int("fallback_sweeps", len(res.FallbackSweeps)),
		slog.Duration("elapsed", time.Since(dlStart)))
	return nil
}

// finalizeFields renames working fields to standard names, hardcodes the
// gate filter into the configured output fields and drops everything not on
// the output whitelist.
func (p *Processor) finalizeFields(vol *radar.Volume, gf *gatefilter.GateFilter) {
	for _, pair := range renameTable {
		vol.RenameField(pair[0], pair[1])
	}
	// The configured names may differ from the CPOL defaults in the rename
	// table; map them explicitly as well.
	vol.RenameField(p.names.Vel, "raw_velocity")
	vol.RenameField(p.names.Refl, "reflectivity")
	vol.RenameField(p.names.RhoHV, "cross_correlation_ratio")
	vol.RenameField(p.names.ZDR, "differential_reflectivity")
	vol.RenameField(p.names.PhiDP, "differential_phase")
	vol.RenameField(p.names.Sounding, "simulated_radial_velocity")

	for _, name := range hardcodeFields {
		f, ok := vol.Fields[name]
		if !ok {
			continue
		}
		if filtered, err := gf.Apply(f); err == nil {
			filtered.Name = name
			vol.Fields[name] = filtered
		}
	}

	for name := range vol.Fields {
		if _, ok := goodKeys[name]; !ok {
			vol.RemoveField(name)
		}
	}
}

// IsFatal reports whether err should abort the volume entirely rather than
// degrade to a fallback path.
func IsFatal(err error) bool {
	return errors.Is(err, radar.ErrPreconditionViolation)
}
