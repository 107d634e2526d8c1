package config

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fusionkit/gyroconv/internal/geometry"
)

// Physical constants in SI units. These are the only hardcoded physical
// values in the engine; everything else comes from the reference tables.
const (
	ElementaryCharge = 1.602176634e-19  // C
	ElectronMass     = 9.1093837015e-31 // kg
	ProtonMass       = 1.67262192369e-27
	// DeuteriumMass is the actual deuteron mass, not 2*mp. IMAS and the
	// GACODE family normalise to this value.
	DeuteriumMass = 3.3435837724e-27
	Epsilon0      = 8.8541878128e-12 // F/m
	Mu0           = 1.25663706212e-6 // H/m
	BoltzmannK    = 1.380649e-23     // J/K
)

// CoulombLogConvention selects the Coulomb-logarithm formula used when
// computing collision frequencies. Codes disagree on the convention, so
// it is configuration, never a hardcoded constant.
type CoulombLogConvention string

const (
	// CoulombLogNRL is the NRL plasma formulary electron-electron form:
	// 24 - ln(sqrt(ne[cm^-3]) / Te[eV]).
	CoulombLogNRL CoulombLogConvention = "nrl"

	// CoulombLogFixed uses a fixed value of 17, common in quick estimates
	// and some legacy decks.
	CoulombLogFixed CoulombLogConvention = "fixed"
)

// SpeciesMass holds the mass and default charge number for a named
// species, in SI units.
type SpeciesMass struct {
	Mass   float64 `yaml:"mass"`
	Charge float64 `yaml:"charge"`
}

// ReferenceTables is the immutable process-wide configuration passed
// explicitly into unit-system and species constructors.
type ReferenceTables struct {
	// Masses maps species name to mass/charge, e.g. "deuterium", "tritium".
	Masses map[string]SpeciesMass `yaml:"masses"`

	// CoulombLog selects the Coulomb-logarithm convention.
	CoulombLog CoulombLogConvention `yaml:"coulombLog"`

	// FixedCoulombLog is the value used when CoulombLog is "fixed".
	FixedCoulombLog float64 `yaml:"fixedCoulombLog"`

	// FitTolerance is the maximum accepted relative residual for
	// flux-surface shape fits.
	FitTolerance float64 `yaml:"fitTolerance"`

	// FitMaxIterations bounds the least-squares refinement so results are
	// reproducible across machines (no wall-clock timeouts).
	FitMaxIterations int `yaml:"fitMaxIterations"`

	// FitSamples is the number of poloidal-angle samples used when
	// evaluating the analytic parameterization against a trace.
	FitSamples int `yaml:"fitSamples"`

	// FloatDigits is the number of significant digits written for float
	// fields in output decks.
	FloatDigits int `yaml:"floatDigits"`

	// AlignColumns pads deck keys to a fixed column. The sampled native
	// templates use fixed-column layouts; whether that is functional or
	// cosmetic is unresolved, so it stays a serialization option.
	AlignColumns bool `yaml:"alignColumns"`

	// NeutralityTolerance is the relative charge-imbalance threshold above
	// which the advisory quasineutrality warning fires.
	NeutralityTolerance float64 `yaml:"neutralityTolerance"`
}

const defaultTablesYAML = `
masses:
  electron:  {mass: 9.1093837015e-31, charge: -1}
  hydrogen:  {mass: 1.67262192369e-27, charge: 1}
  deuterium: {mass: 3.3435837724e-27, charge: 1}
  tritium:   {mass: 5.0073567446e-27, charge: 1}
  helium:    {mass: 6.6446573357e-27, charge: 2}
  carbon:    {mass: 1.9926468799e-26, charge: 6}
  tungsten:  {mass: 3.0527348e-25, charge: 74}
coulombLog: nrl
fixedCoulombLog: 17.0
fitTolerance: 1.0e-3
fitMaxIterations: 200
fitSamples: 256
floatDigits: 11
alignColumns: false
neutralityTolerance: 1.0e-2
`

// DefaultTables returns the built-in reference tables.
func DefaultTables() *ReferenceTables {
	var t ReferenceTables
	if err := yaml.Unmarshal([]byte(defaultTablesYAML), &t); err != nil {
		// The embedded defaults are compile-time constants.
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return &t
}

// Load reads reference tables from the named file via viper, merging over
// the built-in defaults. An empty path returns the defaults unchanged.
func Load(path string) (*ReferenceTables, error) {
	tables := DefaultTables()
	if path == "" {
		return tables, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	// Field names match the YAML keys case-insensitively, which is all
	// viper's decoder needs; no tag override required.
	var overlay ReferenceTables
	if err := v.Unmarshal(&overlay); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	tables.merge(&overlay)
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return tables, nil
}

// merge overlays non-zero fields from o onto t. Masses are merged per
// species so a user table can add isotopes without restating the defaults.
func (t *ReferenceTables) merge(o *ReferenceTables) {
	for name, m := range o.Masses {
		t.Masses[name] = m
	}
	if o.CoulombLog != "" {
		t.CoulombLog = o.CoulombLog
	}
	if o.FixedCoulombLog != 0 {
		t.FixedCoulombLog = o.FixedCoulombLog
	}
	if o.FitTolerance != 0 {
		t.FitTolerance = o.FitTolerance
	}
	if o.FitMaxIterations != 0 {
		t.FitMaxIterations = o.FitMaxIterations
	}
	if o.FitSamples != 0 {
		t.FitSamples = o.FitSamples
	}
	if o.FloatDigits != 0 {
		t.FloatDigits = o.FloatDigits
	}
	if o.AlignColumns {
		t.AlignColumns = true
	}
	if o.NeutralityTolerance != 0 {
		t.NeutralityTolerance = o.NeutralityTolerance
	}
}

// Validate checks for invalid configuration values.
func (t *ReferenceTables) Validate() error {
	if len(t.Masses) == 0 {
		return fmt.Errorf("masses table must not be empty")
	}
	for name, m := range t.Masses {
		if m.Mass <= 0 {
			return fmt.Errorf("mass for %q must be > 0, got %g", name, m.Mass)
		}
	}
	switch t.CoulombLog {
	case CoulombLogNRL, CoulombLogFixed:
	default:
		return fmt.Errorf("unknown coulombLog convention %q", t.CoulombLog)
	}
	if t.FitTolerance <= 0 {
		return fmt.Errorf("fitTolerance must be > 0, got %g", t.FitTolerance)
	}
	if t.FitMaxIterations <= 0 {
		return fmt.Errorf("fitMaxIterations must be > 0, got %d", t.FitMaxIterations)
	}
	if t.FitSamples < 64 {
		return fmt.Errorf("fitSamples must be >= 64, got %d", t.FitSamples)
	}
	if t.FloatDigits < 1 || t.FloatDigits > 17 {
		return fmt.Errorf("floatDigits must be in [1,17], got %d", t.FloatDigits)
	}
	if t.NeutralityTolerance <= 0 {
		return fmt.Errorf("neutralityTolerance must be > 0, got %g", t.NeutralityTolerance)
	}
	return nil
}

// MassOf looks up a species mass by name. Name matching is exact; drivers
// resolve charge/mass heuristics before calling.
func (t *ReferenceTables) MassOf(name string) (SpeciesMass, bool) {
	m, ok := t.Masses[name]
	return m, ok
}

// SpeciesNames returns the configured species names in sorted order.
func (t *ReferenceTables) SpeciesNames() []string {
	names := make([]string, 0, len(t.Masses))
	for name := range t.Masses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FitOptions maps the configured fit knobs onto geometry fit options.
func (t *ReferenceTables) FitOptions() geometry.FitOptions {
	return geometry.FitOptions{
		Samples:       t.FitSamples,
		MaxIterations: t.FitMaxIterations,
		Tolerance:     t.FitTolerance,
	}
}
