// Package config reads the TOML description of a run.
package config

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/notargets/lagtrack/flow"
	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/partitions"
	"github.com/notargets/lagtrack/tracking"
	"github.com/notargets/lagtrack/zones"
	"gonum.org/v1/gonum/spatial/r3"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultInterface    = 15.0 // y+ of the inner zone edge
	DefaultJammingLimit = 0.9069
	DefaultMinPorosity  = 0.366
)

type Config struct {
	Run        Run
	Mesh       Mesh
	Flow       Flow
	Physics    Physics
	Zones      []Zone      `toml:"zone"`
	Periodic   []Periodic  `toml:"periodic"`
	Injections []Injection `toml:"injection"`
}

type Run struct {
	Steps     int
	Dt        float64 `toml:"dt"`
	Ranks     int
	Seed      uint64
	Order     int    // SDE scheme order, 1 or 2
	Strategy  string // Cell decomposition: block, roundrobin or morton
	MaxPasses int    `toml:"max_passes"`
	Failsafe  bool   // Abort the step on a lost particle
	Report    int    // Steps between reports, 0 reports the last step only
}

// Mesh is either a file read through the gocfd readers or a structured box.
type Mesh struct {
	File  string
	Cells [3]int
	Lo    [3]float64
	Hi    [3]float64
}

type Flow struct {
	Velocity         [3]float64
	Density          float64
	Viscosity        float64 // Dynamic viscosity
	TurbulentEnergy  float64 `toml:"turbulent_energy"`
	Dissipation      float64
	PressureGradient [3]float64 `toml:"pressure_gradient"`
	Temperature      float64    // Kelvin
	FrictionVelocity float64    `toml:"friction_velocity"`
}

type Physics struct {
	Gravity        [3]float64
	Brownian       bool
	Deposition     bool
	Resuspension   bool
	Clogging       bool
	AddedMass      bool    `toml:"added_mass"`
	AddedMassConst float64 `toml:"added_mass_const"`
	Interface      float64 // y+ of the inner zone edge
	ContactBarrier float64 `toml:"contact_barrier"`
	JammingLimit   float64 `toml:"jamming_limit"`
	MinPorosity    float64 `toml:"min_porosity"`
}

type Zone struct {
	Group   string
	Nature  string
	Barrier float64
	Fouling zones.FoulingParams
}

// Periodic pairs two boundary groups. The rotation, if any, is applied
// before the translation.
type Periodic struct {
	Group1      string
	Group2      string
	Translation [3]float64
	Axis        [3]float64
	Angle       float64 // Radians
	Center      [3]float64
}

type Injection struct {
	Zone        string
	Number      int // Particles per injection
	Every       int // Steps between injections
	Diameter    float64
	Density     float64
	Velocity    [3]float64
	Weight      float64
	Temperature float64
}

// Load decodes the file at path, fills the defaults of the keys it does not
// define and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	meta, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return c.finish(meta)
}

// Decode is Load on a TOML document held in memory.
func Decode(data string) (*Config, error) {
	var c Config
	meta, err := toml.Decode(data, &c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return c.finish(meta)
}

func (c *Config) finish(meta toml.MetaData) (*Config, error) {
	if und := meta.Undecoded(); len(und) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalid, und[0].String())
	}
	c.defaults(meta)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) defaults(meta toml.MetaData) {
	if !meta.IsDefined("run", "ranks") {
		c.Run.Ranks = 1
	}
	if !meta.IsDefined("run", "order") {
		c.Run.Order = 1
	}
	if !meta.IsDefined("run", "seed") {
		c.Run.Seed = 1
	}
	if !meta.IsDefined("run", "strategy") {
		c.Run.Strategy = partitions.BlockPartition.String()
	}
	if !meta.IsDefined("run", "max_passes") {
		c.Run.MaxPasses = tracking.DefaultMaxPasses
	}
	if !meta.IsDefined("physics", "interface") {
		c.Physics.Interface = DefaultInterface
	}
	if !meta.IsDefined("physics", "jamming_limit") {
		c.Physics.JammingLimit = DefaultJammingLimit
	}
	if !meta.IsDefined("physics", "min_porosity") {
		c.Physics.MinPorosity = DefaultMinPorosity
	}
	for i := range c.Injections {
		if c.Injections[i].Weight == 0 {
			c.Injections[i].Weight = 1
		}
		if c.Injections[i].Every == 0 {
			c.Injections[i].Every = 1
		}
	}
}

// Validate rejects inconsistent input.
func (c *Config) Validate() error {
	invalid := func(format string, a ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...))
	}
	r := c.Run
	switch {
	case r.Steps < 1:
		return invalid("run.steps must be positive, got %d", r.Steps)
	case !(r.Dt > 0):
		return invalid("run.dt must be positive, got %g", r.Dt)
	case r.Ranks < 1:
		return invalid("run.ranks must be positive, got %d", r.Ranks)
	case r.Order != 1 && r.Order != 2:
		return invalid("run.order must be 1 or 2, got %d", r.Order)
	case r.MaxPasses < 1:
		return invalid("run.max_passes must be positive, got %d", r.MaxPasses)
	case r.Report < 0:
		return invalid("run.report must not be negative, got %d", r.Report)
	}
	if _, err := partitions.ParseStrategy(r.Strategy); err != nil {
		return invalid("run.strategy: %v", err)
	}

	if c.Mesh.File == "" {
		for k := 0; k < 3; k++ {
			if c.Mesh.Cells[k] < 1 {
				return invalid("mesh.cells must be positive, got %v", c.Mesh.Cells)
			}
			if !(c.Mesh.Hi[k] > c.Mesh.Lo[k]) {
				return invalid("mesh extents %v..%v are empty", c.Mesh.Lo, c.Mesh.Hi)
			}
		}
	}

	if !(c.Flow.Density > 0) || !(c.Flow.Viscosity > 0) {
		return invalid("flow density and viscosity must be positive, got %g and %g", c.Flow.Density, c.Flow.Viscosity)
	}
	if c.Flow.TurbulentEnergy < 0 || c.Flow.Dissipation < 0 || c.Flow.Temperature < 0 || c.Flow.FrictionVelocity < 0 {
		return invalid("flow turbulence, temperature and friction velocity must not be negative")
	}

	p := c.Physics
	switch {
	case r.Order == 2 && p.Deposition:
		return invalid("the deposition model needs run.order = 1")
	case p.Resuspension && !p.Deposition:
		return invalid("resuspension needs the deposition model")
	case p.Clogging && !p.Deposition:
		return invalid("clogging needs the deposition model")
	case p.Deposition && !(p.Interface > 0 && p.Interface < tracking.BoundaryLayer):
		return invalid("physics.interface must be in (0, %g), got %g", tracking.BoundaryLayer, p.Interface)
	case p.AddedMass && p.AddedMassConst < 0:
		return invalid("physics.added_mass_const must not be negative")
	}

	seen := make(map[string]bool, len(c.Zones))
	for _, z := range c.Zones {
		if z.Group == "" {
			return invalid("zone without a group")
		}
		if seen[z.Group] {
			return invalid("group %q has two zones", z.Group)
		}
		seen[z.Group] = true
		n, err := zones.ParseNature(z.Nature)
		if err != nil {
			return invalid("zone %q: %v", z.Group, err)
		}
		if n == zones.UserDefined {
			return invalid("zone %q: nature %v has no interaction model", z.Group, n)
		}
		if n == zones.DepoDLVO && !p.Deposition {
			return invalid("zone %q is %v but the deposition model is off", z.Group, n)
		}
	}
	for _, pr := range c.Periodic {
		if pr.Group1 == "" || pr.Group2 == "" || pr.Group1 == pr.Group2 {
			return invalid("periodicity needs two distinct groups, got %q and %q", pr.Group1, pr.Group2)
		}
		if _, err := pr.Transform(); err != nil {
			return invalid("periodicity %s-%s: %v", pr.Group1, pr.Group2, err)
		}
	}
	for k, in := range c.Injections {
		switch {
		case !seen[in.Zone]:
			return invalid("injection %d: no zone for group %q", k, in.Zone)
		case in.Number < 0 || in.Every < 1:
			return invalid("injection %d: number %d every %d steps", k, in.Number, in.Every)
		case !(in.Diameter > 0) || !(in.Density > 0) || !(in.Weight > 0):
			return invalid("injection %d: diameter, density and weight must be positive", k)
		}
	}
	return nil
}

// ZoneList returns the zone table entries in file order.
func (c *Config) ZoneList() ([]zones.Zone, error) {
	out := make([]zones.Zone, 0, len(c.Zones))
	for _, z := range c.Zones {
		n, err := zones.ParseNature(z.Nature)
		if err != nil {
			return nil, fmt.Errorf("%w: zone %q: %v", ErrInvalid, z.Group, err)
		}
		out = append(out, zones.Zone{Name: z.Group, Nature: n, Barrier: z.Barrier, Fouling: z.Fouling})
	}
	return out, nil
}

// Periodicities returns the periodic group pairs.
func (c *Config) Periodicities() ([]partitions.Periodicity, error) {
	out := make([]partitions.Periodicity, 0, len(c.Periodic))
	for _, p := range c.Periodic {
		t, err := p.Transform()
		if err != nil {
			return nil, fmt.Errorf("%w: periodicity %s-%s: %v", ErrInvalid, p.Group1, p.Group2, err)
		}
		out = append(out, partitions.Periodicity{Group1: p.Group1, Group2: p.Group2, Transform: t})
	}
	return out, nil
}

// Transform maps points near Group1 onto Group2.
func (p Periodic) Transform() (geometry.Transform, error) {
	shift := geometry.NewTranslation(vec(p.Translation))
	if p.Angle == 0 {
		return shift, nil
	}
	rot, err := geometry.NewRotation(vec(p.Axis), p.Angle, vec(p.Center))
	if err != nil {
		return geometry.Transform{}, err
	}
	return shift.Compose(rot), nil
}

// Cell returns the uniform fluid state.
func (f Flow) Cell() flow.Cell {
	return flow.Cell{
		Velocity:         vec(f.Velocity),
		Density:          f.Density,
		Viscosity:        f.Viscosity,
		TurbulentEnergy:  f.TurbulentEnergy,
		Dissipation:      f.Dissipation,
		PressureGradient: vec(f.PressureGradient),
		Temperature:      f.Temperature,
	}
}

// Vec converts a TOML triple.
func Vec(a [3]float64) r3.Vec { return vec(a) }

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }
