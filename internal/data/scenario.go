package data

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/interstellare/server/internal/physics"
	"github.com/interstellare/server/internal/world"
)

// ErrInvalidScenario is wrapped by every scenario validation failure.
var ErrInvalidScenario = errors.New("scenario: invalid")

// Scenario is an initial set of bodies, optionally with its own constants.
type Scenario struct {
	Name     string
	Metadata *physics.Metadata // nil = keep the configured constants
	Bodies   []physics.Body
	Names    []string // parallel to Bodies, "" when unnamed
}

// Len returns the number of bodies.
func (s *Scenario) Len() int { return len(s.Bodies) }

// SolarSystemScenario wraps the built-in seed.
func SolarSystemScenario() *Scenario {
	return &Scenario{
		Name:   "solar system",
		Bodies: world.SolarSystem(),
		Names: []string{"sun", "mercury", "venus", "earth", "moon",
			"mars", "jupiter", "saturn", "uranus", "neptune"},
	}
}

// --- YAML loading ---

type scenarioFile struct {
	Name         string        `yaml:"name"`
	DistanceUnit string        `yaml:"distance_unit"` // "m" (default) or "au"
	Metadata     *metadataYAML `yaml:"metadata"`
	Bodies       []bodyYAML    `yaml:"bodies"`
}

type metadataYAML struct {
	InteractionConstant float64 `yaml:"interaction_constant"`
	TimeScaling         float64 `yaml:"time_scaling"`
}

// bodyYAML mirrors the wire keys. Radius is always derived.
type bodyYAML struct {
	Name    string  `yaml:"name"`
	Mass    float64 `yaml:"mass"`
	Density float64 `yaml:"density"`
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Z       float64 `yaml:"z"`
	VX      float64 `yaml:"vx"`
	VY      float64 `yaml:"vy"`
	VZ      float64 `yaml:"vz"`
}

// LoadScenario loads a body table from YAML.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	s, err := ParseScenario(raw)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates a YAML body table.
func ParseScenario(raw []byte) (*Scenario, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	scale := 1.0
	switch f.DistanceUnit {
	case "", "m":
	case "au":
		scale = world.AU
	default:
		return nil, fmt.Errorf("%w: unknown distance_unit %q", ErrInvalidScenario, f.DistanceUnit)
	}

	s := &Scenario{
		Name:   f.Name,
		Bodies: make([]physics.Body, 0, len(f.Bodies)),
		Names:  make([]string, 0, len(f.Bodies)),
	}
	if f.Metadata != nil {
		m := physics.Metadata{
			InteractionConstant: f.Metadata.InteractionConstant,
			TimeScaling:         f.Metadata.TimeScaling,
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		s.Metadata = &m
	}
	for i, b := range f.Bodies {
		body, err := b.toBody(scale)
		if err != nil {
			return nil, fmt.Errorf("body %d (%s): %w", i, b.Name, err)
		}
		s.Bodies = append(s.Bodies, body)
		s.Names = append(s.Names, b.Name)
	}
	return s, nil
}

func (b bodyYAML) toBody(scale float64) (physics.Body, error) {
	if !(b.Mass > 0) || !(b.Density > 0) {
		return physics.Body{}, fmt.Errorf("%w: mass and density must be positive", ErrInvalidScenario)
	}
	pos := physics.Vec3{X: b.X * scale, Y: b.Y * scale, Z: b.Z * scale}
	vel := physics.Vec3{X: b.VX, Y: b.VY, Z: b.VZ}
	if !pos.IsFinite() || !vel.IsFinite() || math.IsInf(b.Mass, 0) || math.IsInf(b.Density, 0) {
		return physics.Body{}, fmt.Errorf("%w: non-finite value", ErrInvalidScenario)
	}
	return physics.NewBody(b.Mass, b.Density).WithPosition(pos).WithVelocity(vel), nil
}
