package physics

import (
	"fmt"
	"math"
)

const (
	// GravitationalConstant in m³/(kg·s²).
	GravitationalConstant = 6.67430e-11

	// DefaultTimeScaling maps one wall-clock second to simulated seconds.
	DefaultTimeScaling = 300000.0
)

// Metadata holds the global simulation constants (SimMetaData on the wire).
type Metadata struct {
	InteractionConstant float64
	TimeScaling         float64
}

func DefaultMetadata() Metadata {
	return Metadata{
		InteractionConstant: GravitationalConstant,
		TimeScaling:         DefaultTimeScaling,
	}
}

// Validate rejects non-finite or negative constants. A zero time scaling is
// allowed and pauses the simulation.
func (m Metadata) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"interaction_constant", m.InteractionConstant},
		{"time_scaling", m.TimeScaling},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return fmt.Errorf("%w: %s = %v", ErrInvalidMetadata, f.name, f.v)
		}
	}
	return nil
}
