package physics

import "math"

// DefaultStabilityThreshold is the acceleration magnitude (m/s²) above which
// a body is considered numerically unstable.
const DefaultStabilityThreshold = 1e6

// Body is a gravitating point mass. Radius is derived from mass and density
// and is never set on its own.
type Body struct {
	mass    float64
	density float64
	radius  float64

	Pos Vec3
	Vel Vec3
	Acc Vec3 // scratch accumulator, zeroed once consumed
}

// NewBody returns a body at rest in the origin.
func NewBody(mass, density float64) Body {
	return Body{
		mass:    mass,
		density: density,
		radius:  DeriveRadius(mass, density),
	}
}

// DeriveRadius returns the radius of a homogeneous sphere.
func DeriveRadius(mass, density float64) float64 {
	return math.Cbrt(0.75 * mass / (math.Pi * density))
}

// MassFrom returns the mass of a homogeneous sphere.
func MassFrom(density, radius float64) float64 {
	return 4.0 / 3.0 * math.Pi * radius * radius * radius * density
}

// DensityFrom returns the density of a homogeneous sphere.
func DensityFrom(mass, radius float64) float64 {
	return mass / (4.0 / 3.0 * math.Pi * radius * radius * radius)
}

func (b Body) Mass() float64    { return b.mass }
func (b Body) Density() float64 { return b.density }
func (b Body) Radius() float64  { return b.radius }

func (b *Body) SetMass(mass float64) {
	b.mass = mass
	b.radius = DeriveRadius(b.mass, b.density)
}

func (b *Body) SetDensity(density float64) {
	b.density = density
	b.radius = DeriveRadius(b.mass, b.density)
}

func (b Body) WithPosition(p Vec3) Body     { b.Pos = p; return b }
func (b Body) WithVelocity(v Vec3) Body     { b.Vel = v; return b }
func (b Body) WithAcceleration(a Vec3) Body { b.Acc = a; return b }

// IntegrateVelocity applies the accumulated acceleration over dt and resets
// it. The body is left untouched when |acc| exceeds threshold.
func (b *Body) IntegrateVelocity(dt, threshold float64) error {
	if n := b.Acc.Norm(); n > threshold || math.IsNaN(n) {
		return ErrNumericalInstability
	}
	b.Vel = b.Vel.Add(b.Acc.Scale(dt))
	b.Acc = Vec3{}
	return nil
}

// IntegratePosition moves the body along its velocity. Only valid after a
// successful IntegrateVelocity.
func (b *Body) IntegratePosition(dt float64) {
	b.Pos = b.Pos.Add(b.Vel.Scale(dt))
}
