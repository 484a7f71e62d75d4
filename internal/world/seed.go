package world

import "github.com/interstellare/server/internal/physics"

// AU is the astronomical unit in metres.
const AU = 149597870700.0

// planet places a body on the +x axis at au moving along +y at vy m/s.
func planet(mass, density, au, vy float64) physics.Body {
	return physics.NewBody(mass, density).
		WithPosition(physics.Vec3{X: au * AU}).
		WithVelocity(physics.Vec3{Y: vy})
}

// SolarSystem returns the sun, the eight planets and the moon, in the order
// sun, mercury, venus, earth, moon, mars, jupiter, saturn, uranus, neptune.
func SolarSystem() []physics.Body {
	return []physics.Body{
		Sun(),
		planet(3.285e23, 5430, 0.4667, 47360),
		planet(4.875e24, 5243, 0.728, 35020),
		Earth(),
		physics.NewBody(7.34767309e22, 3344).
			WithPosition(physics.Vec3{X: 1.017 * AU, Y: 0.00271862 * AU}).
			WithVelocity(physics.Vec3{X: 1022, Y: 29780}),
		planet(6.417e23, 3933, 1.666, 24070),
		planet(1.899e27, 1326, 5.459, 13060),
		planet(5.683e26, 687, 10.124, 9680),
		planet(8.681e25, 1271, 20.078, 6810),
		planet(1024e26, 1638, 30.385, 5430),
	}
}

// Sun returns the central star at rest in the origin.
func Sun() physics.Body { return physics.NewBody(1.98847e30, 1410) }

// Earth returns the earth at aphelion distance on the +x axis.
func Earth() physics.Body { return planet(5.9722e24, 5515, 1.017, 29780) }

// Seed replaces the bodies of s with bodies.
func (s *State) Seed(bodies []physics.Body) {
	s.Reset()
	for _, b := range bodies {
		s.AddBody(b)
	}
}
