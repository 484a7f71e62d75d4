package system

import (
	"time"

	"github.com/interstellare/server/internal/core/event"
	coresys "github.com/interstellare/server/internal/core/system"
	"github.com/interstellare/server/internal/world"
)

// PhysicsSystem advances the simulation by the wall-clock time elapsed
// since the previous tick. Phase 1 (Update).
type PhysicsSystem struct {
	state *world.State
	bus   *event.Bus
}

func NewPhysicsSystem(state *world.State, bus *event.Bus) *PhysicsSystem {
	return &PhysicsSystem{state: state, bus: bus}
}

func (s *PhysicsSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *PhysicsSystem) Update(dt time.Duration) {
	for _, r := range s.state.TimeStep(dt.Seconds()) {
		event.Emit(s.bus, event.BodyRemoved{Index: r.Index, ID: r.ID, Reason: r.Reason.String()})
	}
}
