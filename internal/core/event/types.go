package event

import "github.com/interstellare/server/internal/core/ecs"

// BodyRemoved is emitted once per body leaving the simulation. Index is the
// position the body held immediately before removal.
type BodyRemoved struct {
	Index  int
	ID     ecs.EntityID
	Reason string
}

type BodyAdded struct {
	Index int
	ID    ecs.EntityID
}

type MetadataChanged struct {
	InteractionConstant float64
	TimeScaling         float64
}

// CommandRejected reports a command the owner could not apply.
type CommandRejected struct {
	Event string
	Err   error
}
