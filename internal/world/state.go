package world

import (
	"errors"
	"fmt"
	"time"

	"github.com/interstellare/server/internal/command"
	"github.com/interstellare/server/internal/core/ecs"
	"github.com/interstellare/server/internal/physics"
)

var (
	// ErrMissingPayload is returned for Add, Update or Meta commands that
	// carry no body or metadata. Fatal to that command only.
	ErrMissingPayload = errors.New("world: command has no payload")

	// ErrIndexOutOfRange is returned when a positional target does not
	// name a body.
	ErrIndexOutOfRange = errors.New("world: index out of range")

	// ErrUnknownBody is returned in id addressing when the handle is stale
	// or was never issued.
	ErrUnknownBody = errors.New("world: unknown body handle")
)

// Addressing selects how command targets are resolved.
type Addressing int

const (
	// AddressIndex treats a target as the body's current position in the
	// sequence. Targets are not stable across removals.
	AddressIndex Addressing = iota
	// AddressID treats a target as a generational handle issued on Add.
	AddressID
)

func (a Addressing) String() string {
	if a == AddressID {
		return "id"
	}
	return "index"
}

// ParseAddressing maps the configuration names "index" and "id".
func ParseAddressing(s string) (Addressing, error) {
	switch s {
	case "", "index":
		return AddressIndex, nil
	case "id":
		return AddressID, nil
	}
	return 0, fmt.Errorf("world: unknown addressing mode %q", s)
}

// Reason records why a body left the simulation.
type Reason int

const (
	ReasonCommand Reason = iota
	ReasonInstability
)

func (r Reason) String() string {
	if r == ReasonInstability {
		return "instability"
	}
	return "command"
}

// Removal describes one body leaving the sequence. Index is the position it
// held immediately before removal.
type Removal struct {
	Index  int
	ID     ecs.EntityID
	Reason Reason
}

// State is the simulation: an ordered body sequence, a parallel sequence of
// handles, and the constants the integrator runs with.
// Single-goroutine access only (owner loop).
type State struct {
	Meta               physics.Metadata
	TargetTimePerStep  time.Duration
	StabilityThreshold float64
	Addressing         Addressing

	bodies []physics.Body
	ids    []ecs.EntityID
	pool   *ecs.EntityPool
}

// NewState returns an empty simulation with default constants.
func NewState() *State {
	return &State{
		Meta:               physics.DefaultMetadata(),
		TargetTimePerStep:  10 * time.Millisecond,
		StabilityThreshold: physics.DefaultStabilityThreshold,
		bodies:             make([]physics.Body, 0, 16),
		ids:                make([]ecs.EntityID, 0, 16),
		pool:               ecs.NewEntityPool(),
	}
}

// Len returns the number of bodies.
func (s *State) Len() int { return len(s.bodies) }

// Body returns a copy of the body at index i.
func (s *State) Body(i int) physics.Body { return s.bodies[i] }

// ID returns the handle of the body at index i.
func (s *State) ID(i int) ecs.EntityID { return s.ids[i] }

// AddBody appends b and returns its index and new handle.
func (s *State) AddBody(b physics.Body) (int, ecs.EntityID) {
	id := s.pool.Create()
	s.bodies = append(s.bodies, b)
	s.ids = append(s.ids, id)
	return len(s.bodies) - 1, id
}

// RemoveAt removes the body at index i, shifting later bodies down by one.
func (s *State) RemoveAt(i int, reason Reason) Removal {
	r := Removal{Index: i, ID: s.ids[i], Reason: reason}
	s.pool.Destroy(r.ID)
	s.bodies = append(s.bodies[:i], s.bodies[i+1:]...)
	s.ids = append(s.ids[:i], s.ids[i+1:]...)
	return r
}

// Reset drops every body and releases their handles.
func (s *State) Reset() {
	for _, id := range s.ids {
		s.pool.Destroy(id)
	}
	s.bodies = s.bodies[:0]
	s.ids = s.ids[:0]
}

// Resolve maps a command target to a current index.
func (s *State) Resolve(target uint64) (int, error) {
	if s.Addressing == AddressID {
		id := ecs.EntityID(target)
		if !s.pool.Alive(id) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownBody, id)
		}
		for i, cur := range s.ids {
			if cur == id {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	if target >= uint64(len(s.bodies)) {
		return 0, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, target, len(s.bodies))
	}
	return int(target), nil
}

// PairwiseForce accumulates the mutual gravitational acceleration of the
// bodies at i and k. Coincident bodies produce NaN, which the stability
// check treats as unstable.
func (s *State) PairwiseForce(i, k int) {
	bi, bk := &s.bodies[i], &s.bodies[k]
	r := bk.Pos.Sub(bi.Pos)
	n := r.Norm()
	a := r.Scale(s.Meta.InteractionConstant / (n * n * n))
	bi.Acc = bi.Acc.Add(a.Scale(bk.Mass()))
	bk.Acc = bk.Acc.Sub(a.Scale(bi.Mass()))
}

// TimeStep advances the simulation by dt seconds of wall-clock time scaled
// by Meta.TimeScaling. Bodies whose acceleration is unstable are removed.
// The removals are returned highest index first, each carrying the index it
// held before the step.
func (s *State) TimeStep(dt float64) []Removal {
	n := len(s.bodies)
	for i := 0; i < n; i++ {
		for k := i + 1; k < n; k++ {
			s.PairwiseForce(i, k)
		}
	}

	step := dt * s.Meta.TimeScaling
	var unstable []int
	for i := range s.bodies {
		b := &s.bodies[i]
		if err := b.IntegrateVelocity(step, s.StabilityThreshold); err != nil {
			unstable = append(unstable, i)
			continue
		}
		b.IntegratePosition(step)
	}
	if len(unstable) == 0 {
		return nil
	}

	removed := make([]Removal, 0, len(unstable))
	for j := len(unstable) - 1; j >= 0; j-- {
		removed = append(removed, s.RemoveAt(unstable[j], ReasonInstability))
	}
	return removed
}

// Apply executes one mutation command. The returned removal is non-nil
// only for a successful Remove.
func (s *State) Apply(cmd command.Command) (*Removal, error) {
	switch cmd.Event {
	case command.Add:
		if cmd.Body == nil {
			return nil, fmt.Errorf("%w: Add", ErrMissingPayload)
		}
		s.AddBody(*cmd.Body)
		return nil, nil

	case command.Remove:
		i, err := s.Resolve(cmd.Target)
		if err != nil {
			return nil, err
		}
		r := s.RemoveAt(i, ReasonCommand)
		return &r, nil

	case command.Update:
		if cmd.Body == nil {
			return nil, fmt.Errorf("%w: Update", ErrMissingPayload)
		}
		i, err := s.Resolve(cmd.Target)
		if err != nil {
			return nil, err
		}
		s.bodies[i] = *cmd.Body
		return nil, nil

	case command.Meta:
		if cmd.Meta == nil {
			return nil, fmt.Errorf("%w: Meta", ErrMissingPayload)
		}
		if err := cmd.Meta.Validate(); err != nil {
			return nil, err
		}
		s.Meta = *cmd.Meta
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %v", command.ErrUnknownEvent, cmd.Event)
}

// Snapshot is an immutable copy of the simulation, safe to share between
// goroutines.
type Snapshot struct {
	Bodies []physics.Body
	IDs    []ecs.EntityID
	Meta   physics.Metadata
}

// Snapshot deep-copies the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Bodies: make([]physics.Body, len(s.bodies)),
		IDs:    make([]ecs.EntityID, len(s.ids)),
		Meta:   s.Meta,
	}
	copy(snap.Bodies, s.bodies)
	copy(snap.IDs, s.ids)
	return snap
}
