package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput  Phase = iota // 0: drain the command queue
	PhaseUpdate              // 1: integrate the simulation
	PhaseOutput              // 2: removal notices + snapshot publishing
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseUpdate:
		return "update"
	case PhaseOutput:
		return "output"
	}
	return "phase"
}

// System is one step of the owner loop. dt is the wall-clock time since
// the previous tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
