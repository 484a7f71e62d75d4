package system

import (
	"errors"
	"fmt"
	"time"

	"github.com/interstellare/server/internal/command"
	"github.com/interstellare/server/internal/core/event"
	coresys "github.com/interstellare/server/internal/core/system"
	"github.com/interstellare/server/internal/world"
	"go.uber.org/zap"
)

// ErrInputDisconnected is returned by the owner loop when the command
// channel is closed. The simulation cannot be steered any more and stops.
var ErrInputDisconnected = errors.New("system: command input disconnected")

// CommandSystem drains raw command envelopes and applies them to the
// simulation. Phase 0 (Input).
type CommandSystem struct {
	in         <-chan []byte
	state      *world.State
	bus        *event.Bus
	maxPerTick int
	err        error
	log        *zap.Logger
}

func NewCommandSystem(in <-chan []byte, state *world.State, bus *event.Bus, maxPerTick int, log *zap.Logger) *CommandSystem {
	return &CommandSystem{
		in:         in,
		state:      state,
		bus:        bus,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *CommandSystem) Phase() coresys.Phase { return coresys.PhaseInput }

// Err reports a fatal input condition observed during the last Update.
func (s *CommandSystem) Err() error { return s.err }

func (s *CommandSystem) Update(_ time.Duration) {
	if s.err != nil {
		return
	}
	for i := 0; s.maxPerTick <= 0 || i < s.maxPerTick; i++ {
		select {
		case raw, ok := <-s.in:
			if !ok {
				s.err = ErrInputDisconnected
				return
			}
			s.handle(raw)
		default:
			return
		}
	}
}

// handle applies one envelope. A malformed or inapplicable command is
// rejected on its own; it never stops the loop.
func (s *CommandSystem) handle(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("command panicked", zap.Any("panic", r), zap.ByteString("raw", raw))
			event.Emit(s.bus, event.CommandRejected{Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	cmd, err := command.Parse(raw)
	if err != nil {
		event.Emit(s.bus, event.CommandRejected{Err: err})
		return
	}
	removed, err := s.state.Apply(cmd)
	if err != nil {
		event.Emit(s.bus, event.CommandRejected{Event: cmd.Event.String(), Err: err})
		return
	}

	switch cmd.Event {
	case command.Add:
		i := s.state.Len() - 1
		event.Emit(s.bus, event.BodyAdded{Index: i, ID: s.state.ID(i)})
	case command.Remove:
		event.Emit(s.bus, event.BodyRemoved{Index: removed.Index, ID: removed.ID, Reason: removed.Reason.String()})
	case command.Meta:
		event.Emit(s.bus, event.MetadataChanged{
			InteractionConstant: s.state.Meta.InteractionConstant,
			TimeScaling:         s.state.Meta.TimeScaling,
		})
	}
}
