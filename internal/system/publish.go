package system

import (
	"time"

	"github.com/interstellare/server/internal/core/event"
	coresys "github.com/interstellare/server/internal/core/system"
	"github.com/interstellare/server/internal/stream"
	"github.com/interstellare/server/internal/world"
	"go.uber.org/zap"
)

// PublishSystem flushes the tick's events and publishes snapshots no more
// often than the state's TargetTimePerStep. Phase 2 (Output).
type PublishSystem struct {
	state   *world.State
	hub     *stream.Hub
	bus     *event.Bus
	withIDs bool
	now     func() time.Time
	last    time.Time
	log     *zap.Logger
}

func NewPublishSystem(state *world.State, hub *stream.Hub, bus *event.Bus, log *zap.Logger) *PublishSystem {
	s := &PublishSystem{
		state:   state,
		hub:     hub,
		bus:     bus,
		withIDs: state.Addressing == world.AddressID,
		now:     time.Now,
		log:     log,
	}
	s.last = s.now()
	event.Subscribe(bus, s.onRemoved)
	return s
}

func (s *PublishSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *PublishSystem) onRemoved(ev event.BodyRemoved) {
	r := world.Removal{Index: ev.Index, ID: ev.ID}
	if err := s.hub.Publish(stream.RemovedEvent(r, s.withIDs)); err != nil {
		s.log.Debug("removal notice not published", zap.Error(err))
	}
}

func (s *PublishSystem) Update(_ time.Duration) {
	s.bus.Flush()

	now := s.now()
	if now.Sub(s.last) <= s.state.TargetTimePerStep {
		return
	}
	s.last = now
	if err := s.hub.Publish(stream.SimulationEvent(s.state.Snapshot(), s.withIDs)); err != nil {
		s.log.Debug("snapshot not published", zap.Error(err))
	}
}

// logEvents attaches log lines to the owner's events.
func logEvents(bus *event.Bus, log *zap.Logger) {
	event.Subscribe(bus, func(ev event.BodyRemoved) {
		log.Info("body removed",
			zap.Int("index", ev.Index),
			zap.Stringer("id", ev.ID),
			zap.String("reason", ev.Reason))
	})
	event.Subscribe(bus, func(ev event.BodyAdded) {
		log.Debug("body added", zap.Int("index", ev.Index), zap.Stringer("id", ev.ID))
	})
	event.Subscribe(bus, func(ev event.MetadataChanged) {
		log.Info("metadata replaced",
			zap.Float64("interaction_constant", ev.InteractionConstant),
			zap.Float64("time_scaling", ev.TimeScaling))
	})
	event.Subscribe(bus, func(ev event.CommandRejected) {
		log.Warn("command rejected", zap.String("event", ev.Event), zap.Error(ev.Err))
	})
}
