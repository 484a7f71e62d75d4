package system

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/interstellare/server/internal/core/event"
	coresys "github.com/interstellare/server/internal/core/system"
	"github.com/interstellare/server/internal/stream"
	"github.com/interstellare/server/internal/world"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Enqueue when the owner is not keeping up.
var ErrQueueFull = errors.New("system: command queue full")

// LoopConfig sizes the owner loop.
type LoopConfig struct {
	CommandQueueSize   int
	MaxCommandsPerTick int
	// TickInterval is slept between iterations; zero runs the loop flat out.
	TickInterval time.Duration
}

// Loop is the simulation owner. Run must be called from exactly one
// goroutine; that goroutine is the only one touching the state. Other
// goroutines interact through Enqueue and the hub.
type Loop struct {
	state    *world.State
	bus      *event.Bus
	runner   *coresys.Runner
	commands *CommandSystem
	publish  *PublishSystem
	cfg      LoopConfig
	log      *zap.Logger

	inMu     sync.RWMutex
	in       chan []byte
	inClosed bool
}

func NewLoop(state *world.State, hub *stream.Hub, cfg LoopConfig, log *zap.Logger) *Loop {
	if cfg.CommandQueueSize < 1 {
		cfg.CommandQueueSize = 1
	}
	bus := event.NewBus()
	in := make(chan []byte, cfg.CommandQueueSize)

	l := &Loop{
		state:    state,
		bus:      bus,
		runner:   coresys.NewRunner(),
		commands: NewCommandSystem(in, state, bus, cfg.MaxCommandsPerTick, log),
		publish:  NewPublishSystem(state, hub, bus, log),
		cfg:      cfg,
		log:      log,
		in:       in,
	}
	logEvents(bus, log)

	l.runner.Register(l.commands)
	l.runner.Register(NewPhysicsSystem(state, bus))
	l.runner.Register(l.publish)
	return l
}

// Enqueue hands a raw command envelope to the owner. It never blocks.
func (l *Loop) Enqueue(raw []byte) error {
	l.inMu.RLock()
	defer l.inMu.RUnlock()
	if l.inClosed {
		return ErrInputDisconnected
	}
	select {
	case l.in <- raw:
		return nil
	default:
		return ErrQueueFull
	}
}

// CloseInput disconnects the command channel. The owner stops once it has
// drained what was already queued.
func (l *Loop) CloseInput() {
	l.inMu.Lock()
	defer l.inMu.Unlock()
	if !l.inClosed {
		l.inClosed = true
		close(l.in)
	}
}

// Tick runs one iteration of the owner: drain commands, step the physics,
// publish.
func (l *Loop) Tick(dt time.Duration) error {
	l.runner.Tick(dt)
	return l.commands.Err()
}

// Run drives the owner until ctx is cancelled or the input disconnects.
func (l *Loop) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if l.cfg.TickInterval > 0 {
		t := time.NewTicker(l.cfg.TickInterval)
		defer t.Stop()
		tick = t.C
	}

	l.log.Info("simulation started",
		zap.Int("bodies", l.state.Len()),
		zap.Stringer("addressing", l.state.Addressing),
		zap.Duration("target_time_per_step", l.state.TargetTimePerStep))

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("simulation stopped", zap.Int("bodies", l.state.Len()))
			return nil
		default:
		}

		now := time.Now()
		if err := l.Tick(now.Sub(last)); err != nil {
			l.log.Error("simulation ended", zap.Error(err))
			return err
		}
		last = now

		if tick != nil {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}
	}
}
