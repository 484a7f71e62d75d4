package system

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/interstellare/server/internal/command"
	"github.com/interstellare/server/internal/physics"
	"github.com/interstellare/server/internal/stream"
	"github.com/interstellare/server/internal/world"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLoop(t *testing.T, cfg LoopConfig, bodies ...physics.Body) (*Loop, *world.State, *stream.Subscription, *fakeClock) {
	t.Helper()
	state := world.NewState()
	state.Seed(bodies)
	hub := stream.NewHub(stream.Broadcast, 64, zap.NewNop())
	sub, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	t.Cleanup(hub.Close)

	if cfg.CommandQueueSize == 0 {
		cfg.CommandQueueSize = 16
	}
	l := NewLoop(state, hub, cfg, zap.NewNop())
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l.publish.now = clock.now
	l.publish.last = clock.now()
	return l, state, sub, clock
}

func next(t *testing.T, sub *stream.Subscription) stream.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	default:
		t.Fatal("no event queued")
	}
	return stream.Event{}
}

func expectNone(t *testing.T, sub *stream.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected %s event: %s", ev.Kind, ev.Data)
	default:
	}
}

func TestLoop_AppliesCommands(t *testing.T) {
	g := NewWithT(t)
	l, state, _, _ := newTestLoop(t, LoopConfig{}, world.Sun(), world.Earth())

	probe := physics.NewBody(1e20, 2000).WithPosition(physics.Vec3{Y: world.AU})
	g.Expect(l.Enqueue(command.Marshal(command.NewAdd(probe)))).To(Succeed())
	g.Expect(l.Enqueue(command.Marshal(command.NewMeta(physics.Metadata{InteractionConstant: physics.GravitationalConstant, TimeScaling: 0})))).To(Succeed())
	g.Expect(l.Tick(0)).To(Succeed())

	g.Expect(state.Len()).To(Equal(3))
	g.Expect(state.Body(2).Mass()).To(Equal(1e20))
	g.Expect(state.Meta.TimeScaling).To(BeZero())
}

func TestLoop_RejectedCommandDoesNotStopLoop(t *testing.T) {
	g := NewWithT(t)
	l, state, _, _ := newTestLoop(t, LoopConfig{}, world.Sun())

	for _, raw := range []string{
		`garbage`,
		`{"event_type": "Add"}`,
		`{"event_type": "Remove", "body": {"9": 9}}`,
		`{"event_type": "Meta", "metadata": {"interaction_constant": 1, "time_scaling": -1}}`,
	} {
		g.Expect(l.Enqueue([]byte(raw))).To(Succeed())
	}
	g.Expect(l.Enqueue(command.Marshal(command.NewAdd(world.Earth())))).To(Succeed())

	g.Expect(l.Tick(0)).To(Succeed())
	g.Expect(state.Len()).To(Equal(2))
	g.Expect(state.Meta).To(Equal(physics.DefaultMetadata()))
}

func TestLoop_RemovalNoticePrecedesSnapshot(t *testing.T) {
	g := NewWithT(t)
	l, _, sub, clock := newTestLoop(t, LoopConfig{}, world.Sun(), world.Earth())

	g.Expect(l.Enqueue(command.Marshal(command.NewRemove(0)))).To(Succeed())
	clock.advance(time.Second)
	g.Expect(l.Tick(0)).To(Succeed())

	removed := next(t, sub)
	g.Expect(removed.Kind).To(Equal(stream.KindRemoved))
	g.Expect(string(removed.Data)).To(Equal(`{"index":0}`))

	snap := next(t, sub)
	g.Expect(snap.Kind).To(Equal(stream.KindSimulation))
	g.Expect(string(snap.Data)).To(HavePrefix(`{"simstate": [` + world.Earth().String() + `]`))
	expectNone(t, sub)
}

func TestLoop_InstabilityIsAnnounced(t *testing.T) {
	g := NewWithT(t)
	l, state, sub, _ := newTestLoop(t, LoopConfig{},
		physics.NewBody(1e30, 1000),
		physics.NewBody(1, 1).WithPosition(physics.Vec3{X: 1}),
	)

	g.Expect(l.Tick(10 * time.Millisecond)).To(Succeed())
	g.Expect(state.Len()).To(Equal(1))

	ev := next(t, sub)
	g.Expect(ev.Kind).To(Equal(stream.KindRemoved))
	g.Expect(string(ev.Data)).To(Equal(`{"index":1}`))
}

func TestLoop_SnapshotThrottle(t *testing.T) {
	l, state, sub, clock := newTestLoop(t, LoopConfig{}, world.Sun())
	state.TargetTimePerStep = 10 * time.Millisecond

	clock.advance(5 * time.Millisecond)
	l.Tick(0)
	expectNone(t, sub)

	clock.advance(5 * time.Millisecond)
	l.Tick(0)
	expectNone(t, sub)

	clock.advance(time.Millisecond)
	l.Tick(0)
	if ev := next(t, sub); ev.Kind != stream.KindSimulation {
		t.Fatalf("got %s, want simulation", ev.Kind)
	}

	clock.advance(3 * time.Millisecond)
	l.Tick(0)
	expectNone(t, sub)
}

func TestLoop_IDAddressingPayloads(t *testing.T) {
	g := NewWithT(t)
	state := world.NewState()
	state.Addressing = world.AddressID
	state.Seed([]physics.Body{world.Sun(), world.Earth()})
	hub := stream.NewHub(stream.Broadcast, 8, zap.NewNop())
	defer hub.Close()
	sub, _ := hub.Subscribe()

	l := NewLoop(state, hub, LoopConfig{CommandQueueSize: 4}, zap.NewNop())
	l.publish.last = time.Time{}
	earth := state.ID(1)

	g.Expect(l.Enqueue(command.Marshal(command.NewRemove(uint64(earth))))).To(Succeed())
	g.Expect(l.Tick(0)).To(Succeed())

	g.Expect(string(next(t, sub).Data)).To(Equal(`{"index":1,"id":` + earth.String() + `}`))
	g.Expect(string(next(t, sub).Data)).To(ContainSubstring(`"ids": [` + state.ID(0).String() + `]`))
}

func TestLoop_MaxCommandsPerTick(t *testing.T) {
	g := NewWithT(t)
	l, state, _, _ := newTestLoop(t, LoopConfig{MaxCommandsPerTick: 2})

	for i := 0; i < 3; i++ {
		star := world.Sun().WithPosition(physics.Vec3{X: float64(i) * world.AU})
		g.Expect(l.Enqueue(command.Marshal(command.NewAdd(star)))).To(Succeed())
	}
	l.Tick(0)
	g.Expect(state.Len()).To(Equal(2))
	l.Tick(0)
	g.Expect(state.Len()).To(Equal(3))
}

func TestLoop_EnqueueFull(t *testing.T) {
	l, _, _, _ := newTestLoop(t, LoopConfig{CommandQueueSize: 1})

	if err := l.Enqueue([]byte(`{}`)); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := l.Enqueue([]byte(`{}`)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Enqueue = %v, want ErrQueueFull", err)
	}
}

func TestLoop_InputDisconnectIsFatal(t *testing.T) {
	g := NewWithT(t)
	l, state, _, _ := newTestLoop(t, LoopConfig{})

	g.Expect(l.Enqueue(command.Marshal(command.NewAdd(world.Sun())))).To(Succeed())
	l.CloseInput()
	l.CloseInput()

	g.Expect(l.Enqueue([]byte(`{}`))).To(MatchError(ErrInputDisconnected))
	g.Expect(l.Run(context.Background())).To(MatchError(ErrInputDisconnected))
	g.Expect(state.Len()).To(Equal(1))
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	g := NewWithT(t)
	state := world.NewState()
	state.Seed(world.SolarSystem())
	state.TargetTimePerStep = time.Millisecond
	hub := stream.NewHub(stream.Broadcast, 8, zap.NewNop())
	defer hub.Close()
	sub, _ := hub.Subscribe()

	l := NewLoop(state, hub, LoopConfig{CommandQueueSize: 4, TickInterval: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	g.Eventually(sub.Events()).WithTimeout(2 * time.Second).Should(Receive())
	cancel()
	g.Eventually(done).WithTimeout(2 * time.Second).Should(Receive(BeNil()))
}
