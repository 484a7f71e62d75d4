package world

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/interstellare/server/internal/command"
	"github.com/interstellare/server/internal/physics"
)

func TestPairwiseForce_ThirdLaw(t *testing.T) {
	tests := []struct {
		name string
		a, b physics.Body
	}{
		{"sun earth", Sun(), Earth()},
		{"equal masses", physics.NewBody(1e10, 1000).WithPosition(physics.Vec3{X: -5}),
			physics.NewBody(1e10, 1000).WithPosition(physics.Vec3{X: 5, Y: 3, Z: -1})},
		{"lopsided", physics.NewBody(1e3, 10).WithPosition(physics.Vec3{Y: 1e6}),
			physics.NewBody(1e25, 5000).WithPosition(physics.Vec3{Z: -1e7})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.Seed([]physics.Body{tt.a, tt.b})
			s.PairwiseForce(0, 1)

			a, b := s.Body(0), s.Body(1)
			fa := a.Acc.Scale(a.Mass())
			fb := b.Acc.Scale(b.Mass())
			sum := fa.Add(fb).Norm()
			if sum > 1e-9*fa.Norm() {
				t.Errorf("m1*a1 + m2*a2 = %g, want ~0 (|F| = %g)", sum, fa.Norm())
			}
			if fa.Norm() == 0 {
				t.Error("no force accumulated")
			}
		})
	}
}

func TestTimeStep_SunEarth(t *testing.T) {
	s := NewState()
	s.Seed([]physics.Body{Sun(), Earth()})
	before := s.Body(1)

	dt := 0.01
	if removed := s.TimeStep(dt); len(removed) != 0 {
		t.Fatalf("removed = %v, want none", removed)
	}
	step := dt * s.Meta.TimeScaling
	after := s.Body(1)

	if !(after.Vel.X < 0) {
		t.Errorf("vx = %g, want pulled toward the sun (< 0)", after.Vel.X)
	}
	if after.Vel.Y != before.Vel.Y || after.Vel.Z != 0 {
		t.Errorf("velocity = %v, want only x to change", after.Vel)
	}
	want := before.Pos.Add(after.Vel.Scale(step))
	if after.Pos != want {
		t.Errorf("position = %v, want %v", after.Pos, want)
	}
	if after.Acc != (physics.Vec3{}) {
		t.Errorf("acceleration not consumed: %v", after.Acc)
	}

	g := s.Meta.InteractionConstant * Sun().Mass() / (before.Pos.X * before.Pos.X)
	if rel := math.Abs(-after.Vel.X-g*step) / (g * step); rel > 1e-9 {
		t.Errorf("vx = %g, want %g", after.Vel.X, -g*step)
	}
}

func TestTimeStep_RemovesUnstableBody(t *testing.T) {
	s := NewState()
	s.Seed([]physics.Body{
		physics.NewBody(1e30, 1000),
		physics.NewBody(1, 1).WithPosition(physics.Vec3{X: 1}),
		physics.NewBody(1, 1).WithPosition(physics.Vec3{X: 1e12}),
	})
	keep := s.ID(2)
	lost := s.ID(1)
	before := []physics.Body{s.Body(0), s.Body(1), s.Body(2)}

	dt := 0.01
	removed := s.TimeStep(dt)

	if len(removed) != 1 {
		t.Fatalf("removed = %v, want exactly one", removed)
	}
	if r := removed[0]; r.Index != 1 || r.ID != lost || r.Reason != ReasonInstability {
		t.Errorf("removal = %+v, want index 1 of %s by instability", r, lost)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if s.ID(1) != keep {
		t.Errorf("index 1 now holds %s, want %s", s.ID(1), keep)
	}

	// Survivors still feel the removed body: forces accumulate before the
	// stability check.
	step := dt * s.Meta.TimeScaling
	for _, c := range []struct{ was, now int }{{0, 0}, {2, 1}} {
		var acc physics.Vec3
		for k, o := range before {
			if k == c.was {
				continue
			}
			r := o.Pos.Sub(before[c.was].Pos)
			n := r.Norm()
			acc = acc.Add(r.Scale(s.Meta.InteractionConstant * o.Mass() / (n * n * n)))
		}
		wantVel := before[c.was].Vel.Add(acc.Scale(step))
		wantPos := before[c.was].Pos.Add(wantVel.Scale(step))

		got := s.Body(c.now)
		if d := got.Vel.Sub(wantVel).Norm(); d > 1e-9*wantVel.Norm() {
			t.Errorf("body %d velocity = %v, want %v", c.was, got.Vel, wantVel)
		}
		if d := got.Pos.Sub(wantPos).Norm(); d > 1e-9*math.Max(wantPos.Norm(), wantVel.Norm()*step) {
			t.Errorf("body %d position = %v, want %v", c.was, got.Pos, wantPos)
		}
		if got.Acc != (physics.Vec3{}) {
			t.Errorf("body %d acceleration not consumed: %v", c.was, got.Acc)
		}
	}
}

func TestTimeStep_RemovesHighestIndexFirst(t *testing.T) {
	s := NewState()
	s.Seed([]physics.Body{
		physics.NewBody(1, 1).WithPosition(physics.Vec3{X: 1e12}),
		physics.NewBody(1, 1),
		physics.NewBody(1, 1).WithPosition(physics.Vec3{X: -1e12}),
		physics.NewBody(1, 1),
	})

	removed := s.TimeStep(0.01)

	var idx []int
	for _, r := range removed {
		idx = append(idx, r.Index)
	}
	if len(idx) != 2 || idx[0] != 3 || idx[1] != 1 {
		t.Fatalf("removed indices = %v, want [3 1]", idx)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestApply_IndexAddressing(t *testing.T) {
	g := NewWithT(t)
	seed := SolarSystem()
	s := NewState()
	s.Seed(seed)

	_, err := s.Apply(command.NewAdd(physics.NewBody(1e20, 2000)))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Len()).To(Equal(len(seed) + 1))
	g.Expect(s.Body(len(seed)).Mass()).To(Equal(1e20))

	r, err := s.Apply(command.NewRemove(3))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(r).NotTo(BeNil())
	g.Expect(r.Index).To(Equal(3))
	g.Expect(r.Reason).To(Equal(ReasonCommand))
	g.Expect(s.Len()).To(Equal(len(seed)))
	for i := 3; i < len(seed)-1; i++ {
		g.Expect(s.Body(i)).To(Equal(seed[i+1]), "index %d", i)
	}

	moved := physics.NewBody(5, 5).WithPosition(physics.Vec3{Z: 1})
	_, err = s.Apply(command.NewUpdate(0, moved))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Body(0)).To(Equal(moved))

	meta := physics.Metadata{InteractionConstant: 1, TimeScaling: 0}
	_, err = s.Apply(command.NewMeta(meta))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Meta).To(Equal(meta))
}

func TestApply_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cmd  command.Command
		want error
	}{
		{"add without body", command.Command{Event: command.Add}, ErrMissingPayload},
		{"update without body", command.Command{Event: command.Update, Target: 0}, ErrMissingPayload},
		{"meta without metadata", command.Command{Event: command.Meta}, ErrMissingPayload},
		{"remove out of range", command.NewRemove(2), ErrIndexOutOfRange},
		{"update out of range", command.NewUpdate(7, Sun()), ErrIndexOutOfRange},
		{"invalid metadata", command.NewMeta(physics.Metadata{InteractionConstant: math.NaN()}), physics.ErrInvalidMetadata},
		{"unknown event", command.Command{Event: 42}, command.ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.Seed([]physics.Body{Sun(), Earth()})
			meta := s.Meta

			r, err := s.Apply(tt.cmd)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if r != nil {
				t.Errorf("removal = %+v, want nil", r)
			}
			if s.Len() != 2 || s.Meta != meta {
				t.Errorf("state changed by rejected command")
			}
		})
	}
}

func TestApply_IDAddressing(t *testing.T) {
	g := NewWithT(t)
	s := NewState()
	s.Addressing = AddressID
	s.Seed([]physics.Body{Sun(), Earth()})

	sun, earth := s.ID(0), s.ID(1)

	r, err := s.Apply(command.NewRemove(uint64(sun)))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(r.Index).To(Equal(0))
	g.Expect(r.ID).To(Equal(sun))
	g.Expect(s.ID(0)).To(Equal(earth))

	// The freed slot is reused with a new generation; the old handle stays dead.
	_, err = s.Apply(command.NewAdd(Sun()))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.ID(1).Index()).To(Equal(sun.Index()))
	g.Expect(s.ID(1)).NotTo(Equal(sun))

	_, err = s.Apply(command.NewRemove(uint64(sun)))
	g.Expect(errors.Is(err, ErrUnknownBody)).To(BeTrue())
	_, err = s.Apply(command.NewUpdate(uint64(sun), Earth()))
	g.Expect(errors.Is(err, ErrUnknownBody)).To(BeTrue())
	g.Expect(s.Len()).To(Equal(2))

	moved := Earth().WithVelocity(physics.Vec3{})
	_, err = s.Apply(command.NewUpdate(uint64(earth), moved))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Body(0)).To(Equal(moved))
	g.Expect(s.ID(0)).To(Equal(earth))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	g := NewWithT(t)
	s := NewState()
	s.Seed(SolarSystem())

	snap := s.Snapshot()
	s.TimeStep(0.01)
	s.RemoveAt(0, ReasonCommand)

	g.Expect(snap.Bodies).To(Equal(SolarSystem()))
	g.Expect(snap.IDs).To(HaveLen(10))
	g.Expect(snap.Meta).To(Equal(physics.DefaultMetadata()))
}

func TestParseAddressing(t *testing.T) {
	for in, want := range map[string]Addressing{"": AddressIndex, "index": AddressIndex, "id": AddressID} {
		got, err := ParseAddressing(in)
		if err != nil || got != want {
			t.Errorf("ParseAddressing(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseAddressing("handle"); err == nil {
		t.Error("ParseAddressing(handle) succeeded")
	}
}
