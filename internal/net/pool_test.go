package net

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

func TestNewPool_ZeroSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		p, err := NewPool(size, 4, zap.NewNop())
		if !errors.Is(err, ErrPoolSize) {
			t.Errorf("NewPool(%d) err = %v, want ErrPoolSize", size, err)
		}
		if p != nil {
			t.Errorf("NewPool(%d) returned a pool", size)
		}
	}
}

func TestPool_RunsJobs(t *testing.T) {
	g := NewWithT(t)
	p, err := NewPool(4, 16, zap.NewNop())
	g.Expect(err).NotTo(HaveOccurred())

	var n atomic.Int64
	for i := 0; i < 50; i++ {
		g.Expect(p.Submit(context.Background(), func() { n.Add(1) })).To(Succeed())
	}
	p.Close()
	g.Expect(n.Load()).To(Equal(int64(50)))
}

func TestPool_CloseWaitsForRunningJobs(t *testing.T) {
	g := NewWithT(t)
	p, _ := NewPool(2, 0, zap.NewNop())

	release := make(chan struct{})
	var finished atomic.Int64
	for i := 0; i < 2; i++ {
		g.Expect(p.Submit(context.Background(), func() {
			<-release
			finished.Add(1)
		})).To(Succeed())
	}
	g.Eventually(p.Busy).Should(Equal(2))

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	g.Consistently(closed, 50*time.Millisecond).ShouldNot(BeClosed())

	close(release)
	g.Eventually(closed).Should(BeClosed())
	g.Expect(finished.Load()).To(Equal(int64(2)))
}

func TestPool_TrySubmitFull(t *testing.T) {
	g := NewWithT(t)
	p, _ := NewPool(1, 1, zap.NewNop())
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Close()
	}()

	g.Expect(p.TrySubmit(func() { <-release })).To(Succeed())
	g.Eventually(p.Busy).Should(Equal(1))
	g.Expect(p.TrySubmit(func() {})).To(Succeed())
	g.Expect(p.TrySubmit(func() {})).To(MatchError(ErrPoolFull))
	g.Expect(p.Queued()).To(Equal(1))
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	g := NewWithT(t)
	p, _ := NewPool(1, 0, zap.NewNop())
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Close()
	}()

	g.Expect(p.Submit(context.Background(), func() { <-release })).To(Succeed())
	g.Eventually(p.Busy).Should(Equal(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	g.Expect(p.Submit(ctx, func() {})).To(MatchError(context.DeadlineExceeded))
}

func TestPool_RecoversPanics(t *testing.T) {
	g := NewWithT(t)
	p, _ := NewPool(1, 4, zap.NewNop())

	var ran atomic.Bool
	g.Expect(p.TrySubmit(func() { panic("bad connection") })).To(Succeed())
	g.Expect(p.TrySubmit(func() { ran.Store(true) })).To(Succeed())
	p.Close()

	g.Expect(ran.Load()).To(BeTrue())
}

func TestPool_SubmitAfterClose(t *testing.T) {
	g := NewWithT(t)
	p, _ := NewPool(2, 2, zap.NewNop())
	p.Close()
	p.Close()

	g.Expect(p.TrySubmit(func() {})).To(MatchError(ErrPoolClosed))
	g.Expect(p.Submit(context.Background(), func() {})).To(MatchError(ErrPoolClosed))
}

func TestPool_TrySubmitAdmitsWhileWorkersIdle(t *testing.T) {
	g := NewWithT(t)
	for i := 0; i < 50; i++ {
		p, _ := NewPool(2, 0, zap.NewNop())
		release := make(chan struct{})

		// Fresh workers may not have reached their receive yet.
		g.Expect(p.TrySubmit(func() { <-release })).To(Succeed())
		g.Expect(p.TrySubmit(func() { <-release })).To(Succeed())
		g.Expect(p.TrySubmit(func() {})).To(MatchError(ErrPoolFull))

		close(release)
		p.Close()
	}
}

func TestPool_SlotFreedAfterJob(t *testing.T) {
	g := NewWithT(t)
	p, _ := NewPool(1, 0, zap.NewNop())
	defer p.Close()

	for i := 0; i < 20; i++ {
		done := make(chan struct{})
		g.Eventually(func() error {
			return p.TrySubmit(func() { close(done) })
		}).Should(Succeed())
		g.Eventually(done).Should(BeClosed())
	}
}
