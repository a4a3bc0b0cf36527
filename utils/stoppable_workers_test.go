package utils

import (
	"context"
	"testing"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	started := make(chan struct{}, 2)
	stopped := atomic.NewInt32(0)
	worker := func(ctx context.Context) {
		started <- struct{}{}
		<-ctx.Done()
		stopped.Inc()
	}

	sw := NewStoppableWorkers(worker, worker)
	<-started
	<-started
	sw.Stop()
	test.That(t, stopped.Load(), test.ShouldEqual, int32(2))
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	// Workers added after Stop never run.
	sw.AddWorkers(func(context.Context) { t.Fatal("should not run") })
}

func TestStoppableWorkersParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sw := NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()
	<-done
	sw.Stop()
}
