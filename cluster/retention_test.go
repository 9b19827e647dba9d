package cluster_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/cluster"
	"github.com/arcwatch/pulse/store/memory"
)

// countingPurger records sweep invocations.
type countingPurger struct {
	calls   atomic.Int32
	deleted int64
	err     error
}

func (p *countingPurger) PurgeCompletedBefore(_ context.Context, _ int64) (int64, error) {
	p.calls.Add(1)
	return p.deleted, p.err
}

func leaderElector(t *testing.T) *cluster.Elector {
	t.Helper()
	cache := memory.New()
	return cluster.NewElector(cache, lowID, cluster.RoleScheduler, nil)
}

func followerElector(t *testing.T) *cluster.Elector {
	t.Helper()
	cache := memory.New()
	cache.SetNodes([]cluster.Node{
		{ID: lowID, Role: cluster.RoleScheduler},
		{ID: highID, Role: cluster.RoleScheduler},
	})
	return cluster.NewElector(cache, highID, cluster.RoleScheduler, nil)
}

func TestNewRetentionJobRejectsBadSchedule(t *testing.T) {
	_, err := cluster.NewRetentionJob(leaderElector(t), &countingPurger{}, "not a cron expr", nil)
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRetentionLeaderSweeps(t *testing.T) {
	purger := &countingPurger{deleted: 3}
	job, err := cluster.NewRetentionJob(leaderElector(t), purger, "@every 10ms", nil,
		cluster.WithRetention(time.Hour),
	)
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for purger.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
}

func TestRetentionFollowerSkipsSweep(t *testing.T) {
	purger := &countingPurger{}
	job, err := cluster.NewRetentionJob(followerElector(t), purger, "@every 10ms", nil)
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if got := purger.calls.Load(); got != 0 {
		t.Errorf("follower swept %d times, want 0", got)
	}
}

func TestRetentionSweepErrorKeepsLoopAlive(t *testing.T) {
	purger := &countingPurger{err: errors.New("purge failed")}
	job, err := cluster.NewRetentionJob(leaderElector(t), purger, "@every 10ms", nil)
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for purger.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("loop stopped after %d sweeps", purger.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestRetentionPurgesCompletedTriggers(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	old := &pulse.Trigger{
		Org:       "acme",
		Module:    pulse.ModuleAlert,
		ModuleKey: "old",
		Status:    pulse.StatusCompleted,
		CreatedAt: 1000,
	}
	if err := store.Push(ctx, old); err != nil {
		t.Fatalf("Push: %v", err)
	}

	deleted, err := store.PurgeCompletedBefore(ctx, pulse.NowMicro())
	if err != nil {
		t.Fatalf("PurgeCompletedBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
