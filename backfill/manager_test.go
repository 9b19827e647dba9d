package backfill_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/backfill"
	"github.com/arcwatch/pulse/id"
	"github.com/arcwatch/pulse/store/memory"
)

// fakePipelines resolves a fixed set of pipelines.
type fakePipelines struct {
	pipelines map[string]*backfill.Pipeline
}

func (f *fakePipelines) GetPipeline(_ context.Context, _, pipelineID string) (*backfill.Pipeline, error) {
	p, ok := f.pipelines[pipelineID]
	if !ok {
		return nil, errors.New("pipeline not found")
	}
	return p, nil
}

// fakeCanceler records cancelled trace ids.
type fakeCanceler struct {
	mu        sync.Mutex
	cancelled []string
}

func (f *fakeCanceler) CancelQuery(_ context.Context, traceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, traceID)
	return nil
}

func newTestManager(t *testing.T) (*backfill.Manager, *memory.Store, *fakeCanceler) {
	t.Helper()

	store := memory.New()
	pipelines := &fakePipelines{pipelines: map[string]*backfill.Pipeline{
		"pipe-1":      {ID: "pipe-1", Name: "Nginx Access Logs", Scheduled: true},
		"pipe-stream": {ID: "pipe-stream", Name: "Realtime Stream", Scheduled: false},
	}}
	canceler := &fakeCanceler{}

	m := backfill.NewManager(store, store, pipelines, nil,
		backfill.WithQueryCanceler(canceler),
	)
	return m, store, canceler
}

func validRequest() backfill.Request {
	now := pulse.NowMicro()
	return backfill.Request{
		StartTime:          now - 24*time.Hour.Microseconds(),
		EndTime:            now - time.Hour.Microseconds(),
		ChunkPeriodMinutes: 60,
	}
}

func mustCreate(t *testing.T, m *backfill.Manager) *backfill.JobStatus {
	t.Helper()
	status, err := m.Create(context.Background(), "acme", "pipe-1", validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return status
}

func mustJobID(t *testing.T, status *backfill.JobStatus) id.BackfillJobID {
	t.Helper()
	jobID, err := id.ParseBackfillJobID(status.JobID)
	if err != nil {
		t.Fatalf("parse job id %q: %v", status.JobID, err)
	}
	return jobID
}

func TestCreateStartsWaiting(t *testing.T) {
	m, store, _ := newTestManager(t)
	status := mustCreate(t, m)

	if status.Status != string(pulse.StatusWaiting) {
		t.Errorf("status = %q, want waiting", status.Status)
	}
	if status.ProgressPercent != 0 {
		t.Errorf("progress = %v, want 0", status.ProgressPercent)
	}
	if status.CurrentPosition != status.StartTime {
		t.Errorf("cursor = %d, want start %d", status.CurrentPosition, status.StartTime)
	}
	if status.DeletionStatus.State != pulse.DeletionNotRequired {
		t.Errorf("deletion state = %q, want not_required", status.DeletionStatus.State)
	}

	// The trigger is scheduled immediately, so a pull should lease it.
	got, err := store.Pull(context.Background(), 10, time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(got) != 1 || got[0].Module != pulse.ModuleBackfill {
		t.Fatalf("expected the new backfill trigger to be pullable, got %+v", got)
	}
}

func TestCreateWithDeletionPhase(t *testing.T) {
	m, _, _ := newTestManager(t)

	req := validRequest()
	req.DeleteBeforeBackfill = true
	status, err := m.Create(context.Background(), "acme", "pipe-1", req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status.DeletionStatus.State != pulse.DeletionPending {
		t.Errorf("deletion state = %q, want pending", status.DeletionStatus.State)
	}
	if status.ProgressPercent != 0 {
		t.Errorf("progress = %v, want 0 while deletion pending", status.ProgressPercent)
	}
}

func TestCreateValidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	now := pulse.NowMicro()

	tests := []struct {
		name     string
		pipeline string
		req      backfill.Request
		wantErr  error
	}{
		{
			name:     "unscheduled pipeline",
			pipeline: "pipe-stream",
			req:      validRequest(),
			wantErr:  pulse.ErrPipelineNotScheduled,
		},
		{
			name:     "start after end",
			pipeline: "pipe-1",
			req:      backfill.Request{StartTime: now - 100, EndTime: now - 200},
			wantErr:  pulse.ErrInvalidTimeRange,
		},
		{
			name:     "empty range",
			pipeline: "pipe-1",
			req:      backfill.Request{StartTime: now - 100, EndTime: now - 100},
			wantErr:  pulse.ErrInvalidTimeRange,
		},
		{
			name:     "end in the future",
			pipeline: "pipe-1",
			req:      backfill.Request{StartTime: now - 100, EndTime: now + time.Hour.Microseconds()},
			wantErr:  pulse.ErrEndTimeInFuture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, "acme", tt.pipeline, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateDefaultsChunkPeriod(t *testing.T) {
	m, _, _ := newTestManager(t)

	req := validRequest()
	req.ChunkPeriodMinutes = 0
	status, err := m.Create(context.Background(), "acme", "pipe-1", req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 23 hours at the default 60-minute chunk period.
	if status.ChunksTotal != 23 {
		t.Errorf("ChunksTotal = %d, want 23", status.ChunksTotal)
	}
}

func TestCancelAndResume(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	status := mustCreate(t, m)
	jobID := mustJobID(t, status)

	if err := m.Cancel(ctx, "acme", jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, err := m.Get(ctx, "acme", jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != string(pulse.StatusPaused) {
		t.Errorf("status = %q, want paused", got.Status)
	}
	if got.CurrentPosition != status.CurrentPosition {
		t.Error("pause must not move the progress cursor")
	}

	// Cancel on a paused job is a no-op.
	if err := m.Cancel(ctx, "acme", jobID); err != nil {
		t.Errorf("Cancel on paused job: %v", err)
	}

	if err := m.Resume(ctx, "acme", jobID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	got, err = m.Get(ctx, "acme", jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != string(pulse.StatusWaiting) {
		t.Errorf("status after resume = %q, want waiting", got.Status)
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	status := mustCreate(t, m)
	jobID := mustJobID(t, status)

	if err := m.Resume(ctx, "acme", jobID); !errors.Is(err, pulse.ErrJobNotPaused) {
		t.Errorf("Resume on waiting job = %v, want ErrJobNotPaused", err)
	}
}

func TestCancelAndResumeCompletedJob(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	status := mustCreate(t, m)
	jobID := mustJobID(t, status)

	key := backfill.ModuleKey("acme", "pipe-1", jobID)
	err := store.UpdateStatus(ctx, "acme", pulse.ModuleBackfill, key, pulse.StatusCompleted, 0, nil)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if err := m.Cancel(ctx, "acme", jobID); !errors.Is(err, pulse.ErrJobCompleted) {
		t.Errorf("Cancel on completed job = %v, want ErrJobCompleted", err)
	}
	if err := m.Resume(ctx, "acme", jobID); !errors.Is(err, pulse.ErrJobCompleted) {
		t.Errorf("Resume on completed job = %v, want ErrJobCompleted", err)
	}
}

func TestResumeExhaustedJobReportsCompleted(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	status := mustCreate(t, m)
	jobID := mustJobID(t, status)

	// Pause, then advance the cursor to the end of the range.
	if err := m.Cancel(ctx, "acme", jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	key := backfill.ModuleKey("acme", "pipe-1", jobID)
	tr, err := store.Get(ctx, "acme", pulse.ModuleBackfill, key)
	if err != nil {
		t.Fatalf("Get trigger: %v", err)
	}
	tr.Data.Backfill.CurrentPosition = tr.Data.Backfill.EndTime
	if err := store.Update(ctx, tr, "test cursor advance"); err != nil {
		t.Fatalf("Update trigger: %v", err)
	}

	if err := m.Resume(ctx, "acme", jobID); !errors.Is(err, pulse.ErrJobCompleted) {
		t.Errorf("Resume on exhausted job = %v, want ErrJobCompleted", err)
	}
}

func TestUpdateRestartsProgress(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	status := mustCreate(t, m)
	jobID := mustJobID(t, status)

	// Updates require a paused or completed job.
	if _, err := m.Update(ctx, "acme", jobID, validRequest()); !errors.Is(err, pulse.ErrJobNotUpdatable) {
		t.Fatalf("Update on waiting job = %v, want ErrJobNotUpdatable", err)
	}

	if err := m.Cancel(ctx, "acme", jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// Simulate partial progress and a recorded deletion phase.
	key := backfill.ModuleKey("acme", "pipe-1", jobID)
	tr, err := store.Get(ctx, "acme", pulse.ModuleBackfill, key)
	if err != nil {
		t.Fatalf("Get trigger: %v", err)
	}
	tr.Retries = 2
	tr.Data.Backfill.CurrentPosition = tr.Data.Backfill.StartTime + time.Hour.Microseconds()
	tr.Data.Backfill.DeletionStatus = pulse.DeletionStatus{State: pulse.DeletionCompleted}
	tr.Data.Backfill.DeletionJobID = "del-1"
	if err := store.Update(ctx, tr, "test progress"); err != nil {
		t.Fatalf("Update trigger: %v", err)
	}

	now := pulse.NowMicro()
	newReq := backfill.Request{
		StartTime:          now - 10*time.Hour.Microseconds(),
		EndTime:            now - 2*time.Hour.Microseconds(),
		ChunkPeriodMinutes: 30,
	}
	got, err := m.Update(ctx, "acme", jobID, newReq)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got.JobID != status.JobID {
		t.Error("update must preserve the job identity")
	}
	if got.StartTime != newReq.StartTime || got.EndTime != newReq.EndTime {
		t.Errorf("range = [%d, %d], want [%d, %d]",
			got.StartTime, got.EndTime, newReq.StartTime, newReq.EndTime)
	}
	if got.CurrentPosition != newReq.StartTime {
		t.Errorf("cursor = %d, want reset to new start %d", got.CurrentPosition, newReq.StartTime)
	}
	if got.Status != string(pulse.StatusWaiting) {
		t.Errorf("status = %q, want waiting", got.Status)
	}
	if got.DeletionStatus.State != pulse.DeletionNotRequired {
		t.Errorf("deletion state = %q, want cleared to not_required", got.DeletionStatus.State)
	}
	if got.ChunksTotal != 16 {
		t.Errorf("ChunksTotal = %d, want 16 for 8h at 30min chunks", got.ChunksTotal)
	}

	tr, err = store.Get(ctx, "acme", pulse.ModuleBackfill, key)
	if err != nil {
		t.Fatalf("Get trigger: %v", err)
	}
	if tr.Retries != 0 {
		t.Errorf("retries = %d, want reset to 0", tr.Retries)
	}
	if tr.Data.Backfill.DeletionJobID != "" {
		t.Error("deletion job handle must be cleared")
	}
}

func TestDeleteRemovesJobAndCancelsQuery(t *testing.T) {
	m, store, canceler := newTestManager(t)
	ctx := context.Background()
	status := mustCreate(t, m)
	jobID := mustJobID(t, status)

	if err := m.Delete(ctx, "acme", jobID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := m.Get(ctx, "acme", jobID); !errors.Is(err, pulse.ErrJobNotFound) {
		t.Errorf("Get after delete = %v, want ErrJobNotFound", err)
	}
	if err := m.Delete(ctx, "acme", jobID); !errors.Is(err, pulse.ErrJobNotFound) {
		t.Errorf("double Delete = %v, want ErrJobNotFound", err)
	}

	key := backfill.ModuleKey("acme", "pipe-1", jobID)
	if _, err := store.Get(ctx, "acme", pulse.ModuleBackfill, key); !errors.Is(err, pulse.ErrTriggerNotFound) {
		t.Errorf("trigger row should be gone, got %v", err)
	}

	canceler.mu.Lock()
	defer canceler.mu.Unlock()
	if len(canceler.cancelled) != 1 || canceler.cancelled[0] != jobID.String() {
		t.Errorf("expected query cancel for %s, got %v", jobID, canceler.cancelled)
	}
}

func TestListReturnsOrgJobsOldestFirst(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first := mustCreate(t, m)
	time.Sleep(time.Millisecond) // distinct created_at
	second := mustCreate(t, m)

	statuses, err := m.List(ctx, "acme")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(statuses))
	}
	if statuses[0].JobID != first.JobID || statuses[1].JobID != second.JobID {
		t.Error("expected jobs ordered oldest first")
	}
	if statuses[0].PipelineName != "Nginx Access Logs" {
		t.Errorf("pipeline name = %q, want resolved display name", statuses[0].PipelineName)
	}

	other, err := m.List(ctx, "globex")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no jobs for other org, got %d", len(other))
	}
}

func TestOperationsOnUnknownJob(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	unknown := id.NewBackfillJobID()

	if _, err := m.Get(ctx, "acme", unknown); !errors.Is(err, pulse.ErrJobNotFound) {
		t.Errorf("Get = %v, want ErrJobNotFound", err)
	}
	if err := m.Cancel(ctx, "acme", unknown); !errors.Is(err, pulse.ErrJobNotFound) {
		t.Errorf("Cancel = %v, want ErrJobNotFound", err)
	}
	if err := m.Resume(ctx, "acme", unknown); !errors.Is(err, pulse.ErrJobNotFound) {
		t.Errorf("Resume = %v, want ErrJobNotFound", err)
	}
	if _, err := m.Update(ctx, "acme", unknown, validRequest()); !errors.Is(err, pulse.ErrJobNotFound) {
		t.Errorf("Update = %v, want ErrJobNotFound", err)
	}
	if err := m.Delete(ctx, "acme", unknown); !errors.Is(err, pulse.ErrJobNotFound) {
		t.Errorf("Delete = %v, want ErrJobNotFound", err)
	}
}
