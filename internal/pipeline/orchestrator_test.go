package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitDone(t *testing.T, job *Job) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := job.Snapshot(); snap.Status.Done() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
	return JobSnapshot{}
}

func TestOrchestrator_ProcessesSubmittedJobs(t *testing.T) {
	ix := &fakeIndexer{}
	cfg := testConfig()
	cfg.WorkerCount = 2
	o := NewOrchestrator(cfg, catCaptioner(), ix, nil)
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob("sample.json", "", []byte(sampleBlocksJSON))
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.GetJob(job.ID) != job {
		t.Fatal("expected the submitted job to be tracked")
	}

	snap := waitDone(t, job)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	if !o.Indexing() || o.JobCount() != 1 {
		t.Errorf("unexpected orchestrator state: indexing=%v jobs=%d", o.Indexing(), o.JobCount())
	}
}

func TestOrchestrator_DeleteJob(t *testing.T) {
	ix := &fakeIndexer{}
	o := NewOrchestrator(testConfig(), catCaptioner(), ix, nil)
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob("sample.json", "", []byte(sampleBlocksJSON))
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitDone(t, job)

	if err := o.DeleteJob(context.Background(), job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if o.GetJob(job.ID) != nil {
		t.Error("expected the job to be forgotten")
	}
	if job.Result().State() != StateEmpty {
		t.Errorf("expected the result to be cleared, got %s", job.Result().State())
	}
	ix.mu.Lock()
	deleted := append([]string(nil), ix.deleted...)
	ix.mu.Unlock()
	if len(deleted) != 1 || deleted[0] != job.DocID {
		t.Errorf("expected %s removed from the index, got %v", job.DocID, deleted)
	}

	if err := o.DeleteJob(context.Background(), job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestOrchestrator_DeleteWithoutIndex(t *testing.T) {
	o := NewOrchestrator(testConfig(), catCaptioner(), nil, nil)
	job := NewJob("sample.json", "", []byte(sampleBlocksJSON))
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Indexing() {
		t.Error("expected indexing to be off")
	}
	if err := o.DeleteJob(context.Background(), job.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	o.Stop()
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 1
	o := NewOrchestrator(cfg, catCaptioner(), nil, nil)

	first := NewJob("a.json", "", []byte(sampleBlocksJSON))
	second := NewJob("b.json", "", []byte(sampleBlocksJSON))
	if err := o.Submit(first); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}
	err := o.Submit(second)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if s := second.Snapshot(); s.Status != StatusFailed || s.Phase != "queue_full" {
		t.Errorf("expected the rejected job marked failed, got %q/%q", s.Status, s.Phase)
	}
	o.Stop()
}
