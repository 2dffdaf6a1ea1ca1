package pipeline

import (
	"testing"
	"time"
)

func TestNewJob(t *testing.T) {
	req := Request{ChallengeID: "c1", Documents: []string{"a.pdf", "b.pdf"}, Persona: "p", JobToBeDone: "j"}
	job := NewJob(req, []Input{{Name: "a.pdf"}})
	if job.ID == "" {
		t.Fatal("expected a job id")
	}
	if other := NewJob(req, nil); other.ID == job.ID {
		t.Errorf("expected distinct job ids, got %q twice", job.ID)
	}
	snap := job.Snapshot()
	if snap.Status != StatusQueued || snap.ChallengeID != "c1" || snap.Progress.Documents != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if len(job.Inputs()) != 1 || job.Request().Persona != "p" {
		t.Errorf("job did not keep its request and inputs")
	}
	job.ReleaseInputs()
	if job.Inputs() != nil {
		t.Errorf("expected inputs released")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing"},
		{StatusRanking, "ranking"},
		{StatusRefining, "refining"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
	if !job.Status.Done() {
		t.Errorf("completed should be terminal")
	}
}

func TestJobStatus_Done(t *testing.T) {
	for _, s := range []JobStatus{StatusQueued, StatusParsing, StatusRanking, StatusRefining} {
		if s.Done() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusPartial} {
		if !s.Done() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("a.pdf: parse failure")
	job.AddError("b.pdf: parse failure")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "a.pdf: parse failure" {
		t.Errorf("expected first error %q, got %q", "a.pdf: parse failure", snap.Progress.Errors[0])
	}
}

func TestJob_IncrDocumentsProcessed(t *testing.T) {
	job := &Job{ID: "incr-test", UpdatedAt: time.Now()}
	job.IncrDocumentsProcessed()
	job.IncrDocumentsProcessed()
	job.IncrDocumentsProcessed()

	snap := job.Snapshot()
	if snap.Progress.DocumentsProcessed != 3 {
		t.Errorf("expected 3 documents processed, got %d", snap.Progress.DocumentsProcessed)
	}
}

func TestJob_Result(t *testing.T) {
	job := &Job{ID: "res-test"}
	if job.Result() != nil {
		t.Fatal("expected no result before completion")
	}
	job.SetResult(&Result{Metadata: Metadata{Persona: "p"}})
	if job.Result() == nil || job.Result().Metadata.Persona != "p" {
		t.Errorf("result not stored")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}
