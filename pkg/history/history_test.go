package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentforge/taskrunner/pkg/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndGet_RoundTrips(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	response := &model.TaskResponse{
		ID:      "task-1",
		Status:  model.StatusCompleted,
		Answer:  "the answer is 42",
		Success: true,
		Artifacts: []model.ArtifactResponse{
			{ID: "art-1", Description: "result", Type: model.ArtifactFile, Name: "result.csv", Path: "/workspace/result.csv"},
		},
	}

	if err := store.Record(ctx, response); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a recorded task, got nil")
	}
	if got.Answer != response.Answer || got.Status != response.Status || got.Success != response.Success {
		t.Errorf("expected round-tripped fields to match, got %+v", got)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].ID != "art-1" {
		t.Errorf("expected artifacts to round-trip, got %+v", got.Artifacts)
	}
}

func TestGet_UnknownTaskReturnsNilNil(t *testing.T) {
	store := openTestStore(t)

	got, err := store.Get(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("expected no error for an unknown task, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for an unknown task, got %+v", got)
	}
}

func TestRecord_UpsertsOnRepeatedTaskID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := &model.TaskResponse{ID: "task-2", Status: model.StatusInProgress, Answer: "", Success: true, Artifacts: []model.ArtifactResponse{}}
	if err := store.Record(ctx, first); err != nil {
		t.Fatalf("Record (first): %v", err)
	}

	second := &model.TaskResponse{ID: "task-2", Status: model.StatusCompleted, Answer: "done", Success: true, Artifacts: []model.ArtifactResponse{}}
	if err := store.Record(ctx, second); err != nil {
		t.Fatalf("Record (second): %v", err)
	}

	got, err := store.Get(ctx, "task-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusCompleted || got.Answer != "done" {
		t.Errorf("expected the second Record to overwrite the first, got %+v", got)
	}
}

func TestOpen_IsIdempotentAcrossMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	store1.Close()

	store2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open (re-running migrations): %v", err)
	}
	defer store2.Close()

	if err := store2.Record(context.Background(), &model.TaskResponse{ID: "task-3", Status: model.StatusCompleted, Artifacts: []model.ArtifactResponse{}}); err != nil {
		t.Fatalf("Record after reopen: %v", err)
	}
}
