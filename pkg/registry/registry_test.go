package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/agentforge/taskrunner/pkg/model"
)

func newTestRegistry() *Registry {
	return New(Config{CleanupInterval: time.Hour, Expiry: time.Hour}, nil)
}

func TestRegistry_CreateThenGet(t *testing.T) {
	r := newTestRegistry()
	defer r.Stop()

	taskID := r.Create()
	if taskID == "" {
		t.Fatal("expected Create to return a non-empty task id")
	}

	info, ok := r.Get(taskID)
	if !ok {
		t.Fatalf("expected Get to find task %s", taskID)
	}
	if info.Status != model.StatusInProgress {
		t.Errorf("expected fresh task to be IN_PROGRESS, got %s", info.Status)
	}
}

func TestRegistry_GetMissingReturnsFalse(t *testing.T) {
	r := newTestRegistry()
	defer r.Stop()

	_, ok := r.Get("does-not-exist")
	if ok {
		t.Error("expected Get on an unknown task id to return ok=false")
	}
}

func TestRegistry_CreateGeneratesDistinctIDs(t *testing.T) {
	r := newTestRegistry()
	defer r.Stop()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := r.Create()
		if seen[id] {
			t.Fatalf("Create produced a duplicate id: %s", id)
		}
		seen[id] = true
	}
}

func TestRegistry_UpdateStatusSetsResponseAndTimestamp(t *testing.T) {
	r := newTestRegistry()
	defer r.Stop()

	taskID := r.Create()
	before, _ := r.Get(taskID)

	time.Sleep(time.Millisecond)
	resp := &model.TaskResponse{ID: taskID, Status: model.StatusCompleted, Success: true}
	if err := r.UpdateStatus(taskID, model.StatusCompleted, resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, ok := r.Get(taskID)
	if !ok {
		t.Fatal("expected task to still exist after UpdateStatus")
	}
	if after.Status != model.StatusCompleted {
		t.Errorf("expected status COMPLETED, got %s", after.Status)
	}
	if after.Response == nil || !after.Response.Success {
		t.Errorf("expected response to be set, got %+v", after.Response)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Errorf("expected UpdatedAt to advance")
	}
}

func TestRegistry_UpdateStatusWithNilResponsePreservesExisting(t *testing.T) {
	r := newTestRegistry()
	defer r.Stop()

	taskID := r.Create()
	resp := &model.TaskResponse{ID: taskID, Status: model.StatusInProgress}
	_ = r.UpdateStatus(taskID, model.StatusInProgress, resp)

	_ = r.UpdateStatus(taskID, model.StatusInProgress, nil)

	info, _ := r.Get(taskID)
	if info.Response == nil {
		t.Error("expected a nil response argument to leave the existing response untouched")
	}
}

func TestRegistry_UpdateStatusUnknownTaskErrors(t *testing.T) {
	r := newTestRegistry()
	defer r.Stop()

	if err := r.UpdateStatus("missing", model.StatusCompleted, nil); err == nil {
		t.Error("expected UpdateStatus on an unknown task to return an error")
	}
}

func TestRegistry_GetReturnsSnapshotNotLiveReference(t *testing.T) {
	r := newTestRegistry()
	defer r.Stop()

	taskID := r.Create()
	snap, _ := r.Get(taskID)

	_ = r.UpdateStatus(taskID, model.StatusFailed, nil)

	if snap.Status != model.StatusInProgress {
		t.Errorf("expected the earlier snapshot to remain IN_PROGRESS, got %s", snap.Status)
	}
}

func TestRegistry_EvictionRemovesExpiredTasks(t *testing.T) {
	r := New(Config{CleanupInterval: 10 * time.Millisecond, Expiry: 20 * time.Millisecond}, nil)
	defer r.Stop()

	taskID := r.Create()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Get(taskID); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected task %s to be evicted within the deadline", taskID)
}

func TestRegistry_ConcurrentAccessIsRace_Free(t *testing.T) {
	r := newTestRegistry()
	defer r.Stop()

	taskID := r.Create()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.Get(taskID)
		}()
		go func() {
			defer wg.Done()
			_ = r.UpdateStatus(taskID, model.StatusInProgress, nil)
		}()
	}
	wg.Wait()
}
