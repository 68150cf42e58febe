// Package registry implements the Task Registry (C5): the process-wide
// task_id -> TaskInfo map, with atomic status updates and a background
// eviction sweep, grounded on the teacher's internal/events.EventStore
// (cleanup-ticker-plus-stop-channel shape) and cmd/server.go's
// sync.RWMutex-guarded map-of-sessions concurrency style.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentforge/taskrunner/internal/utils"
	"github.com/agentforge/taskrunner/pkg/apperrors"
	"github.com/agentforge/taskrunner/pkg/model"
)

// Registry holds one TaskInfo record per task, process-wide.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*model.TaskInfo

	cleanupInterval time.Duration
	expiry          time.Duration
	logger          utils.ExtendedLogger

	stopCh chan struct{}
	ticker *time.Ticker
}

// Config configures eviction timing. CleanupInterval and Expiry both
// default (via New) to the values spec §6 names: 60s and 300s.
type Config struct {
	CleanupInterval time.Duration
	Expiry          time.Duration
}

// DefaultConfig returns spec §6's default eviction timing.
func DefaultConfig() Config {
	return Config{CleanupInterval: 60 * time.Second, Expiry: 300 * time.Second}
}

// New constructs a Registry and starts its background eviction goroutine.
// Callers must call Stop when done to release the ticker.
func New(config Config, logger utils.ExtendedLogger) *Registry {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if config.Expiry <= 0 {
		config.Expiry = DefaultConfig().Expiry
	}

	r := &Registry{
		tasks:           make(map[string]*model.TaskInfo),
		cleanupInterval: config.CleanupInterval,
		expiry:          config.Expiry,
		logger:          logger,
		stopCh:          make(chan struct{}),
		ticker:          time.NewTicker(config.CleanupInterval),
	}

	go r.evictionLoop()
	return r
}

// Create generates a universally unique task id, inserts a fresh
// IN_PROGRESS record, and returns the id.
func (r *Registry) Create() string {
	taskID := uuid.New().String()
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[taskID] = &model.TaskInfo{
		TaskID:    taskID,
		Status:    model.StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return taskID
}

// Get returns a consistent snapshot of the record for taskID. Readers that
// hold the returned pointer's copy see a value fixed at the moment of the
// call; Get never returns a pointer into the Registry's live map, so
// eviction of the underlying entry cannot mutate what a prior caller
// already observed.
func (r *Registry) Get(taskID string) (model.TaskInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.tasks[taskID]
	if !ok {
		return model.TaskInfo{}, false
	}
	return *info, true
}

// UpdateStatus atomically updates status, optionally response, and always
// updated_at. Every Workflow Engine node entry calls this with
// model.StatusInProgress as a liveness marker — the sole mechanism that
// keeps a long-running task from being evicted (spec §4.5).
func (r *Registry) UpdateStatus(taskID string, status model.TaskStatus, response *model.TaskResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.tasks[taskID]
	if !ok {
		return apperrors.New(apperrors.KindTaskNotFound, "task not found: "+taskID)
	}

	info.Status = status
	if response != nil {
		info.Response = response
	}
	info.UpdatedAt = time.Now()
	return nil
}

// Stop terminates the background eviction goroutine.
func (r *Registry) Stop() {
	close(r.stopCh)
}

func (r *Registry) evictionLoop() {
	for {
		select {
		case <-r.ticker.C:
			r.evictExpired()
		case <-r.stopCh:
			r.ticker.Stop()
			return
		}
	}
}

func (r *Registry) evictExpired() {
	cutoff := time.Now().Add(-r.expiry)

	r.mu.Lock()
	defer r.mu.Unlock()

	for taskID, info := range r.tasks {
		if info.UpdatedAt.Before(cutoff) {
			delete(r.tasks, taskID)
			if r.logger != nil {
				r.logger.Infof("evicted expired task %s (last updated %s)", taskID, info.UpdatedAt)
			}
		}
	}
}
