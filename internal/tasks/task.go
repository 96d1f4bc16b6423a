// Package tasks runs the idempotent rating recompute jobs off the request path.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aimd54/addon-ratings/internal/metrics"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// Task names.
const (
	UpdateDenorm          = "update_denorm"
	AddonRatingAggregates = "addon_rating_aggregates"
	AddonBayesianRating   = "addon_bayesian_rating"
	AddonGroupedRatings   = "addon_grouped_ratings"
	IndexAddon            = "index_addon"
)

// Task is one unit of background work. UserID is only used by update_denorm.
type Task struct {
	Name     string `json:"name"`
	AddonIDs []uint `json:"addon_ids"`
	UserID   uint   `json:"user_id,omitempty"`
}

// Handler runs a task.
type Handler func(ctx context.Context, task Task) error

// Queue accepts tasks for eventual execution.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
}

// Registry maps task names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{handlers: make(map[string]Handler), log: log}
}

// Register binds a handler to a task name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Dispatch runs the handler of a task. Errors are logged and counted.
func (r *Registry) Dispatch(ctx context.Context, task Task) error {
	r.mu.RLock()
	h, ok := r.handlers[task.Name]
	r.mu.RUnlock()
	if !ok {
		r.log.Error().Str("task", task.Name).Msg("No handler registered for task")
		metrics.RecordTask(task.Name, "unknown", 0)
		return fmt.Errorf("unknown task %q", task.Name)
	}

	start := time.Now()
	err := h(ctx, task)
	if err != nil {
		metrics.RecordTask(task.Name, "error", time.Since(start))
		r.log.Error().
			Err(err).
			Str("task", task.Name).
			Interface("addon_ids", task.AddonIDs).
			Uint("user_id", task.UserID).
			Msg("Task failed")
		return err
	}
	metrics.RecordTask(task.Name, "success", time.Since(start))
	r.log.Debug().Str("task", task.Name).Interface("addon_ids", task.AddonIDs).Dur("duration", time.Since(start)).Msg("Task completed")
	return nil
}

// SyncQueue runs tasks inline on Enqueue.
type SyncQueue struct {
	registry *Registry
}

// NewSyncQueue creates a queue that runs tasks immediately.
func NewSyncQueue(registry *Registry) *SyncQueue {
	return &SyncQueue{registry: registry}
}

// Enqueue runs the task now. Task errors are not returned.
func (q *SyncQueue) Enqueue(ctx context.Context, task Task) error {
	_ = q.registry.Dispatch(ctx, task)
	return nil
}
