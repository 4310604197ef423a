package warroom

import (
	"bytes"

	orderedmap "github.com/elliotchance/orderedmap/v3"

	"github.com/warboard/warboard/internal/api"
)

// ExecutionQueue holds the tasks currently waiting for a human, keyed by
// canonical task identity. Presence implies waiting status; a task that
// leaves waiting leaves the queue.
type ExecutionQueue struct {
	tasks *orderedmap.OrderedMap[string, api.ExecutionTask]
}

// NewExecutionQueue creates an empty queue.
func NewExecutionQueue() *ExecutionQueue {
	return &ExecutionQueue{tasks: orderedmap.NewOrderedMap[string, api.ExecutionTask]()}
}

// UpsertFromPull replaces the queue with the pull snapshot. The snapshot
// is authoritative: anything absent from it is gone. Non-waiting and
// keyless rows are dropped. Returns true when the queue changed.
func (q *ExecutionQueue) UpsertFromPull(list []api.ExecutionTask) bool {
	next := orderedmap.NewOrderedMap[string, api.ExecutionTask]()
	for _, task := range list {
		key := task.Key()
		if key == "" || task.Status != api.ExecutionWaiting {
			continue
		}
		next.Set(key, task)
	}

	changed := next.Len() != q.tasks.Len()
	if !changed {
		for key, task := range next.AllFromFront() {
			prev, ok := q.tasks.Get(key)
			if !ok || !taskEqual(prev, task) {
				changed = true
				break
			}
		}
	}
	q.tasks = next
	return changed
}

// UpsertFromPush inserts a pushed task only when it is waiting and not
// already tracked, so tasks the pull path surfaced first are not
// re-announced. Returns true on insert.
func (q *ExecutionQueue) UpsertFromPush(task api.ExecutionTask) bool {
	key := task.Key()
	if key == "" || task.Status != api.ExecutionWaiting {
		return false
	}
	if q.tasks.Has(key) {
		return false
	}
	q.tasks.Set(key, task)
	return true
}

// ApplyUpdate merges a pushed update into the tracked task, or removes it
// when the update moves the task out of waiting. Updates for unknown
// tasks are ignored. Shallow merge, patch wins. Returns true when the
// queue changed.
func (q *ExecutionQueue) ApplyUpdate(patch api.ExecutionTask) bool {
	key := patch.Key()
	if key == "" {
		return false
	}
	current, ok := q.tasks.Get(key)
	if !ok {
		return false
	}
	if patch.Status != "" && patch.Status != api.ExecutionWaiting {
		q.tasks.Delete(key)
		return true
	}
	merged := mergeTask(current, patch)
	if taskEqual(current, merged) {
		return false
	}
	q.tasks.Set(key, merged)
	return true
}

// Remove drops a task after its result was submitted. Returns true when
// the task was present.
func (q *ExecutionQueue) Remove(key string) bool {
	return q.tasks.Delete(key)
}

// Get returns the tracked task for a key.
func (q *ExecutionQueue) Get(key string) (api.ExecutionTask, bool) {
	return q.tasks.Get(key)
}

// Tasks returns the waiting tasks in insertion order.
func (q *ExecutionQueue) Tasks() []api.ExecutionTask {
	out := make([]api.ExecutionTask, 0, q.tasks.Len())
	for _, task := range q.tasks.AllFromFront() {
		out = append(out, task)
	}
	return out
}

// Len returns the number of waiting tasks.
func (q *ExecutionQueue) Len() int {
	return q.tasks.Len()
}

func mergeTask(base, patch api.ExecutionTask) api.ExecutionTask {
	out := base
	if patch.Status != "" {
		out.Status = patch.Status
	}
	if patch.CommandName != "" {
		out.CommandName = patch.CommandName
	}
	if patch.CommandType != "" {
		out.CommandType = patch.CommandType
	}
	if patch.Description != "" {
		out.Description = patch.Description
	}
	if patch.CommandID != "" {
		out.CommandID = patch.CommandID
	}
	if patch.ActionID != "" {
		out.ActionID = patch.ActionID
	}
	if patch.TaskID != "" {
		out.TaskID = patch.TaskID
	}
	if patch.RoundID != 0 {
		out.RoundID = patch.RoundID
	}
	if len(patch.Entity) > 0 {
		out.Entity = patch.Entity
	}
	if len(patch.Params) > 0 {
		out.Params = patch.Params
	}
	return out
}

func taskEqual(a, b api.ExecutionTask) bool {
	return a.ExecutionID == b.ExecutionID &&
		a.DBID == b.DBID &&
		a.Status == b.Status &&
		a.CommandName == b.CommandName &&
		a.CommandType == b.CommandType &&
		a.Description == b.Description &&
		a.CommandID == b.CommandID &&
		a.ActionID == b.ActionID &&
		a.TaskID == b.TaskID &&
		a.RoundID == b.RoundID &&
		bytes.Equal(a.Entity, b.Entity) &&
		bytes.Equal(a.Params, b.Params)
}
