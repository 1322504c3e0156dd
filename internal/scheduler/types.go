// Package scheduler implements the periodic job that fans active watches out
// to the trigger queue.
//
// The SchedulerFunction Lambda is invoked by an EventBridge rule. Each
// invocation pages through active watches in id order and enqueues one
// TriggerMessage per watch. The trigger worker then runs each watch
// independently.
package scheduler

import "time"

// TaskType identifies which job an EventBridge event asks for.
type TaskType string

const (
	// TaskEnqueueWatches fans every active watch out to the trigger queue.
	TaskEnqueueWatches TaskType = "enqueue_watches"
	// TaskPurgeDeleted hard-deletes watches soft-deleted before the retention cutoff.
	TaskPurgeDeleted TaskType = "purge_deleted"
)

// SchedulerPayload is the JSON payload sent by EventBridge to the scheduler.
//
//	{
//	  "task": "enqueue_watches",
//	  "reference_time": "2026-02-06T03:00:00Z",  // optional
//	  "limit": 500                               // optional
//	}
type SchedulerPayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for manual invocation. If nil,
	// time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
	// Limit caps the number of watches enqueued in one invocation so a large
	// backlog cannot run past the Lambda timeout. Zero means unlimited.
	Limit int `json:"limit,omitempty"`
}
