package types

import "time"

// TriggerMessage is the SQS payload that asks the trigger worker to evaluate
// one watch. JSON tags use snake_case like every other queue payload.
type TriggerMessage struct {
	WatchID     string    `json:"watch_id"`
	Reason      string    `json:"reason"`
	TraceID     string    `json:"trace_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
