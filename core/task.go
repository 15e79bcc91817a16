package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskPriority orders pending tasks. HIGH is served before MEDIUM before LOW;
// insertion order is preserved within a tier.
type TaskPriority string

const (
	// PriorityHigh is for user-facing queries needing an immediate answer.
	PriorityHigh TaskPriority = "HIGH"
	// PriorityMedium is for background processing.
	PriorityMedium TaskPriority = "MEDIUM"
	// PriorityLow is for pre-fetching and cache warming.
	PriorityLow TaskPriority = "LOW"
)

// Rank returns the sort rank of the priority (lower is served first).
// Unknown priorities sort last.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Validate reports whether the priority is one of the known levels.
func (p TaskPriority) Validate() error {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return nil
	default:
		return fmt.Errorf("unknown task priority: %q", string(p))
	}
}

// TaskStatus is the task lifecycle state. Transitions are monotonic:
// PENDING -> IN_PROGRESS -> {COMPLETED | FAILED}. A task never returns to
// PENDING implicitly; retry re-enqueues a fresh task instead.
type TaskStatus string

const (
	// StatusPending means the task is waiting to be claimed.
	StatusPending TaskStatus = "PENDING"
	// StatusInProgress means an executor has claimed the task.
	StatusInProgress TaskStatus = "IN_PROGRESS"
	// StatusCompleted means execution finished and a result is stored.
	StatusCompleted TaskStatus = "COMPLETED"
	// StatusFailed means execution failed; Error holds the reason.
	StatusFailed TaskStatus = "FAILED"
)

// Terminal reports whether the status is COMPLETED or FAILED.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next respects the monotonic
// lifecycle.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusCompleted || next == StatusFailed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// TaskType identifies which registered tool executes a task. The set is open;
// the constants below cover the built-in categories.
type TaskType string

const (
	// TaskKBSearch is a knowledge-base semantic search.
	TaskKBSearch TaskType = "kb_search"
	// TaskDBQuery is a database query.
	TaskDBQuery TaskType = "db_query"
	// TaskEligibilityCheck is a business-rule eligibility check.
	TaskEligibilityCheck TaskType = "eligibility_check"
	// TaskAPICall is an external API call.
	TaskAPICall TaskType = "api_call"
	// TaskCompute is a heavy computation.
	TaskCompute TaskType = "compute"
)

// DefaultFiller is spoken by the conversational agent while a task without an
// explicit filler message is outstanding.
const DefaultFiller = "I'm looking into that for you..."

// DefaultFillers maps built-in task types to stock filler utterances.
var DefaultFillers = map[TaskType]string{
	TaskKBSearch:         "Let me search that for you...",
	TaskDBQuery:          "I'm looking up that information...",
	TaskEligibilityCheck: "Let me check that for you...",
	TaskAPICall:          "I'm checking the system...",
	TaskCompute:          "Give me a moment to process that...",
}

// FillerFor returns the stock filler for a task type, falling back to
// DefaultFiller for unknown types.
func FillerFor(t TaskType) string {
	if f, ok := DefaultFillers[t]; ok {
		return f
	}
	return DefaultFiller
}

// Task is one unit of deferred work handed from the conversational agent to
// the background executor. Lifecycle fields (Status, timestamps, Result,
// Error) are mutated only by the queue on behalf of the executor; producers
// treat tasks as read-only after Push.
type Task struct {
	ID       string       `json:"id"`
	Priority TaskPriority `json:"priority"`
	Status   TaskStatus   `json:"status"`
	Type     TaskType     `json:"type"`

	// Query is the free-text question or lookup the tool receives.
	Query string `json:"query"`
	// Context carries arbitrary key/value data for the tool (e.g. collected
	// user attributes).
	Context map[string]any `json:"context,omitempty"`

	// FillerMessage is spoken while the task is outstanding.
	FillerMessage string `json:"filler_message"`
	// TimeoutThreshold is advisory: TimedOut reports tasks past it, but the
	// queue never auto-fails them. A supervisor must act.
	TimeoutThreshold time.Duration `json:"timeout_threshold"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`

	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// Attempt counts prior executions of the same logical task. It is zero
	// for the initial push and incremented by Requeue.
	Attempt int `json:"attempt,omitempty"`
}

// TimedOut reports whether the task has been IN_PROGRESS longer than its
// timeout threshold at the given instant.
func (t *Task) TimedOut(now time.Time) bool {
	if t.Status != StatusInProgress || t.StartedAt.IsZero() {
		return false
	}
	return now.Sub(t.StartedAt) > t.TimeoutThreshold
}

// Terminal reports whether the task reached COMPLETED or FAILED.
func (t *Task) Terminal() bool { return t.Status.Terminal() }

// NewTaskID returns a fresh unique task identifier.
func NewTaskID() string { return uuid.NewString() }
