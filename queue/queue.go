package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/voxlane/duet/core"
)

// DefaultTimeout is the advisory execution budget applied when Push is not
// given an explicit threshold.
const DefaultTimeout = 10 * time.Second

// PushOptions customize a single Push call.
type PushOptions struct {
	// Priority orders the task against other pending work (default MEDIUM).
	Priority core.TaskPriority
	// Context carries arbitrary key/value data to the executing tool.
	Context map[string]any
	// FillerMessage overrides the stock utterance spoken while waiting.
	FillerMessage string
	// TimeoutThreshold overrides the advisory execution budget.
	TimeoutThreshold time.Duration
	// Attempt marks the task as a retry of a previous execution.
	Attempt int
}

// WithPriority sets the task priority.
func WithPriority(p core.TaskPriority) func(*PushOptions) {
	return func(o *PushOptions) { o.Priority = p }
}

// WithContext attaches key/value context for the tool.
func WithContext(ctx map[string]any) func(*PushOptions) {
	return func(o *PushOptions) { o.Context = ctx }
}

// WithFillerMessage sets the utterance spoken while the task is outstanding.
func WithFillerMessage(msg string) func(*PushOptions) {
	return func(o *PushOptions) { o.FillerMessage = msg }
}

// WithTimeoutThreshold sets the advisory execution budget.
func WithTimeoutThreshold(d time.Duration) func(*PushOptions) {
	return func(o *PushOptions) { o.TimeoutThreshold = d }
}

// Stats is a point-in-time snapshot of queue health.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// TaskQueue is a priority-ordered store of tasks supporting claim / complete /
// fail semantics. Safe for concurrent use; one instance per conversation
// session.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   map[string]*core.Task
	pending []string // task ids, priority-sorted, insertion order within a tier
	seq     uint64   // insertion counter backing the stable sort
	order   map[string]uint64
}

// New constructs an empty task queue.
func New() *TaskQueue {
	return &TaskQueue{
		tasks: make(map[string]*core.Task),
		order: make(map[string]uint64),
	}
}

// Push constructs a PENDING task with a fresh unique id, inserts it into the
// pending set and re-establishes priority ordering. Non-blocking; returns the
// task id immediately.
func (q *TaskQueue) Push(taskType core.TaskType, query string, optFns ...func(*PushOptions)) string {
	opts := PushOptions{
		Priority:         core.PriorityMedium,
		FillerMessage:    core.DefaultFiller,
		TimeoutThreshold: DefaultTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Priority.Validate() != nil {
		opts.Priority = core.PriorityMedium
	}
	if opts.Context == nil {
		opts.Context = map[string]any{}
	}
	if opts.FillerMessage == "" {
		opts.FillerMessage = core.DefaultFiller
	}
	if opts.TimeoutThreshold <= 0 {
		opts.TimeoutThreshold = DefaultTimeout
	}

	task := &core.Task{
		ID:               core.NewTaskID(),
		Priority:         opts.Priority,
		Status:           core.StatusPending,
		Type:             taskType,
		Query:            query,
		Context:          opts.Context,
		FillerMessage:    opts.FillerMessage,
		TimeoutThreshold: opts.TimeoutThreshold,
		CreatedAt:        time.Now(),
		Attempt:          opts.Attempt,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	q.tasks[task.ID] = task
	q.order[task.ID] = q.seq
	q.pending = append(q.pending, task.ID)
	q.sortPendingLocked()

	return task.ID
}

// Requeue pushes a fresh task carrying the same definition as a previous one
// with Attempt incremented. The original task is untouched; ids are never
// reused.
func (q *TaskQueue) Requeue(task core.Task) string {
	return q.Push(task.Type, task.Query,
		WithPriority(task.Priority),
		WithContext(task.Context),
		WithFillerMessage(task.FillerMessage),
		WithTimeoutThreshold(task.TimeoutThreshold),
		func(o *PushOptions) { o.Attempt = task.Attempt + 1 },
	)
}

// sortPendingLocked re-establishes HIGH < MEDIUM < LOW ordering with insertion
// order preserved inside each tier. Caller must hold the lock.
func (q *TaskQueue) sortPendingLocked() {
	sort.SliceStable(q.pending, func(i, j int) bool {
		a, b := q.tasks[q.pending[i]], q.tasks[q.pending[j]]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return q.order[a.ID] < q.order[b.ID]
	})
}

// Pending returns up to limit pending tasks in priority order without
// removing them. Returned tasks are copies.
func (q *TaskQueue) Pending(limit int) []core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit < 0 || limit > len(q.pending) {
		limit = len(q.pending)
	}
	out := make([]core.Task, 0, limit)
	for _, id := range q.pending[:limit] {
		if task, ok := q.tasks[id]; ok {
			out = append(out, *task)
		}
	}
	return out
}

// Claim atomically transitions a PENDING task to IN_PROGRESS, removing it from
// the pending set so two concurrent pollers can never claim the same task.
// Returns a copy of the claimed task and false if the task is missing or not
// claimable.
func (q *TaskQueue) Claim(taskID string) (core.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[taskID]
	if !ok || task.Status != core.StatusPending {
		return core.Task{}, false
	}
	task.Status = core.StatusInProgress
	task.StartedAt = time.Now()
	q.removePendingLocked(taskID)
	return *task, true
}

// Complete records a successful terminal transition with its result.
// Completing a task that is already terminal is a no-op.
func (q *TaskQueue) Complete(taskID string, result any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[taskID]
	if !ok || !task.Status.CanTransition(core.StatusCompleted) {
		return
	}
	task.Status = core.StatusCompleted
	task.CompletedAt = time.Now()
	task.Result = result
	q.removePendingLocked(taskID) // defensive: PENDING -> COMPLETED shortcut
}

// Fail records a failed terminal transition with a human-readable error.
// Failing a task that is already terminal is a no-op.
func (q *TaskQueue) Fail(taskID string, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[taskID]
	if !ok || !task.Status.CanTransition(core.StatusFailed) {
		return
	}
	task.Status = core.StatusFailed
	task.CompletedAt = time.Now()
	task.Error = errMsg
	q.removePendingLocked(taskID)
}

// Get returns a copy of the full task, false if unknown.
func (q *TaskQueue) Get(taskID string) (core.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if task, ok := q.tasks[taskID]; ok {
		return *task, true
	}
	return core.Task{}, false
}

// Status returns the task status, false if unknown.
func (q *TaskQueue) Status(taskID string) (core.TaskStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if task, ok := q.tasks[taskID]; ok {
		return task.Status, true
	}
	return "", false
}

// Result returns the stored result only if the task is COMPLETED. Any other
// state, including "not found", yields nil rather than an error.
func (q *TaskQueue) Result(taskID string) any {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[taskID]
	if !ok || task.Status != core.StatusCompleted {
		return nil
	}
	return task.Result
}

// TimedOut returns copies of IN_PROGRESS tasks past their timeout threshold.
// The queue only reports; a supervising loop decides what to do with them.
func (q *TaskQueue) TimedOut() []core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var out []core.Task
	for _, task := range q.tasks {
		if task.TimedOut(now) {
			out = append(out, *task)
		}
	}
	return out
}

// Cleanup purges terminal tasks older than maxAge to bound memory. Returns
// the number of tasks removed.
func (q *TaskQueue) Cleanup(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, task := range q.tasks {
		if task.Terminal() && !task.CompletedAt.IsZero() && now.Sub(task.CompletedAt) > maxAge {
			delete(q.tasks, id)
			delete(q.order, id)
			removed++
		}
	}
	return removed
}

// Stats returns a point-in-time snapshot of queue counts.
func (q *TaskQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Total: len(q.tasks), Pending: len(q.pending)}
	for _, task := range q.tasks {
		switch task.Status {
		case core.StatusInProgress:
			s.InProgress++
		case core.StatusCompleted:
			s.Completed++
		case core.StatusFailed:
			s.Failed++
		}
	}
	return s
}

// removePendingLocked drops an id from the pending ordering. Caller must hold
// the lock.
func (q *TaskQueue) removePendingLocked(taskID string) {
	for i, id := range q.pending {
		if id == taskID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}
