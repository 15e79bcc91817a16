package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voxlane/duet/aggregator"
	"github.com/voxlane/duet/core"
	"github.com/voxlane/duet/logging"
	"github.com/voxlane/duet/queue"
	"github.com/voxlane/duet/tool"
)

// State is the lifecycle of a ProcessingAgent.
type State string

const (
	// StateNotStarted is the state before Start.
	StateNotStarted State = "NOT_STARTED"
	// StateRunning is the state while the poll loop is active.
	StateRunning State = "RUNNING"
	// StateStopped is the terminal state after Stop.
	StateStopped State = "STOPPED"
)

const (
	// DefaultPollInterval is the pause between poll-loop ticks.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultPollBatch is how many pending tasks one tick inspects.
	DefaultPollBatch = 5
	// DefaultMaxExecutors bounds concurrent task executors.
	DefaultMaxExecutors = 4
)

// ErrCancelled is the human-readable error recorded on tasks whose executors
// were cancelled by Stop rather than dropped silently.
const ErrCancelled = "cancelled"

// Options configure a ProcessingAgent.
type Options struct {
	// PollInterval is the fixed pause between queue polls.
	PollInterval time.Duration
	// PollBatch is the maximum number of pending tasks fetched per tick.
	PollBatch int
	// MaxExecutors bounds how many task executors run concurrently.
	MaxExecutors int64
	// ResultTTL is how long completed results stay in the aggregator cache.
	ResultTTL time.Duration
	// Reasoner optionally refines queries and synthesizes results with a
	// language model before/after tool dispatch.
	Reasoner *Reasoner
	// Logger receives structured execution events.
	Logger logging.Logger
}

// Stats is a point-in-time snapshot of executor health.
type Stats struct {
	SessionID       string   `json:"session_id"`
	Running         bool     `json:"running"`
	InFlight        int      `json:"in_flight"`
	RegisteredTools []string `json:"registered_tools"`
}

// ProcessingAgent is the background worker executing deferred tasks so the
// conversational agent never blocks on slow operations. One instance per
// session.
type ProcessingAgent struct {
	sessionID string
	queue     *queue.TaskQueue
	context   *aggregator.ContextAggregator
	registry  *tool.Registry

	pollInterval time.Duration
	pollBatch    int
	resultTTL    time.Duration
	reasoner     *Reasoner
	logger       logging.Logger

	// sem bounds executor width so a burst of pending tasks cannot spawn one
	// goroutine per task.
	sem *semaphore.Weighted

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	inflight map[string]struct{}
	wg       sync.WaitGroup
	loopDone chan struct{}
}

// New constructs a ProcessingAgent bound to one session's queue, aggregator
// and tool registry.
func New(
	sessionID string,
	q *queue.TaskQueue,
	agg *aggregator.ContextAggregator,
	registry *tool.Registry,
	optFns ...func(o *Options),
) *ProcessingAgent {
	opts := Options{
		PollInterval: DefaultPollInterval,
		PollBatch:    DefaultPollBatch,
		MaxExecutors: DefaultMaxExecutors,
		ResultTTL:    aggregator.DefaultResultTTL,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PollBatch <= 0 {
		opts.PollBatch = DefaultPollBatch
	}
	if opts.MaxExecutors <= 0 {
		opts.MaxExecutors = DefaultMaxExecutors
	}

	return &ProcessingAgent{
		sessionID:    sessionID,
		queue:        q,
		context:      agg,
		registry:     registry,
		pollInterval: opts.PollInterval,
		pollBatch:    opts.PollBatch,
		resultTTL:    opts.ResultTTL,
		reasoner:     opts.Reasoner,
		logger:       opts.Logger,
		sem:          semaphore.NewWeighted(opts.MaxExecutors),
		state:        StateNotStarted,
		inflight:     make(map[string]struct{}),
	}
}

// Start launches the poll loop. It returns an error if the agent has already
// been started or stopped; the lifecycle is one-way.
func (p *ProcessingAgent) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateNotStarted {
		return fmt.Errorf("processing agent for session %s already %s", p.sessionID, p.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = StateRunning
	p.loopDone = make(chan struct{})

	go p.pollLoop(ctx)

	p.logger.Info("agent.start", "session_id", p.sessionID)
	return nil
}

// Stop cancels the poll loop and every in-flight executor, waits for them to
// drain, and transitions to STOPPED. Cancelled tasks are recorded as FAILED
// with a "cancelled" error, never left in limbo.
func (p *ProcessingAgent) Stop() error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return fmt.Errorf("processing agent for session %s is %s, not running", p.sessionID, p.state)
	}
	p.state = StateStopped
	cancel := p.cancel
	loopDone := p.loopDone
	p.mu.Unlock()

	cancel()
	<-loopDone
	p.wg.Wait()

	p.logger.Info("agent.stop", "session_id", p.sessionID)
	return nil
}

// Running reports whether the poll loop is active.
func (p *ProcessingAgent) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning
}

// Registry exposes the runtime-mutable tool dispatch table.
func (p *ProcessingAgent) Registry() *tool.Registry { return p.registry }

// pollLoop fetches pending tasks on a fixed interval and hands each unclaimed
// one to an executor, bounded by the semaphore.
func (p *ProcessingAgent) pollLoop(ctx context.Context) {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Debug("agent.poll.start", "session_id", p.sessionID)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("agent.poll.stop", "session_id", p.sessionID)
			return
		case <-ticker.C:
			p.dispatchPending(ctx)
		}
	}
}

// dispatchPending claims up to one batch of pending tasks, spawning one
// executor per claim. TryAcquire keeps the tick from ever blocking on a full
// pool; unclaimed tasks stay PENDING for the next tick.
func (p *ProcessingAgent) dispatchPending(ctx context.Context) {
	for _, pending := range p.queue.Pending(p.pollBatch) {
		p.mu.Lock()
		_, tracked := p.inflight[pending.ID]
		p.mu.Unlock()
		if tracked {
			continue
		}

		if !p.sem.TryAcquire(1) {
			return // pool saturated, retry next tick
		}

		task, ok := p.queue.Claim(pending.ID)
		if !ok {
			p.sem.Release(1)
			continue
		}

		p.mu.Lock()
		p.inflight[task.ID] = struct{}{}
		p.mu.Unlock()

		p.wg.Add(1)
		go func(task core.Task) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			defer func() {
				p.mu.Lock()
				delete(p.inflight, task.ID)
				p.mu.Unlock()
			}()
			p.execute(ctx, task)
		}(task)
	}
}

// execute runs one claimed task to a terminal status. Every failure mode is
// absorbed here: a failing tool never crashes the poll loop, never touches
// sibling executors and never surfaces as a raised error to the producer.
func (p *ProcessingAgent) execute(ctx context.Context, task core.Task) {
	start := time.Now()
	p.logger.Debug("task.execute.start",
		"session_id", p.sessionID, "task_id", task.ID, "task_type", string(task.Type))

	t, err := p.registry.Resolve(task.Type)
	if err != nil {
		p.failTask(task, err)
		return
	}

	query := task.Query
	if p.reasoner != nil {
		query = p.reasoner.RefineQuery(ctx, query, task.Context)
	}

	result, err := t.Call(ctx, query, task.Context)
	if err != nil {
		p.failTask(task, err)
		return
	}
	if ctx.Err() != nil {
		p.queue.Fail(task.ID, ErrCancelled)
		p.logger.Warn("task.execute.cancelled", "session_id", p.sessionID, "task_id", task.ID)
		return
	}

	if p.reasoner != nil {
		result = p.reasoner.SynthesizeResult(ctx, task.Query, result)
	}

	p.queue.Complete(task.ID, result)
	p.context.CacheResult(task.Type, task.Query, result, p.resultTTL)

	p.logger.Info("task.execute.success",
		"session_id", p.sessionID, "task_id", task.ID,
		"task_type", string(task.Type), "duration_ms", time.Since(start).Milliseconds())
}

// failTask records a terminal failure, distinguishing cancellation from tool
// errors.
func (p *ProcessingAgent) failTask(task core.Task, err error) {
	msg := failMessage(err)
	p.queue.Fail(task.ID, msg)
	if msg == ErrCancelled {
		p.logger.Warn("task.execute.cancelled", "session_id", p.sessionID, "task_id", task.ID)
		return
	}
	p.logger.Error("task.execute.failed",
		"session_id", p.sessionID, "task_id", task.ID,
		"task_type", string(task.Type), "error", msg)
}

// failMessage renders an executor error into the task's human-readable error
// field: "cancelled" for cooperative cancellation, "CODE: message" for tool
// errors, the raw error text otherwise.
func failMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		// Tools that honor ctx typically return ctx.Err() wrapped by Func.
		if toolErr.Message == context.Canceled.Error() {
			return ErrCancelled
		}
		return fmt.Sprintf("%s: %s", toolErr.Code, toolErr.Message)
	}
	return err.Error()
}

// Stats returns a snapshot of executor health for dashboards.
func (p *ProcessingAgent) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		SessionID:       p.sessionID,
		Running:         p.state == StateRunning,
		InFlight:        len(p.inflight),
		RegisteredTools: p.registry.Names(),
	}
}
