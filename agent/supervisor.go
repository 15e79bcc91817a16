package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voxlane/duet/core"
	"github.com/voxlane/duet/logging"
	"github.com/voxlane/duet/queue"
)

// ErrTimeout is the human-readable error recorded on tasks the supervisor
// fails for exceeding their timeout threshold.
const ErrTimeout = "timeout"

const (
	// DefaultSupervisorInterval is the pause between supervisor ticks.
	DefaultSupervisorInterval = time.Second
	// DefaultCleanupMaxAge is how long terminal tasks are kept before the
	// supervisor purges them.
	DefaultCleanupMaxAge = time.Hour
)

// RetryPolicy enables bounded retry with exponential backoff for timed-out
// tasks. Retry is opt-in: without a policy a timed-out task simply fails.
type RetryPolicy struct {
	// MaxAttempts is the total number of executions allowed per logical task
	// (initial push included).
	MaxAttempts int
	// InitialBackoff delays the first re-enqueue.
	InitialBackoff time.Duration
	// Multiplier grows the backoff per attempt (values < 1 become 2).
	Multiplier float64
}

// Backoff returns the delay before re-enqueueing a task that has already run
// attempt times.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
	}
	return d
}

// SupervisorOptions configure a Supervisor.
type SupervisorOptions struct {
	// Interval is the pause between supervision ticks.
	Interval time.Duration
	// Retry, when non-nil, re-enqueues timed-out tasks with backoff.
	Retry *RetryPolicy
	// CleanupMaxAge bounds how long terminal tasks stay in memory.
	CleanupMaxAge time.Duration
	// Logger receives structured supervision events.
	Logger logging.Logger
}

// Supervisor closes the enforcement gap the queue leaves open: TimedOut only
// reports overdue tasks, so the supervisor's tick transitions them to FAILED
// with a "timeout" error, optionally re-enqueues them under a RetryPolicy,
// and garbage-collects old terminal tasks.
type Supervisor struct {
	queue         *queue.TaskQueue
	interval      time.Duration
	retry         *RetryPolicy
	cleanupMaxAge time.Duration
	logger        logging.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	running     bool
	lastCleanup time.Time
}

// NewSupervisor constructs a Supervisor over a queue.
func NewSupervisor(q *queue.TaskQueue, optFns ...func(o *SupervisorOptions)) *Supervisor {
	opts := SupervisorOptions{
		Interval:      DefaultSupervisorInterval,
		CleanupMaxAge: DefaultCleanupMaxAge,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultSupervisorInterval
	}
	if opts.CleanupMaxAge <= 0 {
		opts.CleanupMaxAge = DefaultCleanupMaxAge
	}
	return &Supervisor{
		queue:         q,
		interval:      opts.Interval,
		retry:         opts.Retry,
		cleanupMaxAge: opts.CleanupMaxAge,
		logger:        opts.Logger,
	}
}

// Start launches the supervision loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("supervisor already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.lastCleanup = time.Now()

	go s.loop(ctx)
	return nil
}

// Stop halts the supervision loop and waits for it to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fails overdue tasks and runs periodic cleanup.
func (s *Supervisor) tick(ctx context.Context) {
	for _, task := range s.queue.TimedOut() {
		s.queue.Fail(task.ID, ErrTimeout)
		s.logger.Warn("supervisor.task.timeout",
			"task_id", task.ID, "task_type", string(task.Type), "attempt", task.Attempt)

		if s.retry != nil && task.Attempt+1 < s.retry.MaxAttempts {
			s.scheduleRetry(ctx, task)
		}
	}

	if time.Since(s.lastCleanup) >= s.cleanupMaxAge {
		removed := s.queue.Cleanup(s.cleanupMaxAge)
		s.lastCleanup = time.Now()
		if removed > 0 {
			s.logger.Info("supervisor.cleanup", "removed", removed)
		}
	}
}

// scheduleRetry re-enqueues a copy of the task after its backoff, unless the
// supervisor is stopped first.
func (s *Supervisor) scheduleRetry(ctx context.Context, task core.Task) {
	delay := s.retry.Backoff(task.Attempt)
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			id := s.queue.Requeue(task)
			s.logger.Info("supervisor.task.retry",
				"task_id", task.ID, "retry_task_id", id, "attempt", task.Attempt+1)
		}
	}()
}
