// Package duet provides a high-level façade over the dual-agent coordination
// core: a latency-critical conversational agent keeps talking while a
// background processing agent executes slow, blocking operations without
// stalling the conversation. Most applications interact with this package by:
//  1. Creating a Duet via New() (optionally overriding polling, caching and
//     concurrency defaults)
//  2. Registering tool callables for the task types they support
//  3. Opening one session per conversation and using its queue/aggregator
//     through the producer contract (Delegate / Collect / Context)
//
// Everything is in-memory and session-scoped by design: no durability across
// restarts, no cross-process coordination, no wire protocol.
package duet

import (
	"context"
	"time"

	"github.com/voxlane/duet/agent"
	"github.com/voxlane/duet/aggregator"
	"github.com/voxlane/duet/core"
	"github.com/voxlane/duet/logging"
	"github.com/voxlane/duet/model"
	"github.com/voxlane/duet/queue"
	"github.com/voxlane/duet/session"
	"github.com/voxlane/duet/tool"
)

// Options configure a Duet instance. Zero values fall back to the package
// defaults noted per field.
type Options struct {
	// PollInterval is the processing agent's pause between queue polls
	// (default 500ms).
	PollInterval time.Duration
	// PollBatch is how many pending tasks one poll inspects (default 5).
	PollBatch int
	// MaxExecutors bounds concurrent task executors per session (default 4).
	MaxExecutors int64
	// MaxHistoryTurns bounds each session's sliding conversation window
	// (default 5).
	MaxHistoryTurns int
	// MaxCachedResults bounds each session's tool result cache (default 128).
	MaxCachedResults int
	// ResultTTL is how long cached tool results stay visible (default 5m).
	ResultTTL time.Duration
	// SupervisorInterval is the pause between timeout-enforcement ticks
	// (default 1s). Set EnableSupervisor to false to opt out entirely.
	SupervisorInterval time.Duration
	// EnableSupervisor turns timeout enforcement and task GC on (default
	// true; without it timeouts are only reported, matching the raw queue
	// contract).
	EnableSupervisor bool
	// Retry re-enqueues timed-out tasks with bounded exponential backoff.
	// Nil (the default) means no automatic retry.
	Retry *agent.RetryPolicy
	// CleanupMaxAge bounds how long terminal tasks stay in memory (default 1h).
	CleanupMaxAge time.Duration
	// Reasoner, when set, wraps tool dispatch with model-backed query
	// refinement and result synthesis.
	Reasoner model.Model
	// Logger receives structured events (default NoOp).
	Logger logging.Logger
}

// Duet is the façade owning the shared tool registry and the session
// registry. One Duet serves many concurrent conversations; all mutable state
// lives in per-session values.
type Duet struct {
	opts     Options
	registry *tool.Registry
	sessions *session.Manager
}

// New creates a Duet with optional overrides.
func New(optFns ...func(o *Options)) *Duet {
	opts := Options{
		PollInterval:       agent.DefaultPollInterval,
		PollBatch:          agent.DefaultPollBatch,
		MaxExecutors:       agent.DefaultMaxExecutors,
		MaxHistoryTurns:    aggregator.DefaultMaxHistoryTurns,
		MaxCachedResults:   aggregator.DefaultMaxCachedResults,
		ResultTTL:          aggregator.DefaultResultTTL,
		SupervisorInterval: agent.DefaultSupervisorInterval,
		EnableSupervisor:   true,
		CleanupMaxAge:      agent.DefaultCleanupMaxAge,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	d := &Duet{opts: opts, registry: tool.NewRegistry()}
	d.sessions = session.NewManager(d.buildSession)
	return d
}

// RegisterTool binds a tool to a task type for all sessions.
func (d *Duet) RegisterTool(taskType core.TaskType, t tool.Tool) {
	d.registry.Register(taskType, t)
}

// RegisterFunc binds a plain function as the tool for a task type.
func (d *Duet) RegisterFunc(
	taskType core.TaskType,
	description string,
	fn func(ctx context.Context, query string, args map[string]any) (any, error),
) {
	d.registry.RegisterFunc(taskType, description, fn)
}

// ValidateTools checks that every listed task type has a tool bound, so
// dispatch misses surface at startup rather than mid-conversation.
func (d *Duet) ValidateTools(required ...core.TaskType) error {
	return d.registry.Validate(required...)
}

// OpenSession creates, wires and starts the per-conversation pieces: task
// queue, context aggregator, processing agent and (unless disabled) the
// timeout supervisor.
func (d *Duet) OpenSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return d.sessions.Open(ctx, sessionID)
}

// Session returns a live session, false if unknown.
func (d *Duet) Session(sessionID string) (*session.Session, bool) {
	return d.sessions.Get(sessionID)
}

// EndSession stops the session's background worker and discards its state.
func (d *Duet) EndSession(sessionID string) error {
	return d.sessions.End(sessionID)
}

// buildSession is the session.Factory wiring one conversation's components.
func (d *Duet) buildSession(sessionID string) *session.Session {
	logger := logging.WithSession(d.opts.Logger, sessionID)

	q := queue.New()
	agg := aggregator.New(sessionID, func(o *aggregator.Options) {
		o.MaxHistoryTurns = d.opts.MaxHistoryTurns
		o.MaxCachedResults = d.opts.MaxCachedResults
	})

	var reasoner *agent.Reasoner
	if d.opts.Reasoner != nil {
		reasoner = agent.NewReasoner(d.opts.Reasoner, logger)
	}

	worker := agent.New(sessionID, q, agg, d.registry, func(o *agent.Options) {
		o.PollInterval = d.opts.PollInterval
		o.PollBatch = d.opts.PollBatch
		o.MaxExecutors = d.opts.MaxExecutors
		o.ResultTTL = d.opts.ResultTTL
		o.Reasoner = reasoner
		o.Logger = logger
	})

	var supervisor *agent.Supervisor
	if d.opts.EnableSupervisor {
		supervisor = agent.NewSupervisor(q, func(o *agent.SupervisorOptions) {
			o.Interval = d.opts.SupervisorInterval
			o.Retry = d.opts.Retry
			o.CleanupMaxAge = d.opts.CleanupMaxAge
			o.Logger = logger
		})
	}

	return &session.Session{
		ID:         sessionID,
		Queue:      q,
		Context:    agg,
		Agent:      worker,
		Supervisor: supervisor,
	}
}
