package aggregator

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/voxlane/duet/core"
)

const (
	// DefaultMaxHistoryTurns bounds the sliding window of recent exchanges.
	DefaultMaxHistoryTurns = 5
	// DefaultResultTTL is how long a cached tool result stays visible.
	DefaultResultTTL = 5 * time.Minute
	// DefaultMaxCachedResults bounds the LRU backing the result cache.
	DefaultMaxCachedResults = 128
)

// Options configure a ContextAggregator.
type Options struct {
	// MaxHistoryTurns bounds the sliding window of recent exchanges.
	MaxHistoryTurns int
	// MaxCachedResults bounds the LRU backing the tool result cache.
	MaxCachedResults int
}

// Stats is a read-only snapshot of aggregator state for dashboards.
type Stats struct {
	SessionID      string                 `json:"session_id"`
	Phase          core.ConversationPhase `json:"phase"`
	CompletedNodes int                    `json:"completed_nodes"`
	PendingNodes   int                    `json:"pending_nodes"`
	Attributes     int                    `json:"collected_attributes"`
	Turns          int                    `json:"conversation_turns"`
	CachedResults  int                    `json:"cached_results"`
	WaitingForTask bool                   `json:"waiting_for_task"`
	Uptime         time.Duration          `json:"uptime"`
}

// cacheEntry holds a cached tool result with the timestamp it was stored and
// its per-entry TTL.
type cacheEntry struct {
	result   any
	cachedAt time.Time
	ttl      time.Duration
}

// ContextAggregator is the thread-safe holder of a ConversationContext. All
// public methods acquire the single per-session mutex for their full duration.
type ContextAggregator struct {
	mu   sync.Mutex
	ctx  *core.ConversationContext
	flow []core.FlowNode

	// Tool results keyed by (tool name, normalized query) so distinct queries
	// against the same tool never overwrite each other.
	results    *lru.Cache[string, cacheEntry]
	defaultTTL time.Duration
}

// New constructs an aggregator for a session.
func New(sessionID string, optFns ...func(o *Options)) *ContextAggregator {
	opts := Options{
		MaxHistoryTurns:  DefaultMaxHistoryTurns,
		MaxCachedResults: DefaultMaxCachedResults,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxCachedResults <= 0 {
		opts.MaxCachedResults = DefaultMaxCachedResults
	}
	// lru.New only errors on a non-positive size, guarded above.
	results, _ := lru.New[string, cacheEntry](opts.MaxCachedResults)
	return &ContextAggregator{
		ctx:        core.NewConversationContext(sessionID, opts.MaxHistoryTurns),
		results:    results,
		defaultTTL: DefaultResultTTL,
	}
}

// SessionID returns the session this aggregator belongs to.
func (a *ContextAggregator) SessionID() string { return a.ctx.SessionID }

// Snapshot returns a deep copy of the conversation context.
func (a *ContextAggregator) Snapshot() *core.ConversationContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx.Clone()
}

// UpdateAttribute upserts one collected user attribute.
func (a *ContextAggregator) UpdateAttribute(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.UserAttributes[key] = value
	a.ctx.UpdatedAt = time.Now()
}

// Attributes returns a copy of all collected user attributes.
func (a *ContextAggregator) Attributes() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]any, len(a.ctx.UserAttributes))
	for k, v := range a.ctx.UserAttributes {
		out[k] = v
	}
	return out
}

// CheckRequiredFields reports, per field, whether it has been collected.
func (a *ContextAggregator) CheckRequiredFields(required []string) map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]bool, len(required))
	for _, f := range required {
		_, ok := a.ctx.UserAttributes[f]
		out[f] = ok
	}
	return out
}

// SetFlow installs the scripted conversation flow and seeds the pending node
// list from it.
func (a *ContextAggregator) SetFlow(flow []core.FlowNode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flow = append([]core.FlowNode{}, flow...)
	pending := make([]string, 0, len(flow))
	for _, n := range flow {
		pending = append(pending, n.ID)
	}
	a.ctx.PendingNodes = pending
	a.ctx.UpdatedAt = time.Now()
}

// CurrentNode returns the flow node the conversation is positioned on, false
// when no node is current or the flow does not define it.
func (a *ContextAggregator) CurrentNode() (core.FlowNode, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx.CurrentNode == "" {
		return core.FlowNode{}, false
	}
	for _, n := range a.flow {
		if n.ID == a.ctx.CurrentNode {
			return n, true
		}
	}
	return core.FlowNode{}, false
}

// MarkNodeComplete records a node as completed. Idempotent.
func (a *ContextAggregator) MarkNodeComplete(nodeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.markNodeCompleteLocked(nodeID)
	a.ctx.UpdatedAt = time.Now()
}

// AdvanceToNode moves the conversation to a new node, implicitly completing
// the previous one.
func (a *ContextAggregator) AdvanceToNode(nodeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx.CurrentNode != "" {
		a.markNodeCompleteLocked(a.ctx.CurrentNode)
	}
	a.ctx.CurrentNode = nodeID
	a.ctx.UpdatedAt = time.Now()
}

func (a *ContextAggregator) markNodeCompleteLocked(nodeID string) {
	done := false
	for _, id := range a.ctx.CompletedNodes {
		if id == nodeID {
			done = true
			break
		}
	}
	if !done {
		a.ctx.CompletedNodes = append(a.ctx.CompletedNodes, nodeID)
	}
	for i, id := range a.ctx.PendingNodes {
		if id == nodeID {
			a.ctx.PendingNodes = append(a.ctx.PendingNodes[:i], a.ctx.PendingNodes[i+1:]...)
			break
		}
	}
}

// UpdatePhase moves the conversation to a new high-level phase.
func (a *ContextAggregator) UpdatePhase(phase core.ConversationPhase) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.Phase = phase
	a.ctx.UpdatedAt = time.Now()
}

// ExchangeOptions carry the optional fields of a conversation turn.
type ExchangeOptions struct {
	NodeID         string
	FunctionCalled string
}

// WithNodeID associates the turn with a flow node.
func WithNodeID(id string) func(*ExchangeOptions) {
	return func(o *ExchangeOptions) { o.NodeID = id }
}

// WithFunctionCalled records the tool invoked during the turn.
func WithFunctionCalled(name string) func(*ExchangeOptions) {
	return func(o *ExchangeOptions) { o.FunctionCalled = name }
}

// AddExchange appends a timestamped turn and trims the window to the last
// MaxHistoryTurns entries, oldest evicted first.
func (a *ContextAggregator) AddExchange(speaker core.Speaker, content string, optFns ...func(*ExchangeOptions)) {
	var opts ExchangeOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.RecentExchanges = append(a.ctx.RecentExchanges, core.ConversationTurn{
		Timestamp:      time.Now(),
		Speaker:        speaker,
		Content:        content,
		NodeID:         opts.NodeID,
		FunctionCalled: opts.FunctionCalled,
	})
	if limit := a.ctx.MaxHistoryTurns; len(a.ctx.RecentExchanges) > limit {
		a.ctx.RecentExchanges = append(
			[]core.ConversationTurn{},
			a.ctx.RecentExchanges[len(a.ctx.RecentExchanges)-limit:]...,
		)
	}
	a.ctx.UpdatedAt = time.Now()
}

// RecentContext returns up to maxTurns of the most recent exchanges in
// arrival order, for prompt construction.
func (a *ContextAggregator) RecentContext(maxTurns int) []core.ConversationTurn {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.ctx.RecentExchanges)
	if maxTurns < 0 || maxTurns > n {
		maxTurns = n
	}
	return append([]core.ConversationTurn{}, a.ctx.RecentExchanges[n-maxTurns:]...)
}

// CacheResult stores a tool result keyed by (tool name, normalized query).
// A non-positive ttl falls back to the default.
func (a *ContextAggregator) CacheResult(toolName core.TaskType, query string, result any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = a.defaultTTL
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results.Add(cacheKey(toolName, query), cacheEntry{
		result:   result,
		cachedAt: time.Now(),
		ttl:      ttl,
	})
	a.ctx.UpdatedAt = time.Now()
}

// CachedResult returns a still-valid cached result for (tool, query), or nil.
// Expired entries are evicted on access.
func (a *ContextAggregator) CachedResult(toolName core.TaskType, query string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := cacheKey(toolName, query)
	entry, ok := a.results.Get(key)
	if !ok {
		return nil
	}
	if time.Since(entry.cachedAt) > entry.ttl {
		a.results.Remove(key)
		return nil
	}
	return entry.result
}

// cacheKey combines tool name and normalized query. Keying by query as well
// keeps distinct lookups against the same tool from clobbering each other.
func cacheKey(toolName core.TaskType, query string) string {
	return string(toolName) + "\x00" + strings.ToLower(strings.TrimSpace(query))
}

// SetWaiting records the single outstanding task the conversational agent is
// waiting on, plus the filler it should speak meanwhile.
func (a *ContextAggregator) SetWaiting(taskID, fillerMessage string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.WaitingForTask = taskID
	a.ctx.LastFillerMessage = fillerMessage
	a.ctx.UpdatedAt = time.Now()
}

// ClearWaiting resets the task handshake slot.
func (a *ContextAggregator) ClearWaiting() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.WaitingForTask = ""
	a.ctx.LastFillerMessage = ""
	a.ctx.UpdatedAt = time.Now()
}

// Waiting returns the outstanding task id and filler, empty when none.
func (a *ContextAggregator) Waiting() (taskID, fillerMessage string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx.WaitingForTask, a.ctx.LastFillerMessage
}

// UpdateTTSProgress records synthesis playback progress in [0.0, 1.0].
func (a *ContextAggregator) UpdateTTSProgress(fraction float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.TTSFrameProgress = fraction
	a.ctx.LastTTSTimestamp = time.Now()
}

// CanSpeakNext applies the turn-taking overlap rule: the agent may speak once
// current playback is at least 90% complete.
func (a *ContextAggregator) CanSpeakNext() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx.TTSFrameProgress >= core.SpeakThreshold
}

// Stats returns a read-only snapshot for observability.
func (a *ContextAggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		SessionID:      a.ctx.SessionID,
		Phase:          a.ctx.Phase,
		CompletedNodes: len(a.ctx.CompletedNodes),
		PendingNodes:   len(a.ctx.PendingNodes),
		Attributes:     len(a.ctx.UserAttributes),
		Turns:          len(a.ctx.RecentExchanges),
		CachedResults:  a.results.Len(),
		WaitingForTask: a.ctx.WaitingForTask != "",
		Uptime:         time.Since(a.ctx.CreatedAt),
	}
}
