package aggregator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/duet/core"
)

func TestUpdateAttribute_Upsert(t *testing.T) {
	agg := New("s1")
	agg.UpdateAttribute("name", "Ada")
	agg.UpdateAttribute("name", "Grace")

	attrs := agg.Attributes()
	assert.Equal(t, "Grace", attrs["name"])
	assert.Len(t, attrs, 1)
}

func TestAttributes_ReturnsCopy(t *testing.T) {
	agg := New("s1")
	agg.UpdateAttribute("phone", "555")
	attrs := agg.Attributes()
	attrs["phone"] = "mutated"
	assert.Equal(t, "555", agg.Attributes()["phone"])
}

func TestCheckRequiredFields(t *testing.T) {
	agg := New("s1")
	agg.UpdateAttribute("name", "Ada")

	got := agg.CheckRequiredFields([]string{"name", "phone"})
	assert.Equal(t, map[string]bool{"name": true, "phone": false}, got)
}

func TestAddExchange_SlidingWindow(t *testing.T) {
	agg := New("s1", func(o *Options) { o.MaxHistoryTurns = 5 })

	for i := 1; i <= 9; i++ {
		agg.AddExchange(core.SpeakerUser, fmt.Sprintf("turn %d", i))
	}

	snap := agg.Snapshot()
	require.Len(t, snap.RecentExchanges, 5)
	assert.Equal(t, "turn 5", snap.RecentExchanges[0].Content)
	assert.Equal(t, "turn 9", snap.RecentExchanges[4].Content)

	recent := agg.RecentContext(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "turn 7", recent[0].Content)
	assert.Equal(t, "turn 8", recent[1].Content)
	assert.Equal(t, "turn 9", recent[2].Content)
}

func TestAddExchange_Options(t *testing.T) {
	agg := New("s1")
	agg.AddExchange(core.SpeakerAgent, "the answer is 42",
		WithNodeID("qa"), WithFunctionCalled("kb_search"))

	turn := agg.RecentContext(1)[0]
	assert.Equal(t, core.SpeakerAgent, turn.Speaker)
	assert.Equal(t, "qa", turn.NodeID)
	assert.Equal(t, "kb_search", turn.FunctionCalled)
	assert.False(t, turn.Timestamp.IsZero())
}

func TestCacheResult_RoundTripAndExpiry(t *testing.T) {
	agg := New("s1")
	agg.CacheResult(core.TaskKBSearch, "fee structure", map[string]any{"answer": "42"}, 30*time.Millisecond)

	got := agg.CachedResult(core.TaskKBSearch, "fee structure")
	assert.Equal(t, map[string]any{"answer": "42"}, got)

	time.Sleep(40 * time.Millisecond)
	assert.Nil(t, agg.CachedResult(core.TaskKBSearch, "fee structure"))
	// Expired entry was evicted on access.
	assert.Zero(t, agg.Stats().CachedResults)
}

func TestCacheResult_KeyedByQuery(t *testing.T) {
	agg := New("s1")
	agg.CacheResult(core.TaskKBSearch, "fees", "fee answer", time.Minute)
	agg.CacheResult(core.TaskKBSearch, "refunds", "refund answer", time.Minute)

	// Distinct queries against the same tool never clobber each other.
	assert.Equal(t, "fee answer", agg.CachedResult(core.TaskKBSearch, "fees"))
	assert.Equal(t, "refund answer", agg.CachedResult(core.TaskKBSearch, "refunds"))
	assert.Nil(t, agg.CachedResult(core.TaskDBQuery, "fees"))
}

func TestCacheResult_NormalizesQuery(t *testing.T) {
	agg := New("s1")
	agg.CacheResult(core.TaskKBSearch, "Fee Structure", "answer", time.Minute)
	assert.Equal(t, "answer", agg.CachedResult(core.TaskKBSearch, "  fee structure "))
}

func TestWaitingHandshake(t *testing.T) {
	agg := New("s1")
	agg.SetWaiting("t1", "Looking into that…")

	taskID, filler := agg.Waiting()
	assert.Equal(t, "t1", taskID)
	assert.Equal(t, "Looking into that…", filler)

	agg.ClearWaiting()
	taskID, filler = agg.Waiting()
	assert.Empty(t, taskID)
	assert.Empty(t, filler)
}

func TestWaitingHandshake_SingleSlot(t *testing.T) {
	agg := New("s1")
	agg.SetWaiting("t1", "one")
	agg.SetWaiting("t2", "two")

	taskID, _ := agg.Waiting()
	assert.Equal(t, "t2", taskID, "at most one outstanding task id")
}

func TestCanSpeakNext_Threshold(t *testing.T) {
	agg := New("s1")
	assert.False(t, agg.CanSpeakNext(), "no playback progress yet")

	agg.UpdateTTSProgress(0.89)
	assert.False(t, agg.CanSpeakNext())

	agg.UpdateTTSProgress(0.9)
	assert.True(t, agg.CanSpeakNext())

	agg.UpdateTTSProgress(1.0)
	assert.True(t, agg.CanSpeakNext())
}

func TestFlowBookkeeping(t *testing.T) {
	agg := New("s1")
	agg.SetFlow([]core.FlowNode{
		{ID: "greet", Type: core.NodeInstruction, Prompt: "Hello"},
		{ID: "ask_name", Type: core.NodeQuestion, Prompt: "Your name?", RequiredFields: []string{"name"}},
		{ID: "lookup", Type: core.NodeTool},
	})

	snap := agg.Snapshot()
	assert.Equal(t, []string{"greet", "ask_name", "lookup"}, snap.PendingNodes)

	agg.AdvanceToNode("greet")
	node, ok := agg.CurrentNode()
	require.True(t, ok)
	assert.Equal(t, core.NodeInstruction, node.Type)

	// Advancing implicitly completes the previous node.
	agg.AdvanceToNode("ask_name")
	snap = agg.Snapshot()
	assert.Contains(t, snap.CompletedNodes, "greet")
	assert.NotContains(t, snap.PendingNodes, "greet")
	assert.Equal(t, "ask_name", snap.CurrentNode)

	// MarkNodeComplete is idempotent.
	agg.MarkNodeComplete("ask_name")
	agg.MarkNodeComplete("ask_name")
	snap = agg.Snapshot()
	assert.Equal(t, []string{"greet", "ask_name"}, snap.CompletedNodes)
}

func TestCurrentNode_NoneSelected(t *testing.T) {
	agg := New("s1")
	_, ok := agg.CurrentNode()
	assert.False(t, ok)
}

func TestUpdatePhase(t *testing.T) {
	agg := New("s1")
	assert.Equal(t, core.PhaseGreeting, agg.Snapshot().Phase)

	agg.UpdatePhase(core.PhaseOpenEndedQA)
	assert.Equal(t, core.PhaseOpenEndedQA, agg.Snapshot().Phase)
}

func TestStats(t *testing.T) {
	agg := New("s1")
	agg.UpdateAttribute("name", "Ada")
	agg.AddExchange(core.SpeakerUser, "hi")
	agg.CacheResult(core.TaskKBSearch, "q", "r", time.Minute)
	agg.SetWaiting("t1", "hold on")

	s := agg.Stats()
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, 1, s.Attributes)
	assert.Equal(t, 1, s.Turns)
	assert.Equal(t, 1, s.CachedResults)
	assert.True(t, s.WaitingForTask)
	assert.GreaterOrEqual(t, s.Uptime, time.Duration(0))
}
