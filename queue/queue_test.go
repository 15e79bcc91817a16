package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/duet/core"
)

func TestPush_PriorityOrdering(t *testing.T) {
	q := New()

	h := q.Push(core.TaskKBSearch, "H", WithPriority(core.PriorityHigh))
	m := q.Push(core.TaskDBQuery, "M", WithPriority(core.PriorityMedium))
	h2 := q.Push(core.TaskKBSearch, "H2", WithPriority(core.PriorityHigh))

	pending := q.Pending(10)
	require.Len(t, pending, 3)
	// HIGH before MEDIUM, ties broken by insertion order.
	assert.Equal(t, []string{h, h2, m}, []string{pending[0].ID, pending[1].ID, pending[2].ID})
}

func TestPush_Defaults(t *testing.T) {
	q := New()
	id := q.Push(core.TaskCompute, "sum it")

	task, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, core.PriorityMedium, task.Priority)
	assert.Equal(t, core.StatusPending, task.Status)
	assert.Equal(t, core.DefaultFiller, task.FillerMessage)
	assert.Equal(t, DefaultTimeout, task.TimeoutThreshold)
	assert.NotNil(t, task.Context)
	assert.Zero(t, task.Attempt)
}

func TestPush_InvalidPriorityFallsBack(t *testing.T) {
	q := New()
	id := q.Push(core.TaskCompute, "x", WithPriority(core.TaskPriority("URGENT")))
	task, _ := q.Get(id)
	assert.Equal(t, core.PriorityMedium, task.Priority)
}

func TestPending_Limit(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Push(core.TaskCompute, "t")
	}
	assert.Len(t, q.Pending(3), 3)
	assert.Len(t, q.Pending(10), 5)
	assert.Len(t, q.Pending(-1), 5)
}

func TestClaim_RemovesFromPending(t *testing.T) {
	q := New()
	id := q.Push(core.TaskKBSearch, "q")

	task, ok := q.Claim(id)
	require.True(t, ok)
	assert.Equal(t, core.StatusInProgress, task.Status)
	assert.False(t, task.StartedAt.IsZero())
	assert.Empty(t, q.Pending(10))

	// Second claim must fail: at-most-once dispatch.
	_, ok = q.Claim(id)
	assert.False(t, ok)
}

func TestClaim_ConcurrentAtMostOnce(t *testing.T) {
	q := New()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = q.Push(core.TaskCompute, "t")
	}

	var mu sync.Mutex
	claims := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range ids {
				if _, ok := q.Claim(id); ok {
					mu.Lock()
					claims[id]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	require.Len(t, claims, 50)
	for id, n := range claims {
		assert.Equalf(t, 1, n, "task %s claimed %d times", id, n)
	}
}

func TestComplete_StoresResult(t *testing.T) {
	q := New()
	id := q.Push(core.TaskKBSearch, "q")
	q.Claim(id)
	q.Complete(id, map[string]any{"answer": "42"})

	task, _ := q.Get(id)
	assert.Equal(t, core.StatusCompleted, task.Status)
	assert.False(t, task.CompletedAt.IsZero())
	assert.Equal(t, map[string]any{"answer": "42"}, q.Result(id))
}

func TestResult_NilUnlessCompleted(t *testing.T) {
	q := New()
	id := q.Push(core.TaskKBSearch, "q")
	assert.Nil(t, q.Result(id)) // PENDING

	q.Claim(id)
	assert.Nil(t, q.Result(id)) // IN_PROGRESS

	q.Fail(id, "boom")
	assert.Nil(t, q.Result(id)) // FAILED

	assert.Nil(t, q.Result("no-such-task")) // not found is nil, not an error
}

func TestTerminalStatus_Immutable(t *testing.T) {
	q := New()
	id := q.Push(core.TaskKBSearch, "q")
	q.Claim(id)
	q.Complete(id, "first")

	q.Fail(id, "late failure")
	q.Complete(id, "second")

	task, _ := q.Get(id)
	assert.Equal(t, core.StatusCompleted, task.Status)
	assert.Equal(t, "first", task.Result)
	assert.Empty(t, task.Error)
	assert.Empty(t, q.Pending(10), "terminal task must never re-enter pending")
}

func TestFail_FromPendingRemovesFromPending(t *testing.T) {
	q := New()
	id := q.Push(core.TaskKBSearch, "q")
	q.Fail(id, "rejected before claim")

	task, _ := q.Get(id)
	assert.Equal(t, core.StatusFailed, task.Status)
	assert.Empty(t, q.Pending(10))
}

func TestTimedOut_ReportsWithoutFailing(t *testing.T) {
	q := New()
	fast := q.Push(core.TaskAPICall, "slow call", WithTimeoutThreshold(time.Millisecond))
	ok := q.Push(core.TaskAPICall, "fine call", WithTimeoutThreshold(time.Minute))
	q.Claim(fast)
	q.Claim(ok)

	time.Sleep(5 * time.Millisecond)

	overdue := q.TimedOut()
	require.Len(t, overdue, 1)
	assert.Equal(t, fast, overdue[0].ID)

	// Reporting never changes status: enforcement is the supervisor's job.
	task, _ := q.Get(fast)
	assert.Equal(t, core.StatusInProgress, task.Status)
}

func TestRequeue_IncrementsAttempt(t *testing.T) {
	q := New()
	id := q.Push(core.TaskDBQuery, "lookup", WithPriority(core.PriorityHigh))
	task, _ := q.Get(id)

	retryID := q.Requeue(task)
	assert.NotEqual(t, id, retryID, "ids are never reused")

	retry, ok := q.Get(retryID)
	require.True(t, ok)
	assert.Equal(t, 1, retry.Attempt)
	assert.Equal(t, core.StatusPending, retry.Status)
	assert.Equal(t, task.Query, retry.Query)
	assert.Equal(t, task.Priority, retry.Priority)
}

func TestCleanup_PurgesOldTerminalTasks(t *testing.T) {
	q := New()
	done := q.Push(core.TaskCompute, "done")
	live := q.Push(core.TaskCompute, "live")
	q.Claim(done)
	q.Complete(done, "r")

	time.Sleep(5 * time.Millisecond)
	removed := q.Cleanup(time.Millisecond)
	assert.Equal(t, 1, removed)

	_, ok := q.Get(done)
	assert.False(t, ok)
	_, ok = q.Get(live)
	assert.True(t, ok, "pending tasks survive cleanup")
}

func TestStats(t *testing.T) {
	q := New()
	a := q.Push(core.TaskCompute, "a")
	b := q.Push(core.TaskCompute, "b")
	q.Push(core.TaskCompute, "c")
	q.Claim(a)
	q.Claim(b)
	q.Complete(a, "r")
	q.Fail(b, "e")

	s := q.Stats()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 0, s.InProgress)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
}
