package memqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/domonda/go-types/nullable"
	"github.com/domonda/go-types/uu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	workqueue "github.com/pguyard-esurv/go-workqueue"
	"github.com/pguyard-esurv/go-workqueue/memqueue"
)

func enqueue(t *testing.T, q *memqueue.Queue, queue string, numTasks int) {
	t.Helper()

	tasks := make([]*workqueue.Task, numTasks)
	for i := range tasks {
		task, err := workqueue.NewTask(queue, map[string]int{"n": i})
		require.NoError(t, err)
		tasks[i] = task
	}
	require.NoError(t, q.InsertTasks(context.Background(), tasks))
}

func TestClaimTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue claims nothing", func(t *testing.T) {
		q := memqueue.NewQueue()
		tasks, err := q.ClaimTasks(ctx, "orders", 10, uu.IDv4())
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("oldest tasks first", func(t *testing.T) {
		q := memqueue.NewQueue()
		enqueue(t, q, "orders", 5)

		tasks, err := q.ClaimTasks(ctx, "orders", 3, uu.IDv4())
		require.NoError(t, err)
		require.Len(t, tasks, 3)
		assert.Equal(t, int64(1), tasks[0].ID)
		assert.Equal(t, int64(2), tasks[1].ID)
		assert.Equal(t, int64(3), tasks[2].ID)
	})

	t.Run("claim marks ownership", func(t *testing.T) {
		q := memqueue.NewQueue()
		enqueue(t, q, "orders", 1)

		claimedBy := uu.IDv4()
		tasks, err := q.ClaimTasks(ctx, "orders", 1, claimedBy)
		require.NoError(t, err)
		require.Len(t, tasks, 1)

		task := tasks[0]
		assert.Equal(t, workqueue.TaskStateProcessing, task.State)
		assert.True(t, task.ClaimedBy.IsNotNull())
		assert.Equal(t, claimedBy, uu.ID(task.ClaimedBy))
		assert.True(t, task.ClaimedAt.IsNotNull())
	})

	t.Run("queues are independent", func(t *testing.T) {
		q := memqueue.NewQueue()
		enqueue(t, q, "orders", 2)
		enqueue(t, q, "invoices", 3)

		tasks, err := q.ClaimTasks(ctx, "invoices", 10, uu.IDv4())
		require.NoError(t, err)
		assert.Len(t, tasks, 3)

		status, err := q.GetStatus(ctx, "orders")
		require.NoError(t, err)
		assert.Equal(t, 2, status.NumPending)
	})
}

func TestConcurrentClaimsNeverOverlap(t *testing.T) {
	ctx := context.Background()

	const (
		numTasks    = 200
		numClaimers = 10
		batchSize   = 7
	)

	q := memqueue.NewQueue()
	enqueue(t, q, "orders", numTasks)

	var (
		mtx     sync.Mutex
		claimed = make(map[int64]uu.ID)
		wg      sync.WaitGroup
	)
	for range numClaimers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			claimedBy := uu.IDv4()
			for {
				tasks, err := q.ClaimTasks(ctx, "orders", batchSize, claimedBy)
				if !assert.NoError(t, err) || len(tasks) == 0 {
					return
				}
				mtx.Lock()
				for _, task := range tasks {
					owner, alreadyClaimed := claimed[task.ID]
					assert.False(t, alreadyClaimed, "task %d claimed by both %s and %s", task.ID, owner, claimedBy)
					claimed[task.ID] = claimedBy
				}
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, numTasks, "every task claimed exactly once")

	status, err := q.GetStatus(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, numTasks, status.NumProcessing)
}

func TestClaimFairness(t *testing.T) {
	ctx := context.Background()

	q := memqueue.NewQueue()
	enqueue(t, q, "orders", 15)

	// Three claimers with batch size 5 drain 15 tasks without overlap
	seen := make(map[int64]bool)
	for range 3 {
		tasks, err := q.ClaimTasks(ctx, "orders", 5, uu.IDv4())
		require.NoError(t, err)
		require.Len(t, tasks, 5)
		for _, task := range tasks {
			assert.False(t, seen[task.ID])
			seen[task.ID] = true
		}
	}
	assert.Len(t, seen, 15)
}

func TestCompleteTask(t *testing.T) {
	ctx := context.Background()

	q := memqueue.NewQueue()
	enqueue(t, q, "orders", 1)

	claimedBy := uu.IDv4()
	tasks, err := q.ClaimTasks(ctx, "orders", 1, claimedBy)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	taskID := tasks[0].ID

	t.Run("foreign instance cannot complete", func(t *testing.T) {
		err := q.CompleteTask(ctx, taskID, uu.IDv4(), nullable.JSON(`"stolen"`))
		assert.ErrorIs(t, err, workqueue.ErrOwnershipConflict)
	})

	t.Run("owner completes", func(t *testing.T) {
		require.NoError(t, q.CompleteTask(ctx, taskID, claimedBy, nullable.JSON(`"done"`)))

		task, err := q.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, workqueue.TaskStateCompleted, task.State)
		assert.Equal(t, `"done"`, string(task.Result))
		assert.True(t, task.CompletedAt.IsNotNull())
		assert.True(t, task.ClaimedBy.IsNull())
	})

	t.Run("completion is not repeatable", func(t *testing.T) {
		err := q.CompleteTask(ctx, taskID, claimedBy, nullable.JSON(`"again"`))
		assert.ErrorIs(t, err, workqueue.ErrOwnershipConflict)
	})

	t.Run("unknown task", func(t *testing.T) {
		err := q.CompleteTask(ctx, 9999, claimedBy, nullable.JSON(`null`))
		assert.ErrorIs(t, err, workqueue.ErrOwnershipConflict)
	})
}

func TestFailTaskRetryBudget(t *testing.T) {
	ctx := context.Background()

	const maxRetries = 3

	q := memqueue.NewQueue()
	enqueue(t, q, "orders", 1)

	claimedBy := uu.IDv4()

	// Attempts 1 and 2 requeue, attempt 3 exhausts the budget
	for attempt := 1; attempt < maxRetries; attempt++ {
		tasks, err := q.ClaimTasks(ctx, "orders", 1, claimedBy)
		require.NoError(t, err)
		require.Len(t, tasks, 1)

		require.NoError(t, q.FailTask(ctx, tasks[0].ID, claimedBy, "transient", maxRetries))

		task, err := q.GetTask(ctx, tasks[0].ID)
		require.NoError(t, err)
		assert.Equal(t, workqueue.TaskStatePending, task.State)
		assert.Equal(t, attempt, task.RetryCount)
		assert.True(t, task.ClaimedBy.IsNull())
		assert.True(t, task.ClaimedAt.IsNull())
		assert.True(t, task.ErrorMsg.IsNull(), "error message only recorded on the terminal failure")
	}

	tasks, err := q.ClaimTasks(ctx, "orders", 1, claimedBy)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, q.FailTask(ctx, tasks[0].ID, claimedBy, "permanent", maxRetries))

	task, err := q.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, workqueue.TaskStateFailed, task.State)
	assert.Equal(t, maxRetries-1, task.RetryCount)
	assert.Equal(t, "permanent", string(task.ErrorMsg))
	assert.True(t, task.CompletedAt.IsNotNull())
	assert.True(t, task.ClaimedBy.IsNull())

	// Terminal tasks stay terminal
	claimable, err := q.ClaimTasks(ctx, "orders", 1, claimedBy)
	require.NoError(t, err)
	assert.Empty(t, claimable)
}

func TestFailTaskOwnership(t *testing.T) {
	ctx := context.Background()

	q := memqueue.NewQueue()
	enqueue(t, q, "orders", 1)

	claimedBy := uu.IDv4()
	tasks, err := q.ClaimTasks(ctx, "orders", 1, claimedBy)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	err = q.FailTask(ctx, tasks[0].ID, uu.IDv4(), "not mine", 3)
	assert.ErrorIs(t, err, workqueue.ErrOwnershipConflict)
}

func TestReclaimOrphanTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("reclaim preserves retry count", func(t *testing.T) {
		q := memqueue.NewQueue()
		enqueue(t, q, "orders", 1)

		claimedBy := uu.IDv4()
		tasks, err := q.ClaimTasks(ctx, "orders", 1, claimedBy)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		require.NoError(t, q.FailTask(ctx, tasks[0].ID, claimedBy, "transient", 3))

		tasks, err = q.ClaimTasks(ctx, "orders", 1, claimedBy)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, 1, tasks[0].RetryCount)

		count, err := q.ReclaimOrphanTasks(ctx, "orders", time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		task, err := q.GetTask(ctx, tasks[0].ID)
		require.NoError(t, err)
		assert.Equal(t, workqueue.TaskStatePending, task.State)
		assert.Equal(t, 1, task.RetryCount, "a crashed worker is not a failed attempt")
		assert.True(t, task.ClaimedBy.IsNull())
		assert.True(t, task.ClaimedAt.IsNull())
	})

	t.Run("reclaiming twice is idempotent", func(t *testing.T) {
		q := memqueue.NewQueue()
		enqueue(t, q, "orders", 3)

		_, err := q.ClaimTasks(ctx, "orders", 3, uu.IDv4())
		require.NoError(t, err)

		count, err := q.ReclaimOrphanTasks(ctx, "orders", time.Now())
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		count, err = q.ReclaimOrphanTasks(ctx, "orders", time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("fresh claims survive an old cutoff", func(t *testing.T) {
		q := memqueue.NewQueue()
		enqueue(t, q, "orders", 1)

		cutoff := time.Now().Add(-time.Minute)

		_, err := q.ClaimTasks(ctx, "orders", 1, uu.IDv4())
		require.NoError(t, err)

		count, err := q.ReclaimOrphanTasks(ctx, "orders", cutoff)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("reclaim only touches the passed queue", func(t *testing.T) {
		q := memqueue.NewQueue()
		enqueue(t, q, "orders", 1)
		enqueue(t, q, "invoices", 1)

		_, err := q.ClaimTasks(ctx, "orders", 1, uu.IDv4())
		require.NoError(t, err)
		_, err = q.ClaimTasks(ctx, "invoices", 1, uu.IDv4())
		require.NoError(t, err)

		count, err := q.ReclaimOrphanTasks(ctx, "orders", time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		status, err := q.GetStatus(ctx, "invoices")
		require.NoError(t, err)
		assert.Equal(t, 1, status.NumProcessing)
	})
}

// TestCrashRecoveryScenario replays a worker crash. Instance A claims a
// batch and dies without completing anything, then a reclaim hands all
// work back and instance B drains the queue.
func TestCrashRecoveryScenario(t *testing.T) {
	ctx := context.Background()

	q := memqueue.NewQueue()
	enqueue(t, q, "orders", 20)

	instanceA := uu.IDv4()
	tasksA, err := q.ClaimTasks(ctx, "orders", 10, instanceA)
	require.NoError(t, err)
	require.Len(t, tasksA, 10)

	// A crashes here. A zero grace period reclaims everything in flight.
	count, err := q.ReclaimOrphanTasks(ctx, "orders", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	status, err := q.GetStatus(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, &workqueue.Status{NumPending: 20}, status)

	instanceB := uu.IDv4()
	tasksB, err := q.ClaimTasks(ctx, "orders", 20, instanceB)
	require.NoError(t, err)
	require.Len(t, tasksB, 20)

	// A's late completions must not disturb B's ownership
	err = q.CompleteTask(ctx, tasksA[0].ID, instanceA, nullable.JSON(`"late"`))
	assert.ErrorIs(t, err, workqueue.ErrOwnershipConflict)

	for i, task := range tasksB {
		if i < 18 {
			require.NoError(t, q.CompleteTask(ctx, task.ID, instanceB, nullable.JSON(`"ok"`)))
		} else {
			require.NoError(t, q.FailTask(ctx, task.ID, instanceB, "unprocessable", 1))
		}
	}

	status, err = q.GetStatus(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, &workqueue.Status{NumCompleted: 18, NumFailed: 2}, status)
	assert.Equal(t, 20, status.Total(), "no task lost, none duplicated")

	failed, err := q.GetFailedTasks(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}

func TestInsertedTasksAreCopied(t *testing.T) {
	ctx := context.Background()

	q := memqueue.NewQueue()

	task, err := workqueue.NewTask("orders", "{}")
	require.NoError(t, err)
	require.NoError(t, q.InsertTasks(ctx, []*workqueue.Task{task}))

	// Mutations of the caller's task must not leak into the queue
	task.State = workqueue.TaskStateCompleted

	status, err := q.GetStatus(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, status.NumPending)
}

func TestClosedQueue(t *testing.T) {
	ctx := context.Background()

	q := memqueue.NewQueue()
	enqueue(t, q, "orders", 1)
	require.NoError(t, q.Close())

	_, err := q.ClaimTasks(ctx, "orders", 1, uu.IDv4())
	assert.ErrorIs(t, err, workqueue.ErrClosed)

	err = q.InsertTasks(ctx, []*workqueue.Task{{}})
	assert.ErrorIs(t, err, workqueue.ErrClosed)

	_, err = q.GetStatus(ctx, "orders")
	assert.ErrorIs(t, err, workqueue.ErrClosed)

	assert.ErrorIs(t, q.Ping(ctx), workqueue.ErrClosed)
	assert.ErrorIs(t, q.Close(), workqueue.ErrClosed)
}
