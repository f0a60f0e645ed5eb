package memqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/domonda/go-errs"
	"github.com/domonda/go-types/nullable"
	"github.com/domonda/go-types/uu"

	"github.com/pguyard-esurv/go-workqueue"
)

var _ workqueue.Queue = new(Queue)

// Queue implements workqueue.Queue in memory with the same transition
// semantics as the PostgreSQL backend. One mutex-guarded critical section
// per operation stands in for the store's transactional locking, which
// preserves the no-duplicate-claim guarantee within a single process.
type Queue struct {
	mtx    sync.Mutex
	tasks  map[int64]*workqueue.Task
	nextID int64
	closed bool
}

// NewQueue returns an empty in-memory Queue.
func NewQueue() *Queue {
	return &Queue{tasks: make(map[int64]*workqueue.Task)}
}

func (q *Queue) InsertTasks(ctx context.Context, tasks []*workqueue.Task) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, tasks)

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return workqueue.ErrClosed
	}

	for _, task := range tasks {
		q.nextID++
		// Store a copy so later caller mutations can't bypass the queue
		stored := *task
		stored.ID = q.nextID
		q.tasks[stored.ID] = &stored
	}
	return nil
}

func (q *Queue) ClaimTasks(ctx context.Context, queue string, batchSize int, claimedBy uu.ID) (tasks []*workqueue.Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue, batchSize, claimedBy)

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return nil, workqueue.ErrClosed
	}

	var pending []*workqueue.Task
	for _, task := range q.tasks {
		if task.Queue == queue && task.State == workqueue.TaskStatePending {
			pending = append(pending, task)
		}
	}
	// Oldest first, insertion order as tie-breaker
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	if len(pending) > batchSize {
		pending = pending[:batchSize]
	}

	now := time.Now()
	tasks = make([]*workqueue.Task, len(pending))
	for i, task := range pending {
		task.State = workqueue.TaskStateProcessing
		task.ClaimedBy.Set(claimedBy)
		task.ClaimedAt.Set(now)

		claimed := *task
		tasks[i] = &claimed
	}
	return tasks, nil
}

func (q *Queue) CompleteTask(ctx context.Context, taskID int64, claimedBy uu.ID, result nullable.JSON) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID, claimedBy)

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return workqueue.ErrClosed
	}

	task := q.tasks[taskID]
	if !ownedBy(task, claimedBy) {
		return workqueue.ErrOwnershipConflict
	}

	task.State = workqueue.TaskStateCompleted
	task.Result = result
	task.CompletedAt.Set(time.Now())
	task.ClaimedBy.SetNull()
	return nil
}

func (q *Queue) FailTask(ctx context.Context, taskID int64, claimedBy uu.ID, errorMsg string, maxRetries int) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID, claimedBy, errorMsg, maxRetries)

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return workqueue.ErrClosed
	}

	task := q.tasks[taskID]
	if !ownedBy(task, claimedBy) {
		return workqueue.ErrOwnershipConflict
	}

	if task.RetryCount+1 < maxRetries {
		task.State = workqueue.TaskStatePending
		task.RetryCount++
		task.ClaimedBy.SetNull()
		task.ClaimedAt.SetNull()
		return nil
	}

	task.State = workqueue.TaskStateFailed
	task.ErrorMsg.Set(errorMsg)
	task.CompletedAt.Set(time.Now())
	task.ClaimedBy.SetNull()
	return nil
}

func ownedBy(task *workqueue.Task, claimedBy uu.ID) bool {
	return task != nil &&
		task.State == workqueue.TaskStateProcessing &&
		task.ClaimedBy.IsNotNull() &&
		uu.ID(task.ClaimedBy) == claimedBy
}

func (q *Queue) ReclaimOrphanTasks(ctx context.Context, queue string, claimedBefore time.Time) (count int, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue, claimedBefore)

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return 0, workqueue.ErrClosed
	}

	for _, task := range q.tasks {
		if task.Queue != queue || task.State != workqueue.TaskStateProcessing {
			continue
		}
		if task.ClaimedAt.IsNull() || task.ClaimedAt.Get().After(claimedBefore) {
			continue
		}
		task.State = workqueue.TaskStatePending
		task.ClaimedBy.SetNull()
		task.ClaimedAt.SetNull()
		count++
	}
	return count, nil
}

func (q *Queue) GetTask(ctx context.Context, taskID int64) (task *workqueue.Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID)

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return nil, workqueue.ErrClosed
	}

	stored := q.tasks[taskID]
	if stored == nil {
		return nil, errs.Errorf("task %d not found", taskID)
	}
	task = new(workqueue.Task)
	*task = *stored
	return task, nil
}

func (q *Queue) GetFailedTasks(ctx context.Context, queue string) (tasks []*workqueue.Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue)

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return nil, workqueue.ErrClosed
	}

	for _, task := range q.tasks {
		if task.Queue == queue && task.State == workqueue.TaskStateFailed {
			failed := *task
			tasks = append(tasks, &failed)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CompletedAt.Get().After(tasks[j].CompletedAt.Get())
	})
	return tasks, nil
}

func (q *Queue) GetStatus(ctx context.Context, queue string) (status *workqueue.Status, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue)

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return nil, workqueue.ErrClosed
	}

	status = new(workqueue.Status)
	for _, task := range q.tasks {
		if task.Queue != queue {
			continue
		}
		switch task.State {
		case workqueue.TaskStatePending:
			status.NumPending++
		case workqueue.TaskStateProcessing:
			status.NumProcessing++
		case workqueue.TaskStateCompleted:
			status.NumCompleted++
		case workqueue.TaskStateFailed:
			status.NumFailed++
		}
	}
	return status, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return workqueue.ErrClosed
	}
	return nil
}

func (q *Queue) BackingStores() []string {
	return []string{"memory"}
}

func (q *Queue) Close() error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return workqueue.ErrClosed
	}
	q.closed = true
	return nil
}
