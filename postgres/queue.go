package postgres

import (
	"context"
	"time"

	"github.com/domonda/go-errs"
	"github.com/domonda/go-sqldb"
	"github.com/domonda/go-sqldb/db"
	"github.com/domonda/go-types/nullable"
	"github.com/domonda/go-types/uu"

	"github.com/pguyard-esurv/go-workqueue"
)

var _ workqueue.Queue = new(Queue)

// Queue implements workqueue.Queue backed by the worker.task table
// of the PostgreSQL database bound via the go-sqldb/db package.
//
// Claiming uses FOR UPDATE SKIP LOCKED selection combined with the
// ownership update in one atomic statement, so two concurrent claims can
// never receive the same task, whether they run in the same process or on
// different hosts.
type Queue struct {
	closed bool
}

// NewQueue returns a Queue using the database connection
// of the global go-sqldb/db package.
func NewQueue() *Queue {
	return new(Queue)
}

func (q *Queue) InsertTasks(ctx context.Context, tasks []*workqueue.Task) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, tasks)

	if q.closed {
		return workqueue.ErrClosed
	}

	return db.Transaction(ctx, func(ctx context.Context) error {
		for _, task := range tasks {
			err := insertTask(ctx, task)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func insertTask(ctx context.Context, task *workqueue.Task) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, task)

	return db.Conn(ctx).Exec(
		`insert into worker.task
			(
				queue,
				payload,
				state,
				retry_count,
				created_at
			) values (
				$1,
				$2,
				$3,
				$4,
				$5
			)`,
		task.Queue,
		task.Payload,
		task.State,
		task.RetryCount,
		task.CreatedAt,
	)
}

func (q *Queue) ClaimTasks(ctx context.Context, queue string, batchSize int, claimedBy uu.ID) (tasks []*workqueue.Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue, batchSize, claimedBy)

	if q.closed {
		return nil, workqueue.ErrClosed
	}

	// A single statement makes select-and-own atomic without an explicit
	// transaction. Skip-locked selection excludes tasks that another
	// in-flight claim already selected instead of waiting for it.
	err = db.Conn(ctx).QueryRows(
		`update worker.task
			set
				state      = 'processing',
				claimed_by = $3,
				claimed_at = now()
			where id in (
				select id
					from worker.task
					where queue = $1
						and state = 'pending'
					order by created_at, id
					limit $2
					for update skip locked
			)
			returning *`,
		queue,
		batchSize,
		claimedBy,
	).ScanStructSlice(&tasks)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (q *Queue) CompleteTask(ctx context.Context, taskID int64, claimedBy uu.ID, result nullable.JSON) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID, claimedBy)

	if q.closed {
		return workqueue.ErrClosed
	}

	numUpdated, err := db.QueryValue[int](ctx,
		`with completed as (
			update worker.task
				set
					state        = 'completed',
					result       = $3,
					completed_at = now(),
					claimed_by   = null
				where id = $1
					and state = 'processing'
					and claimed_by = $2
				returning id
		)
		select count(*) from completed`,
		taskID,
		claimedBy,
		result,
	)
	if err != nil {
		return err
	}
	if numUpdated == 0 {
		return workqueue.ErrOwnershipConflict
	}
	return nil
}

func (q *Queue) FailTask(ctx context.Context, taskID int64, claimedBy uu.ID, errorMsg string, maxRetries int) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID, claimedBy, errorMsg, maxRetries)

	if q.closed {
		return workqueue.ErrClosed
	}

	// Requeue or terminal failure is decided within the row update itself,
	// there is no separate read-then-write of the retry count.
	numUpdated, err := db.QueryValue[int](ctx,
		`with failed as (
			update worker.task
				set
					state        = case when retry_count + 1 < $4 then 'pending' else 'failed' end,
					retry_count  = case when retry_count + 1 < $4 then retry_count + 1 else retry_count end,
					error_msg    = case when retry_count + 1 < $4 then error_msg else $3 end,
					completed_at = case when retry_count + 1 < $4 then null else now() end,
					claimed_at   = case when retry_count + 1 < $4 then null else claimed_at end,
					claimed_by   = null
				where id = $1
					and state = 'processing'
					and claimed_by = $2
				returning id
		)
		select count(*) from failed`,
		taskID,
		claimedBy,
		errorMsg,
		maxRetries,
	)
	if err != nil {
		return err
	}
	if numUpdated == 0 {
		return workqueue.ErrOwnershipConflict
	}
	return nil
}

func (q *Queue) ReclaimOrphanTasks(ctx context.Context, queue string, claimedBefore time.Time) (count int, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue, claimedBefore)

	if q.closed {
		return 0, workqueue.ErrClosed
	}

	return db.QueryValue[int](ctx,
		`with reclaimed as (
			update worker.task
				set
					state      = 'pending',
					claimed_by = null,
					claimed_at = null
				where queue = $1
					and state = 'processing'
					and claimed_at <= $2
				returning id
		)
		select count(*) from reclaimed`,
		queue,
		claimedBefore,
	)
}

func (q *Queue) GetTask(ctx context.Context, taskID int64) (task *workqueue.Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID)

	if q.closed {
		return nil, workqueue.ErrClosed
	}

	err = db.Conn(ctx).QueryRow(`select * from worker.task where id = $1`, taskID).ScanStruct(&task)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (q *Queue) GetFailedTasks(ctx context.Context, queue string) (tasks []*workqueue.Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue)

	if q.closed {
		return nil, workqueue.ErrClosed
	}

	err = db.Conn(ctx).QueryRows(
		`select *
			from worker.task
			where queue = $1
				and state = 'failed'
			order by completed_at desc`,
		queue,
	).ScanStructSlice(&tasks)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (q *Queue) GetStatus(ctx context.Context, queue string) (status *workqueue.Status, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue)

	if q.closed {
		return nil, workqueue.ErrClosed
	}

	status = new(workqueue.Status)
	err = db.Conn(ctx).QueryRow(
		`select
			count(*) filter (where state = 'pending')    as num_pending,
			count(*) filter (where state = 'processing') as num_processing,
			count(*) filter (where state = 'completed')  as num_completed,
			count(*) filter (where state = 'failed')     as num_failed
			from worker.task
			where queue = $1`,
		queue,
	).Scan(
		&status.NumPending,
		&status.NumProcessing,
		&status.NumCompleted,
		&status.NumFailed,
	)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (q *Queue) Ping(ctx context.Context) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx)

	if q.closed {
		return workqueue.ErrClosed
	}

	_, err = db.QueryValue[int](ctx, `select 1`)
	return sqldb.ReplaceErrNoRows(err, nil)
}

func (q *Queue) BackingStores() []string {
	return []string{"postgres"}
}

func (q *Queue) Close() error {
	if q.closed {
		return workqueue.ErrClosed
	}
	q.closed = true
	return nil
}
