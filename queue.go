package workqueue

import (
	"context"
	"time"

	"github.com/domonda/go-types/nullable"
	"github.com/domonda/go-types/uu"
)

// Queue is the backing store contract consumed by the Processor.
//
// Implementations must guarantee that ClaimTasks is one atomic unit of
// select-and-own: no two concurrent calls, from the same or different
// processes, may ever return the same task. The PostgreSQL implementation
// uses skip-locked selection for this; the in-memory implementation a
// single critical section.
//
// CompleteTask and FailTask must return ErrOwnershipConflict when the task
// is not currently processing and owned by claimedBy. All other errors are
// passed through untranslated; the Processor wraps them as ErrUnavailable.
type Queue interface {
	// InsertTasks persists the passed tasks atomically.
	// The tasks must be in pending state with a zero retry count.
	InsertTasks(ctx context.Context, tasks []*Task) error

	// ClaimTasks atomically selects up to batchSize pending tasks of the
	// queue, oldest first, marks them processing and owned by claimedBy,
	// and returns them. Transiently locked tasks are skipped, not waited
	// for. No eligible tasks is not an error, the result is just empty.
	ClaimTasks(ctx context.Context, queue string, batchSize int, claimedBy uu.ID) ([]*Task, error)

	// CompleteTask marks a processing task owned by claimedBy as completed
	// and stores its result.
	CompleteTask(ctx context.Context, taskID int64, claimedBy uu.ID, result nullable.JSON) error

	// FailTask records a failure of a processing task owned by claimedBy.
	// With retries remaining the task is requeued as pending with an
	// incremented retry count, else it becomes failed with errorMsg stored.
	// Requeue or failed is decided in the same atomic update.
	FailTask(ctx context.Context, taskID int64, claimedBy uu.ID, errorMsg string, maxRetries int) error

	// ReclaimOrphanTasks resets processing tasks claimed before the passed
	// time back to pending, clearing ownership but keeping the retry count.
	// Returns the number of reclaimed tasks.
	ReclaimOrphanTasks(ctx context.Context, queue string, claimedBefore time.Time) (int, error)

	// GetTask returns the task with the passed ID.
	GetTask(ctx context.Context, taskID int64) (*Task, error)

	// GetFailedTasks returns the terminally failed tasks of a queue,
	// most recently failed first.
	GetFailedTasks(ctx context.Context, queue string) ([]*Task, error)

	// GetStatus returns per-state task counts for a queue.
	GetStatus(ctx context.Context, queue string) (*Status, error)

	// Ping verifies that the backing store is reachable.
	Ping(ctx context.Context) error

	// BackingStores names the store identifiers this backend provides.
	BackingStores() []string

	Close() error
}

var _ Queue = errQueue{}

type errQueue struct {
	err error
}

// QueueWithError returns a Queue implementation
// that returns the passed error from all methods.
func QueueWithError(err error) Queue {
	return errQueue{err}
}

func (e errQueue) InsertTasks(ctx context.Context, tasks []*Task) error { return e.err }
func (e errQueue) ClaimTasks(ctx context.Context, queue string, batchSize int, claimedBy uu.ID) ([]*Task, error) {
	return nil, e.err
}
func (e errQueue) CompleteTask(ctx context.Context, taskID int64, claimedBy uu.ID, result nullable.JSON) error {
	return e.err
}
func (e errQueue) FailTask(ctx context.Context, taskID int64, claimedBy uu.ID, errorMsg string, maxRetries int) error {
	return e.err
}
func (e errQueue) ReclaimOrphanTasks(ctx context.Context, queue string, claimedBefore time.Time) (int, error) {
	return 0, e.err
}
func (e errQueue) GetTask(ctx context.Context, taskID int64) (*Task, error)         { return nil, e.err }
func (e errQueue) GetFailedTasks(ctx context.Context, queue string) ([]*Task, error) { return nil, e.err }
func (e errQueue) GetStatus(ctx context.Context, queue string) (*Status, error)     { return nil, e.err }
func (e errQueue) Ping(ctx context.Context) error                                   { return e.err }
func (e errQueue) BackingStores() []string                                          { return nil }
func (e errQueue) Close() error                                                     { return e.err }
