package workqueue

import (
	"context"
	"time"

	"github.com/domonda/go-types/nullable"
	"github.com/domonda/go-types/uu"
)

var _ Queue = NopQueue{}

// NopQueue is a Queue implementation that does nothing and returns
// zero values for all its method results. A Processor constructed with
// a disabled Config binds it in place of the real backend.
type NopQueue struct{}

func (NopQueue) InsertTasks(ctx context.Context, tasks []*Task) error { return nil }
func (NopQueue) ClaimTasks(ctx context.Context, queue string, batchSize int, claimedBy uu.ID) ([]*Task, error) {
	return nil, nil
}
func (NopQueue) CompleteTask(ctx context.Context, taskID int64, claimedBy uu.ID, result nullable.JSON) error {
	return nil
}
func (NopQueue) FailTask(ctx context.Context, taskID int64, claimedBy uu.ID, errorMsg string, maxRetries int) error {
	return nil
}
func (NopQueue) ReclaimOrphanTasks(ctx context.Context, queue string, claimedBefore time.Time) (int, error) {
	return 0, nil
}
func (NopQueue) GetTask(ctx context.Context, taskID int64) (*Task, error)          { return nil, nil }
func (NopQueue) GetFailedTasks(ctx context.Context, queue string) ([]*Task, error) { return nil, nil }
func (NopQueue) GetStatus(ctx context.Context, queue string) (*Status, error)      { return new(Status), nil }
func (NopQueue) Ping(ctx context.Context) error                                    { return nil }
func (NopQueue) BackingStores() []string                                           { return nil }
func (NopQueue) Close() error                                                      { return nil }
