package workqueue

import (
	"context"
	"slices"
	"time"

	"github.com/domonda/go-errs"
	"github.com/domonda/go-types/nullable"
	"github.com/domonda/go-types/uu"
	rootlog "github.com/domonda/golog/log"
)

var log = rootlog.NewPackageLogger("workqueue")

// Processor combines enqueueing, claiming, completion/failure recording,
// orphan reclamation and status reporting behind one instance identity
// and one validated configuration.
//
// Multiple Processor instances never coordinate directly. All mutual
// exclusion between them is mediated by the backing store, so instances
// may run in different goroutines, processes or hosts.
type Processor struct {
	queue      Queue
	config     Config
	instanceID uu.ID
}

// NewProcessor validates the config and binds queue under a newly
// generated instance identity.
//
// When the config requires backing stores the queue does not provide,
// or any config value is out of range, construction fails with
// ErrInvalidConfig. When the config is disabled the returned Processor
// is a logged no-op bound to NopQueue.
func NewProcessor(queue Queue, config Config) (p *Processor, err error) {
	defer errs.WrapWithFuncParams(&err, config)

	if queue == nil {
		return nil, errs.Errorf("%w: nil queue", ErrInvalidConfig)
	}
	err = config.Validate()
	if err != nil {
		return nil, err
	}

	instanceID := uu.IDv4()

	if !config.Enabled {
		log.Info("Work queue processing disabled").
			UUID("instanceID", instanceID).
			Log()
		return &Processor{queue: NopQueue{}, config: config, instanceID: instanceID}, nil
	}

	provided := queue.BackingStores()
	for _, required := range config.RequiredBackingStores {
		if !slices.Contains(provided, required) {
			return nil, errs.Errorf("%w: required backing store '%s' not provided by queue (provides %v)", ErrInvalidConfig, required, provided)
		}
	}

	return &Processor{queue: queue, config: config, instanceID: instanceID}, nil
}

// InstanceID returns the stable identity of this Processor,
// written as owner into every task it claims.
func (p *Processor) InstanceID() uu.ID {
	return p.instanceID
}

// Config returns a copy of the validated configuration.
func (p *Processor) Config() Config {
	return p.config
}

// Enqueue creates one pending task per payload in the passed queue
// and returns the number of created tasks.
//
// An empty payload slice creates nothing and returns zero.
// Backpressure is the caller's responsibility, there is no upper bound.
func (p *Processor) Enqueue(ctx context.Context, queue string, payloads []any) (count int, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue)

	if queue == "" {
		return 0, errs.New("empty queue name")
	}
	if len(payloads) == 0 {
		return 0, nil
	}

	tasks := make([]*Task, 0, len(payloads))
	for _, payload := range payloads {
		task, err := NewTask(queue, payload)
		if err != nil {
			return 0, err
		}
		if IgnoreTask(ctx, task) {
			log.Debug("Ignoring task").
				Str("queue", queue).
				Log()
			continue
		}
		tasks = append(tasks, task)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	err = p.queue.InsertTasks(ctx, tasks)
	if err != nil {
		return 0, unavailable(err)
	}
	return len(tasks), nil
}

// Claim atomically takes ownership of up to batchSize pending tasks of the
// passed queue, oldest first. batchSize zero or negative falls back to the
// configured batch size; exceeding the configured batch size is an error.
//
// An empty result just means no task is currently eligible.
// The same task is never returned to two concurrent claims.
func (p *Processor) Claim(ctx context.Context, queue string, batchSize int) (tasks []*Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue, batchSize)

	if queue == "" {
		return nil, errs.New("empty queue name")
	}
	if batchSize <= 0 {
		batchSize = p.config.BatchSize
	}
	if batchSize > p.config.BatchSize {
		return nil, errs.Errorf("%w: claim batch size %d exceeds configured maximum %d", ErrInvalidConfig, batchSize, p.config.BatchSize)
	}

	tasks, err = p.queue.ClaimTasks(ctx, queue, batchSize, p.instanceID)
	if err != nil {
		return nil, unavailable(err)
	}
	if len(tasks) > 0 {
		log.Debug("Claimed tasks").
			Str("queue", queue).
			Int("numTasks", len(tasks)).
			UUID("instanceID", p.instanceID).
			Log()
	}
	return tasks, nil
}

// Complete marks a task claimed by this instance as completed and stores
// the passed result, which will be marshalled to JSON.
//
// If the task is no longer owned by this instance, for example because it
// was orphan-reclaimed and handed to another instance, the completion is
// dropped with a warning instead of failing: under crash recovery such
// ownership races are expected and the other owner's outcome wins.
func (p *Processor) Complete(ctx context.Context, taskID int64, result any) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID)

	resultJSON, err := nullable.MarshalJSON(result)
	if err != nil {
		return err
	}

	err = p.queue.CompleteTask(ctx, taskID, p.instanceID, resultJSON)
	if err != nil {
		if IsOwnershipConflict(err) {
			log.WarnCtx(ctx, "Completion of a task no longer owned by this instance, dropping result").
				Int64("taskID", taskID).
				UUID("instanceID", p.instanceID).
				Log()
			return nil
		}
		return unavailable(err)
	}
	return nil
}

// Fail records a failure of a task claimed by this instance.
//
// With retries remaining under the configured maximum the task is requeued
// as pending with an incremented retry count. Else the task transitions to
// the terminal failed state with errorMsg stored; exhausting retries is a
// normal transition, not an error. Like Complete, losing ownership in the
// meantime is dropped with a warning.
func (p *Processor) Fail(ctx context.Context, taskID int64, errorMsg string) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID, errorMsg)

	err = p.queue.FailTask(ctx, taskID, p.instanceID, errorMsg, p.config.MaxRetries)
	if err != nil {
		if IsOwnershipConflict(err) {
			log.WarnCtx(ctx, "Failure of a task no longer owned by this instance, dropping error").
				Int64("taskID", taskID).
				Str("errorMsg", errorMsg).
				UUID("instanceID", p.instanceID).
				Log()
			return nil
		}
		return unavailable(err)
	}
	return nil
}

// ReclaimOrphans resets processing tasks of the passed queue whose claim is
// older than timeout back to pending, clearing ownership but keeping their
// retry count: an orphan reflects a crashed worker, not failed work.
// A zero timeout reclaims all currently processing tasks.
//
// Any instance may reclaim orphans of any other instance. The passed
// timeout must cover the longest legitimate processing duration, otherwise
// tasks still being worked on are handed out again.
func (p *Processor) ReclaimOrphans(ctx context.Context, queue string, timeout time.Duration) (count int, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue, timeout)

	if queue == "" {
		return 0, errs.New("empty queue name")
	}
	if timeout < 0 {
		return 0, errs.Errorf("negative orphan timeout %s", timeout)
	}

	count, err = p.queue.ReclaimOrphanTasks(ctx, queue, time.Now().Add(-timeout))
	if err != nil {
		return 0, unavailable(err)
	}
	if count > 0 {
		log.Info("Reclaimed orphaned tasks").
			Str("queue", queue).
			Int("numTasks", count).
			Str("timeout", timeout.String()).
			Log()
	}
	return count, nil
}

// Status returns per-state task counts for the passed queue.
// Safe to call opportunistically during a store outage so that
// monitoring keeps functioning.
func (p *Processor) Status(ctx context.Context, queue string) (status *Status, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue)

	status, err = p.queue.GetStatus(ctx, queue)
	if err != nil {
		return nil, unavailable(err)
	}
	return status, nil
}

// GetTask returns a single task for diagnosis.
func (p *Processor) GetTask(ctx context.Context, taskID int64) (task *Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, taskID)

	task, err = p.queue.GetTask(ctx, taskID)
	if err != nil {
		return nil, unavailable(err)
	}
	return task, nil
}

// GetFailedTasks returns the terminally failed tasks of a queue.
func (p *Processor) GetFailedTasks(ctx context.Context, queue string) (tasks []*Task, err error) {
	defer errs.WrapWithFuncParams(&err, ctx, queue)

	tasks, err = p.queue.GetFailedTasks(ctx, queue)
	if err != nil {
		return nil, unavailable(err)
	}
	return tasks, nil
}

// HealthCheck pings the backing store.
func (p *Processor) HealthCheck(ctx context.Context) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx)

	return unavailable(p.queue.Ping(ctx))
}

// Close releases the backing store binding.
func (p *Processor) Close() error {
	return p.queue.Close()
}
