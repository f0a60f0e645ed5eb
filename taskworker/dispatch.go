package taskworker

import (
	"context"
	"strings"

	"github.com/domonda/go-errs"

	workqueue "github.com/pguyard-esurv/go-workqueue"
)

// dispatchTask runs the handler registered for the task's queue and
// records the outcome: the result on success, or a failure against the
// task's retry budget on error. Handler panics count as failures.
//
// Recording errors are logged but don't stop the worker: if the store is
// unreachable the claim eventually times out and the task is reclaimed as
// an orphan, so no outcome is lost silently.
func (w *Worker) dispatchTask(ctx context.Context, task *workqueue.Task) {
	log, ctx := log.With().
		Int64("taskID", task.ID).
		Str("queue", task.Queue).
		SubLoggerContext(ctx)

	w.handlersMtx.RLock()
	handler, hasHandler := w.handlers[task.Queue]
	w.handlersMtx.RUnlock()

	if !hasHandler {
		// Can only happen when a handler was unregistered after the claim
		err := errs.Errorf("no handler for task of queue '%s'", task.Queue)
		w.OnError(err)
		log.ErrorCtx(ctx, "Claimed a task without a registered handler, failing it").
			Err(err).
			Log()
		w.failTask(ctx, task, err.Error())
		return
	}

	result, taskErr := handleTaskWithRecover(ctx, handler, task)
	if taskErr != nil {
		errHeadline := errs.Root(taskErr).Error()
		if nl := strings.IndexByte(errHeadline, '\n'); nl > 0 {
			// Only use first line of error message as errHeadline
			errHeadline = errHeadline[:nl]
		}
		errHeadline = strings.TrimSpace(errHeadline)

		w.OnError(taskErr)
		log.ErrorfCtx(ctx, "Task error: %s", errHeadline).
			Any("task", task).
			Err(taskErr).
			Log()

		w.failTask(ctx, task, taskErr.Error())
		return
	}

	err := w.proc.Complete(ctx, task.ID, result)
	if err != nil {
		w.OnError(err)
		log.ErrorCtx(ctx, "Error while recording the task result").
			Err(err).
			Log()
	}
}

func (w *Worker) failTask(ctx context.Context, task *workqueue.Task, errorMsg string) {
	err := w.proc.Fail(ctx, task.ID, errorMsg)
	if err != nil {
		w.OnError(err)
		log.ErrorCtx(ctx, "Error while recording the task failure").
			Int64("taskID", task.ID).
			Err(err).
			Log()
	}
}

func handleTaskWithRecover(ctx context.Context, handler Handler, task *workqueue.Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Errorf("task handler panic: %w", errs.AsErrorWithDebugStack(r))
		}
	}()

	return handler.HandleTask(ctx, task)
}
