package taskworker

import (
	"context"

	"github.com/domonda/go-errs"

	workqueue "github.com/pguyard-esurv/go-workqueue"
)

// Handler processes one claimed task.
// The returned result is stored with the task on completion;
// a returned error records a failure against the retry budget.
type Handler interface {
	HandleTask(ctx context.Context, task *workqueue.Task) (result any, err error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *workqueue.Task) (result any, err error)

func (f HandlerFunc) HandleTask(ctx context.Context, task *workqueue.Task) (result any, err error) {
	return f(ctx, task)
}

// Register a Handler implementation for a queue.
// Registering a second handler for the same queue panics.
// See also RegisterFunc
func (w *Worker) Register(queue string, handler Handler) {
	defer errs.LogPanicWithFuncParams(log.ErrorWriter(), queue)

	w.handlersMtx.Lock()
	defer w.handlersMtx.Unlock()

	if _, exists := w.handlers[queue]; exists {
		panic(errs.Errorf("a handler for queue %#v has already been registered", queue))
	}

	w.handlers[queue] = handler
}

// RegisterFunc registers a function as Handler for a queue.
func (w *Worker) RegisterFunc(queue string, handlerFunc HandlerFunc) {
	w.Register(queue, handlerFunc)
}

// IsRegistered checks if a handler is registered for the given queue.
func (w *Worker) IsRegistered(queue string) bool {
	w.handlersMtx.RLock()
	defer w.handlersMtx.RUnlock()

	return w.handlers[queue] != nil
}

// RegisteredQueues returns the names of all queues with a registered handler.
func (w *Worker) RegisteredQueues() []string {
	w.handlersMtx.RLock()
	defer w.handlersMtx.RUnlock()

	queues := make([]string, 0, len(w.handlers))
	for queue := range w.handlers {
		queues = append(queues, queue)
	}
	return queues
}

// Unregister removes the handlers of the passed queues,
// or all handlers when called without arguments.
func (w *Worker) Unregister(queues ...string) {
	w.handlersMtx.Lock()
	defer w.handlersMtx.Unlock()

	if len(queues) > 0 {
		log.Debug("Unregister queue handlers").Strs("queues", queues).Log()
		for _, queue := range queues {
			delete(w.handlers, queue)
		}
	} else {
		log.Debug("Unregister all queue handlers").Log()
		for queue := range w.handlers {
			delete(w.handlers, queue)
		}
	}
}
