package taskworker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/domonda/go-errs"
	rootlog "github.com/domonda/golog/log"

	workqueue "github.com/pguyard-esurv/go-workqueue"
)

var log = rootlog.NewPackageLogger("taskworker")

// Worker polls a Processor for claimable tasks and dispatches them to the
// handlers registered per queue.
//
// A Worker never coordinates with other Workers: exclusion between
// concurrent instances, whether in one process or spread across hosts,
// comes entirely from the claim semantics of the underlying store.
type Worker struct {
	proc         *workqueue.Processor
	pollInterval time.Duration
	batchSize    int

	// OnError will be called for every error that would also be logged.
	OnError func(error)

	handlersMtx sync.RWMutex
	handlers    map[string]Handler

	setupMtx sync.Mutex
	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval sets how often idle worker goroutines check for new
// tasks. Default is 5 seconds.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

// WithBatchSize sets how many tasks one poll claims per queue.
// Default is the processor's configured batch size.
func WithBatchSize(batchSize int) Option {
	return func(w *Worker) { w.batchSize = batchSize }
}

// NewWorker creates a Worker bound to the passed Processor.
// Handlers must be registered before Start.
func NewWorker(proc *workqueue.Processor, opts ...Option) *Worker {
	w := &Worker{
		proc:         proc,
		pollInterval: 5 * time.Second,
		OnError:      func(error) {},
		handlers:     make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches numThreads goroutines that poll the registered queues for
// tasks, plus the maintenance goroutine reclaiming orphaned tasks.
// The passed context cancels the started goroutines.
func (w *Worker) Start(ctx context.Context, numThreads int) error {
	if numThreads <= 0 {
		return errs.New("need at least 1 worker thread")
	}
	if len(w.RegisteredQueues()) == 0 {
		return errs.New("no queue handlers registered")
	}

	w.setupMtx.Lock()
	defer w.setupMtx.Unlock()

	if w.running {
		return errs.New("worker already running")
	}
	w.running = true
	w.stop = make(chan struct{})

	w.wg.Add(numThreads + 1)
	for i := range numThreads {
		go w.run(ctx, i, w.stop)
	}
	go w.runMaintenance(ctx, w.stop)

	return nil
}

func (w *Worker) run(ctx context.Context, threadIndex int, stop <-chan struct{}) {
	defer w.wg.Done()

	log, ctx := log.With().
		Int("threadIndex", threadIndex).
		UUID("instanceID", w.proc.InstanceID()).
		SubLoggerContext(ctx)

	log.Debug("Starting the worker thread").Log()
	defer log.Debug("Worker thread ended").Log()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		// Drain every registered queue before going back to sleep
		for w.processBatch(ctx, stop) > 0 {
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// processBatch claims and processes one batch from every registered queue
// and returns the total number of processed tasks.
func (w *Worker) processBatch(ctx context.Context, stop <-chan struct{}) (numProcessed int) {
	// Stable queue order keeps contention between threads predictable
	queues := w.RegisteredQueues()
	sort.Strings(queues)

	for _, queue := range queues {
		if ctx.Err() != nil || stopped(stop) {
			return numProcessed
		}

		tasks, err := w.proc.Claim(ctx, queue, w.batchSize)
		if err != nil {
			w.OnError(err)
			log.ErrorCtx(ctx, "Error while claiming tasks").
				Str("queue", queue).
				Err(err).
				Log()
			continue
		}

		for _, task := range tasks {
			w.dispatchTask(ctx, task)
			numProcessed++
		}
	}
	return numProcessed
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// Finish waits until all worker goroutines have finished their current
// tasks and stops them before they claim new ones.
func (w *Worker) Finish() {
	log.Debug("Finishing worker").Log()

	w.setupMtx.Lock()
	defer w.setupMtx.Unlock()

	if !w.running {
		return
	}
	w.running = false

	close(w.stop)
	w.wg.Wait()
	w.stop = nil

	log.Info("Worker finished").Log()
}
