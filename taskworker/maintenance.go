package taskworker

import (
	"context"
	"time"
)

// runMaintenance periodically reclaims orphaned tasks of all registered
// queues and pings the backing store, using the processor's configured
// health check interval and cleanup timeout.
//
// Any instance may run maintenance, there is no designated coordinator:
// reclaiming an orphan twice is harmless because the first reclamation
// already moved it out of the processing state.
func (w *Worker) runMaintenance(ctx context.Context, stop <-chan struct{}) {
	defer w.wg.Done()

	config := w.proc.Config()
	ticker := time.NewTicker(config.HealthCheckInterval())
	defer ticker.Stop()

	log.Debug("Starting the maintenance thread").
		Str("interval", config.HealthCheckInterval().String()).
		Str("cleanupTimeout", config.CleanupTimeout().String()).
		Log()
	defer log.Debug("Maintenance thread ended").Log()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		err := w.proc.HealthCheck(ctx)
		if err != nil {
			w.OnError(err)
			log.ErrorCtx(ctx, "Backing store health check failed").
				Err(err).
				Log()
			// Reclamation is still attempted, it is safe during an outage
		}

		for _, queue := range w.RegisteredQueues() {
			_, err := w.proc.ReclaimOrphans(ctx, queue, config.CleanupTimeout())
			if err != nil {
				w.OnError(err)
				log.ErrorCtx(ctx, "Error while reclaiming orphaned tasks").
					Str("queue", queue).
					Err(err).
					Log()
			}
		}
	}
}
