/*
Package workqueue provides a durable, database-backed work queue that lets
independent worker processes pull tasks from a shared backlog and process
each task exactly once despite crashes, lost connections and partial
failures.

# Overview

Tasks are persisted rows in a backing store. A Processor binds one store
connection, one validated Config and one generated instance identity, and
exposes the queue operations: enqueue, claim, complete, fail, orphan
reclamation and status reporting.

Mutual exclusion between concurrent claimers is enforced entirely by the
backing store's transactional locking, never by in-memory locks, so any
number of Processor instances can run across goroutines, processes and
hosts without coordinating directly.

# Basic Usage

	import (
		"context"

		"github.com/pguyard-esurv/go-workqueue"
		"github.com/pguyard-esurv/go-workqueue/postgres"
	)

	func main() {
		ctx := context.Background()

		config, err := workqueue.ConfigFromEnv()
		if err != nil {
			panic(err)
		}
		processor, err := workqueue.NewProcessor(postgres.NewQueue(), config)
		if err != nil {
			panic(err)
		}
		defer processor.Close()

		_, _ = processor.Enqueue(ctx, "orders", []any{Order{ID: 42}})

		tasks, _ := processor.Claim(ctx, "orders", 10)
		for _, task := range tasks {
			// ... process task.Payload ...
			_ = processor.Complete(ctx, task.ID, "done")
		}
	}

# Task Lifecycle

A task is created pending, claimed into processing, and finished as
completed or failed. A failure with retries remaining requeues the task as
pending with an incremented retry count. A task whose claiming instance
crashed stays processing until orphan reclamation resets it to pending
after a timeout; no heartbeat or liveness channel is needed.

# Error Handling

All store failures surface as ErrUnavailable so callers apply one uniform
retry policy. Invalid configuration fails fast at construction with
ErrInvalidConfig. Completing or failing a task that was reclaimed and
handed to another instance in the meantime is logged as a warning and
dropped, since such ownership races are expected under crash recovery.

# Processing Runtime

The taskworker package adds an optional polling runtime on top of the
Processor: registered handlers, worker goroutines and a maintenance loop
that periodically reclaims orphans. The memqueue package provides an
in-memory Queue for tests and local development.
*/
package workqueue
