/*
Package taskworker provides a polling processing runtime on top of a
workqueue.Processor.

A Worker dispatches claimed tasks to handlers registered per queue using a
configurable number of goroutines, records results and failures through
the processor, and runs a maintenance loop that periodically reclaims
orphaned tasks and checks store health.

	worker := taskworker.NewWorker(processor)
	worker.RegisterFunc("orders", handleOrder)

	err := worker.Start(ctx, 4)
	...
	worker.Finish()

Workers on different hosts need no coordination: the store's claim
semantics guarantee that each task is dispatched to exactly one handler.
*/
package taskworker
