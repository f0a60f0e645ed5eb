package workqueue

import (
	"context"
)

var ignoreTasksKey int

// IgnoreTaskFunc decides if a task should be dropped instead of enqueued.
type IgnoreTaskFunc func(*Task) bool

// IgnoreAllTasks drops every task.
func IgnoreAllTasks(*Task) bool { return true }

// ContextWithIgnoreTasks returns a context that makes Processor.Enqueue
// silently drop tasks for which ignoreTask returns true.
// Intended for tests that exercise code paths which enqueue work
// without wanting that work to be persisted.
func ContextWithIgnoreTasks(ctx context.Context, ignoreTask IgnoreTaskFunc) context.Context {
	return context.WithValue(ctx, &ignoreTasksKey, ignoreTask)
}

// IgnoreTask returns if the context was set up to ignore the passed task.
func IgnoreTask(ctx context.Context, task *Task) bool {
	if ignoreTask, ok := ctx.Value(&ignoreTasksKey).(IgnoreTaskFunc); ok {
		return ignoreTask(task)
	}
	return false
}
