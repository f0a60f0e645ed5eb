package workqueue

import "fmt"

// Status holds per-state task counts for one queue.
type Status struct {
	NumPending    int `db:"num_pending"`
	NumProcessing int `db:"num_processing"`
	NumCompleted  int `db:"num_completed"`
	NumFailed     int `db:"num_failed"`
}

// Total returns the number of tasks in the queue across all states.
// Valid to call on a nil receiver.
func (s *Status) Total() int {
	if s == nil {
		return 0
	}
	return s.NumPending + s.NumProcessing + s.NumCompleted + s.NumFailed
}

// IsZero returns true if the receiver is nil
// or dereferenced equal to its zero value.
// Valid to call on a nil receiver.
func (s *Status) IsZero() bool {
	return s == nil || *s == Status{}
}

// String implements the fmt.Stringer interface.
// Valid to call on a nil receiver.
func (s *Status) String() string {
	if s == nil {
		return "nil Status"
	}
	return fmt.Sprintf("Status{Pending: %d, Processing: %d, Completed: %d, Failed: %d}", s.NumPending, s.NumProcessing, s.NumCompleted, s.NumFailed)
}
