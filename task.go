package workqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/domonda/go-errs"
	"github.com/domonda/go-types/notnull"
	"github.com/domonda/go-types/nullable"
	"github.com/domonda/go-types/uu"
)

// TaskState is the lifecycle state of a Task.
//
// Valid transitions:
//
//	pending    --claim-->           processing
//	processing --complete-->        completed
//	processing --fail, retry-->     pending
//	processing --fail, exhausted--> failed
//	processing --orphan timeout-->  pending
//
// completed and failed are terminal.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateProcessing TaskState = "processing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
)

// Valid returns if s is one of the four known states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateProcessing, TaskStateCompleted, TaskStateFailed:
		return true
	}
	return false
}

// Terminal returns if s is completed or failed.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// Task is one persisted unit of work.
//
// The ID is assigned by the backing store on insert and immutable afterwards.
// Queue partitions tasks; claiming and status reporting are always scoped to
// one queue. The payload is opaque to this package.
type Task struct {
	ID    int64  `db:"id,pk" json:"id"`
	Queue string `db:"queue" json:"queue"` // CHECK(length(queue) > 0 AND length(queue) <= 100)

	Payload    notnull.JSON `db:"payload"     json:"payload"`
	State      TaskState    `db:"state"       json:"state"`
	RetryCount int          `db:"retry_count" json:"retryCount"`

	ClaimedBy uu.NullableID `db:"claimed_by" json:"claimedBy"` // Instance that owns the task, only set while processing
	ClaimedAt nullable.Time `db:"claimed_at" json:"claimedAt"`

	CreatedAt   time.Time     `db:"created_at"   json:"createdAt"`
	CompletedAt nullable.Time `db:"completed_at" json:"completedAt"` // Set when the task reached a terminal state

	Result   nullable.JSON           `db:"result"    json:"result"`
	ErrorMsg nullable.NonEmptyString `db:"error_msg" json:"errorMsg"`
}

// IsClaimed returns if the task is currently owned by an instance.
// Valid to call on a nil receiver.
func (t *Task) IsClaimed() bool {
	if t == nil {
		return false
	}
	return t.State == TaskStateProcessing && t.ClaimedBy.IsNotNull()
}

// IsTerminal returns if the task reached completed or failed.
// Valid to call on a nil receiver.
func (t *Task) IsTerminal() bool {
	return t != nil && t.State.Terminal()
}

// HasError returns true if the receiver is not nil and has an ErrorMsg.
// Valid to call on a nil receiver.
func (t *Task) HasError() bool {
	return t != nil && t.ErrorMsg.IsNotNull()
}

// String implements the fmt.Stringer interface.
// Valid to call on a nil receiver.
func (t *Task) String() string {
	if t == nil {
		return "nil Task"
	}
	return fmt.Sprintf("Task %d, queue '%s', state %s, retries %d, created at %s", t.ID, t.Queue, t.State, t.RetryCount, t.CreatedAt.Format(time.RFC3339))
}

// NewTask creates a pending Task for a queue but does not enqueue it.
// The passed payload will be marshalled to JSON or directly interpreted
// as JSON if possible.
func NewTask(queue string, payload any) (*Task, error) {
	if queue == "" {
		return nil, errs.New("empty queue name")
	}
	if payload == nil {
		return nil, errs.New("nil task payload")
	}

	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	return &Task{
		Queue:     queue,
		Payload:   payloadJSON,
		State:     TaskStatePending,
		CreatedAt: time.Now(),
	}, nil
}

func marshalPayload(payload any) (notnull.JSON, error) {
	switch x := payload.(type) {
	case notnull.JSON:
		if !x.Valid() {
			return nil, errs.Errorf("task payload is not valid JSON: %#v", string(x))
		}
		return x, nil

	case nullable.JSON:
		payloadJSON := notnull.JSON(x)
		if !payloadJSON.Valid() {
			return nil, errs.Errorf("task payload is not valid JSON: %#v", string(x))
		}
		return payloadJSON, nil

	case json.RawMessage:
		payloadJSON := notnull.JSON(x)
		if !payloadJSON.Valid() {
			return nil, errs.Errorf("task payload is not valid JSON: %#v", string(x))
		}
		return payloadJSON, nil

	case []byte:
		payloadJSON := notnull.JSON(x)
		if !payloadJSON.Valid() {
			return nil, errs.Errorf("task payload is not valid JSON: %#v", string(x))
		}
		return payloadJSON, nil

	case string:
		payloadJSON := notnull.JSON(x)
		if !payloadJSON.Valid() {
			return nil, errs.Errorf("task payload is not valid JSON: %#v", x)
		}
		return payloadJSON, nil

	case json.Marshaler:
		payloadJSON, err := x.MarshalJSON()
		if err != nil {
			return nil, errs.Errorf("task payload is not valid JSON: %#v, error: %w", x, err)
		}
		return payloadJSON, nil

	default:
		payloadJSON, err := notnull.MarshalJSON(x)
		if err != nil {
			return nil, errs.Errorf("task payload is not valid JSON: %#v, error: %w", x, err)
		}
		return payloadJSON, nil
	}
}
