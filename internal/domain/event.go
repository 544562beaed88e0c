package domain

import (
	"context"
	"fmt"
)

// Action tags a MutationEvent. Each variant fixes the shape of the event's
// task payload.
type Action int

const (
	ActionCreated Action = iota + 1
	ActionUpdated
	ActionDeleted
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionUpdated:
		return "updated"
	case ActionDeleted:
		return "deleted"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func (a Action) MarshalText() ([]byte, error) {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return []byte(a.String()), nil
	}
	return nil, fmt.Errorf("unknown action %d", int(a))
}

func (a *Action) UnmarshalText(b []byte) error {
	switch string(b) {
	case "created":
		*a = ActionCreated
	case "updated":
		*a = ActionUpdated
	case "deleted":
		*a = ActionDeleted
	default:
		return fmt.Errorf("unknown action %q", b)
	}
	return nil
}

// TaskRef is the payload of a deleted event.
type TaskRef struct {
	ID int64 `json:"id"`
}

// MutationEvent describes one committed change to a task, routed to the
// group of Owner.
type MutationEvent struct {
	Action Action
	Owner  UserID
	Task   TaskView
}

// Payload returns the variant-specific task payload: the full view for
// created and updated, only the id for deleted.
func (e MutationEvent) Payload() any {
	if e.Action == ActionDeleted {
		return TaskRef{ID: e.Task.ID}
	}
	return e.Task
}

// Envelope is the server-to-client frame.
type Envelope struct {
	Action Action `json:"action"`
	Task   any    `json:"task"`
}

func (e MutationEvent) Envelope() Envelope {
	return Envelope{Action: e.Action, Task: e.Payload()}
}

// EventPublisher hands an encoded envelope to every live connection of a
// group. Implementations must not block on delivery.
type EventPublisher interface {
	Publish(ctx context.Context, groupKey string, payload []byte) error
}
