package domain

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DateLayout is the wire and query format of a task's due date.
const DateLayout = "2006-01-02"

const MaxTitleLength = 255

type Task struct {
	ID          int64
	Title       string
	Description *string
	Status      Status
	Priority    Priority
	DueDate     *time.Time
	OwnerID     UserID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOverdue reports whether the due date lies before now's calendar day
// and the task is not completed.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.Status == StatusCompleted {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	due := time.Date(t.DueDate.Year(), t.DueDate.Month(), t.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	return due.Before(today)
}

// TaskView is the JSON representation shared by the REST API and the
// live event stream.
type TaskView struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	DueDate     *string   `json:"due_date"`
	IsOverdue   bool      `json:"is_overdue"`
	Owner       UserID    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t *Task) View(now time.Time) TaskView {
	v := TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		IsOverdue:   t.IsOverdue(now),
		Owner:       t.OwnerID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.DueDate != nil {
		d := t.DueDate.Format(DateLayout)
		v.DueDate = &d
	}
	return v
}

// TaskFilter narrows a listing. Zero values mean "no constraint".
type TaskFilter struct {
	Status   Status
	Priority Priority
	DueDate  *time.Time
	Search   string
}

// TaskChanges carries the fields of a partial update; nil means unchanged.
// ClearDescription and ClearDueDate null the column explicitly.
type TaskChanges struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Status           *Status
	Priority         *Priority
	DueDate          *time.Time
	ClearDueDate     bool
}

// Every TaskRepository method is scoped to an owner; a task owned by
// someone else is reported as ErrTaskNotFound.
type TaskRepository interface {
	List(ctx context.Context, owner UserID, filter TaskFilter) ([]*Task, error)
	Get(ctx context.Context, owner UserID, id int64) (*Task, error)
	Create(ctx context.Context, task *Task) (*Task, error)
	Update(ctx context.Context, owner UserID, id int64, changes TaskChanges) (*Task, error)
	Delete(ctx context.Context, owner UserID, id int64) error
}
