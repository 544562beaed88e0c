package app

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/taskman/taskman/internal/domain"
	apperrors "github.com/taskman/taskman/internal/platform/errors"
)

// fieldErrors collects per-field messages and turns them into one
// validation error.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) { f[field] = msg }

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	e := apperrors.ValidationError("invalid task")
	for field, msg := range f {
		e.WithField(field, msg)
	}
	return e
}

func (f fieldErrors) title(raw string) string {
	title := strings.TrimSpace(raw)
	switch {
	case title == "":
		f.add("title", "this field is required")
	case utf8.RuneCountInString(title) > domain.MaxTitleLength:
		f.add("title", "must be at most 255 characters")
	}
	return title
}

func (f fieldErrors) status(raw string) domain.Status {
	s := domain.Status(raw)
	if !s.Valid() {
		f.add("status", "must be one of pending, in-progress, completed")
	}
	return s
}

func (f fieldErrors) priority(raw string) domain.Priority {
	p := domain.Priority(raw)
	if !p.Valid() {
		f.add("priority", "must be one of low, medium, high")
	}
	return p
}

func (f fieldErrors) date(field, raw string) *time.Time {
	d, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		f.add(field, "must be a date in YYYY-MM-DD format")
		return nil
	}
	return &d
}

func (in TaskInput) toTask(owner domain.UserID) (*domain.Task, error) {
	f := fieldErrors{}
	task := &domain.Task{
		Title:       f.title(in.Title),
		Description: in.Description,
		Status:      domain.StatusPending,
		Priority:    domain.PriorityMedium,
		OwnerID:     owner,
	}
	if in.Status != "" {
		task.Status = f.status(in.Status)
	}
	if in.Priority != "" {
		task.Priority = f.priority(in.Priority)
	}
	if in.DueDate != nil {
		task.DueDate = f.date("due_date", *in.DueDate)
	}
	return task, f.err()
}

// replacement turns a full replace into changes that touch every column.
func (in TaskInput) replacement() (domain.TaskChanges, error) {
	task, err := in.toTask(0)
	if err != nil {
		return domain.TaskChanges{}, err
	}
	return domain.TaskChanges{
		Title:            &task.Title,
		Description:      task.Description,
		ClearDescription: task.Description == nil,
		Status:           &task.Status,
		Priority:         &task.Priority,
		DueDate:          task.DueDate,
		ClearDueDate:     task.DueDate == nil,
	}, nil
}

func (p TaskPatch) changes() (domain.TaskChanges, error) {
	f := fieldErrors{}
	var c domain.TaskChanges

	if p.Title.Set {
		if p.Title.Value == nil {
			f.add("title", "may not be null")
		} else {
			title := f.title(*p.Title.Value)
			c.Title = &title
		}
	}
	if p.Description.Set {
		c.Description = p.Description.Value
		c.ClearDescription = p.Description.Value == nil
	}
	if p.Status.Set {
		if p.Status.Value == nil {
			f.add("status", "may not be null")
		} else {
			s := f.status(*p.Status.Value)
			c.Status = &s
		}
	}
	if p.Priority.Set {
		if p.Priority.Value == nil {
			f.add("priority", "may not be null")
		} else {
			pr := f.priority(*p.Priority.Value)
			c.Priority = &pr
		}
	}
	if p.DueDate.Set {
		if p.DueDate.Value == nil {
			c.ClearDueDate = true
		} else {
			c.DueDate = f.date("due_date", *p.DueDate.Value)
		}
	}
	return c, f.err()
}

func (q ListQuery) filter() (domain.TaskFilter, error) {
	f := fieldErrors{}
	filter := domain.TaskFilter{Search: strings.TrimSpace(q.Search)}
	if q.Status != "" {
		filter.Status = f.status(q.Status)
	}
	if q.Priority != "" {
		filter.Priority = f.priority(q.Priority)
	}
	if q.DueDate != "" {
		filter.DueDate = f.date("due_date", q.DueDate)
	}
	return filter, f.err()
}
