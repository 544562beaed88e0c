package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/taskman/taskman/internal/domain"
	apperrors "github.com/taskman/taskman/internal/platform/errors"
)

// Notifier announces a committed mutation to the owner's live connections.
type Notifier interface {
	Notify(ctx context.Context, owner domain.UserID, action domain.Action, task *domain.Task)
}

// TaskService is the only entry point for task mutations, so every
// successful write is followed by exactly one notification.
type TaskService struct {
	tasks    domain.TaskRepository
	notifier Notifier
	clock    clockwork.Clock
}

func NewTaskService(tasks domain.TaskRepository, notifier Notifier, clock clockwork.Clock) *TaskService {
	return &TaskService{tasks: tasks, notifier: notifier, clock: clock}
}

func (s *TaskService) List(ctx context.Context, owner domain.UserID, q ListQuery) ([]domain.TaskView, error) {
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.List(ctx, owner, filter)
	if err != nil {
		return nil, apperrors.InternalError("failed to list tasks", err)
	}

	now := s.clock.Now()
	views := make([]domain.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, t.View(now))
	}
	return views, nil
}

func (s *TaskService) Get(ctx context.Context, owner domain.UserID, id int64) (domain.TaskView, error) {
	task, err := s.tasks.Get(ctx, owner, id)
	if err != nil {
		return domain.TaskView{}, repoError(err, "failed to get task", id)
	}
	return task.View(s.clock.Now()), nil
}

func (s *TaskService) Create(ctx context.Context, owner domain.UserID, in TaskInput) (domain.TaskView, error) {
	task, err := in.toTask(owner)
	if err != nil {
		return domain.TaskView{}, err
	}

	created, err := s.tasks.Create(ctx, task)
	if err != nil {
		return domain.TaskView{}, apperrors.InternalError("failed to create task", err)
	}

	slog.InfoContext(ctx, "Task created", "task_id", created.ID)
	s.notifier.Notify(ctx, owner, domain.ActionCreated, created)
	return created.View(s.clock.Now()), nil
}

// Update replaces every editable field; omitted optional fields are reset.
func (s *TaskService) Update(ctx context.Context, owner domain.UserID, id int64, in TaskInput) (domain.TaskView, error) {
	changes, err := in.replacement()
	if err != nil {
		return domain.TaskView{}, err
	}
	return s.apply(ctx, owner, id, changes)
}

func (s *TaskService) Patch(ctx context.Context, owner domain.UserID, id int64, p TaskPatch) (domain.TaskView, error) {
	changes, err := p.changes()
	if err != nil {
		return domain.TaskView{}, err
	}
	return s.apply(ctx, owner, id, changes)
}

func (s *TaskService) apply(ctx context.Context, owner domain.UserID, id int64, changes domain.TaskChanges) (domain.TaskView, error) {
	updated, err := s.tasks.Update(ctx, owner, id, changes)
	if err != nil {
		return domain.TaskView{}, repoError(err, "failed to update task", id)
	}

	slog.InfoContext(ctx, "Task updated", "task_id", id)
	s.notifier.Notify(ctx, owner, domain.ActionUpdated, updated)
	return updated.View(s.clock.Now()), nil
}

func (s *TaskService) Delete(ctx context.Context, owner domain.UserID, id int64) error {
	if err := s.tasks.Delete(ctx, owner, id); err != nil {
		return repoError(err, "failed to delete task", id)
	}

	slog.InfoContext(ctx, "Task deleted", "task_id", id)
	s.notifier.Notify(ctx, owner, domain.ActionDeleted, &domain.Task{ID: id, OwnerID: owner})
	return nil
}

func repoError(err error, msg string, id int64) error {
	if errors.Is(err, domain.ErrTaskNotFound) {
		return apperrors.NotFoundError("task not found").WithField("task_id", id)
	}
	return apperrors.InternalError(msg, err)
}
