package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskman/taskman/internal/domain"
)

const taskColumns = `id, title, description, status, priority, due_date, owner_id, created_at, updated_at`

type TaskRepo struct {
	pool *pgxpool.Pool
}

var _ domain.TaskRepository = (*TaskRepo)(nil)

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t        domain.Task
		status   string
		priority string
		owner    int64
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.DueDate, &owner, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	t.OwnerID = domain.UserID(owner)
	return &t, nil
}

// List returns the owner's tasks, newest first.
func (r *TaskRepo) List(ctx context.Context, owner domain.UserID, filter domain.TaskFilter) ([]*domain.Task, error) {
	where := []string{"owner_id = @owner"}
	args := pgx.NamedArgs{"owner": int64(owner)}

	if filter.Status != "" {
		where = append(where, "status = @status")
		args["status"] = string(filter.Status)
	}
	if filter.Priority != "" {
		where = append(where, "priority = @priority")
		args["priority"] = string(filter.Priority)
	}
	if filter.DueDate != nil {
		where = append(where, "due_date = @due_date::date")
		args["due_date"] = filter.DueDate.Format(domain.DateLayout)
	}
	if filter.Search != "" {
		where = append(where, "(title ILIKE @search OR description ILIKE @search)")
		args["search"] = "%" + escapeLike(filter.Search) + "%"
	}

	sql := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *TaskRepo) Get(ctx context.Context, owner domain.UserID, id int64) (*domain.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND owner_id = $2`, id, int64(owner)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	var due any
	if task.DueDate != nil {
		due = task.DueDate.Format(domain.DateLayout)
	}

	t, err := scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, priority, due_date, owner_id)
		VALUES ($1, $2, $3, $4, $5::date, $6)
		RETURNING `+taskColumns,
		task.Title, task.Description, string(task.Status), string(task.Priority), due, int64(task.OwnerID)))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// Update applies only the fields present in changes and bumps updated_at.
func (r *TaskRepo) Update(ctx context.Context, owner domain.UserID, id int64, changes domain.TaskChanges) (*domain.Task, error) {
	set := []string{"updated_at = now()"}
	args := pgx.NamedArgs{"id": id, "owner": int64(owner)}

	if changes.Title != nil {
		set = append(set, "title = @title")
		args["title"] = *changes.Title
	}
	switch {
	case changes.ClearDescription:
		set = append(set, "description = NULL")
	case changes.Description != nil:
		set = append(set, "description = @description")
		args["description"] = *changes.Description
	}
	if changes.Status != nil {
		set = append(set, "status = @status")
		args["status"] = string(*changes.Status)
	}
	if changes.Priority != nil {
		set = append(set, "priority = @priority")
		args["priority"] = string(*changes.Priority)
	}
	switch {
	case changes.ClearDueDate:
		set = append(set, "due_date = NULL")
	case changes.DueDate != nil:
		set = append(set, "due_date = @due_date::date")
		args["due_date"] = changes.DueDate.Format(domain.DateLayout)
	}

	sql := `UPDATE tasks SET ` + strings.Join(set, ", ") +
		` WHERE id = @id AND owner_id = @owner RETURNING ` + taskColumns

	t, err := scanTask(r.pool.QueryRow(ctx, sql, args))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

func (r *TaskRepo) Delete(ctx context.Context, owner domain.UserID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`, id, int64(owner))
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}
