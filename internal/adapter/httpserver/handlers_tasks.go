package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/taskman/taskman/internal/app"
	apperrors "github.com/taskman/taskman/internal/platform/errors"
)

func (s *Server) registerTaskRoutes(api *echo.Group) {
	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.PUT("/tasks/:id", s.handleUpdateTask)
	api.PATCH("/tasks/:id", s.handlePatchTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)
}

func taskID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NotFoundError("task not found").WithField("task_id", c.Param("id"))
	}
	return id, nil
}

func (s *Server) handleListTasks(c echo.Context) error {
	var q app.ListQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return bindError(err)
	}

	views, err := s.tasks.List(c.Request().Context(), currentUser(c), q)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, views); err != nil {
		return fmt.Errorf("failed to write task list: %w", err)
	}
	return nil
}

func (s *Server) handleGetTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}

	view, err := s.tasks.Get(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, view); err != nil {
		return fmt.Errorf("failed to write task: %w", err)
	}
	return nil
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var in app.TaskInput
	if err := (&echo.DefaultBinder{}).BindBody(c, &in); err != nil {
		return bindError(err)
	}

	view, err := s.tasks.Create(c.Request().Context(), currentUser(c), in)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusCreated, view); err != nil {
		return fmt.Errorf("failed to write task: %w", err)
	}
	return nil
}

func (s *Server) handleUpdateTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}

	var in app.TaskInput
	if err := (&echo.DefaultBinder{}).BindBody(c, &in); err != nil {
		return bindError(err)
	}

	view, err := s.tasks.Update(c.Request().Context(), currentUser(c), id, in)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, view); err != nil {
		return fmt.Errorf("failed to write task: %w", err)
	}
	return nil
}

func (s *Server) handlePatchTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}

	var patch app.TaskPatch
	if err := (&echo.DefaultBinder{}).BindBody(c, &patch); err != nil {
		return bindError(err)
	}

	view, err := s.tasks.Patch(c.Request().Context(), currentUser(c), id, patch)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, view); err != nil {
		return fmt.Errorf("failed to write task: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}

	if err := s.tasks.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
