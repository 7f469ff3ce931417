package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"tasktrail/internal/domain"
	"tasktrail/internal/engine"
)

type taskBody struct {
	Body domain.Task `json:"body"`
}

type listTasksInput struct {
	Status   string `query:"status" doc:"Filter by status"`
	Priority string `query:"priority" doc:"Filter by priority"`
	Category string `query:"category" doc:"Filter by category"`
	SortBy   string `query:"sort_by" doc:"Sort ascending by title, status, priority, category, due_date, created_at or updated_at"`
	Page     int    `query:"page" doc:"Page number, starting at 1"`
	Limit    int    `query:"limit" doc:"Page size"`
}

var taskMutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

// parseDueDate accepts RFC 3339 timestamps and plain dates.
func parseDueDate(raw *string) (*time.Time, huma.StatusError) {
	if raw == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, newAPIError(http.StatusBadRequest, "bad_request", "due_date must be an RFC 3339 timestamp or YYYY-MM-DD",
		map[string]any{"field": "due_date", "reason": "invalid date"})
}

func registerTasks(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		due, derr := parseDueDate(input.Body.DueDate)
		if derr != nil {
			return nil, derr
		}
		t, err := h.engine.CreateTask(ctx, actor, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			Category:    input.Body.Category,
			DueDate:     due,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	list := func(archived bool) func(context.Context, *listTasksInput) (*struct {
		Body engine.TaskPage `json:"body"`
	}, error) {
		return func(ctx context.Context, input *listTasksInput) (*struct {
			Body engine.TaskPage `json:"body"`
		}, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			page, limit := h.normalizePage(input.Page, input.Limit)
			res, err := h.engine.ListTasks(ctx, actor, engine.TaskQuery{
				Status:   input.Status,
				Priority: input.Priority,
				Category: input.Category,
				Archived: archived,
				SortBy:   input.SortBy,
				Page:     page,
				Limit:    limit,
			})
			if err != nil {
				return nil, h.handleError(err)
			}
			return &struct {
				Body engine.TaskPage `json:"body"`
			}{Body: res}, nil
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List active tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, list(false))

	huma.Register(api, huma.Operation{
		OperationID: "list-archived-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/archived",
		Summary:     "List archived tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, list(true))

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*taskBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.GetTask(ctx, actor, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task fields",
		Errors:      taskMutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		due, derr := parseDueDate(input.Body.DueDate)
		if derr != nil {
			return nil, derr
		}
		patch := domain.TaskPatch{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Category:    input.Body.Category,
			DueDate:     due,
		}
		if input.Body.Status != nil {
			s := domain.Status(*input.Body.Status)
			patch.Status = &s
		}
		if input.Body.Priority != nil {
			p := domain.Priority(*input.Body.Priority)
			patch.Priority = &p
		}
		t, err := h.engine.UpdateTask(ctx, actor, input.ID, patch)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      taskMutationErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.DeleteTask(ctx, actor, input.ID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: "task deleted"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/archive",
		Summary:     "Archive task",
		Description: "Marks the task Done and archived. Fails with 404 when the task is already archived.",
		Errors:      taskMutationErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*taskBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.ArchiveTask(ctx, actor, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/restore",
		Summary:     "Restore archived task",
		Description: "Returns an archived task to Pending. Fails with 404 when the task is not archived.",
		Errors:      taskMutationErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*taskBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.RestoreTask(ctx, actor, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/history",
		Summary:     "Task audit history, newest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []HistoryEntryResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entries, err := h.engine.TaskHistory(ctx, actor, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []HistoryEntryResponse `json:"body"`
		}{Body: mapHistory(entries)}, nil
	})
}
