package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"voxcollect/internal/domain"
	"voxcollect/internal/engine"
	"voxcollect/internal/repo"
)

type taskPath struct {
	TaskID string `path:"task_id"`
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      struct {
			Type       string  `json:"type" enum:"asr,tts,transcription,translation,validation"`
			PromptText string  `json:"prompt_text,omitempty"`
			Priority   *int    `json:"priority,omitempty"`
			Metadata   *string `json:"metadata_json,omitempty"`
		}
	}) (*struct {
		Body envelope[domain.Task]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.CreateTaskOptions{
			ProjectID:  input.ProjectID,
			Type:       input.Body.Type,
			PromptText: input.Body.PromptText,
			Priority:   input.Body.Priority,
			Metadata:   input.Body.Metadata,
			ActorID:    userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Task]
		}{Body: ok(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body envelope[domain.Task]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Task]
		}{Body: ok(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Status     string `query:"status"`
		Type       string `query:"type"`
		AssignedTo string `query:"assigned_to"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body envelope[[]domain.Task]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ts, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			ProjectID:  input.ProjectID,
			Status:     input.Status,
			Type:       input.Type,
			AssignedTo: input.AssignedTo,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]domain.Task]
		}{Body: ok(ts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/transition",
		Summary:     "Change task status",
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Body   struct {
			To   string `json:"to" enum:"draft,open,in_progress,completed,verified,rejected,archived"`
			Note string `json:"note,omitempty"`
		}
	}) (*struct {
		Body envelope[domain.Task]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.TransitionTask(ctx, input.TaskID, input.Body.To, userID, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Task]
		}{Body: ok(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/history",
		Summary:     "Task status history",
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body envelope[[]domain.TaskStatusHistory]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		hs, err := e.Repo.ListStatusHistory(ctx, input.TaskID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]domain.TaskStatusHistory]
		}{Body: ok(hs)}, nil
	})
}
