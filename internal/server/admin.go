package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"voxcollect/internal/domain"
	"voxcollect/internal/engine"
)

func registerAdmin(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-integrity",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/integrity",
		Summary:     "Check and repair a task against its status history",
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body envelope[engine.IntegrityReport]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		rep, err := e.EnsureIntegrity(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[engine.IntegrityReport]
		}{Body: ok(rep)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-integrity",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/integrity",
		Summary:     "Check and repair every task in a project",
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body envelope[[]engine.IntegrityReport]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		reps, err := e.CheckProjectIntegrity(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]engine.IntegrityReport]
		}{Body: ok(reps)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "prune-upload-sessions",
		Method:      http.MethodPost,
		Path:        "/admin/upload-sessions/prune",
		Summary:     "Prune expired upload sessions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body envelope[map[string]int]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		n, err := e.PruneUploadSessions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[map[string]int]
		}{Body: ok(map[string]int{"pruned": n})}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body envelope[[]domain.Event]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		evts, err := e.Repo.LatestEvents(ctx, input.Limit, input.ProjectID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]domain.Event]
		}{Body: ok(evts)}, nil
	})
}
