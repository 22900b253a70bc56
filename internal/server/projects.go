package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"voxcollect/internal/domain"
	"voxcollect/internal/engine"
	"voxcollect/internal/engine/auth"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerProjects(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID             string `json:"id,omitempty"`
			Name           string `json:"name" minLength:"1"`
			Description    string `json:"description,omitempty"`
			SourceLanguage string `json:"source_language,omitempty"`
			TargetLanguage string `json:"target_language,omitempty"`
		}
	}) (*struct {
		Body envelope[domain.Project]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.CreateProjectOptions{
			ID:             input.Body.ID,
			Name:           input.Body.Name,
			Description:    input.Body.Description,
			SourceLanguage: input.Body.SourceLanguage,
			TargetLanguage: input.Body.TargetLanguage,
			ActorID:        userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Project]
		}{Body: ok(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body envelope[domain.Project]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Project]
		}{Body: ok(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body envelope[[]domain.Project]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		ps, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]domain.Project]
		}{Body: ok(ps)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/status",
		Summary:     "Project status with task counts",
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body envelope[map[string]any]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountTasksByStatus(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[map[string]any]
		}{Body: ok(map[string]any{
			"project_id":  p.ID,
			"status":      p.Status,
			"task_counts": counts,
		})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Cascade-delete a project",
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body envelope[engine.CascadeResult]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SafelyDeleteProject(ctx, input.ProjectID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[engine.CascadeResult]
		}{Body: ok(res)}, nil
	})
}

func registerMembers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPut,
		Path:          "/projects/{project_id}/members/{user_id}",
		Summary:       "Add or update a project member",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
		Body      struct {
			Role string `json:"role" enum:"owner,admin,manager,reviewer,contributor,validator"`
		}
	}) (*struct {
		Body envelope[domain.ProjectMember]
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMember(ctx, input.ProjectID, actorID, input.UserID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.ProjectMember]
		}{Body: ok(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body envelope[[]domain.ProjectMember]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		allowed, err := e.Gate.Check(ctx, userID, auth.Resource{Kind: "project", ProjectID: p.ID, CreatedBy: p.CreatedBy, Status: p.Status}, auth.ActionView)
		if err != nil {
			return nil, handleError(err)
		}
		if !allowed {
			return nil, handleError(engine.PermissionError{Reason: "not a member of this project"})
		}
		ms, err := e.Repo.ListMembers(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]domain.ProjectMember]
		}{Body: ok(ms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/members/{user_id}",
		Summary:     "Remove a project member",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct {
		Body envelope[map[string]string]
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, input.ProjectID, actorID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[map[string]string]
		}{Body: ok(map[string]string{"removed": input.UserID})}, nil
	})
}
