package server

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"voxcollect/internal/domain"
	"voxcollect/internal/engine"
)

func registerContributions(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "can-contribute",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/can-contribute",
		Summary:     "Check whether the caller may contribute to a task",
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body envelope[map[string]any]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reason, err := e.CanContribute(ctx, input.TaskID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[map[string]any]
		}{Body: ok(map[string]any{
			"can_contribute": reason == "",
			"reason":         reason,
		})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-contribution",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/contributions",
		Summary:       "Submit a contribution",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Body   struct {
			AudioBase64       string  `json:"audio_base64,omitempty"`
			ContentType       string  `json:"content_type,omitempty" example:"audio/wav"`
			TranscriptionText *string `json:"transcription_text,omitempty"`
			TranslationText   *string `json:"translation_text,omitempty"`
			Rating            *int    `json:"rating,omitempty" minimum:"1" maximum:"5"`
		}
	}) (*struct {
		Body envelope[domain.Contribution]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var audio []byte
		if input.Body.AudioBase64 != "" {
			var err error
			audio, err = base64.StdEncoding.DecodeString(input.Body.AudioBase64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "audio_base64 is not valid base64", nil)
			}
		}
		c, err := e.SubmitContribution(ctx, engine.SubmitOptions{
			TaskID:            input.TaskID,
			UserID:            userID,
			Audio:             audio,
			ContentType:       input.Body.ContentType,
			TranscriptionText: input.Body.TranscriptionText,
			TranslationText:   input.Body.TranslationText,
			Rating:            input.Body.Rating,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Contribution]
		}{Body: ok(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contributions",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/contributions",
		Summary:     "List contributions for a task",
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body envelope[[]domain.Contribution]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		cs, err := e.Repo.ListContributionsByTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]domain.Contribution]
		}{Body: ok(cs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contribution",
		Method:      http.MethodGet,
		Path:        "/contributions/{contribution_id}",
		Summary:     "Get contribution",
	}, func(ctx context.Context, input *struct {
		ContributionID string `path:"contribution_id"`
	}) (*struct {
		Body envelope[domain.Contribution]
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetContribution(ctx, input.ContributionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Contribution]
		}{Body: ok(c)}, nil
	})
}

func registerReviews(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "approve-contribution",
		Method:      http.MethodPost,
		Path:        "/contributions/{contribution_id}/approve",
		Summary:     "Approve a contribution",
	}, func(ctx context.Context, input *struct {
		ContributionID string `path:"contribution_id"`
		Body           struct {
			Rating  *int   `json:"rating,omitempty" minimum:"1" maximum:"5"`
			Comment string `json:"comment,omitempty"`
		}
	}) (*struct {
		Body envelope[domain.Contribution]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ApproveContribution(ctx, input.ContributionID, userID, input.Body.Rating, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Contribution]
		}{Body: ok(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-contribution",
		Method:      http.MethodPost,
		Path:        "/contributions/{contribution_id}/reject",
		Summary:     "Reject a contribution",
	}, func(ctx context.Context, input *struct {
		ContributionID string `path:"contribution_id"`
		Body           struct {
			Reason string `json:"reason" minLength:"1"`
		}
	}) (*struct {
		Body envelope[domain.Contribution]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.RejectContribution(ctx, input.ContributionID, userID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[domain.Contribution]
		}{Body: ok(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "batch-review",
		Method:      http.MethodPost,
		Path:        "/reviews/batch",
		Summary:     "Apply several review decisions",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Decisions []engine.ReviewDecision `json:"decisions" minItems:"1"`
		}
	}) (*struct {
		Body envelope[engine.BatchReviewResult]
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res := e.BatchReview(ctx, userID, input.Body.Decisions)
		return &struct {
			Body envelope[engine.BatchReviewResult]
		}{Body: ok(res)}, nil
	})
}
