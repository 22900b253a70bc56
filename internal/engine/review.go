package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"voxcollect/internal/domain"
	"voxcollect/internal/engine/auth"
	"voxcollect/internal/events"
	"voxcollect/internal/repo"
)

// ApproveContribution records an approval verdict. For audio task types the
// contribution moves to approved_for_transcription and a transcription task is
// spawned exactly once; everything else moves to validated. The task completes
// either way.
func (e *Engine) ApproveContribution(ctx context.Context, contributionID, validatorID string, rating *int, comment string) (domain.Contribution, error) {
	c, err := e.Repo.GetContribution(ctx, contributionID)
	if err != nil {
		return domain.Contribution{}, err
	}
	if c.UserID == validatorID {
		return domain.Contribution{}, PermissionError{Reason: "you cannot review your own contribution"}
	}
	t, err := e.Repo.GetTask(ctx, c.TaskID)
	if err != nil {
		return domain.Contribution{}, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Contribution{}, err
	}
	if err := e.requireAllowed(ctx, validatorID, taskResource(p, t), auth.ActionReview); err != nil {
		return domain.Contribution{}, err
	}

	now := e.now()
	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetContributionTx(ctx, tx, contributionID)
		if err != nil {
			return err
		}
		task, err := e.Repo.GetTaskTx(ctx, tx, cur.TaskID)
		if err != nil {
			return err
		}
		if task.CompletedContributionID != nil && *task.CompletedContributionID != cur.ID {
			return ConflictError{Reason: "task was already completed by another contribution"}
		}
		other, err := e.Repo.HasAcceptedContributionTx(ctx, tx, task.ID, cur.ID)
		if err != nil {
			return err
		}
		if other {
			return ConflictError{Reason: "another contribution was already accepted for this task"}
		}

		v := domain.Validation{
			ID:             uuid.NewString(),
			ContributionID: cur.ID,
			ValidatorID:    validatorID,
			Approved:       true,
			Comment:        comment,
			CreatedAt:      now,
		}
		if err := e.Repo.InsertValidationTx(ctx, tx, v); err != nil {
			return err
		}

		audio := (task.Type == domain.TypeASR || task.Type == domain.TypeTTS) && cur.StorageURL != nil
		if audio {
			cur.Status = domain.ContributionApprovedFT
		} else {
			cur.Status = domain.ContributionValidated
		}
		if rating != nil {
			cur.Rating = rating
		}
		cur.UpdatedAt = now
		if err := e.Repo.UpdateContributionTx(ctx, tx, cur); err != nil {
			return err
		}

		if err := e.setTaskStatusTx(ctx, tx, &task, domain.TaskCompleted, validatorID, "approved"); err != nil {
			return err
		}
		task.CompletedContributionID = &cur.ID
		if err := e.Repo.UpdateTaskTx(ctx, tx, task); err != nil {
			return err
		}

		if audio {
			if err := e.spawnTranscriptionTaskTx(ctx, tx, task, cur, validatorID, now); err != nil {
				return err
			}
		}

		c = cur
		return e.Events.Append(ctx, tx, "contribution.approved", task.ProjectID, "contribution", cur.ID, validatorID, events.EventPayload{"task_id": task.ID, "status": cur.Status})
	})
	if err != nil {
		return domain.Contribution{}, err
	}
	return c, nil
}

// spawnTranscriptionTaskTx creates the follow-up transcription task for an
// approved recording. The partial unique index on source_contribution_id and
// the in-tx existence check together make the fan-out exactly-once, so a
// repeated approval never doubles the work.
func (e *Engine) spawnTranscriptionTaskTx(ctx context.Context, tx *sql.Tx, src domain.Task, c domain.Contribution, actorID, now string) error {
	_, err := e.Repo.GetTaskBySourceContributionTx(ctx, tx, c.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	meta := fmt.Sprintf(`{"recording_url":%q}`, deref(c.StorageURL))
	nt := domain.Task{
		ID:                   uuid.NewString(),
		ProjectID:            src.ProjectID,
		Type:                 domain.TypeTranscription,
		Status:               domain.TaskOpen,
		PromptText:           src.PromptText,
		Priority:             src.Priority,
		MetadataJSON:         &meta,
		SourceContributionID: &c.ID,
		CreatedBy:            actorID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := e.Repo.InsertTaskTx(ctx, tx, nt); err != nil {
		if repo.IsUniqueViolation(err) {
			return nil
		}
		return err
	}
	h := domain.TaskStatusHistory{TaskID: nt.ID, FromStatus: "", ToStatus: domain.TaskOpen, ChangedBy: actorID, Note: "spawned from approved recording", ChangedAt: now}
	if err := e.Repo.AppendStatusHistoryTx(ctx, tx, h); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "task.created", nt.ProjectID, "task", nt.ID, actorID, events.EventPayload{"type": nt.Type, "source_contribution_id": c.ID})
}

// RejectContribution records a rejection verdict, keeps the submitted data and
// reason on the contribution for display, and puts the task back where the
// same contributor can resubmit.
func (e *Engine) RejectContribution(ctx context.Context, contributionID, validatorID, reason string) (domain.Contribution, error) {
	if reason == "" {
		return domain.Contribution{}, fmt.Errorf("a rejection reason is required")
	}
	c, err := e.Repo.GetContribution(ctx, contributionID)
	if err != nil {
		return domain.Contribution{}, err
	}
	if c.UserID == validatorID {
		return domain.Contribution{}, PermissionError{Reason: "you cannot review your own contribution"}
	}
	t, err := e.Repo.GetTask(ctx, c.TaskID)
	if err != nil {
		return domain.Contribution{}, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Contribution{}, err
	}
	if err := e.requireAllowed(ctx, validatorID, taskResource(p, t), auth.ActionReview); err != nil {
		return domain.Contribution{}, err
	}

	now := e.now()
	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetContributionTx(ctx, tx, contributionID)
		if err != nil {
			return err
		}
		task, err := e.Repo.GetTaskTx(ctx, tx, cur.TaskID)
		if err != nil {
			return err
		}

		v := domain.Validation{
			ID:             uuid.NewString(),
			ContributionID: cur.ID,
			ValidatorID:    validatorID,
			Approved:       false,
			Comment:        reason,
			CreatedAt:      now,
		}
		if err := e.Repo.InsertValidationTx(ctx, tx, v); err != nil {
			return err
		}

		cur.Status = domain.ContributionRejected
		cur.RejectionReason = &reason
		cur.UpdatedAt = now
		if err := e.Repo.UpdateContributionTx(ctx, tx, cur); err != nil {
			return err
		}

		// Route the task back to an assignable state. A completed task first
		// passes through rejected, writing both history rows.
		if task.Status == domain.TaskCompleted {
			if err := e.setTaskStatusTx(ctx, tx, &task, domain.TaskRejected, validatorID, reason); err != nil {
				return err
			}
			next := domain.TaskOpen
			if task.AssignedTo != nil {
				next = domain.TaskInProgress
			}
			if err := e.setTaskStatusTx(ctx, tx, &task, next, validatorID, "reopened for resubmission"); err != nil {
				return err
			}
		}
		if task.CompletedContributionID != nil && *task.CompletedContributionID == cur.ID {
			task.CompletedContributionID = nil
		}
		if err := e.Repo.UpdateTaskTx(ctx, tx, task); err != nil {
			return err
		}

		c = cur
		return e.Events.Append(ctx, tx, "contribution.rejected", task.ProjectID, "contribution", cur.ID, validatorID, events.EventPayload{"task_id": task.ID, "reason": reason})
	})
	if err != nil {
		return domain.Contribution{}, err
	}
	return c, nil
}

// ReviewDecision is one item of a batch review.
type ReviewDecision struct {
	ContributionID string `json:"contribution_id"`
	Approve        bool   `json:"approve"`
	Rating         *int   `json:"rating,omitempty"`
	Comment        string `json:"comment,omitempty"`
}

type BatchReviewError struct {
	ContributionID string `json:"contribution_id"`
	Reason         string `json:"reason"`
}

// BatchReviewResult reports per-item outcomes; one failed decision never
// aborts the rest.
type BatchReviewResult struct {
	SuccessCount int                `json:"successCount"`
	FailedCount  int                `json:"failedCount"`
	Errors       []BatchReviewError `json:"errors,omitempty"`
}

// BatchReview applies decisions concurrently. Each decision is its own
// transaction, so the worst a race between two decisions on the same task can
// produce is a ConflictError on the loser.
func (e *Engine) BatchReview(ctx context.Context, validatorID string, decisions []ReviewDecision) BatchReviewResult {
	var (
		mu  sync.Mutex
		res BatchReviewResult
		wg  conc.WaitGroup
	)
	for _, d := range decisions {
		d := d
		wg.Go(func() {
			var err error
			if d.Approve {
				_, err = e.ApproveContribution(ctx, d.ContributionID, validatorID, d.Rating, d.Comment)
			} else {
				_, err = e.RejectContribution(ctx, d.ContributionID, validatorID, d.Comment)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedCount++
				res.Errors = append(res.Errors, BatchReviewError{ContributionID: d.ContributionID, Reason: err.Error()})
				return
			}
			res.SuccessCount++
		})
	}
	wg.Wait()
	return res
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
