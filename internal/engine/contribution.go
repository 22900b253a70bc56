package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"voxcollect/internal/domain"
	"voxcollect/internal/events"
	"voxcollect/internal/repo"
)

// SubmitOptions carries one contribution. Audio is optional; transcription and
// translation tasks submit text only.
type SubmitOptions struct {
	ID     string // generated when empty
	TaskID string
	UserID string

	Audio       []byte
	ContentType string

	TranscriptionText *string
	TranslationText   *string
	Rating            *int
}

// CanContribute runs the advisory pre-checks for a submission: membership,
// task status, assignment, duplicates and the per-task cap. The returned
// reason is empty when the user may contribute. The checks here are advisory;
// the conditional claim inside SubmitContribution is what actually decides a
// race.
func (e *Engine) CanContribute(ctx context.Context, taskID, userID string) (string, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return "", err
	}
	role, err := e.Gate.RoleOf(ctx, userID, taskResource(p, t))
	if err != nil {
		return "", err
	}
	if role == "" {
		return "not a member of this project", nil
	}

	switch t.Status {
	case domain.TaskOpen:
	case domain.TaskInProgress:
		if t.AssignedTo == nil || *t.AssignedTo != userID {
			return "task is assigned to someone else", nil
		}
	default:
		return fmt.Sprintf("task is %s and not accepting contributions", t.Status), nil
	}

	resubmitting := false
	if prev, err := e.Repo.GetContributionByTaskUser(ctx, taskID, userID); err == nil {
		if prev.Status != domain.ContributionRejected {
			return "you already contributed to this task", nil
		}
		resubmitting = true
	} else if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}

	// The cap bounds rows per task. A resubmission rewrites the caller's own
	// rejected row, so it never adds one and is exempt.
	if !resubmitting {
		cfg, err := e.projectConfig(ctx, t.ProjectID)
		if err != nil {
			return "", err
		}
		n, err := e.Repo.CountContributionsByTask(ctx, taskID)
		if err != nil {
			return "", err
		}
		if n >= cfg.Limits.MaxContributionsPerTask {
			return "task has reached its contribution limit", nil
		}
	}
	accepted, err := e.Repo.HasAcceptedContribution(ctx, taskID)
	if err != nil {
		return "", err
	}
	if accepted {
		return "task already has an accepted contribution", nil
	}
	return "", nil
}

// SubmitContribution uploads the recording (if any) and records the
// contribution, claiming the task with a conditional update in the same
// transaction. If the transaction fails after the blob landed, the blob is
// deleted best effort before the error surfaces.
func (e *Engine) SubmitContribution(ctx context.Context, opts SubmitOptions) (domain.Contribution, error) {
	reason, err := e.CanContribute(ctx, opts.TaskID, opts.UserID)
	if err != nil {
		return domain.Contribution{}, err
	}
	if reason != "" {
		return domain.Contribution{}, ConflictError{Reason: reason}
	}

	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Contribution{}, err
	}
	cfg, err := e.projectConfig(ctx, t.ProjectID)
	if err != nil {
		return domain.Contribution{}, err
	}

	// A prior rejected contribution means this is a resubmission: the existing
	// row is updated in place rather than inserted.
	var prev *domain.Contribution
	if c, err := e.Repo.GetContributionByTaskUser(ctx, opts.TaskID, opts.UserID); err == nil {
		prev = &c
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Contribution{}, err
	}

	now := e.now()
	var blobURL, bucket, path string
	var sessionID string
	if len(opts.Audio) > 0 {
		sessionID = uuid.NewString()
		sess := domain.UploadSession{
			ID:           sessionID,
			TaskID:       opts.TaskID,
			UserID:       opts.UserID,
			PendingFiles: 1,
			CreatedAt:    now,
			ExpiresAt:    expiry(now),
		}
		if err := e.Repo.InsertUploadSession(ctx, sess); err != nil {
			return domain.Contribution{}, err
		}

		bucket = cfg.Storage.RecordingBucket
		path = fmt.Sprintf("%s/%s/%s-%s.%s", t.ProjectID, t.ID, opts.UserID, uuid.NewString(), extFor(opts.ContentType))
		res := e.Uploads.Upload(ctx, bucket, path, opts.Audio, opts.ContentType)
		if res.Err != nil {
			_ = e.Repo.DeleteUploadSession(ctx, sessionID)
			return domain.Contribution{}, StorageError{Stage: res.Stage, Err: res.Err}
		}
		blobURL = res.URL
	}

	c := domain.Contribution{
		ID:                opts.ID,
		TaskID:            opts.TaskID,
		UserID:            opts.UserID,
		Status:            domain.ContributionSubmitted,
		TranscriptionText: opts.TranscriptionText,
		TranslationText:   opts.TranslationText,
		Rating:            opts.Rating,
		SubmittedAt:       now,
		UpdatedAt:         now,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if blobURL != "" {
		c.StorageURL = &blobURL
	}
	if prev != nil {
		c.ID = prev.ID
		c.SubmittedAt = prev.SubmittedAt
	}

	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		if prev != nil {
			if err := e.Repo.UpdateContributionTx(ctx, tx, c); err != nil {
				return err
			}
		} else if err := e.Repo.InsertContributionTx(ctx, tx, c); err != nil {
			if repo.IsUniqueViolation(err) {
				return ConflictError{Reason: "you already contributed to this task"}
			}
			return err
		}

		if blobURL != "" {
			f := domain.FileMetadata{
				ID:          uuid.NewString(),
				Bucket:      bucket,
				Path:        path,
				PublicURL:   blobURL,
				ContentType: opts.ContentType,
				SizeBytes:   int64(len(opts.Audio)),
				CreatedAt:   now,
			}
			if err := e.Repo.InsertFileMetadataTx(ctx, tx, f); err != nil {
				return err
			}
			tf := domain.TaskFile{TaskID: t.ID, FileID: f.ID, CreatedAt: now}
			if err := e.Repo.InsertTaskFileTx(ctx, tx, tf); err != nil {
				return err
			}
		}

		// The claim. Everything above rolls back if the task is no longer
		// claimable by this user.
		if err := e.Repo.ClaimTaskTx(ctx, tx, t.ID, opts.UserID, c.ID, now); err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			if err := e.Repo.SetCurrentContributionTx(ctx, tx, t.ID, opts.UserID, c.ID, now); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return ConflictError{Reason: "task was claimed by someone else"}
				}
				return err
			}
		} else {
			h := domain.TaskStatusHistory{TaskID: t.ID, FromStatus: domain.TaskOpen, ToStatus: domain.TaskInProgress, ChangedBy: opts.UserID, Note: "claimed", ChangedAt: now}
			if err := e.Repo.AppendStatusHistoryTx(ctx, tx, h); err != nil {
				return err
			}
		}

		return e.Events.Append(ctx, tx, "contribution.submitted", t.ProjectID, "contribution", c.ID, opts.UserID, events.EventPayload{"task_id": t.ID})
	})
	if err != nil {
		if blobURL != "" {
			// Compensation: the DB rolled back, so the blob must go too.
			// Failures here are logged, never escalated.
			if rerr := e.Blobs.Remove(ctx, bucket, path); rerr != nil {
				e.logf("could not delete compensated blob %s/%s: %v", bucket, path, rerr)
			}
		}
		if sessionID != "" {
			_ = e.Repo.DeleteUploadSession(ctx, sessionID)
		}
		return domain.Contribution{}, err
	}

	if sessionID != "" {
		if err := e.Repo.DeleteUploadSession(ctx, sessionID); err != nil {
			e.logf("could not close upload session %s: %v", sessionID, err)
		}
	}
	return c, nil
}

// extFor maps a recording content type to a file extension.
func extFor(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/flac":
		return "flac"
	}
	return "bin"
}
