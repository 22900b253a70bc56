package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"voxcollect/internal/domain"
	"voxcollect/internal/events"
	"voxcollect/internal/repo"
	"voxcollect/internal/storage"
)

// DeletedCounts reports how many rows and blobs the cascade removed. On a
// failed cascade the counts are partial.
type DeletedCounts struct {
	Validations   int `json:"validations"`
	Contributions int `json:"contributions"`
	Files         int `json:"files"`
	Tasks         int `json:"tasks"`
	Members       int `json:"members"`
}

type CascadeResult struct {
	Success bool          `json:"success"`
	Deleted DeletedCounts `json:"deleted"`
	Message string        `json:"message,omitempty"`
}

// SafelyDeleteProject removes a project and everything under it in dependency
// order: validations, contributions, blobs, tasks, members, then the project
// row itself. Archiving the project with a conditional update first acts as
// the deletion lock; on failure before the final delete the prior status is
// restored and partial counts are reported.
func (e *Engine) SafelyDeleteProject(ctx context.Context, projectID, requesterID string) (CascadeResult, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return CascadeResult{}, err
	}
	role, err := e.Gate.RoleOf(ctx, requesterID, projectResource(p))
	if err != nil {
		return CascadeResult{}, err
	}
	if role != domain.RoleOwner {
		return CascadeResult{}, PermissionError{Reason: "only the project owner may delete a project"}
	}

	prior := p.Status
	if prior == domain.ProjectArchived {
		return CascadeResult{}, ConflictError{Reason: "project is archived; a deletion may already be in progress"}
	}
	// The lock: only one caller wins this conditional update.
	if err := e.Repo.SetProjectStatusIf(ctx, projectID, prior, domain.ProjectArchived); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CascadeResult{}, ConflictError{Reason: "project status changed; deletion not started"}
		}
		return CascadeResult{}, err
	}

	var counts DeletedCounts
	fail := func(step string, err error) (CascadeResult, error) {
		if rerr := e.Repo.SetProjectStatus(ctx, projectID, prior); rerr != nil {
			e.logf("could not restore project %s status after failed delete: %v", projectID, rerr)
		}
		msg := fmt.Sprintf("cascade aborted at %s", step)
		return CascadeResult{Deleted: counts, Message: msg}, fmt.Errorf("%s: %w", msg, err)
	}

	var taskIDs []string
	var contributions []domain.Contribution
	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		var err error
		taskIDs, err = e.Repo.ListTaskIDsByProjectTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		contributions, err = e.Repo.ListContributionsByTasksTx(ctx, tx, taskIDs)
		return err
	})
	if err != nil {
		return fail("inventory", err)
	}

	contributionIDs := make([]string, 0, len(contributions))
	var urls []string
	for _, c := range contributions {
		contributionIDs = append(contributionIDs, c.ID)
		if c.StorageURL != nil && *c.StorageURL != "" {
			urls = append(urls, *c.StorageURL)
		}
	}

	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		n, err := e.Repo.DeleteValidationsByContributionsTx(ctx, tx, contributionIDs)
		counts.Validations = n
		return err
	})
	if err != nil {
		return fail("validations", err)
	}

	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		n, err := e.Repo.DeleteContributionsByTasksTx(ctx, tx, taskIDs)
		counts.Contributions = n
		return err
	})
	if err != nil {
		return fail("contributions", err)
	}

	for _, u := range urls {
		bucket, path, err := storage.ParseURL(u)
		if err != nil {
			e.logf("skipping unparseable blob URL %s: %v", u, err)
			continue
		}
		if err := e.Blobs.Remove(ctx, bucket, path); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fail("blobs", err)
		}
		counts.Files++
	}

	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.DeleteTaskFilesByTasksTx(ctx, tx, taskIDs); err != nil {
			return err
		}
		_, err := e.Repo.DeleteFileMetadataByURLsTx(ctx, tx, urls)
		return err
	})
	if err != nil {
		return fail("file metadata", err)
	}

	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		n, err := e.Repo.DeleteTasksTx(ctx, tx, taskIDs)
		counts.Tasks = n
		return err
	})
	if err != nil {
		return fail("tasks", err)
	}

	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		n, err := e.Repo.DeleteMembersByProjectTx(ctx, tx, projectID)
		counts.Members = n
		return err
	})
	if err != nil {
		return fail("members", err)
	}

	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteProjectTx(ctx, tx, projectID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "project.deleted", projectID, "project", projectID, requesterID, events.EventPayload{
			"tasks": counts.Tasks, "contributions": counts.Contributions, "files": counts.Files,
		})
	})
	if err != nil {
		// No restore here: the row may or may not be gone, so leave archived
		// and surface the error.
		return CascadeResult{Deleted: counts, Message: "cascade failed at project row"}, err
	}

	return CascadeResult{Success: true, Deleted: counts, Message: "project deleted"}, nil
}
