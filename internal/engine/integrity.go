package engine

import (
	"context"
	"database/sql"
	"errors"

	"voxcollect/internal/domain"
	"voxcollect/internal/events"
	"voxcollect/internal/repo"
)

// IntegrityReport describes what EnsureIntegrity found and did for one task.
type IntegrityReport struct {
	TaskID        string   `json:"task_id"`
	Repaired      bool     `json:"repaired"`
	StatusWas     string   `json:"status_was,omitempty"`
	StatusNow     string   `json:"status_now,omitempty"`
	RemovedLinks  int      `json:"removed_links"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// EnsureIntegrity reconciles a task against its status history, which is the
// ground truth: a task whose status disagrees with the latest history row is
// rewritten to match, without a transition check. Orphaned file links are
// removed; missing required fields are reported but not fabricated.
func (e *Engine) EnsureIntegrity(ctx context.Context, taskID string) (IntegrityReport, error) {
	rep := IntegrityReport{TaskID: taskID}

	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return rep, err
	}

	latest, err := e.Repo.LatestStatusHistory(ctx, taskID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return rep, err
	}
	if err == nil && latest.ToStatus != t.Status {
		rep.StatusWas = t.Status
		rep.StatusNow = latest.ToStatus
		err := e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
			cur, err := e.Repo.GetTaskTx(ctx, tx, taskID)
			if err != nil {
				return err
			}
			cur.Status = latest.ToStatus
			cur.UpdatedAt = e.now()
			if err := e.Repo.UpdateTaskTx(ctx, tx, cur); err != nil {
				return err
			}
			t = cur
			return e.Events.Append(ctx, tx, "task.integrity_repaired", cur.ProjectID, "task", cur.ID, "system", events.EventPayload{
				"from": rep.StatusWas, "to": rep.StatusNow,
			})
		})
		if err != nil {
			return rep, DriftError{TaskID: taskID, Err: err}
		}
		rep.Repaired = true
		e.logf("repaired status drift on task %s: %s -> %s", taskID, rep.StatusWas, rep.StatusNow)
	}

	links, err := e.Repo.ListTaskFiles(ctx, taskID)
	if err != nil {
		return rep, err
	}
	for _, l := range links {
		_, err := e.Repo.GetFileMetadata(ctx, l.FileID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return rep, err
		}
		if err := e.Repo.DeleteTaskFile(ctx, taskID, l.FileID); err != nil {
			return rep, err
		}
		rep.RemovedLinks++
	}
	if rep.RemovedLinks > 0 {
		rep.Repaired = true
		e.logf("removed %d orphaned file links on task %s", rep.RemovedLinks, taskID)
	}

	// Required-field checks are report-only. Fabricating an assignee or a
	// completing contribution would hide the real inconsistency.
	switch t.Status {
	case domain.TaskInProgress:
		if t.AssignedTo == nil {
			rep.MissingFields = append(rep.MissingFields, "assigned_to")
		}
	case domain.TaskCompleted, domain.TaskVerified:
		if t.CompletedContributionID == nil {
			rep.MissingFields = append(rep.MissingFields, "completed_contribution_id")
		}
	}
	for _, f := range rep.MissingFields {
		e.logf("task %s is %s but missing %s", taskID, t.Status, f)
	}

	return rep, nil
}

// CheckProjectIntegrity runs EnsureIntegrity over every task in a project.
func (e *Engine) CheckProjectIntegrity(ctx context.Context, projectID string) ([]IntegrityReport, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	var reports []IntegrityReport
	for _, t := range tasks {
		rep, err := e.EnsureIntegrity(ctx, t.ID)
		if err != nil {
			return reports, err
		}
		if rep.Repaired || len(rep.MissingFields) > 0 {
			reports = append(reports, rep)
		}
	}
	return reports, nil
}
