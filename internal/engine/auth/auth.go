package auth

import (
	"context"
	"errors"

	"voxcollect/internal/domain"
	"voxcollect/internal/repo"
)

// Action is a gated operation on a project or task.
type Action string

const (
	ActionView         Action = "view"
	ActionEdit         Action = "edit"
	ActionDelete       Action = "delete"
	ActionTransition   Action = "transition"
	ActionReview       Action = "review"
	ActionAddMember    Action = "add_member"
	ActionRemoveMember Action = "remove_member"
)

// Resource is the subject of a permission check. For project-level actions
// Kind is "project" and the task fields stay zero.
type Resource struct {
	Kind       string // "project" or "task"
	ProjectID  string
	CreatedBy  string // project creator
	Status     string // task status, or project status for Kind "project"
	AssignedTo *string
}

// Service answers permission questions from project membership rows. The
// project creator holds every permission on non-archived resources even
// without a membership row.
type Service struct {
	Repo repo.Repo
}

// Check returns whether userID may perform action on res. A missing
// membership row denies everything except the creator rule.
func (s Service) Check(ctx context.Context, userID string, res Resource, action Action) (bool, error) {
	role, err := s.RoleOf(ctx, userID, res)
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}
	return allowed(role, userID, res, action), nil
}

// RoleOf resolves the effective role of userID on the resource's project.
// Returns "" when the user has no role at all.
func (s Service) RoleOf(ctx context.Context, userID string, res Resource) (string, error) {
	if userID == res.CreatedBy && res.Status != domain.TaskArchived {
		return domain.RoleOwner, nil
	}
	m, err := s.Repo.GetMember(ctx, res.ProjectID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return m.Role, nil
}

func allowed(role, userID string, res Resource, action Action) bool {
	switch role {
	case domain.RoleOwner, domain.RoleAdmin:
		return true
	case domain.RoleManager:
		if action == ActionDelete && (res.Status == domain.TaskVerified || res.Status == domain.TaskArchived) {
			return false
		}
		return true
	case domain.RoleReviewer, domain.RoleValidator:
		switch action {
		case ActionView:
			return true
		case ActionReview:
			// Review happens while the claim holds the task in_progress and
			// again on a completed task when a verdict is revisited.
			return res.Kind == "task" && (res.Status == domain.TaskInProgress || res.Status == domain.TaskCompleted)
		case ActionEdit, ActionTransition:
			return res.Kind == "task" && res.Status == domain.TaskCompleted
		}
		return false
	case domain.RoleContributor:
		switch action {
		case ActionView:
			return res.Status == domain.TaskOpen || res.Status == domain.TaskInProgress
		case ActionEdit, ActionTransition:
			return res.Kind == "task" && res.AssignedTo != nil && *res.AssignedTo == userID
		}
		return false
	}
	return false
}
