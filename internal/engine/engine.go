package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"voxcollect/internal/config"
	"voxcollect/internal/domain"
	"voxcollect/internal/engine/auth"
	"voxcollect/internal/engine/upload"
	"voxcollect/internal/events"
	"voxcollect/internal/repo"
	"voxcollect/internal/storage"
)

// SessionTTL is how long an upload session may stay open before the pruner
// collects it.
const SessionTTL = 24 * time.Hour

// Engine coordinates the task, contribution and validation lifecycle on top
// of the record store and blob storage.
type Engine struct {
	Repo    repo.Repo
	Events  events.Writer
	Gate    auth.Service
	Blobs   storage.Store
	Uploads *upload.Pipeline
	Cfg     *config.Config
	Logger  *log.Logger

	// Now is swappable in tests; defaults to UTC RFC3339.
	Now func() string
}

func New(db *sql.DB, store storage.Store, cfg *config.Config, logger *log.Logger) *Engine {
	r := repo.Repo{DB: db}
	return &Engine{
		Repo:    r,
		Events:  events.Writer{DB: db},
		Gate:    auth.Service{Repo: r},
		Blobs:   store,
		Uploads: upload.New(store, logger),
		Cfg:     cfg,
		Logger:  logger,
	}
}

func (e *Engine) now() string {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// expiry returns now + SessionTTL, both RFC3339.
func expiry(now string) string {
	t, err := time.Parse(time.RFC3339, now)
	if err != nil {
		t = time.Now().UTC()
	}
	return t.Add(SessionTTL).Format(time.RFC3339)
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

// projectConfig returns the per-project config, falling back to defaults when
// none was imported.
func (e *Engine) projectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return config.Default(projectID), nil
		}
		return nil, err
	}
	return cfg, nil
}

func projectResource(p domain.Project) auth.Resource {
	return auth.Resource{Kind: "project", ProjectID: p.ID, CreatedBy: p.CreatedBy, Status: p.Status}
}

func taskResource(p domain.Project, t domain.Task) auth.Resource {
	return auth.Resource{Kind: "task", ProjectID: p.ID, CreatedBy: p.CreatedBy, Status: t.Status, AssignedTo: t.AssignedTo}
}

// requireAllowed runs a permission check and converts denial into a
// PermissionError.
func (e *Engine) requireAllowed(ctx context.Context, userID string, res auth.Resource, action auth.Action) error {
	ok, err := e.Gate.Check(ctx, userID, res, action)
	if err != nil {
		return err
	}
	if !ok {
		return PermissionError{Reason: fmt.Sprintf("user %s may not %s this %s", userID, action, res.Kind)}
	}
	return nil
}

type CreateProjectOptions struct {
	ID             string
	Name           string
	Description    string
	SourceLanguage string
	TargetLanguage string
	ActorID        string
}

// CreateProject inserts the project, seeds its default config and records the
// creator as owner. The creator holds owner rights even without the row, but
// the explicit row makes membership listings complete.
func (e *Engine) CreateProject(ctx context.Context, opts CreateProjectOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, fmt.Errorf("project name is required")
	}
	if opts.ActorID == "" {
		return domain.Project{}, fmt.Errorf("actor is required")
	}
	p := domain.Project{
		ID:             opts.ID,
		Name:           opts.Name,
		Description:    opts.Description,
		Status:         domain.ProjectActive,
		SourceLanguage: opts.SourceLanguage,
		TargetLanguage: opts.TargetLanguage,
		CreatedBy:      opts.ActorID,
		CreatedAt:      e.now(),
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	cfg := config.Default(p.ID)
	if e.Cfg != nil && e.Cfg.Project.ID == p.ID {
		cfg = e.Cfg
	}
	err := e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
			return err
		}
		if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, cfg); err != nil {
			return err
		}
		if _, err := e.Repo.UpsertMemberTx(ctx, tx, p.ID, opts.ActorID, domain.RoleOwner); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"name": p.Name})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// AddMember grants a role on the project. Only owners and admins manage
// membership.
func (e *Engine) AddMember(ctx context.Context, projectID, actorID, userID, role string) (domain.ProjectMember, error) {
	if !domain.ValidRole(role) {
		return domain.ProjectMember{}, fmt.Errorf("unknown role %q", role)
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	if err := e.requireAllowed(ctx, actorID, projectResource(p), auth.ActionAddMember); err != nil {
		return domain.ProjectMember{}, err
	}
	m, err := e.Repo.UpsertMember(ctx, projectID, userID, role)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		return e.Events.Append(ctx, tx, "member.added", projectID, "member", userID, actorID, events.EventPayload{"role": role})
	})
	return m, err
}

func (e *Engine) RemoveMember(ctx context.Context, projectID, actorID, userID string) error {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := e.requireAllowed(ctx, actorID, projectResource(p), auth.ActionRemoveMember); err != nil {
		return err
	}
	if err := e.Repo.DeleteMember(ctx, projectID, userID); err != nil {
		return err
	}
	return e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		return e.Events.Append(ctx, tx, "member.removed", projectID, "member", userID, actorID, nil)
	})
}

type CreateTaskOptions struct {
	ID         string
	ProjectID  string
	Type       string
	PromptText string
	Priority   *int
	Metadata   *string
	ActorID    string
}

// CreateTask inserts a task in draft. Priority defaults from the project
// config's task type entry when not given.
func (e *Engine) CreateTask(ctx context.Context, opts CreateTaskOptions) (domain.Task, error) {
	if !domain.ValidTaskType(opts.Type) {
		return domain.Task{}, fmt.Errorf("unknown task type %q", opts.Type)
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.requireAllowed(ctx, opts.ActorID, projectResource(p), auth.ActionEdit); err != nil {
		return domain.Task{}, err
	}

	priority := 0
	if opts.Priority != nil {
		priority = *opts.Priority
	} else {
		cfg, err := e.projectConfig(ctx, opts.ProjectID)
		if err != nil {
			return domain.Task{}, err
		}
		if tt, ok := cfg.TaskTypes[opts.Type]; ok {
			priority = tt.DefaultPriority
		}
	}

	now := e.now()
	t := domain.Task{
		ID:           opts.ID,
		ProjectID:    opts.ProjectID,
		Type:         opts.Type,
		Status:       domain.TaskDraft,
		PromptText:   opts.PromptText,
		Priority:     priority,
		MetadataJSON: opts.Metadata,
		CreatedBy:    opts.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return err
		}
		h := domain.TaskStatusHistory{TaskID: t.ID, FromStatus: "", ToStatus: domain.TaskDraft, ChangedBy: opts.ActorID, Note: "created", ChangedAt: now}
		if err := e.Repo.AppendStatusHistoryTx(ctx, tx, h); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "task.created", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{"type": t.Type})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TransitionTask moves a task along the status table. The table is enforced
// inside the transaction against the freshly read row, never against what the
// caller believed the status to be.
func (e *Engine) TransitionTask(ctx context.Context, taskID, to, actorID, note string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.requireAllowed(ctx, actorID, taskResource(p, t), auth.ActionTransition); err != nil {
		return domain.Task{}, err
	}

	err = e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if cur.Status == to {
			t = cur
			return nil
		}
		if err := e.setTaskStatusTx(ctx, tx, &cur, to, actorID, note); err != nil {
			return err
		}
		if err := e.Repo.UpdateTaskTx(ctx, tx, cur); err != nil {
			return err
		}
		t = cur
		return e.Events.Append(ctx, tx, "task.status_changed", cur.ProjectID, "task", cur.ID, actorID, events.EventPayload{"to": to})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// setTaskStatusTx validates the transition, mutates t and appends the history
// row. The caller persists t and commits. A same-state call is a no-op.
func (e *Engine) setTaskStatusTx(ctx context.Context, tx *sql.Tx, t *domain.Task, to, actorID, note string) error {
	if t.Status == to {
		return nil
	}
	if err := EnsureTransition(t.Status, to); err != nil {
		return err
	}
	from := t.Status
	t.Status = to
	t.UpdatedAt = e.now()
	h := domain.TaskStatusHistory{TaskID: t.ID, FromStatus: from, ToStatus: to, ChangedBy: actorID, Note: note, ChangedAt: t.UpdatedAt}
	return e.Repo.AppendStatusHistoryTx(ctx, tx, h)
}

// PruneUploadSessions removes expired sessions with no pending files.
func (e *Engine) PruneUploadSessions(ctx context.Context) (int, error) {
	return e.Repo.PruneUploadSessions(ctx, e.now())
}

// StartSessionPruner runs PruneUploadSessions on a ticker until ctx is done.
func (e *Engine) StartSessionPruner(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := e.PruneUploadSessions(ctx)
				if err != nil {
					e.logf("prune upload sessions: %v", err)
				} else if n > 0 {
					e.logf("pruned %d expired upload sessions", n)
				}
			}
		}
	}()
}
