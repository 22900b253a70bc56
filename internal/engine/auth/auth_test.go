package auth_test

import (
	"context"
	"database/sql"
	"testing"

	"voxcollect/internal/db"
	"voxcollect/internal/domain"
	"voxcollect/internal/engine/auth"
	"voxcollect/internal/migrate"
	"voxcollect/internal/repo"
)

func newService(t *testing.T) (auth.Service, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	err = r.RunTx(ctx, func(tx *sql.Tx) error {
		return r.InsertProjectTx(ctx, tx, domain.Project{
			ID: "p1", Name: "p", Status: domain.ProjectActive,
			CreatedBy: "creator", CreatedAt: "2026-01-01T00:00:00Z",
		})
	})
	if err != nil {
		t.Fatalf("insert project: %v", err)
	}
	for user, role := range map[string]string{
		"adm": domain.RoleAdmin,
		"mgr": domain.RoleManager,
		"rev": domain.RoleReviewer,
		"val": domain.RoleValidator,
		"con": domain.RoleContributor,
	} {
		if _, err := r.UpsertMember(ctx, "p1", user, role); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return auth.Service{Repo: r}, ctx
}

func taskRes(status string, assignedTo *string) auth.Resource {
	return auth.Resource{Kind: "task", ProjectID: "p1", CreatedBy: "creator", Status: status, AssignedTo: assignedTo}
}

func TestCheckRoleMatrix(t *testing.T) {
	svc, ctx := newService(t)
	con := "con"

	cases := []struct {
		name   string
		user   string
		res    auth.Resource
		action auth.Action
		want   bool
	}{
		{"admin deletes anything", "adm", taskRes(domain.TaskVerified, nil), auth.ActionDelete, true},
		{"manager edits open task", "mgr", taskRes(domain.TaskOpen, nil), auth.ActionEdit, true},
		{"manager cannot delete verified", "mgr", taskRes(domain.TaskVerified, nil), auth.ActionDelete, false},
		{"manager cannot delete archived", "mgr", taskRes(domain.TaskArchived, nil), auth.ActionDelete, false},
		{"manager deletes open task", "mgr", taskRes(domain.TaskOpen, nil), auth.ActionDelete, true},
		{"reviewer views anything", "rev", taskRes(domain.TaskDraft, nil), auth.ActionView, true},
		{"reviewer transitions completed", "rev", taskRes(domain.TaskCompleted, nil), auth.ActionTransition, true},
		{"reviewer cannot transition open", "rev", taskRes(domain.TaskOpen, nil), auth.ActionTransition, false},
		{"reviewer cannot manage members", "rev", taskRes(domain.TaskOpen, nil), auth.ActionAddMember, false},
		{"validator behaves as reviewer", "val", taskRes(domain.TaskCompleted, nil), auth.ActionTransition, true},
		{"reviewer reviews in-progress task", "rev", taskRes(domain.TaskInProgress, &con), auth.ActionReview, true},
		{"reviewer reviews completed task", "rev", taskRes(domain.TaskCompleted, nil), auth.ActionReview, true},
		{"validator reviews in-progress task", "val", taskRes(domain.TaskInProgress, &con), auth.ActionReview, true},
		{"reviewer cannot review open task", "rev", taskRes(domain.TaskOpen, nil), auth.ActionReview, false},
		{"contributor cannot review", "con", taskRes(domain.TaskInProgress, &con), auth.ActionReview, false},
		{"manager reviews in-progress task", "mgr", taskRes(domain.TaskInProgress, &con), auth.ActionReview, true},
		{"contributor views open", "con", taskRes(domain.TaskOpen, nil), auth.ActionView, true},
		{"contributor cannot view draft", "con", taskRes(domain.TaskDraft, nil), auth.ActionView, false},
		{"contributor edits own assignment", "con", taskRes(domain.TaskInProgress, &con), auth.ActionEdit, true},
		{"contributor cannot edit unassigned", "con", taskRes(domain.TaskOpen, nil), auth.ActionEdit, false},
		{"non-member denied", "ghost", taskRes(domain.TaskOpen, nil), auth.ActionView, false},
	}
	for _, c := range cases {
		got, err := svc.Check(ctx, c.user, c.res, c.action)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCreatorHasImplicitOwnership(t *testing.T) {
	svc, ctx := newService(t)

	ok, err := svc.Check(ctx, "creator", taskRes(domain.TaskVerified, nil), auth.ActionDelete)
	if err != nil || !ok {
		t.Fatalf("creator should hold all permissions: %v %v", ok, err)
	}

	// The creator rule does not cover archived resources.
	role, err := svc.RoleOf(ctx, "creator", taskRes(domain.TaskArchived, nil))
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != "" {
		t.Fatalf("expected no implicit role on archived resource, got %q", role)
	}
}
