package engine_test

import (
	"errors"
	"fmt"
	"testing"

	"voxcollect/internal/domain"
	"voxcollect/internal/engine"
	"voxcollect/internal/repo"
)

func seedProjectForDeletion(t *testing.T, env testEnv) (taskIDs []string) {
	t.Helper()
	t1 := env.openTask(t, domain.TypeASR, "one")
	t2 := env.openTask(t, domain.TypeASR, "two")
	c1 := mustSubmitAudio(t, env, t1.ID, "alice")
	mustSubmitAudio(t, env, t2.ID, "bob")
	if _, err := env.Engine.RejectContribution(env.Ctx, c1.ID, "rev", "noisy"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	return []string{t1.ID, t2.ID}
}

func TestSafelyDeleteProject(t *testing.T) {
	env := newTestEnv(t)
	taskIDs := seedProjectForDeletion(t, env)

	res, err := env.Engine.SafelyDeleteProject(env.Ctx, testProject, "owner")
	if err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	want := engine.DeletedCounts{Validations: 1, Contributions: 2, Files: 2, Tasks: 2, Members: 5}
	if res.Deleted != want {
		t.Fatalf("deleted counts = %+v, want %+v", res.Deleted, want)
	}

	if _, err := env.Engine.Repo.GetProject(env.Ctx, testProject); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("project should be gone, got %v", err)
	}
	for _, id := range taskIDs {
		if _, err := env.Engine.Repo.GetTask(env.Ctx, id); !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("task %s should be gone, got %v", id, err)
		}
	}
	if len(env.Store.blobs) != 0 {
		t.Fatalf("expected all blobs deleted, %d remain", len(env.Store.blobs))
	}
}

func TestSafelyDeleteProjectRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	for _, user := range []string{"mgr", "rev", "alice", "stranger"} {
		_, err := env.Engine.SafelyDeleteProject(env.Ctx, testProject, user)
		var pe engine.PermissionError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PermissionError for %s, got %v", user, err)
		}
	}
}

func TestSafelyDeleteProjectRestoresStatusOnFailure(t *testing.T) {
	env := newTestEnv(t)
	seedProjectForDeletion(t, env)
	env.Store.removeErr = fmt.Errorf("backend down")

	res, err := env.Engine.SafelyDeleteProject(env.Ctx, testProject, "owner")
	if err == nil {
		t.Fatal("expected cascade failure")
	}
	if res.Success {
		t.Fatal("result must not report success")
	}
	// validations and contributions were already deleted before the blob step
	if res.Deleted.Validations != 1 || res.Deleted.Contributions != 2 {
		t.Fatalf("unexpected partial counts: %+v", res.Deleted)
	}
	if res.Deleted.Tasks != 0 || res.Deleted.Members != 0 {
		t.Fatalf("steps after the failure must not run: %+v", res.Deleted)
	}

	p, gerr := env.Engine.Repo.GetProject(env.Ctx, testProject)
	if gerr != nil {
		t.Fatalf("project row must survive: %v", gerr)
	}
	if p.Status != domain.ProjectActive {
		t.Fatalf("prior status must be restored, got %s", p.Status)
	}
}

func TestSafelyDeleteProjectArchivedIsLocked(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Repo.SetProjectStatus(env.Ctx, testProject, domain.ProjectArchived); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_, err := env.Engine.SafelyDeleteProject(env.Ctx, testProject, "owner")
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}
