package engine_test

import (
	"database/sql"
	"testing"

	"voxcollect/internal/domain"
)

func TestEnsureIntegrityNoDrift(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "p")

	rep, err := env.Engine.EnsureIntegrity(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if rep.Repaired {
		t.Fatalf("nothing to repair, got %+v", rep)
	}
}

func TestEnsureIntegrityRepairsStatusDrift(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "p")

	// Corrupt the row directly; history still says open.
	if _, err := env.DB.Exec(`UPDATE tasks SET status='completed' WHERE id=?`, task.ID); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	rep, err := env.Engine.EnsureIntegrity(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if !rep.Repaired {
		t.Fatal("expected repair")
	}
	if rep.StatusWas != domain.TaskCompleted || rep.StatusNow != domain.TaskOpen {
		t.Fatalf("unexpected repair: %+v", rep)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.Status != domain.TaskOpen {
		t.Fatalf("status should match history, got %s", got.Status)
	}
}

func TestEnsureIntegrityRemovesOrphanFileLinks(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "p")

	err := env.Engine.Repo.RunTx(env.Ctx, func(tx *sql.Tx) error {
		return env.Engine.Repo.InsertTaskFileTx(env.Ctx, tx, domain.TaskFile{
			TaskID: task.ID, FileID: "no-such-file", CreatedAt: "2026-01-02T03:04:05Z",
		})
	})
	if err != nil {
		t.Fatalf("insert orphan link: %v", err)
	}

	rep, err := env.Engine.EnsureIntegrity(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if rep.RemovedLinks != 1 {
		t.Fatalf("expected 1 removed link, got %d", rep.RemovedLinks)
	}
	links, _ := env.Engine.Repo.ListTaskFiles(env.Ctx, task.ID)
	if len(links) != 0 {
		t.Fatalf("orphan link should be gone, %d remain", len(links))
	}
}

func TestEnsureIntegrityReportsMissingFields(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "p")
	mustSubmitAudio(t, env, task.ID, "alice")

	// Drop the assignee while the task is in_progress; history agrees with
	// the status so only the missing field is reported.
	if _, err := env.DB.Exec(`UPDATE tasks SET assigned_to=NULL WHERE id=?`, task.ID); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	rep, err := env.Engine.EnsureIntegrity(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if len(rep.MissingFields) != 1 || rep.MissingFields[0] != "assigned_to" {
		t.Fatalf("expected missing assigned_to, got %+v", rep.MissingFields)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.AssignedTo != nil {
		t.Fatal("missing fields must not be fabricated")
	}
}

func TestCheckProjectIntegrity(t *testing.T) {
	env := newTestEnv(t)
	clean := env.openTask(t, domain.TypeASR, "clean")
	drifted := env.openTask(t, domain.TypeASR, "drifted")
	if _, err := env.DB.Exec(`UPDATE tasks SET status='archived' WHERE id=?`, drifted.ID); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	reps, err := env.Engine.CheckProjectIntegrity(env.Ctx, testProject)
	if err != nil {
		t.Fatalf("project integrity: %v", err)
	}
	if len(reps) != 1 || reps[0].TaskID != drifted.ID {
		t.Fatalf("expected one report for the drifted task, got %+v", reps)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, clean.ID)
	if got.Status != domain.TaskOpen {
		t.Fatalf("clean task untouched, got %s", got.Status)
	}
}
