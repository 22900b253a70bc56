package engine_test

import (
	"errors"
	"testing"

	"voxcollect/internal/domain"
	"voxcollect/internal/engine"
)

func TestSubmitContributionClaimsTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "read this aloud")

	c := mustSubmitAudio(t, env, task.ID, "alice")
	if c.Status != domain.ContributionSubmitted {
		t.Fatalf("expected submitted, got %s", c.Status)
	}
	if c.StorageURL == nil {
		t.Fatal("expected a storage URL")
	}

	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != domain.TaskInProgress {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "alice" {
		t.Fatalf("expected alice assigned, got %v", got.AssignedTo)
	}
	if got.CurrentContributionID == nil || *got.CurrentContributionID != c.ID {
		t.Fatalf("expected current contribution %s", c.ID)
	}

	// blob landed and metadata rows exist
	if len(env.Store.blobs) != 1 {
		t.Fatalf("expected 1 blob, got %d", len(env.Store.blobs))
	}
	links, err := env.Engine.Repo.ListTaskFiles(env.Ctx, task.ID)
	if err != nil || len(links) != 1 {
		t.Fatalf("expected 1 task file link, got %d (%v)", len(links), err)
	}

	// claim appended a history row
	latest, err := env.Engine.Repo.LatestStatusHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("latest history: %v", err)
	}
	if latest.ToStatus != domain.TaskInProgress || latest.ChangedBy != "alice" {
		t.Fatalf("unexpected history row: %+v", latest)
	}
}

func TestSubmitContributionDuplicateRejectedBeforeUpload(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "p")
	mustSubmitAudio(t, env, task.ID, "alice")

	uploadsBefore := env.Store.uploads
	_, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		TaskID: task.ID, UserID: "alice",
		Audio: []byte("second take"), ContentType: "audio/wav",
	})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if env.Store.uploads != uploadsBefore {
		t.Fatal("duplicate submission must be rejected before uploading")
	}
}

func TestSubmitContributionDeniedForNonMember(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "p")

	_, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		TaskID: task.ID, UserID: "stranger",
		Audio: []byte("x"), ContentType: "audio/wav",
	})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if env.Store.uploads != 0 {
		t.Fatal("no upload should happen for a denied submission")
	}
}

func TestSubmitContributionTaskHeldByAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "p")
	mustSubmitAudio(t, env, task.ID, "alice")

	_, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		TaskID: task.ID, UserID: "bob",
		Audio: []byte("bob take"), ContentType: "audio/wav",
	})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestSubmitContributionCompensatesBlobOnInsertFailure(t *testing.T) {
	env := newTestEnv(t)
	asr := env.openTask(t, domain.TypeASR, "p1")
	text := env.openTask(t, domain.TypeTranscription, "p2")

	// Occupy the contribution ID on another task so the insert collides
	// inside the transaction, after the blob has already been uploaded.
	transcript := "heard this"
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ID: "c-dup", TaskID: text.ID, UserID: "bob", TranscriptionText: &transcript,
	}); err != nil {
		t.Fatalf("seed contribution: %v", err)
	}

	removesBefore := env.Store.removeCalls
	_, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ID: "c-dup", TaskID: asr.ID, UserID: "alice",
		Audio: []byte("take"), ContentType: "audio/wav",
	})
	if err == nil {
		t.Fatal("expected error from colliding insert")
	}
	if env.Store.removeCalls != removesBefore+1 {
		t.Fatalf("expected exactly one compensating blob delete, got %d", env.Store.removeCalls-removesBefore)
	}
	if len(env.Store.blobs) != 0 {
		t.Fatalf("compensated blob should be gone, %d blobs remain", len(env.Store.blobs))
	}

	// The DB rolled back: no contribution or file rows for the asr task.
	cs, err := env.Engine.Repo.ListContributionsByTask(env.Ctx, asr.ID)
	if err != nil || len(cs) != 0 {
		t.Fatalf("expected no contributions on asr task, got %d (%v)", len(cs), err)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, asr.ID)
	if got.Status != domain.TaskOpen {
		t.Fatalf("task should remain open, got %s", got.Status)
	}
}

func TestTextContributionWithoutBlob(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeTranslation, "house")

	translation := "casa"
	c, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		TaskID: task.ID, UserID: "alice", TranslationText: &translation,
	})
	if err != nil {
		t.Fatalf("submit text: %v", err)
	}
	if c.StorageURL != nil {
		t.Fatal("text contribution must not have a storage URL")
	}
	if env.Store.uploads != 0 {
		t.Fatal("text contribution must not touch blob storage")
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.Status != domain.TaskInProgress {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}
}

func TestResubmitAfterRejectAtContributionCap(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := env.Engine.Repo.GetProjectConfig(env.Ctx, testProject)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	cfg.Limits.MaxContributionsPerTask = 1
	if err := env.Engine.Repo.UpsertProjectConfig(env.Ctx, testProject, cfg); err != nil {
		t.Fatalf("upsert config: %v", err)
	}

	task := env.openTask(t, domain.TypeTranslation, "bread")
	first := "pan"
	c, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		TaskID: task.ID, UserID: "alice", TranslationText: &first,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.RejectContribution(env.Ctx, c.ID, "rev", "wrong word"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// The task sits at the cap, but a resubmission rewrites alice's own
	// rejected row instead of adding one, so it must still go through.
	second := "el pan"
	got, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		TaskID: task.ID, UserID: "alice", TranslationText: &second,
	})
	if err != nil {
		t.Fatalf("resubmit at cap: %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("resubmission must reuse the rejected row, got %s want %s", got.ID, c.ID)
	}
	if got.Status != domain.ContributionSubmitted {
		t.Fatalf("expected submitted, got %s", got.Status)
	}
	cs, err := env.Engine.Repo.ListContributionsByTask(env.Ctx, task.ID)
	if err != nil || len(cs) != 1 {
		t.Fatalf("expected a single contribution row, got %d (%v)", len(cs), err)
	}
}

func TestCanContributeReasons(t *testing.T) {
	env := newTestEnv(t)
	task := env.openTask(t, domain.TypeASR, "p")

	reason, err := env.Engine.CanContribute(env.Ctx, task.ID, "alice")
	if err != nil || reason != "" {
		t.Fatalf("alice should be able to contribute: %q %v", reason, err)
	}

	reason, err = env.Engine.CanContribute(env.Ctx, task.ID, "stranger")
	if err != nil || reason == "" {
		t.Fatalf("expected a denial reason for stranger, got %q %v", reason, err)
	}

	mustSubmitAudio(t, env, task.ID, "alice")
	reason, err = env.Engine.CanContribute(env.Ctx, task.ID, "bob")
	if err != nil || reason == "" {
		t.Fatalf("expected a denial reason for bob on a held task, got %q %v", reason, err)
	}
}
