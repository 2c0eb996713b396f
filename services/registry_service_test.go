// services/registry_service_test.go
package services

import (
	"errors"
	"testing"
	"time"

	"quest-arcade-system/models"
)

func mirrorQuest(env *testEnv, id int64, title string, deadline time.Time) *models.Quest {
	return &models.Quest{
		ID:           id,
		Creator:      testCreator,
		Title:        title,
		RewardAmount: models.Tokens(10),
		Deadline:     deadline,
		Status:       models.QuestStatusOpen,
	}
}

func TestRegistryWriterGating(t *testing.T) {
	env := newTestEnv(t)
	q := mirrorQuest(env, 1, "Sweep the docks", env.Now.Add(time.Hour))

	if err := env.Registry.RegisterQuest(testWorker, q); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("register by stranger err = %v, want ErrUnauthorized", err)
	}
	if err := env.Registry.UpdateQuestState(testWorker, 1, models.QuestStatusAccepted); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("state by stranger err = %v, want ErrUnauthorized", err)
	}
	if err := env.Registry.RegisterQuest(testArcade, q); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestRegistrySlugURI(t *testing.T) {
	env := newTestEnv(t)
	q := mirrorQuest(env, 7, "Paint the Town Hall — Again!", env.Now.Add(time.Hour))
	if err := env.Registry.RegisterQuest(testArcade, q); err != nil {
		t.Fatalf("register: %v", err)
	}
	mirror, err := env.Registry.Get(7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mirror.URI != "quests/7-paint-the-town-hall-again" {
		t.Fatalf("uri = %q", mirror.URI)
	}
}

func TestRegistryReregisterIsUpsert(t *testing.T) {
	env := newTestEnv(t)
	q := mirrorQuest(env, 1, "Old title", env.Now.Add(time.Hour))
	if err := env.Registry.RegisterQuest(testArcade, q); err != nil {
		t.Fatalf("register: %v", err)
	}
	q.Title = "New title"
	if err := env.Registry.RegisterQuest(testArcade, q); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	mirror, err := env.Registry.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mirror.Title != "New title" {
		t.Fatalf("title = %q, want New title", mirror.Title)
	}
}

func TestRegistryUpdateMissingQuest(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Registry.UpdateQuestState(testArcade, 99, models.QuestStatusAccepted); !errors.Is(err, ErrQuestNotFound) {
		t.Fatalf("err = %v, want ErrQuestNotFound", err)
	}
	if err := env.Registry.UpdateQuestMetadata(testArcade, 99, "t", "d", models.Tokens(1), env.Now.Add(time.Hour)); !errors.Is(err, ErrQuestNotFound) {
		t.Fatalf("err = %v, want ErrQuestNotFound", err)
	}
}

func TestSweepExpiredFlagsOnlyLiveOverdueQuests(t *testing.T) {
	env := newTestEnv(t)
	overdue := env.Now.Add(-time.Hour)
	future := env.Now.Add(time.Hour)

	for _, q := range []*models.Quest{
		mirrorQuest(env, 1, "overdue open", overdue),
		mirrorQuest(env, 2, "future open", future),
		mirrorQuest(env, 3, "overdue verified", overdue),
		mirrorQuest(env, 4, "overdue accepted", overdue),
	} {
		if err := env.Registry.RegisterQuest(testArcade, q); err != nil {
			t.Fatalf("register %d: %v", q.ID, err)
		}
	}
	if err := env.Registry.UpdateQuestState(testArcade, 3, models.QuestStatusVerified); err != nil {
		t.Fatalf("state: %v", err)
	}
	if err := env.Registry.UpdateQuestState(testArcade, 4, models.QuestStatusAccepted); err != nil {
		t.Fatalf("state: %v", err)
	}

	flagged, err := env.Registry.SweepExpired(env.Now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if flagged != 2 {
		t.Fatalf("flagged = %d, want 2 (overdue open + overdue accepted)", flagged)
	}

	for id, want := range map[int64]bool{1: true, 2: false, 3: false, 4: true} {
		mirror, err := env.Registry.Get(id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if mirror.Expired != want {
			t.Errorf("quest %d expired = %v, want %v", id, mirror.Expired, want)
		}
	}

	// Second sweep is a no-op: the flag is sticky and already-flagged rows
	// are excluded.
	flagged, err = env.Registry.SweepExpired(env.Now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if flagged != 0 {
		t.Fatalf("second sweep flagged = %d, want 0", flagged)
	}
}
