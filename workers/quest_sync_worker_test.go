// workers/quest_sync_worker_test.go
package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"quest-arcade-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWallet = "0xWorkerBob"

// fakeChainClient serves canned reads and can be told to fail.
type fakeChainClient struct {
	counter    int64
	counterErr error
	quests     map[int64]*models.Quest
	questErrs  map[int64]error
	escrows    map[int64]*models.EscrowRecord
	mirrors    map[int64]*models.QuestMirror
	mirrorErrs map[int64]error
	balances   map[string]models.Amount
	balanceErr error
	questCalls int
}

func newFakeChain() *fakeChainClient {
	return &fakeChainClient{
		quests:     map[int64]*models.Quest{},
		questErrs:  map[int64]error{},
		escrows:    map[int64]*models.EscrowRecord{},
		mirrors:    map[int64]*models.QuestMirror{},
		mirrorErrs: map[int64]error{},
		balances:   map[string]models.Amount{},
	}
}

func (f *fakeChainClient) QuestCounter(ctx context.Context) (int64, error) {
	if f.counterErr != nil {
		return 0, f.counterErr
	}
	return f.counter, nil
}

func (f *fakeChainClient) QuestByID(ctx context.Context, id int64) (*models.Quest, error) {
	f.questCalls++
	if err := f.questErrs[id]; err != nil {
		return nil, err
	}
	q, ok := f.quests[id]
	if !ok {
		return nil, errRemoteNotFound
	}
	return q, nil
}

func (f *fakeChainClient) EscrowByID(ctx context.Context, id int64) (*models.EscrowRecord, error) {
	rec, ok := f.escrows[id]
	if !ok {
		return nil, errRemoteNotFound
	}
	return rec, nil
}

func (f *fakeChainClient) RegistryByID(ctx context.Context, id int64) (*models.QuestMirror, error) {
	if err := f.mirrorErrs[id]; err != nil {
		return nil, err
	}
	m, ok := f.mirrors[id]
	if !ok {
		return nil, errRemoteNotFound
	}
	return m, nil
}

func (f *fakeChainClient) BalanceOf(ctx context.Context, address string) (models.Amount, error) {
	if f.balanceErr != nil {
		return models.Amount{}, f.balanceErr
	}
	return f.balances[address], nil
}

func newSyncWorker(t *testing.T, chain ChainClient) *QuestSyncWorker {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.QuestSnapshot{},
		&models.QuestProgressSnapshot{},
		&models.BalanceSnapshot{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	w := NewQuestSyncWorker(db, chain, testWallet)
	w.Now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

func (f *fakeChainClient) addQuest(q models.Quest) {
	f.quests[q.ID] = &q
	if q.ID > f.counter {
		f.counter = q.ID
	}
}

func TestReconcileBalance(t *testing.T) {
	cases := []struct {
		name                      string
		lastSynced, local, remote int64
		want                      int64
	}{
		{"first sync trusts remote", 0, 0, 250, 250},
		{"local debit preserved when chain unchanged", 100, 80, 100, 80},
		{"chain gain added on top of local debit", 100, 80, 150, 130},
		{"no chain movement, no local movement", 100, 100, 100, 100},
		{"chain decrease ignored, local kept", 100, 80, 40, 80},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ReconcileBalance(models.Tokens(tc.lastSynced), models.Tokens(tc.local), models.Tokens(tc.remote))
			if got.Cmp(models.Tokens(tc.want)) != 0 {
				t.Fatalf("ReconcileBalance(%d, %d, %d) = %s, want %s",
					tc.lastSynced, tc.local, tc.remote, got, models.Tokens(tc.want))
			}
		})
	}
}

func TestSyncOnceBuildsReadModel(t *testing.T) {
	chain := newFakeChain()
	deadline := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	chain.addQuest(models.Quest{
		ID: 1, Creator: "0xCreatorAlice", Worker: testWallet,
		Title: "Deliver the parcel", RewardAmount: models.Tokens(100),
		Deadline: deadline, Status: models.QuestStatusVerified,
		RewardEscrowed: true,
	})
	chain.escrows[1] = &models.EscrowRecord{QuestID: 1, Depositor: "0xCreatorAlice", Amount: models.Tokens(100)}
	chain.mirrors[1] = &models.QuestMirror{QuestID: 1, URI: "quests/1-deliver-the-parcel"}
	chain.balances[testWallet] = models.Tokens(42)

	w := newSyncWorker(t, chain)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	quests, progress, balance, err := w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(quests) != 1 {
		t.Fatalf("quests = %d, want 1", len(quests))
	}
	q := quests[0]
	if q.StateLabel != "verified" || !q.Escrowed || q.Claimed || q.Expired {
		t.Fatalf("snapshot fields: %+v", q)
	}
	if q.RegistryURI != "quests/1-deliver-the-parcel" {
		t.Fatalf("registry uri = %q", q.RegistryURI)
	}

	if len(progress) != 2 {
		t.Fatalf("progress rows = %d, want 2 (creator + worker)", len(progress))
	}
	byRole := map[string]string{}
	for _, p := range progress {
		byRole[p.Role] = p.Stage
	}
	if byRole["creator"] != "approved" {
		t.Fatalf("creator stage = %q, want approved", byRole["creator"])
	}
	if byRole["worker"] != "reward_available" {
		t.Fatalf("worker stage = %q, want reward_available", byRole["worker"])
	}

	if balance.Cmp(models.Tokens(42)) != 0 {
		t.Fatalf("balance = %s, want %s", balance, models.Tokens(42))
	}
}

func TestSyncOnceIsIdempotent(t *testing.T) {
	chain := newFakeChain()
	chain.addQuest(models.Quest{
		ID: 1, Creator: "0xCreatorAlice", Title: "Quest one",
		RewardAmount: models.Tokens(10),
		Deadline:     time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		Status:       models.QuestStatusOpen, RewardEscrowed: true,
	})
	chain.balances[testWallet] = models.Tokens(5)

	w := newSyncWorker(t, chain)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	first, firstProgress, firstBalance, err := w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// Source unchanged: the second replay must not produce new rows or a
	// different balance.
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	second, secondProgress, secondBalance, err := w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if len(first) != len(second) || len(firstProgress) != len(secondProgress) {
		t.Fatalf("row counts changed: %d/%d → %d/%d", len(first), len(firstProgress), len(second), len(secondProgress))
	}
	a, b := first[0], second[0]
	if a.QuestID != b.QuestID || a.StateLabel != b.StateLabel ||
		a.Reward.Cmp(b.Reward) != 0 || !a.Deadline.Equal(b.Deadline) ||
		a.Escrowed != b.Escrowed || a.Claimed != b.Claimed ||
		a.Expired != b.Expired || a.Refundable != b.Refundable {
		t.Fatalf("snapshot changed on replay:\n  first:  %+v\n  second: %+v", a, b)
	}
	if firstBalance.Cmp(secondBalance) != 0 {
		t.Fatalf("balance drifted on replay: %s → %s", firstBalance, secondBalance)
	}
}

func TestSyncCounterFailureKeepsOldSnapshot(t *testing.T) {
	chain := newFakeChain()
	chain.addQuest(models.Quest{
		ID: 1, Creator: "0xCreatorAlice", Title: "Quest one",
		RewardAmount: models.Tokens(10),
		Deadline:     time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		Status:       models.QuestStatusOpen,
	})
	chain.balances[testWallet] = models.Tokens(5)

	w := newSyncWorker(t, chain)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	chain.counterErr = errors.New("gateway unreachable")
	chain.balances[testWallet] = models.Tokens(999)
	if err := w.SyncOnce(context.Background()); err == nil {
		t.Fatal("sync succeeded despite counter failure")
	}

	_, _, balance, err := w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if balance.Cmp(models.Tokens(5)) != 0 {
		t.Fatalf("balance = %s, want previous %s", balance, models.Tokens(5))
	}
}

func TestSyncSkipsFailingQuest(t *testing.T) {
	chain := newFakeChain()
	chain.addQuest(models.Quest{
		ID: 1, Creator: "0xCreatorAlice", Title: "Good quest",
		RewardAmount: models.Tokens(10),
		Deadline:     time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		Status:       models.QuestStatusOpen,
	})
	chain.addQuest(models.Quest{
		ID: 2, Creator: "0xCreatorAlice", Title: "Broken quest",
		RewardAmount: models.Tokens(10),
		Deadline:     time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		Status:       models.QuestStatusOpen,
	})
	chain.questErrs[2] = errors.New("corrupt row")

	w := newSyncWorker(t, chain)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	quests, _, _, err := w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(quests) != 1 || quests[0].QuestID != 1 {
		t.Fatalf("quests = %+v, want only quest 1", quests)
	}
}

func TestSyncDerivesExpiryAndRefundable(t *testing.T) {
	chain := newFakeChain()
	past := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	chain.addQuest(models.Quest{
		ID: 1, Creator: "0xCreatorAlice", Title: "Overdue open",
		RewardAmount: models.Tokens(10), Deadline: past,
		Status: models.QuestStatusOpen, RewardEscrowed: true,
	})
	chain.escrows[1] = &models.EscrowRecord{QuestID: 1, Depositor: "0xCreatorAlice", Amount: models.Tokens(10)}
	chain.addQuest(models.Quest{
		ID: 2, Creator: "0xCreatorAlice", Title: "Overdue cancelled",
		RewardAmount: models.Tokens(10), Deadline: past,
		Status: models.QuestStatusCancelled,
	})
	chain.escrows[2] = &models.EscrowRecord{QuestID: 2, Depositor: "0xCreatorAlice", Amount: models.Tokens(10), Refunded: true}

	w := newSyncWorker(t, chain)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	quests, _, _, err := w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(quests) != 2 {
		t.Fatalf("quests = %d, want 2", len(quests))
	}
	if !quests[0].Expired || !quests[0].Refundable {
		t.Fatalf("overdue open quest: %+v, want expired and refundable", quests[0])
	}
	// Terminal quests never read as expired; settled escrow is not refundable.
	if quests[1].Expired || quests[1].Refundable || quests[1].Escrowed {
		t.Fatalf("cancelled quest: %+v, want settled and unexpired", quests[1])
	}
}

func TestSyncKeepsRegistryURIWhenRegistryFlaps(t *testing.T) {
	chain := newFakeChain()
	chain.addQuest(models.Quest{
		ID: 1, Creator: "0xCreatorAlice", Title: "Deliver the parcel",
		RewardAmount: models.Tokens(10),
		Deadline:     time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		Status:       models.QuestStatusOpen,
	})
	chain.mirrors[1] = &models.QuestMirror{QuestID: 1, URI: "quests/1-deliver-the-parcel"}

	w := newSyncWorker(t, chain)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	// Transient registry failure: the pass keeps the previously synced URI.
	chain.mirrorErrs[1] = errors.New("registry timeout")
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("flapping sync: %v", err)
	}
	quests, _, _, err := w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if quests[0].RegistryURI != "quests/1-deliver-the-parcel" {
		t.Fatalf("registry uri = %q, want the previously synced value", quests[0].RegistryURI)
	}

	// A definitive not-found does clear it.
	delete(chain.mirrorErrs, 1)
	delete(chain.mirrors, 1)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("not-found sync: %v", err)
	}
	quests, _, _, err = w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if quests[0].RegistryURI != "" {
		t.Fatalf("registry uri = %q, want cleared after not-found", quests[0].RegistryURI)
	}
}

func TestSpendLocalSurvivesSync(t *testing.T) {
	chain := newFakeChain()
	chain.balances[testWallet] = models.Tokens(100)

	w := newSyncWorker(t, chain)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	// Optimistic client-side purchase of 20 tokens.
	if err := w.SpendLocal(models.Tokens(20)); err != nil {
		t.Fatalf("spend: %v", err)
	}

	// Chain unchanged: resync must keep the debit.
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	_, _, balance, err := w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if balance.Cmp(models.Tokens(80)) != 0 {
		t.Fatalf("balance = %s, want %s", balance, models.Tokens(80))
	}

	// Chain gains 50 (a quest payout lands): debit and gain both apply.
	chain.balances[testWallet] = models.Tokens(150)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("resync after gain: %v", err)
	}
	_, _, balance, err = w.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if balance.Cmp(models.Tokens(130)) != 0 {
		t.Fatalf("balance = %s, want %s", balance, models.Tokens(130))
	}
}

func TestSpendLocalRejectsOverdraft(t *testing.T) {
	chain := newFakeChain()
	chain.balances[testWallet] = models.Tokens(10)

	w := newSyncWorker(t, chain)
	if err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("seed sync: %v", err)
	}
	if err := w.SpendLocal(models.Tokens(11)); err == nil {
		t.Fatal("overdraft accepted")
	}
	if err := w.SpendLocal(models.Amount{}); err == nil {
		t.Fatal("zero debit accepted")
	}
}

func TestTrySyncThrottles(t *testing.T) {
	chain := newFakeChain()
	chain.addQuest(models.Quest{
		ID: 1, Creator: "0xCreatorAlice", Title: "Quest one",
		RewardAmount: models.Tokens(10),
		Deadline:     time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		Status:       models.QuestStatusOpen,
	})

	w := newSyncWorker(t, chain)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	w.Now = func() time.Time { return now }

	w.TrySync(context.Background())
	callsAfterFirst := chain.questCalls
	if callsAfterFirst == 0 {
		t.Fatal("first TrySync did not run a pass")
	}

	// Inside the throttle window: dropped.
	now = now.Add(w.MinInterval / 2)
	w.TrySync(context.Background())
	if chain.questCalls != callsAfterFirst {
		t.Fatalf("throttled TrySync still ran a pass (%d → %d calls)", callsAfterFirst, chain.questCalls)
	}

	// Past the window: runs again.
	now = now.Add(w.MinInterval)
	w.TrySync(context.Background())
	if chain.questCalls <= callsAfterFirst {
		t.Fatal("TrySync after throttle window did not run")
	}
}
