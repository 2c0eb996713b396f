// services/service_test.go
package services

import (
	"testing"
	"time"

	"quest-arcade-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testOwner   = "0xOwner"
	testArcade  = "0xQuestArcade"
	testVault   = "0xEscrowVault"
	testFeeBox  = "0xFeeBox"
	testToken   = "0xStableToken"
	testCreator = "0xCreatorAlice"
	testWorker  = "0xWorkerBob"
)

type testEnv struct {
	DB         *gorm.DB
	Cfg        PlatformConfig
	Ledger     *TokenLedgerService
	Escrow     *EscrowService
	Reputation *ReputationService
	Registry   *RegistryService
	Quests     *QuestService
	Now        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.TokenAccount{},
		&models.TokenAllowance{},
		&models.Quest{},
		&models.ApprovedCreator{},
		&models.EscrowRecord{},
		&models.EscrowTransfer{},
		&models.ReputationProfile{},
		&models.ReputationEvent{},
		&models.Reporter{},
		&models.QuestMirror{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cfg := PlatformConfig{
		OwnerAddress:   testOwner,
		ArcadeAddress:  testArcade,
		VaultAddress:   testVault,
		FeeRecipient:   testFeeBox,
		TokenAddress:   testToken,
		PlatformFeeBps: 500,
		QuestXPAward:   100,
	}

	env := &testEnv{
		DB:         db,
		Cfg:        cfg,
		Ledger:     NewTokenLedgerService(db, cfg),
		Reputation: NewReputationService(db, cfg),
		Registry:   NewRegistryService(db, cfg),
		Now:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	env.Escrow = NewEscrowService(db, env.Ledger, cfg)
	env.Quests = NewQuestService(db, env.Escrow, env.Reputation, env.Registry, env.Ledger, cfg)
	env.Quests.Now = func() time.Time { return env.Now }
	return env
}

// fundCreator mints a starting balance, approves the arcade to spend it,
// and puts the creator on the allow-list.
func (e *testEnv) fundCreator(t *testing.T, creator string, tokens int64) {
	t.Helper()
	if err := e.Ledger.Mint(testOwner, creator, models.Tokens(tokens)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := e.Ledger.Approve(creator, testArcade, models.Tokens(tokens)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := e.Quests.SetCreatorStatus(testOwner, creator, true); err != nil {
		t.Fatalf("approve creator: %v", err)
	}
}

func (e *testEnv) mustBalance(t *testing.T, address string) models.Amount {
	t.Helper()
	bal, err := e.Ledger.BalanceOf(address)
	if err != nil {
		t.Fatalf("balance of %s: %v", address, err)
	}
	return bal
}

// openQuest creates a standard quest due in 24h with the given reward.
func (e *testEnv) openQuest(t *testing.T, creator string, rewardTokens int64) *models.Quest {
	t.Helper()
	quest, err := e.Quests.CreateQuest(creator, CreateQuestInput{
		Title:        "Photograph the old lighthouse",
		Description:  "Daylight shot from the pier",
		Reward:       models.Tokens(rewardTokens),
		Verification: models.VerificationPhoto,
		Deadline:     e.Now.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}
	return quest
}

// driveToVerified runs accept → submit → approve on a quest.
func (e *testEnv) driveToVerified(t *testing.T, questID int64, creator, worker string) {
	t.Helper()
	if _, err := e.Quests.AcceptQuest(worker, questID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := e.Quests.SubmitProof(worker, questID, "bafyproofcid", `{"lat":0}`); err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if _, err := e.Quests.VerifyQuest(creator, questID, true); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
