// workers/quest_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"quest-arcade-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errRemoteNotFound = errors.New("remote record not found")

// ChainClient is the read-side view of the authoritative ledger the sync
// engine replays. It never mutates anything.
type ChainClient interface {
	QuestCounter(ctx context.Context) (int64, error)
	QuestByID(ctx context.Context, id int64) (*models.Quest, error)
	EscrowByID(ctx context.Context, id int64) (*models.EscrowRecord, error)
	RegistryByID(ctx context.Context, id int64) (*models.QuestMirror, error)
	BalanceOf(ctx context.Context, address string) (models.Amount, error)
}

// HTTPChainClient reads the arcade's HTTP API with gateway auth.
type HTTPChainClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewHTTPChainClient() *HTTPChainClient {
	baseURL := os.Getenv("ARCADE_BASE_URL")
	if baseURL == "" {
		log.Fatal("ARCADE_BASE_URL environment variable is required")
	}
	token := os.Getenv("GATEWAY_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("GATEWAY_SERVICE_TOKEN environment variable is required for quest sync")
	}
	return &HTTPChainClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPChainClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call arcade: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errRemoteNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("arcade returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPChainClient) QuestCounter(ctx context.Context) (int64, error) {
	var response struct {
		Counter int64 `json:"counter"`
	}
	if err := c.get(ctx, "/quests/count", &response); err != nil {
		return 0, err
	}
	return response.Counter, nil
}

func (c *HTTPChainClient) QuestByID(ctx context.Context, id int64) (*models.Quest, error) {
	var quest models.Quest
	if err := c.get(ctx, fmt.Sprintf("/quests/%d", id), &quest); err != nil {
		return nil, err
	}
	return &quest, nil
}

func (c *HTTPChainClient) EscrowByID(ctx context.Context, id int64) (*models.EscrowRecord, error) {
	var response struct {
		Escrow models.EscrowRecord `json:"escrow"`
	}
	if err := c.get(ctx, fmt.Sprintf("/escrow/%d", id), &response); err != nil {
		return nil, err
	}
	return &response.Escrow, nil
}

func (c *HTTPChainClient) RegistryByID(ctx context.Context, id int64) (*models.QuestMirror, error) {
	var mirror models.QuestMirror
	if err := c.get(ctx, fmt.Sprintf("/registry/quests/%d", id), &mirror); err != nil {
		return nil, err
	}
	return &mirror, nil
}

func (c *HTTPChainClient) BalanceOf(ctx context.Context, address string) (models.Amount, error) {
	var response struct {
		Balance models.Amount `json:"balance"`
	}
	if err := c.get(ctx, "/token/balance/"+address, &response); err != nil {
		return models.Amount{}, err
	}
	return response.Balance, nil
}

// QuestSyncWorker re-derives the client-visible read model: every quest,
// per-user progress and the reconciled balance for the tracked wallet. The
// derived tables are recomputed on each pass and are never authoritative.
type QuestSyncWorker struct {
	DB            *gorm.DB
	Client        ChainClient
	WalletAddress string

	// MinInterval throttles automatic passes; manual triggers inside the
	// window are dropped, not queued.
	MinInterval time.Duration

	// Now is swappable so derived expiry flags are deterministic in tests.
	Now func() time.Time

	syncing atomic.Bool
	lastRun atomic.Int64 // unix nanos of the last completed pass
}

func NewQuestSyncWorker(db *gorm.DB, client ChainClient, walletAddress string) *QuestSyncWorker {
	return &QuestSyncWorker{
		DB:            db,
		Client:        client,
		WalletAddress: walletAddress,
		MinInterval:   10 * time.Second,
		Now:           time.Now,
	}
}

// SyncOnce runs one full pass. A counter read failure is a hard failure
// and leaves the previous snapshot untouched; individual quest read
// failures are logged and skipped.
func (w *QuestSyncWorker) SyncOnce(ctx context.Context) error {
	counter, err := w.Client.QuestCounter(ctx)
	if err != nil {
		return fmt.Errorf("quest counter read failed: %w", err)
	}

	now := w.Now()
	synced := 0
	for id := int64(1); id <= counter; id++ {
		quest, err := w.Client.QuestByID(ctx, id)
		if err != nil {
			log.Printf("[SYNC] ❌ quest %d read failed, skipping: %v", id, err)
			continue
		}
		escrow, err := w.Client.EscrowByID(ctx, id)
		if err != nil && !errors.Is(err, errRemoteNotFound) {
			log.Printf("[SYNC] ❌ escrow %d read failed, skipping: %v", id, err)
			continue
		}
		mirror, mirrorErr := w.Client.RegistryByID(ctx, id)
		// Registry is denormalized convenience data; a transient read failure
		// keeps the previously synced URI instead of clearing it. A definitive
		// not-found does clear it.
		mirrorKnown := mirrorErr == nil || errors.Is(mirrorErr, errRemoteNotFound)

		if err := w.applyQuest(quest, escrow, mirror, mirrorKnown, now); err != nil {
			log.Printf("[SYNC] ❌ quest %d snapshot write failed: %v", id, err)
			continue
		}
		synced++
	}

	if err := w.syncBalance(ctx); err != nil {
		return err
	}

	w.lastRun.Store(now.UnixNano())
	log.Printf("[SYNC] ✅ pass complete: %d/%d quest(s)", synced, counter)
	return nil
}

func (w *QuestSyncWorker) applyQuest(quest *models.Quest, escrow *models.EscrowRecord, mirror *models.QuestMirror, mirrorKnown bool, now time.Time) error {
	expired := !quest.Status.Terminal() && !quest.Deadline.After(now)
	escrowed := quest.RewardEscrowed
	if escrow != nil {
		escrowed = !escrow.Settled()
	}

	snapshot := models.QuestSnapshot{
		QuestID:    quest.ID,
		Creator:    quest.Creator,
		Worker:     quest.Worker,
		Title:      quest.Title,
		Reward:     quest.RewardAmount,
		Deadline:   quest.Deadline,
		Status:     quest.Status,
		StateLabel: quest.Status.String(),
		ProofCID:   quest.ProofCID,
		Escrowed:   escrowed,
		Claimed:    quest.RewardClaimed,
		Expired:    expired,
		Refundable: expired && escrowed,
	}
	if mirror != nil {
		snapshot.RegistryURI = mirror.URI
	}

	cols := []string{
		"creator", "worker", "title", "reward", "deadline", "status", "state_label",
		"proof_cid", "escrowed", "claimed", "expired", "refundable",
	}
	if mirrorKnown {
		cols = append(cols, "registry_uri")
	}

	return w.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "quest_id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).Create(&snapshot).Error; err != nil {
			return err
		}

		progress := deriveProgress(quest)
		for i := range progress {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}, {Name: "quest_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"role", "stage"}),
			}).Create(&progress[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// deriveProgress replays one quest's state into per-user lifecycle stages.
func deriveProgress(quest *models.Quest) []models.QuestProgressSnapshot {
	var creatorStage string
	switch quest.Status {
	case models.QuestStatusOpen:
		creatorStage = "awaiting_worker"
	case models.QuestStatusAccepted:
		creatorStage = "awaiting_proof"
	case models.QuestStatusSubmitted:
		creatorStage = "awaiting_review"
	case models.QuestStatusVerified:
		creatorStage = "approved"
	case models.QuestStatusRejected:
		creatorStage = "refunded"
	case models.QuestStatusCancelled:
		creatorStage = "cancelled"
	}

	out := []models.QuestProgressSnapshot{{
		Address: quest.Creator,
		QuestID: quest.ID,
		Role:    "creator",
		Stage:   creatorStage,
	}}

	if quest.Worker == "" {
		return out
	}

	var workerStage string
	switch {
	case quest.Status == models.QuestStatusAccepted:
		workerStage = "in_progress"
	case quest.Status == models.QuestStatusSubmitted:
		workerStage = "proof_submitted"
	case quest.Status == models.QuestStatusVerified && !quest.RewardClaimed:
		workerStage = "reward_available"
	case quest.Status == models.QuestStatusVerified:
		workerStage = "completed"
	case quest.Status == models.QuestStatusRejected:
		workerStage = "rejected"
	}
	return append(out, models.QuestProgressSnapshot{
		Address: quest.Worker,
		QuestID: quest.ID,
		Role:    "worker",
		Stage:   workerStage,
	})
}

func (w *QuestSyncWorker) syncBalance(ctx context.Context) error {
	remote, err := w.Client.BalanceOf(ctx, w.WalletAddress)
	if err != nil {
		return fmt.Errorf("balance read failed: %w", err)
	}

	return w.DB.Transaction(func(tx *gorm.DB) error {
		var snap models.BalanceSnapshot
		err := tx.Where("address = ?", w.WalletAddress).First(&snap).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		merged := ReconcileBalance(snap.LastSynced, snap.Local, remote)
		snap.Address = w.WalletAddress
		snap.LastSynced = remote
		snap.Local = merged
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_synced", "local"}),
		}).Create(&snap).Error
	})
}

// SpendLocal applies an optimistic client-side debit (e.g. a reward-shop
// purchase awaiting its on-chain counterpart). The next sync preserves it.
func (w *QuestSyncWorker) SpendLocal(amount models.Amount) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("debit must be positive")
	}
	return w.DB.Transaction(func(tx *gorm.DB) error {
		var snap models.BalanceSnapshot
		if err := tx.Where("address = ?", w.WalletAddress).First(&snap).Error; err != nil {
			return err
		}
		if snap.Local.Cmp(amount) < 0 {
			return fmt.Errorf("local balance too low")
		}
		snap.Local = snap.Local.Sub(amount)
		return tx.Save(&snap).Error
	})
}

// TrySync runs one pass unless another is in flight (dropped, not queued)
// or the throttle window has not elapsed.
func (w *QuestSyncWorker) TrySync(ctx context.Context) {
	if !w.syncing.CompareAndSwap(false, true) {
		log.Println("[SYNC] pass already in flight — dropping request")
		return
	}
	defer w.syncing.Store(false)

	if last := w.lastRun.Load(); last > 0 && w.Now().Sub(time.Unix(0, last)) < w.MinInterval {
		return
	}
	if err := w.SyncOnce(ctx); err != nil {
		log.Printf("[SYNC] ❌ pass failed, keeping previous snapshot: %v", err)
	}
}

// Poll runs the throttled background loop. An immediate pass fires on
// start (mount), then on every tick.
func (w *QuestSyncWorker) Poll(ctx context.Context) {
	log.Println("Starting quest sync polling...")
	w.TrySync(ctx)

	ticker := time.NewTicker(w.MinInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Quest sync polling stopped.")
			return
		case <-ticker.C:
			w.TrySync(ctx)
		}
	}
}

// Snapshot returns the derived read model in deterministic order.
func (w *QuestSyncWorker) Snapshot() ([]models.QuestSnapshot, []models.QuestProgressSnapshot, models.Amount, error) {
	var quests []models.QuestSnapshot
	if err := w.DB.Order("quest_id ASC").Find(&quests).Error; err != nil {
		return nil, nil, models.Amount{}, err
	}
	var progress []models.QuestProgressSnapshot
	if err := w.DB.Order("quest_id ASC, role ASC, address ASC").Find(&progress).Error; err != nil {
		return nil, nil, models.Amount{}, err
	}
	var snap models.BalanceSnapshot
	err := w.DB.Where("address = ?", w.WalletAddress).First(&snap).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, models.Amount{}, err
	}
	return quests, progress, snap.Local, nil
}
