// services/quest_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"quest-arcade-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// QuestService is the orchestrator: it owns the quest lifecycle and
// coordinates the escrow ledger (fund/release/refund) and the reputation
// ledger (accrual on claim). Every mutation commits atomically; concurrent
// conflicting calls on the same quest are resolved by status-guarded
// updates, so exactly one writer wins and the rest observe a transition
// error.
type QuestService struct {
	DB         *gorm.DB
	Escrow     *EscrowService
	Reputation *ReputationService
	Registry   *RegistryService
	Ledger     *TokenLedgerService
	Cfg        PlatformConfig

	// Now is swappable for deterministic deadline tests.
	Now func() time.Time
}

func NewQuestService(db *gorm.DB, escrow *EscrowService, reputation *ReputationService, registry *RegistryService, ledger *TokenLedgerService, cfg PlatformConfig) *QuestService {
	return &QuestService{
		DB:         db,
		Escrow:     escrow,
		Reputation: reputation,
		Registry:   registry,
		Ledger:     ledger,
		Cfg:        cfg,
		Now:        time.Now,
	}
}

// SetCreatorStatus approves or revokes a creator address. Owner only.
func (s *QuestService) SetCreatorStatus(caller, address string, enabled bool) error {
	if caller != s.Cfg.OwnerAddress {
		return ErrUnauthorized
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var cr models.ApprovedCreator
		err := tx.Where("address = ?", address).First(&cr).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.ApprovedCreator{Address: address, Enabled: enabled}).Error
		}
		if err != nil {
			return err
		}
		cr.Enabled = enabled
		return tx.Save(&cr).Error
	})
}

func (s *QuestService) creatorApproved(db *gorm.DB, address string) (bool, error) {
	var cr models.ApprovedCreator
	err := db.Where("address = ? AND enabled = ?", address, true).First(&cr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type CreateQuestInput struct {
	Title        string
	Description  string
	Reward       models.Amount
	Verification models.VerificationType
	Deadline     time.Time
}

// CreateQuest pulls the reward from the creator into escrow and opens the
// quest. The creator must have approved the arcade to spend the reward.
func (s *QuestService) CreateQuest(caller string, in CreateQuestInput) (*models.Quest, error) {
	if in.Title == "" || in.Reward.Sign() <= 0 {
		return nil, ErrInvalidQuest
	}
	if !in.Verification.Valid() {
		return nil, ErrInvalidVerification
	}
	if !in.Deadline.After(s.Now()) {
		return nil, ErrDeadlineNotFuture
	}

	var quest models.Quest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		ok, err := s.creatorApproved(tx, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotApprovedCreator
		}

		if err := s.Ledger.WithTx(tx).TransferFrom(s.Cfg.ArcadeAddress, caller, s.Cfg.VaultAddress, in.Reward); err != nil {
			return err
		}

		quest = models.Quest{
			Creator:        caller,
			Title:          in.Title,
			Description:    in.Description,
			RewardAmount:   in.Reward,
			Verification:   in.Verification,
			Deadline:       in.Deadline,
			Status:         models.QuestStatusOpen,
			RewardEscrowed: true,
		}
		if err := tx.Create(&quest).Error; err != nil {
			return err
		}

		if err := s.Escrow.WithTx(tx).Fund(s.Cfg.ArcadeAddress, quest.ID, s.Cfg.TokenAddress, caller, in.Reward); err != nil {
			return err
		}
		return s.Registry.WithTx(tx).RegisterQuest(s.Cfg.ArcadeAddress, &quest)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🗺️ Quest %d created by %s (reward %s, %s proof, due %s)",
		quest.ID, caller, quest.RewardAmount.String(), quest.Verification, quest.Deadline.Format(time.RFC3339))
	return &quest, nil
}

// AcceptQuest assigns the caller as worker on an Open quest.
func (s *QuestService) AcceptQuest(caller string, questID int64) (*models.Quest, error) {
	var quest models.Quest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", questID).First(&quest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestNotFound
			}
			return err
		}
		if caller == quest.Creator {
			return ErrUnauthorized
		}
		if !quest.Status.CanTransitionTo(models.QuestStatusAccepted) {
			return ErrInvalidStatusTransition
		}
		if !quest.Deadline.After(s.Now()) {
			return ErrDeadlineElapsed
		}

		res := tx.Model(&models.Quest{}).
			Where("id = ? AND status = ?", questID, models.QuestStatusOpen).
			Updates(map[string]interface{}{
				"worker": caller,
				"status": models.QuestStatusAccepted,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race: another worker accepted first.
			return ErrInvalidStatusTransition
		}
		quest.Worker = caller
		quest.Status = models.QuestStatusAccepted
		return s.Registry.WithTx(tx).UpdateQuestState(s.Cfg.ArcadeAddress, questID, models.QuestStatusAccepted)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🤝 Quest %d accepted by %s", questID, caller)
	return &quest, nil
}

// SubmitProof records the worker's evidence reference and metadata.
func (s *QuestService) SubmitProof(caller string, questID int64, proofCID, proofMetadata string) (*models.Quest, error) {
	if proofCID == "" {
		return nil, ErrInvalidProof
	}
	var quest models.Quest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", questID).First(&quest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestNotFound
			}
			return err
		}
		if caller != quest.Worker {
			return ErrWorkerOnly
		}
		if !quest.Status.CanTransitionTo(models.QuestStatusSubmitted) {
			return ErrInvalidStatusTransition
		}
		if !quest.Deadline.After(s.Now()) {
			return ErrDeadlineElapsed
		}

		res := tx.Model(&models.Quest{}).
			Where("id = ? AND status = ?", questID, models.QuestStatusAccepted).
			Updates(map[string]interface{}{
				"proof_cid":      proofCID,
				"proof_metadata": proofMetadata,
				"status":         models.QuestStatusSubmitted,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidStatusTransition
		}
		quest.ProofCID = proofCID
		quest.ProofMetadata = proofMetadata
		quest.Status = models.QuestStatusSubmitted
		return s.Registry.WithTx(tx).UpdateQuestState(s.Cfg.ArcadeAddress, questID, models.QuestStatusSubmitted)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("📤 Quest %d proof submitted by %s (cid %s)", questID, caller, proofCID)
	return &quest, nil
}

// VerifyQuest is the creator's (or owner's) verdict on submitted work. A
// rejection refunds the creator immediately.
func (s *QuestService) VerifyQuest(caller string, questID int64, approve bool) (*models.Quest, error) {
	var quest models.Quest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", questID).First(&quest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestNotFound
			}
			return err
		}
		if caller != quest.Creator && caller != s.Cfg.OwnerAddress {
			return ErrUnauthorized
		}
		next := models.QuestStatusVerified
		if !approve {
			next = models.QuestStatusRejected
		}
		if !quest.Status.CanTransitionTo(next) {
			return ErrInvalidStatusTransition
		}

		updates := map[string]interface{}{"status": next}
		if !approve {
			updates["reward_escrowed"] = false
		}

		res := tx.Model(&models.Quest{}).
			Where("id = ? AND status = ?", questID, models.QuestStatusSubmitted).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidStatusTransition
		}

		if !approve {
			if err := s.Escrow.WithTx(tx).Refund(s.Cfg.ArcadeAddress, questID); err != nil {
				return err
			}
			quest.RewardEscrowed = false
		}
		quest.Status = next
		return s.Registry.WithTx(tx).UpdateQuestState(s.Cfg.ArcadeAddress, questID, next)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("⚖️ Quest %d verified by %s → %s", questID, caller, quest.Status)
	return &quest, nil
}

// ClaimReward releases the escrowed reward to the worker, splitting the
// platform fee, and reports the accrual to the reputation ledger. The two
// legs always sum to the escrowed amount exactly.
func (s *QuestService) ClaimReward(caller string, questID int64) (*models.Quest, error) {
	var quest models.Quest
	var payout models.Amount
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", questID).First(&quest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestNotFound
			}
			return err
		}
		if caller != quest.Worker {
			return ErrWorkerOnly
		}
		if quest.RewardClaimed {
			return ErrRewardAlreadyClaimed
		}
		if quest.Status != models.QuestStatusVerified {
			return ErrInvalidStatusTransition
		}

		res := tx.Model(&models.Quest{}).
			Where("id = ? AND status = ? AND reward_claimed = ?", questID, models.QuestStatusVerified, false).
			Updates(map[string]interface{}{
				"reward_claimed":  true,
				"reward_escrowed": false,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRewardAlreadyClaimed
		}

		var fee models.Amount
		fee, payout = quest.RewardAmount.SplitFee(s.Cfg.PlatformFeeBps)
		if err := s.Escrow.WithTx(tx).Release(s.Cfg.ArcadeAddress, questID, quest.Worker, payout, s.Cfg.FeeRecipient, fee); err != nil {
			return err
		}

		reason := fmt.Sprintf("quest_%d_claimed", questID)
		if err := s.Reputation.WithTx(tx).IncreaseReputation(
			s.Cfg.ArcadeAddress, quest.Worker, s.Cfg.QuestXPAward, payout.WholeTokens(), reason,
		); err != nil {
			return err
		}

		quest.RewardClaimed = true
		quest.RewardEscrowed = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🏆 Quest %d reward claimed by %s (payout %s)", questID, caller, payout.String())
	return &quest, nil
}

// CancelQuest lets the creator abort a still-Open, unaccepted quest and
// take the escrow back.
func (s *QuestService) CancelQuest(caller string, questID int64) (*models.Quest, error) {
	var quest models.Quest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", questID).First(&quest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestNotFound
			}
			return err
		}
		if caller != quest.Creator {
			return ErrUnauthorized
		}
		if !quest.Status.CanTransitionTo(models.QuestStatusCancelled) {
			return ErrInvalidStatusTransition
		}

		res := tx.Model(&models.Quest{}).
			Where("id = ? AND status = ?", questID, models.QuestStatusOpen).
			Updates(map[string]interface{}{
				"status":          models.QuestStatusCancelled,
				"reward_escrowed": false,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidStatusTransition
		}

		if err := s.Escrow.WithTx(tx).Refund(s.Cfg.ArcadeAddress, questID); err != nil {
			return err
		}
		quest.Status = models.QuestStatusCancelled
		quest.RewardEscrowed = false
		return s.Registry.WithTx(tx).UpdateQuestState(s.Cfg.ArcadeAddress, questID, models.QuestStatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🚫 Quest %d cancelled by %s", questID, caller)
	return &quest, nil
}

type UpdateQuestInput struct {
	Title       *string
	Description *string
	Reward      *models.Amount
	Deadline    *time.Time
}

// UpdateQuest edits a still-Open quest. The reward may only grow: the
// difference is pulled from the creator into escrow. Decreasing below the
// escrowed amount is rejected rather than under-escrowing or refunding.
func (s *QuestService) UpdateQuest(caller string, questID int64, in UpdateQuestInput) (*models.Quest, error) {
	var quest models.Quest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", questID).First(&quest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuestNotFound
			}
			return err
		}
		if caller != quest.Creator {
			return ErrUnauthorized
		}
		if quest.Status != models.QuestStatusOpen {
			return ErrInvalidStatusTransition
		}
		observedReward := quest.RewardAmount

		updates := map[string]interface{}{}
		if in.Title != nil {
			if *in.Title == "" {
				return ErrInvalidQuest
			}
			quest.Title = *in.Title
			updates["title"] = quest.Title
		}
		if in.Description != nil {
			quest.Description = *in.Description
			updates["description"] = quest.Description
		}
		if in.Deadline != nil {
			if !in.Deadline.After(s.Now()) {
				return ErrDeadlineNotFuture
			}
			quest.Deadline = *in.Deadline
			updates["deadline"] = quest.Deadline
		}
		if in.Reward != nil {
			switch in.Reward.Cmp(quest.RewardAmount) {
			case -1:
				return ErrInvalidAmount
			case 1:
				diff := in.Reward.Sub(quest.RewardAmount)
				if err := s.Ledger.WithTx(tx).TransferFrom(s.Cfg.ArcadeAddress, caller, s.Cfg.VaultAddress, diff); err != nil {
					return err
				}
				if err := s.Escrow.WithTx(tx).TopUp(s.Cfg.ArcadeAddress, questID, diff); err != nil {
					return err
				}
				quest.RewardAmount = *in.Reward
				updates["reward_amount"] = quest.RewardAmount
			}
		}
		if len(updates) == 0 {
			return nil
		}

		if err := applyOpenQuestUpdate(tx, questID, observedReward, updates); err != nil {
			return err
		}
		return s.Registry.WithTx(tx).UpdateQuestMetadata(
			s.Cfg.ArcadeAddress, questID, quest.Title, quest.Description, quest.RewardAmount, quest.Deadline,
		)
	})
	if err != nil {
		return nil, err
	}
	return &quest, nil
}

// applyOpenQuestUpdate commits an edit against a still-Open quest. The
// predicate pins the reward observed when the row was read: concurrent
// editors both satisfy `status = Open`, so the reward acts as the version
// column. An editor whose observation went stale loses here and its whole
// transaction, escrow pull included, rolls back.
func applyOpenQuestUpdate(tx *gorm.DB, questID int64, observedReward models.Amount, updates map[string]interface{}) error {
	res := tx.Model(&models.Quest{}).
		Where("id = ? AND status = ? AND reward_amount = ?", questID, models.QuestStatusOpen, observedReward).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidStatusTransition
	}
	return nil
}

// GetQuest reads one quest.
func (s *QuestService) GetQuest(questID int64) (*models.Quest, error) {
	var quest models.Quest
	if err := s.DB.Where("id = ?", questID).First(&quest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	return &quest, nil
}

// QuestCounter returns the highest quest id issued so far. Ids are
// monotonic from 1, so the full record set is 1..counter.
func (s *QuestService) QuestCounter() (int64, error) {
	var counter int64
	err := s.DB.Model(&models.Quest{}).Select("COALESCE(MAX(id), 0)").Scan(&counter).Error
	return counter, err
}

// --- HTTP handlers ---

func parseQuestID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, ErrQuestNotFound
	}
	return int64(id), nil
}

func (s *QuestService) HandleCreateQuest(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	var req struct {
		Title            string    `json:"title"`
		Description      string    `json:"description"`
		RewardAmount     string    `json:"reward_amount"`
		VerificationType int       `json:"verification_type"`
		Deadline         time.Time `json:"deadline"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	reward, err := models.AmountFromString(req.RewardAmount)
	if err != nil {
		return respondError(c, ErrInvalidAmount)
	}
	quest, err := s.CreateQuest(caller, CreateQuestInput{
		Title:        req.Title,
		Description:  req.Description,
		Reward:       reward,
		Verification: models.VerificationType(req.VerificationType),
		Deadline:     req.Deadline,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(quest)
}

func (s *QuestService) HandleAcceptQuest(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	questID, err := parseQuestID(c)
	if err != nil {
		return respondError(c, err)
	}
	quest, err := s.AcceptQuest(caller, questID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quest)
}

func (s *QuestService) HandleSubmitProof(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	questID, err := parseQuestID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		ProofCID      string `json:"proof_cid"`
		ProofMetadata string `json:"proof_metadata"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	quest, err := s.SubmitProof(caller, questID, req.ProofCID, req.ProofMetadata)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quest)
}

func (s *QuestService) HandleVerifyQuest(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	questID, err := parseQuestID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		Approve bool `json:"approve"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	quest, err := s.VerifyQuest(caller, questID, req.Approve)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quest)
}

func (s *QuestService) HandleClaimReward(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	questID, err := parseQuestID(c)
	if err != nil {
		return respondError(c, err)
	}
	quest, err := s.ClaimReward(caller, questID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quest)
}

func (s *QuestService) HandleCancelQuest(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	questID, err := parseQuestID(c)
	if err != nil {
		return respondError(c, err)
	}
	quest, err := s.CancelQuest(caller, questID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quest)
}

func (s *QuestService) HandleUpdateQuest(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	questID, err := parseQuestID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		Title        *string    `json:"title"`
		Description  *string    `json:"description"`
		RewardAmount *string    `json:"reward_amount"`
		Deadline     *time.Time `json:"deadline"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	in := UpdateQuestInput{Title: req.Title, Description: req.Description, Deadline: req.Deadline}
	if req.RewardAmount != nil {
		reward, err := models.AmountFromString(*req.RewardAmount)
		if err != nil {
			return respondError(c, ErrInvalidAmount)
		}
		in.Reward = &reward
	}
	quest, err := s.UpdateQuest(caller, questID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quest)
}

func (s *QuestService) HandleSetCreatorStatus(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	var req struct {
		Address string `json:"address"`
		Enabled bool   `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.SetCreatorStatus(caller, req.Address, req.Enabled); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "creator status updated", "address": req.Address, "enabled": req.Enabled})
}

func (s *QuestService) HandleGetQuest(c *fiber.Ctx) error {
	questID, err := parseQuestID(c)
	if err != nil {
		return respondError(c, err)
	}
	quest, err := s.GetQuest(questID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quest)
}

func (s *QuestService) HandleListQuests(c *fiber.Ctx) error {
	query := s.DB.Model(&models.Quest{})
	if statusStr := c.Query("status"); statusStr != "" {
		status, err := strconv.Atoi(statusStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status filter"})
		}
		query = query.Where("status = ?", status)
	}
	if creator := c.Query("creator"); creator != "" {
		query = query.Where("creator = ?", creator)
	}
	if worker := c.Query("worker"); worker != "" {
		query = query.Where("worker = ?", worker)
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	var quests []models.Quest
	if err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&quests).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(quests)
}

func (s *QuestService) HandleQuestCount(c *fiber.Ctx) error {
	counter, err := s.QuestCounter()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"counter": counter})
}
