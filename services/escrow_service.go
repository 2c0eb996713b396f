// services/escrow_service.go
package services

import (
	"errors"
	"log"

	"quest-arcade-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EscrowService holds per-quest fund custody. Mutations are accepted only
// from the bound quest-arcade address; the binding is the system's
// substitute for fine-grained locking.
type EscrowService struct {
	DB     *gorm.DB
	Ledger *TokenLedgerService
	Cfg    PlatformConfig

	arcade *arcadeBinding
}

func NewEscrowService(db *gorm.DB, ledger *TokenLedgerService, cfg PlatformConfig) *EscrowService {
	return &EscrowService{DB: db, Ledger: ledger, Cfg: cfg, arcade: newArcadeBinding(cfg.ArcadeAddress)}
}

func (s *EscrowService) WithTx(tx *gorm.DB) *EscrowService {
	cp := *s
	cp.DB = tx
	cp.Ledger = s.Ledger.WithTx(tx)
	return &cp
}

// SetQuestArcade rebinds the single authorized caller. Owner only.
func (s *EscrowService) SetQuestArcade(caller, address string) error {
	if caller != s.Cfg.OwnerAddress {
		return ErrUnauthorized
	}
	s.arcade.set(address)
	log.Printf("[ESCROW] arcade bound to %s", address)
	return nil
}

// Fund creates the custody record for a quest. The tokens themselves are
// pulled by the orchestrator before this is called; Fund fails if a record
// already exists for the quest id.
func (s *EscrowService) Fund(caller string, questID int64, token, depositor string, amount models.Amount) error {
	if caller != s.arcade.get() {
		return ErrUnauthorized
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.EscrowRecord
		err := tx.Where("quest_id = ?", questID).First(&existing).Error
		if err == nil {
			return ErrEscrowExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&models.EscrowRecord{
			QuestID:   questID,
			Token:     token,
			Depositor: depositor,
			Amount:    amount,
		}).Error
	})
}

// TopUp grows an unsettled escrow by the given difference. Used when a
// still-Open quest's reward is raised; the tokens are pulled by the
// orchestrator before this is called.
func (s *EscrowService) TopUp(caller string, questID int64, diff models.Amount) error {
	if caller != s.arcade.get() {
		return ErrUnauthorized
	}
	if diff.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var rec models.EscrowRecord
		err := tx.Where("quest_id = ?", questID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNothingToRelease
		}
		if err != nil {
			return err
		}
		if rec.Settled() {
			return ErrNothingToRelease
		}
		rec.Amount = rec.Amount.Add(diff)
		return tx.Save(&rec).Error
	})
}

// Release pays the escrowed amount out in two legs — payout to the worker
// and fee to the platform — from the same custody record. The legs must sum
// to the funded amount exactly: no residue, no double counting.
func (s *EscrowService) Release(caller string, questID int64, recipient string, payout models.Amount, feeRecipient string, fee models.Amount) error {
	if caller != s.arcade.get() {
		return ErrUnauthorized
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var rec models.EscrowRecord
		err := tx.Where("quest_id = ?", questID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNothingToRelease
		}
		if err != nil {
			return err
		}
		if rec.Settled() {
			return ErrNothingToRelease
		}
		if payout.Add(fee).Cmp(rec.Amount) != 0 {
			return ErrInvalidAmount
		}

		// Guarded update: a concurrent settle loses the race here.
		res := tx.Model(&models.EscrowRecord{}).
			Where("quest_id = ? AND released = ? AND refunded = ?", questID, false, false).
			Update("released", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNothingToRelease
		}

		ledger := s.Ledger.WithTx(tx)
		if err := ledger.Transfer(s.Cfg.VaultAddress, recipient, payout); err != nil {
			return err
		}
		if err := tx.Create(&models.EscrowTransfer{
			ID:        uuid.NewString(),
			QuestID:   questID,
			Leg:       models.EscrowLegRelease,
			Recipient: recipient,
			Amount:    payout,
		}).Error; err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := ledger.Transfer(s.Cfg.VaultAddress, feeRecipient, fee); err != nil {
				return err
			}
			if err := tx.Create(&models.EscrowTransfer{
				ID:        uuid.NewString(),
				QuestID:   questID,
				Leg:       models.EscrowLegFee,
				Recipient: feeRecipient,
				Amount:    fee,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Refund returns the full escrowed amount to the original depositor.
func (s *EscrowService) Refund(caller string, questID int64) error {
	if caller != s.arcade.get() {
		return ErrUnauthorized
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var rec models.EscrowRecord
		err := tx.Where("quest_id = ?", questID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNothingToRefund
		}
		if err != nil {
			return err
		}
		if rec.Settled() {
			return ErrNothingToRefund
		}

		res := tx.Model(&models.EscrowRecord{}).
			Where("quest_id = ? AND released = ? AND refunded = ?", questID, false, false).
			Update("refunded", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNothingToRefund
		}

		if err := s.Ledger.WithTx(tx).Transfer(s.Cfg.VaultAddress, rec.Depositor, rec.Amount); err != nil {
			return err
		}
		return tx.Create(&models.EscrowTransfer{
			ID:        uuid.NewString(),
			QuestID:   questID,
			Leg:       models.EscrowLegRefund,
			Recipient: rec.Depositor,
			Amount:    rec.Amount,
		}).Error
	})
}

func (s *EscrowService) Get(questID int64) (*models.EscrowRecord, error) {
	var rec models.EscrowRecord
	if err := s.DB.Where("quest_id = ?", questID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// --- HTTP handlers ---

// HandleGetEscrow returns one quest's custody record and its transfer legs.
func (s *EscrowService) HandleGetEscrow(c *fiber.Ctx) error {
	questID, err := c.ParamsInt("questId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid quest ID"})
	}
	rec, err := s.Get(int64(questID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Escrow record not found"})
		}
		return respondError(c, err)
	}
	var transfers []models.EscrowTransfer
	if err := s.DB.Where("quest_id = ?", rec.QuestID).Order("created_at ASC").Find(&transfers).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"escrow": rec, "transfers": transfers})
}

// HandleSetArcade rebinds the authorized orchestrator address (owner only).
func (s *EscrowService) HandleSetArcade(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	var req struct {
		Address string `json:"address"`
	}
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.SetQuestArcade(caller, req.Address); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "arcade updated", "address": req.Address})
}
