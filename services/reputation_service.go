// services/reputation_service.go
package services

import (
	"errors"
	"log"
	"math"

	"quest-arcade-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReputationService accrues experience and reputation points per address.
// Writers are the bound arcade, the owner, and the reporter allow-list.
type ReputationService struct {
	DB  *gorm.DB
	Cfg PlatformConfig

	arcade *arcadeBinding
}

func NewReputationService(db *gorm.DB, cfg PlatformConfig) *ReputationService {
	return &ReputationService{DB: db, Cfg: cfg, arcade: newArcadeBinding(cfg.ArcadeAddress)}
}

func (s *ReputationService) WithTx(tx *gorm.DB) *ReputationService {
	cp := *s
	cp.DB = tx
	return &cp
}

// SetQuestArcade rebinds the orchestrator caller. Owner only.
func (s *ReputationService) SetQuestArcade(caller, address string) error {
	if caller != s.Cfg.OwnerAddress {
		return ErrUnauthorized
	}
	s.arcade.set(address)
	log.Printf("[REPUTATION] arcade bound to %s", address)
	return nil
}

// SetReporter enables or disables an address on the reporter allow-list.
// Owner only.
func (s *ReputationService) SetReporter(caller, address string, enabled bool) error {
	if caller != s.Cfg.OwnerAddress {
		return ErrUnauthorized
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var rep models.Reporter
		err := tx.Where("address = ?", address).First(&rep).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.Reporter{Address: address, Enabled: enabled}).Error
		}
		if err != nil {
			return err
		}
		rep.Enabled = enabled
		return tx.Save(&rep).Error
	})
}

func (s *ReputationService) authorizedReporter(caller string) (bool, error) {
	if caller == s.arcade.get() || caller == s.Cfg.OwnerAddress {
		return true, nil
	}
	var rep models.Reporter
	err := s.DB.Where("address = ? AND enabled = ?", caller, true).First(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// satAdd adds without overflow; totals saturate at MaxInt64.
func satAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// IncreaseReputation adds the deltas to the user's stored totals. Points
// are monotone: negative deltas are rejected.
func (s *ReputationService) IncreaseReputation(caller, user string, xpDelta, repDelta int64, reason string) error {
	ok, err := s.authorizedReporter(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	if xpDelta < 0 || repDelta < 0 {
		return ErrInvalidAmount
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var prof models.ReputationProfile
		err := tx.Where("address = ?", user).First(&prof).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			prof = models.ReputationProfile{Address: user}
			if err := tx.Create(&prof).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		prof.ExperiencePoints = satAdd(prof.ExperiencePoints, xpDelta)
		prof.ReputationPoints = satAdd(prof.ReputationPoints, repDelta)
		if err := tx.Save(&prof).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.ReputationEvent{
			ID:              uuid.NewString(),
			Address:         user,
			Reporter:        caller,
			ExperienceDelta: xpDelta,
			ReputationDelta: repDelta,
			Reason:          reason,
		}).Error; err != nil {
			return err
		}

		log.Printf("🏅 Reputation: %s → XP=%d, Rep=%d, Tier=%s (reason: %s)",
			user, prof.ExperiencePoints, prof.ReputationPoints, models.TierFor(prof.ExperiencePoints), reason)
		return nil
	})
}

// GetProfile returns the stored totals plus the derived tier label. Unknown
// addresses read as a zeroed Rookie profile.
func (s *ReputationService) GetProfile(user string) (*models.ReputationProfile, string, error) {
	var prof models.ReputationProfile
	err := s.DB.Where("address = ?", user).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prof = models.ReputationProfile{Address: user}
	} else if err != nil {
		return nil, "", err
	}
	return &prof, models.TierFor(prof.ExperiencePoints), nil
}

// --- HTTP handlers ---

func (s *ReputationService) HandleGetProfile(c *fiber.Ctx) error {
	address := c.Params("address")
	prof, tier, err := s.GetProfile(address)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"address":           prof.Address,
		"experience_points": prof.ExperiencePoints,
		"reputation_points": prof.ReputationPoints,
		"tier":              tier,
	})
}

func (s *ReputationService) HandleListEvents(c *fiber.Ctx) error {
	address := c.Params("address")
	var events []models.ReputationEvent
	if err := s.DB.Where("address = ?", address).
		Order("created_at DESC").
		Limit(100).
		Find(&events).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(events)
}

// HandleIncrease lets an allow-listed reporter (or the owner) grant points.
func (s *ReputationService) HandleIncrease(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	var req struct {
		User            string `json:"user"`
		ExperienceDelta int64  `json:"experience_delta"`
		ReputationDelta int64  `json:"reputation_delta"`
		Reason          string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil || req.User == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.IncreaseReputation(caller, req.User, req.ExperienceDelta, req.ReputationDelta, req.Reason); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "reputation increased", "user": req.User})
}

// HandleSetArcade rebinds the authorized orchestrator address (owner only).
func (s *ReputationService) HandleSetArcade(c *fiber.Ctx) error {
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

// HandleSetReporter manages the allow-list (owner only).
func (s *ReputationService) HandleSetReporter(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	var req struct {
		Address string `json:"address"`
		Enabled bool   `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.SetReporter(caller, req.Address, req.Enabled); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "reporter updated", "address": req.Address, "enabled": req.Enabled})
}
