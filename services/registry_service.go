// services/registry_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"quest-arcade-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RegistryService keeps a denormalized, queryable mirror of quest metadata
// independent of the orchestrator's own storage. Writes are gated to the
// bound arcade address.
type RegistryService struct {
	DB  *gorm.DB
	Cfg PlatformConfig

	arcade *arcadeBinding
}

func NewRegistryService(db *gorm.DB, cfg PlatformConfig) *RegistryService {
	return &RegistryService{DB: db, Cfg: cfg, arcade: newArcadeBinding(cfg.ArcadeAddress)}
}

func (s *RegistryService) WithTx(tx *gorm.DB) *RegistryService {
	cp := *s
	cp.DB = tx
	return &cp
}

// SetQuestArcade rebinds the authorized writer. Owner only.
func (s *RegistryService) SetQuestArcade(caller, address string) error {
	if caller != s.Cfg.OwnerAddress {
		return ErrUnauthorized
	}
	s.arcade.set(address)
	log.Printf("[REGISTRY] arcade bound to %s", address)
	return nil
}

func questURI(id int64, title string) string {
	return fmt.Sprintf("quests/%d-%s", id, slug.Make(title))
}

// RegisterQuest mirrors a newly created quest.
func (s *RegistryService) RegisterQuest(caller string, q *models.Quest) error {
	if caller != s.arcade.get() {
		return ErrUnauthorized
	}
	mirror := models.QuestMirror{
		QuestID:     q.ID,
		Title:       q.Title,
		Description: q.Description,
		URI:         questURI(q.ID, q.Title),
		Deadline:    q.Deadline,
		Reward:      q.RewardAmount,
		State:       q.Status,
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "quest_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "uri", "deadline", "reward", "state", "updated_at",
		}),
	}).Create(&mirror).Error
}

// UpdateQuestMetadata refreshes the descriptive fields.
func (s *RegistryService) UpdateQuestMetadata(caller string, questID int64, title, description string, reward models.Amount, deadline time.Time) error {
	if caller != s.arcade.get() {
		return ErrUnauthorized
	}
	res := s.DB.Model(&models.QuestMirror{}).
		Where("quest_id = ?", questID).
		Updates(map[string]interface{}{
			"title":       title,
			"description": description,
			"uri":         questURI(questID, title),
			"reward":      reward,
			"deadline":    deadline,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQuestNotFound
	}
	return nil
}

// UpdateQuestState mirrors a lifecycle transition.
func (s *RegistryService) UpdateQuestState(caller string, questID int64, state models.QuestStatus) error {
	if caller != s.arcade.get() {
		return ErrUnauthorized
	}
	res := s.DB.Model(&models.QuestMirror{}).
		Where("quest_id = ?", questID).
		Update("state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQuestNotFound
	}
	return nil
}

// SweepExpired recomputes the derived expired flag for non-terminal quests
// whose deadline has passed. Advisory only; never moves money.
func (s *RegistryService) SweepExpired(now time.Time) (int64, error) {
	res := s.DB.Model(&models.QuestMirror{}).
		Where("expired = ? AND deadline <= ? AND state IN ?", false, now,
			[]models.QuestStatus{models.QuestStatusOpen, models.QuestStatusAccepted, models.QuestStatusSubmitted}).
		Update("expired", true)
	return res.RowsAffected, res.Error
}

func (s *RegistryService) Get(questID int64) (*models.QuestMirror, error) {
	var mirror models.QuestMirror
	if err := s.DB.Where("quest_id = ?", questID).First(&mirror).Error; err != nil {
		return nil, err
	}
	return &mirror, nil
}

// --- HTTP handlers ---

// HandleListQuests serves the mirror with optional state/expired filters.
func (s *RegistryService) HandleListQuests(c *fiber.Ctx) error {
	query := s.DB.Model(&models.QuestMirror{})

	if stateStr := c.Query("state"); stateStr != "" {
		state, err := strconv.Atoi(stateStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid state filter"})
		}
		query = query.Where("state = ?", state)
	}
	if expiredStr := c.Query("expired"); expiredStr != "" {
		query = query.Where("expired = ?", expiredStr == "true")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	var mirrors []models.QuestMirror
	if err := query.Order("quest_id ASC").Limit(limit).Offset(offset).Find(&mirrors).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(mirrors)
}

func (s *RegistryService) HandleGetQuest(c *fiber.Ctx) error {
	questID, err := c.ParamsInt("questId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid quest ID"})
	}
	mirror, err := s.Get(int64(questID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrQuestNotFound)
		}
		return respondError(c, err)
	}
	return c.JSON(mirror)
}

// HandleSetArcade rebinds the authorized writer (owner only).
func (s *RegistryService) HandleSetArcade(c *fiber.Ctx) error {
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
