// handlers/quest_routes.go
package handlers

import (
	"fmt"
	"log"

	"quest-arcade-system/middleware"
	"quest-arcade-system/services"
	"quest-arcade-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func SetupQuestRoutes(app *fiber.App, questService *services.QuestService) {
	// 🔓 Public reads — no wallet context, but still behind Gateway auth
	app.Get("/quests", questService.HandleListQuests)
	app.Get("/quests/count", questService.HandleQuestCount)
	app.Get("/quests/:id", questService.HandleGetQuest)

	// 🔐 Mutations — require a verified wallet address
	secured := app.Group("/", middleware.WalletContextMiddleware())

	secured.Post("/quests", questService.HandleCreateQuest)
	secured.Post("/quests/:id/accept", questService.HandleAcceptQuest)
	secured.Post("/quests/:id/proof", questService.HandleSubmitProof)
	secured.Post("/quests/:id/verify", questService.HandleVerifyQuest)
	secured.Post("/quests/:id/claim", questService.HandleClaimReward)
	secured.Post("/quests/:id/cancel", questService.HandleCancelQuest)
	secured.Patch("/quests/:id", questService.HandleUpdateQuest)

	// Proof evidence upload: stores the file in the content store and hands
	// back the opaque key to pass to the proof submission call.
	secured.Post("/quests/:id/proof-media", func(c *fiber.Ctx) error {
		questID, err := c.ParamsInt("id")
		if err != nil || questID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid quest ID"})
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file field is required"})
		}
		key := fmt.Sprintf("proofs/%d/%s", questID, uuid.NewString())
		cid, err := utils.StoreProofMedia(fileHeader, key)
		if err != nil {
			log.Printf("proof media upload failed for quest %d: %v", questID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "content store upload failed"})
		}
		return c.JSON(fiber.Map{"proof_cid": cid})
	})

	// Admin
	admin := app.Group("/admin", middleware.WalletContextMiddleware())
	admin.Post("/creators", questService.HandleSetCreatorStatus)
}
