// handlers/reputation_routes.go
package handlers

import (
	"quest-arcade-system/middleware"
	"quest-arcade-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReputationRoutes(app *fiber.App, reputation *services.ReputationService) {
	// 🔓 Reads
	app.Get("/reputation/:address", reputation.HandleGetProfile)
	app.Get("/reputation/:address/events", reputation.HandleListEvents)

	// 🔐 Reporter + admin operations
	secured := app.Group("/", middleware.WalletContextMiddleware())
	secured.Post("/reputation/increase", reputation.HandleIncrease)

	admin := app.Group("/admin", middleware.WalletContextMiddleware())
	admin.Post("/reputation/reporters", reputation.HandleSetReporter)
	admin.Post("/reputation/arcade", reputation.HandleSetArcade)
}
