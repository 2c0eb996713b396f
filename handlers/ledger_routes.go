// handlers/ledger_routes.go
package handlers

import (
	"quest-arcade-system/middleware"
	"quest-arcade-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupLedgerRoutes wires the stable-asset ledger, the escrow ledger and
// the quest registry. The reads double as the sync worker's chain API.
func SetupLedgerRoutes(app *fiber.App, token *services.TokenLedgerService, escrow *services.EscrowService, registry *services.RegistryService) {
	// 🔓 Reads
	app.Get("/token/balance/:address", token.HandleBalance)
	app.Get("/token/allowance/:owner/:spender", token.HandleAllowance)
	app.Get("/escrow/:questId", escrow.HandleGetEscrow)
	app.Get("/registry/quests", registry.HandleListQuests)
	app.Get("/registry/quests/:questId", registry.HandleGetQuest)

	// 🔐 Wallet-holder operations
	secured := app.Group("/", middleware.WalletContextMiddleware())
	secured.Post("/token/approve", token.HandleApprove)

	// Admin (owner checks happen inside the services)
	admin := app.Group("/admin", middleware.WalletContextMiddleware())
	admin.Post("/token/mint", token.HandleMint)
	admin.Post("/escrow/arcade", escrow.HandleSetArcade)
	admin.Post("/registry/arcade", registry.HandleSetArcade)
}
