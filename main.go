package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"quest-arcade-system/handlers"
	"quest-arcade-system/middleware"
	"quest-arcade-system/models"
	"quest-arcade-system/services"
	"quest-arcade-system/utils"
	"quest-arcade-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024, // proof media uploads
	})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Wallet-Address",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitMediaStore(); err != nil {
		log.Fatal("failed to initialize proof media store:", err)
	}
	if err := utils.EnsureUploadDir(); err != nil {
		log.Fatal("failed to ensure upload dir:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
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
		&models.QuestSnapshot{},
		&models.QuestProgressSnapshot{},
		&models.BalanceSnapshot{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	cfg := services.LoadPlatformConfig()

	tokenLedger := services.NewTokenLedgerService(db, cfg)
	escrowService := services.NewEscrowService(db, tokenLedger, cfg)
	reputationService := services.NewReputationService(db, cfg)
	registryService := services.NewRegistryService(db, cfg)
	questService := services.NewQuestService(db, escrowService, reputationService, registryService, tokenLedger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Client sync engine: replays the quest record set into the derived
	// read model for the configured wallet.
	if wallet := os.Getenv("SYNC_WALLET_ADDRESS"); wallet != "" {
		syncWorker := workers.NewQuestSyncWorker(db, workers.NewHTTPChainClient(), wallet)
		go syncWorker.Poll(ctx)
		log.Printf("✅ Quest sync worker polling for %s (every %s)", wallet, syncWorker.MinInterval)
	} else {
		log.Println("⚠️  SYNC_WALLET_ADDRESS not set — quest sync worker disabled")
	}

	registryService.StartDeadlineSweep()

	handlers.SetupQuestRoutes(app, questService)
	handlers.SetupLedgerRoutes(app, tokenLedger, escrowService, registryService)
	handlers.SetupReputationRoutes(app, reputationService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Quest arcade running on http://localhost:5300")
	log.Printf("✅ Arcade address: %s, fee %d bps → %s", cfg.ArcadeAddress, cfg.PlatformFeeBps, cfg.FeeRecipient)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
}
