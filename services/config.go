// services/config.go
package services

import (
	"log"
	"os"
	"strconv"
)

// PlatformConfig binds the well-known addresses and fee/XP knobs. Loaded
// once at boot from the environment; passed explicitly to every component
// instead of living as ambient global state.
type PlatformConfig struct {
	// OwnerAddress may perform administrative operations (approve creators,
	// bind the arcade, manage reporters, mint test funds).
	OwnerAddress string

	// ArcadeAddress is the orchestrator's own identity. The escrow ledger,
	// the reputation ledger and the registry accept mutations only from it.
	ArcadeAddress string

	// VaultAddress is the token account holding escrowed funds.
	VaultAddress string

	// FeeRecipient receives the platform fee leg on claim.
	FeeRecipient string

	// TokenAddress identifies the stable asset recorded on escrow rows.
	TokenAddress string

	// PlatformFeeBps is the fee in basis points out of 10000.
	PlatformFeeBps int64

	// QuestXPAward is the fixed experience grant per verified-and-claimed
	// quest. Configuration, not law.
	QuestXPAward int64
}

func LoadPlatformConfig() PlatformConfig {
	cfg := PlatformConfig{
		OwnerAddress:   os.Getenv("OWNER_ADDRESS"),
		ArcadeAddress:  envOr("QUEST_ARCADE_ADDRESS", "0xQuestArcade"),
		VaultAddress:   envOr("ESCROW_VAULT_ADDRESS", "0xEscrowVault"),
		FeeRecipient:   os.Getenv("FEE_RECIPIENT_ADDRESS"),
		TokenAddress:   envOr("STABLE_TOKEN_ADDRESS", "0xStableToken"),
		PlatformFeeBps: envInt("PLATFORM_FEE_BPS", 500),
		QuestXPAward:   envInt("QUEST_XP_AWARD", 100),
	}
	if cfg.OwnerAddress == "" {
		log.Fatal("OWNER_ADDRESS environment variable not set")
	}
	if cfg.FeeRecipient == "" {
		cfg.FeeRecipient = cfg.OwnerAddress
	}
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > 10000 {
		log.Fatalf("PLATFORM_FEE_BPS out of range: %d", cfg.PlatformFeeBps)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}
