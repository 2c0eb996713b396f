// middleware/wallet.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// WalletContextMiddleware extracts the caller's wallet address set by the
// Gateway after signature verification. Mutating routes sit behind it; the
// address is the caller identity every authorization check runs against.
func WalletContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		address := c.Get("X-Wallet-Address")
		if address == "" {
			log.Printf("❌ [WALLET_CTX] X-Wallet-Address missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Wallet-Address — request must come through gateway with a verified wallet",
			})
		}

		c.Locals("wallet_address", address)
		return c.Next()
	}
}
