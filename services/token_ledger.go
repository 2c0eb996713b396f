// services/token_ledger.go
package services

import (
	"errors"
	"log"

	"quest-arcade-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// TokenLedgerService emulates the stable-asset ledger the core consumes:
// owner-controlled mint plus standard transfer/approve semantics, 18
// decimal places throughout.
type TokenLedgerService struct {
	DB  *gorm.DB
	Cfg PlatformConfig
}

func NewTokenLedgerService(db *gorm.DB, cfg PlatformConfig) *TokenLedgerService {
	return &TokenLedgerService{DB: db, Cfg: cfg}
}

// WithTx returns a copy of the service scoped to an open transaction.
func (s *TokenLedgerService) WithTx(tx *gorm.DB) *TokenLedgerService {
	cp := *s
	cp.DB = tx
	return &cp
}

func (s *TokenLedgerService) BalanceOf(address string) (models.Amount, error) {
	var acct models.TokenAccount
	if err := s.DB.Where("address = ?", address).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Amount{}, nil
		}
		return models.Amount{}, err
	}
	return acct.Balance, nil
}

func (s *TokenLedgerService) Allowance(owner, spender string) (models.Amount, error) {
	var row models.TokenAllowance
	err := s.DB.Where("owner = ? AND spender = ?", owner, spender).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Amount{}, nil
		}
		return models.Amount{}, err
	}
	return row.Amount, nil
}

// Approve sets (not adds to) the spender's allowance, ERC-20 style.
func (s *TokenLedgerService) Approve(owner, spender string, amount models.Amount) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var row models.TokenAllowance
		err := tx.Where("owner = ? AND spender = ?", owner, spender).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.TokenAllowance{Owner: owner, Spender: spender, Amount: amount}).Error
		}
		if err != nil {
			return err
		}
		row.Amount = amount
		return tx.Save(&row).Error
	})
}

// Mint credits new tokens; owner only.
func (s *TokenLedgerService) Mint(caller, to string, amount models.Amount) error {
	if caller != s.Cfg.OwnerAddress {
		return ErrUnauthorized
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return creditAccount(tx, to, amount)
	})
}

// Transfer moves amount from the caller's own account.
func (s *TokenLedgerService) Transfer(from, to string, amount models.Amount) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := debitAccount(tx, from, amount); err != nil {
			return err
		}
		return creditAccount(tx, to, amount)
	})
}

// TransferFrom moves amount out of `from` on behalf of `spender`,
// consuming allowance.
func (s *TokenLedgerService) TransferFrom(spender, from, to string, amount models.Amount) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var row models.TokenAllowance
		err := tx.Where("owner = ? AND spender = ?", from, spender).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientAllowance
		}
		if err != nil {
			return err
		}
		if row.Amount.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		row.Amount = row.Amount.Sub(amount)
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		if err := debitAccount(tx, from, amount); err != nil {
			return err
		}
		return creditAccount(tx, to, amount)
	})
}

func creditAccount(tx *gorm.DB, address string, amount models.Amount) error {
	var acct models.TokenAccount
	err := tx.Where("address = ?", address).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&models.TokenAccount{Address: address, Balance: amount}).Error
	}
	if err != nil {
		return err
	}
	acct.Balance = acct.Balance.Add(amount)
	return tx.Save(&acct).Error
}

func debitAccount(tx *gorm.DB, address string, amount models.Amount) error {
	var acct models.TokenAccount
	err := tx.Where("address = ?", address).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInsufficientBalance
	}
	if err != nil {
		return err
	}
	if acct.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	acct.Balance = acct.Balance.Sub(amount)
	return tx.Save(&acct).Error
}

// --- HTTP handlers ---

// HandleMint credits test funds (owner only).
func (s *TokenLedgerService) HandleMint(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	var req struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	amount, err := models.AmountFromString(req.Amount)
	if err != nil {
		return respondError(c, ErrInvalidAmount)
	}
	if err := s.Mint(caller, req.To, amount); err != nil {
		return respondError(c, err)
	}
	log.Printf("💰 Minted %s to %s", amount.String(), req.To)
	return c.JSON(fiber.Map{"message": "minted", "to": req.To, "amount": amount})
}

// HandleApprove sets the caller's allowance for a spender.
func (s *TokenLedgerService) HandleApprove(c *fiber.Ctx) error {
	caller := c.Locals("wallet_address").(string)
	var req struct {
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	amount, err := models.AmountFromString(req.Amount)
	if err != nil {
		return respondError(c, ErrInvalidAmount)
	}
	if err := s.Approve(caller, req.Spender, amount); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "approved", "spender": req.Spender, "amount": amount})
}

// HandleBalance returns one address's balance.
func (s *TokenLedgerService) HandleBalance(c *fiber.Ctx) error {
	address := c.Params("address")
	balance, err := s.BalanceOf(address)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"address": address, "balance": balance})
}

// HandleAllowance returns a spender's remaining allowance for an owner.
func (s *TokenLedgerService) HandleAllowance(c *fiber.Ctx) error {
	owner := c.Params("owner")
	spender := c.Params("spender")
	allowance, err := s.Allowance(owner, spender)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"owner": owner, "spender": spender, "allowance": allowance})
}
