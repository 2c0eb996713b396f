// models/token_account.go
package models

import "time"

// TokenAccount is one address's stable-asset balance.
type TokenAccount struct {
	Address   string    `gorm:"primaryKey;type:varchar(128)" json:"address"`
	Balance   Amount    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TokenAllowance mirrors ERC-20 approve/allowance semantics: Owner lets
// Spender move up to Amount on their behalf.
type TokenAllowance struct {
	Owner     string    `gorm:"primaryKey;type:varchar(128)" json:"owner"`
	Spender   string    `gorm:"primaryKey;type:varchar(128)" json:"spender"`
	Amount    Amount    `json:"amount"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
