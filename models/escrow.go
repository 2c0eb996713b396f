// models/escrow.go
package models

import "time"

// EscrowRecord holds custody of a quest's staked reward. One record per
// quest id. Released and Refunded are mutually exclusive and each flips at
// most once; the record is retained after settlement for audit.
type EscrowRecord struct {
	QuestID   int64  `gorm:"primaryKey" json:"quest_id"`
	Token     string `gorm:"type:varchar(128);not null" json:"token"`
	Depositor string `gorm:"type:varchar(128);index;not null" json:"depositor"`
	Amount    Amount `json:"amount"`
	Released  bool   `gorm:"default:false" json:"released"`
	Refunded  bool   `gorm:"default:false" json:"refunded"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Settled reports whether funds already left custody.
func (r *EscrowRecord) Settled() bool { return r.Released || r.Refunded }

const (
	EscrowLegRelease = "release"
	EscrowLegFee     = "fee"
	EscrowLegRefund  = "refund"
)

// EscrowTransfer is an audit row for every amount that leaves custody.
type EscrowTransfer struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	QuestID   int64     `gorm:"index;not null" json:"quest_id"`
	Leg       string    `gorm:"type:varchar(16);not null" json:"leg"` // release | fee | refund
	Recipient string    `gorm:"type:varchar(128);not null" json:"recipient"`
	Amount    Amount    `json:"amount"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
