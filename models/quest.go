// models/quest.go
package models

import (
	"time"
)

// QuestStatus follows the on-chain status codes:
// 0=Open, 1=Accepted, 2=Submitted, 3=Verified, 4=Rejected, 5=Cancelled
type QuestStatus int

const (
	QuestStatusOpen QuestStatus = iota
	QuestStatusAccepted
	QuestStatusSubmitted
	QuestStatusVerified
	QuestStatusRejected
	QuestStatusCancelled
)

func (s QuestStatus) String() string {
	switch s {
	case QuestStatusOpen:
		return "open"
	case QuestStatusAccepted:
		return "accepted"
	case QuestStatusSubmitted:
		return "submitted"
	case QuestStatusVerified:
		return "verified"
	case QuestStatusRejected:
		return "rejected"
	case QuestStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal statuses never transition again.
func (s QuestStatus) Terminal() bool {
	return s == QuestStatusVerified || s == QuestStatusRejected || s == QuestStatusCancelled
}

// questTransitions is the full edge set of the lifecycle.
var questTransitions = map[QuestStatus][]QuestStatus{
	QuestStatusOpen:      {QuestStatusAccepted, QuestStatusCancelled},
	QuestStatusAccepted:  {QuestStatusSubmitted},
	QuestStatusSubmitted: {QuestStatusVerified, QuestStatusRejected},
}

func (s QuestStatus) CanTransitionTo(next QuestStatus) bool {
	for _, allowed := range questTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// VerificationType is the evidence category a worker must supply.
// 0=Photo, 1=Video, 2=GPS
type VerificationType int

const (
	VerificationPhoto VerificationType = iota
	VerificationVideo
	VerificationGPS
)

func (v VerificationType) Valid() bool {
	return v >= VerificationPhoto && v <= VerificationGPS
}

func (v VerificationType) String() string {
	switch v {
	case VerificationPhoto:
		return "photo"
	case VerificationVideo:
		return "video"
	case VerificationGPS:
		return "gps"
	default:
		return "unknown"
	}
}

// Quest is the authoritative lifecycle record. Append-only: cancellation is
// a terminal status, never a row delete.
type Quest struct {
	ID           int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Creator      string           `gorm:"type:varchar(128);index;not null" json:"creator"`
	Worker       string           `gorm:"type:varchar(128);index" json:"worker,omitempty"` // empty until accepted
	Title        string           `gorm:"not null" json:"title"`
	Description  string           `gorm:"type:text" json:"description"`
	RewardAmount Amount           `json:"reward_amount"`
	Verification VerificationType `gorm:"not null" json:"verification_type"`
	Deadline     time.Time        `gorm:"not null" json:"deadline"`
	Status       QuestStatus      `gorm:"default:0;index" json:"status"`

	ProofCID      string `gorm:"type:varchar(256)" json:"proof_cid,omitempty"`
	ProofMetadata string `gorm:"type:text" json:"proof_metadata,omitempty"`

	RewardEscrowed bool `gorm:"default:false" json:"reward_escrowed"`
	RewardClaimed  bool `gorm:"default:false" json:"reward_claimed"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ApprovedCreator is the owner-managed allow-list of addresses permitted to
// create quests.
type ApprovedCreator struct {
	Address   string    `gorm:"primaryKey;type:varchar(128)" json:"address"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
