// models/reputation.go
package models

import "time"

// ReputationProfile accumulates experience and reputation points per user
// address. Points only ever grow (no spend/burn path).
type ReputationProfile struct {
	Address          string `gorm:"primaryKey;type:varchar(128)" json:"address"`
	ExperiencePoints int64  `gorm:"default:0" json:"experience_points"`
	ReputationPoints int64  `gorm:"default:0" json:"reputation_points"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ReputationEvent is an audit row for every accrual.
type ReputationEvent struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	Address         string    `gorm:"index;not null" json:"address"`
	Reporter        string    `gorm:"type:varchar(128);not null" json:"reporter"`
	ExperienceDelta int64     `json:"experience_delta"`
	ReputationDelta int64     `json:"reputation_delta"`
	Reason          string    `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Reporter is an allow-listed address permitted to report accruals.
type Reporter struct {
	Address   string    `gorm:"primaryKey;type:varchar(128)" json:"address"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Tier is a reputation band derived from cumulative experience.
type Tier struct {
	Label string `json:"label"`
	MinXP int64  `json:"min_xp"`
}

// TierBands is ordered by ascending MinXP. Thresholds are configuration,
// not a hard invariant.
var TierBands = []Tier{
	{"Rookie", 0},
	{"Bronze", 500},
	{"Silver", 2000},
	{"Gold", 5000},
	{"Platinum", 12000},
	{"Diamond", 30000},
}

// TierFor returns the label of the highest band whose lower bound the
// experience total has reached.
func TierFor(xp int64) string {
	label := TierBands[0].Label
	for _, band := range TierBands {
		if xp >= band.MinXP {
			label = band.Label
		}
	}
	return label
}
