// models/registry.go
package models

import "time"

// QuestMirror is the registry's denormalized copy of quest metadata,
// maintained by the orchestrator for cheaper/alternate indexing. It is
// never the source of truth.
// Table name: quest_mirror
type QuestMirror struct {
	QuestID     int64       `gorm:"primaryKey" json:"quest_id"`
	Title       string      `gorm:"not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	URI         string      `gorm:"type:varchar(256);index" json:"uri"`
	Deadline    time.Time   `json:"deadline"`
	Reward      Amount      `json:"reward"`
	State       QuestStatus `gorm:"index" json:"state"`

	// Derived by the deadline sweep; advisory only.
	Expired bool `gorm:"default:false" json:"expired"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (QuestMirror) TableName() string { return "quest_mirror" }
