// models/sync_snapshot.go
package models

import "time"

// QuestSnapshot is the sync engine's derived, read-only view of one quest.
// Recomputed on every pass; never authoritative. Rows carry no wall-clock
// fields so two passes over unchanged source data produce identical rows.
type QuestSnapshot struct {
	QuestID      int64       `gorm:"primaryKey" json:"quest_id"`
	Creator      string      `gorm:"type:varchar(128);index" json:"creator"`
	Worker       string      `gorm:"type:varchar(128);index" json:"worker,omitempty"`
	Title        string      `json:"title"`
	Reward       Amount      `json:"reward"`
	Deadline     time.Time   `json:"deadline"`
	Status       QuestStatus `json:"status"`
	StateLabel   string      `gorm:"type:varchar(32)" json:"state_label"`
	ProofCID     string      `gorm:"type:varchar(256)" json:"proof_cid,omitempty"`
	Escrowed     bool        `json:"escrowed"`
	Claimed      bool        `json:"claimed"`
	Expired      bool        `json:"expired"`
	Refundable   bool        `json:"refundable"`
	RegistryURI  string      `gorm:"type:varchar(256)" json:"registry_uri,omitempty"`
}

// QuestProgressSnapshot records where one user stands in one quest's
// lifecycle, derived by replaying quest + escrow state.
type QuestProgressSnapshot struct {
	Address string `gorm:"primaryKey;type:varchar(128)" json:"address"`
	QuestID int64  `gorm:"primaryKey" json:"quest_id"`
	Role    string `gorm:"type:varchar(16)" json:"role"` // creator | worker
	Stage   string `gorm:"type:varchar(32)" json:"stage"`
}

// BalanceSnapshot is the reconciled local balance for one address plus the
// remote balance observed at the last successful sync.
type BalanceSnapshot struct {
	Address    string `gorm:"primaryKey;type:varchar(128)" json:"address"`
	LastSynced Amount `json:"last_synced"`
	Local      Amount `json:"local"`
}
