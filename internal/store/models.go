package store

import "time"

// Keys used by the workflow. A key's absence is the only staleness signal
// the rest of the system gets.
const (
	KeyCampaignDraft   = "campaignDraft"
	KeyCampaignData    = "campaignData"
	KeyScriptQA        = "scriptQA"
	KeyScriptFlow      = "scriptFlow"
	KeyGeneratedScript = "generatedScript"
)

// Entry is one persisted value scoped to a browsing session. Values are
// structured records serialized to text; the store treats them as opaque.
type Entry struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:64;uniqueIndex:idx_entries_session_key"`
	Key       string `gorm:"size:64;uniqueIndex:idx_entries_session_key"`
	Value     string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
