package entity

import "encoding/json"

// CategoryPasswordPolicy marks rows holding a tenant's password settings.
const CategoryPasswordPolicy = "password_policy"

// Setting represents a configuration or reserved data record.
type Setting struct {
	ID         string          `json:"id"`
	ParentID   string          `json:"parent_id,omitempty"`
	RootID     string          `json:"root_id,omitempty"`
	RecordMeta json.RawMessage `json:"record_meta,omitempty"`
	Category   string          `json:"category,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// NewSetting creates a Setting; parentID and rootID express multi-level
// hierarchies and may be empty.
func NewSetting(id string, parentID string, rootID string, category string, recordMeta json.RawMessage, metadata json.RawMessage) *Setting {
	return &Setting{ID: id, ParentID: parentID, RootID: rootID, Category: category, RecordMeta: recordMeta, Metadata: metadata}
}
