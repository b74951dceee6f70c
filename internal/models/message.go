package models

import "time"

// ChatMessage belongs to one collaboration's chat stream. Its timestamp is
// Meta.CreatedAt, assigned by the store; ClientKey is echoed back verbatim.
type ChatMessage struct {
	Meta
	CollaborationID string `json:"collaborationId"`
	SenderID        string `json:"senderId"`
	Content         string `json:"content"`
	Read            bool   `json:"read"`
	ClientKey       string `json:"clientKey,omitempty"`
}

func (m ChatMessage) Timestamp() time.Time { return m.CreatedAt }
