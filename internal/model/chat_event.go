package model

import "time"

const (
	EventSessionCreated   = "session_created"
	EventSessionDeleted   = "session_deleted"
	EventMessageExchanged = "message_exchanged"
)

// ChatEvent is an audit row written asynchronously by the event log worker.
type ChatEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	SessionID uint      `gorm:"not null;index" json:"session_id"`
	Type      string    `gorm:"size:32;not null" json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
