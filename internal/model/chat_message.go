package model

import "time"

type ChatMessage struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SessionID       uint      `gorm:"not null;index" json:"session_id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	Role            string    `gorm:"size:16;not null;index" json:"role"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	HighlightedText string    `gorm:"type:text" json:"highlighted_text,omitempty"`
	Metadata        string    `gorm:"type:text" json:"metadata,omitempty"` // JSON
	CreatedAt       time.Time `json:"created_at"`
}
