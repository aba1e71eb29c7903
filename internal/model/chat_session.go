package model

import "time"

// ChatSession is one conversation over a single document at a fixed
// education level. MessageCount and LastMessageAt are the session stats
// updated together with each persisted turn.
type ChatSession struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	DocumentID     uint      `gorm:"not null;index" json:"document_id"`
	Title          string    `gorm:"size:256;not null" json:"title"`
	EducationLevel string    `gorm:"size:32;not null" json:"education_level"`
	MessageCount   int       `gorm:"not null;default:0" json:"message_count"`
	LastMessageAt  time.Time `json:"last_message_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
