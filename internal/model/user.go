package model

import "time"

// User is a reader account. EducationLevel is the account-wide default for
// new explanation sessions; individual sessions may override it.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email          string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash   string    `gorm:"size:255;not null" json:"-"`
	EducationLevel string    `gorm:"size:32;not null;default:undergraduate" json:"education_level"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
