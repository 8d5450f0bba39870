package model

import "time"

// User is an account that owns links.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Username     string    `json:"username" gorm:"size:255;not null;uniqueIndex"`
	Email        *string   `json:"email" gorm:"size:255;index"`
	PasswordHash string    `json:"-" gorm:"column:password;not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null"`
}

// NewUser carries the fields required to register a user. The password is
// expected to be hashed already.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
}
