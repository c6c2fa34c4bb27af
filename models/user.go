package models

import (
	"time"
)

// User represents an account identity. Email is the login identifier.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Authentication fields
	Email        string     `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Username     string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	LastLogin    *time.Time `json:"-"`

	// Google OAuth fields
	GoogleID *string `gorm:"uniqueIndex" json:"-"`

	// Profile information
	FirstName string `gorm:"size:150" json:"first_name"`
	LastName  string `gorm:"size:150" json:"last_name"`

	// Account status
	IsActive    bool `gorm:"not null" json:"-"`
	IsStaff     bool `gorm:"not null" json:"-"`
	IsSuperuser bool `gorm:"not null" json:"-"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	// Relations
	Profile       *UserProfile   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	EmailAccounts []EmailAccount `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// UserProfile holds the business metadata attached one-to-one to a user.
type UserProfile struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;uniqueIndex" json:"-"`

	CompanyName    *string `gorm:"size:255" json:"company_name"`
	PhoneNumber    *string `gorm:"size:20" json:"phone_number"`
	EmailSignature *string `gorm:"type:text" json:"email_signature"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
