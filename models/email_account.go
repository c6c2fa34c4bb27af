package models

import (
	"time"
)

// EmailAccount stores the SMTP and IMAP connection settings of one
// connected mailbox. Rows are unique per (user_id, email).
type EmailAccount struct {
	ID     uint   `gorm:"primaryKey" json:"-"`
	UserID uint   `gorm:"not null;uniqueIndex:idx_email_accounts_owner" json:"-"`
	Email  string `gorm:"size:254;not null;uniqueIndex:idx_email_accounts_owner" json:"-"`

	Provider string `gorm:"size:50;not null" json:"provider"`

	// ========= SMTP Configuration =========
	SMTPServer string `gorm:"column:smtp_server;size:255;not null" json:"smtp_server"`
	SMTPPort   int    `gorm:"column:smtp_port;not null" json:"smtp_port"`

	// ========= IMAP Configuration =========
	IMAPServer string `gorm:"column:imap_server;size:255;not null" json:"imap_server"`
	IMAPPort   int    `gorm:"column:imap_port;not null" json:"imap_port"`

	UseTLS   bool   `gorm:"column:use_tls;not null" json:"use_tls"`
	Password string `gorm:"not null" json:"-"` // Encrypted in application layer

	// ========= Status & Verification =========
	IsActive     bool       `gorm:"not null" json:"is_active"`
	SMTPVerified bool       `gorm:"column:smtp_verified;not null" json:"smtp_verified"`
	IMAPVerified bool       `gorm:"column:imap_verified;not null" json:"imap_verified"`
	LastTestedAt *time.Time `json:"last_tested_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Sanitize clears credentials before an account leaves the service.
func (a *EmailAccount) Sanitize() {
	a.Password = ""
}

// AccountMap keys accounts by address, the shape clients see as
// email_accounts.
func AccountMap(accounts []EmailAccount) map[string]EmailAccount {
	m := make(map[string]EmailAccount, len(accounts))
	for _, account := range accounts {
		account.Sanitize()
		m[account.Email] = account
	}
	return m
}
