package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mailconnect/models"
	"mailconnect/utils"
)

const monitorBatchSize = 100

// upsertColumns are overwritten when an account is re-added under the same
// address. Verification state is reset with them.
var upsertColumns = []string{
	"provider", "smtp_server", "smtp_port", "imap_server", "imap_port",
	"use_tls", "password", "is_active", "smtp_verified", "imap_verified",
	"last_tested_at", "last_error", "updated_at",
}

type AddEmailAccountInput struct {
	Email      string
	Provider   string
	SMTPServer string
	SMTPPort   int
	IMAPServer string
	IMAPPort   int
	Password   string
	UseTLS     bool
}

type EmailAccountService struct {
	db     *gorm.DB
	tester ConnectionTester
}

func NewEmailAccountService(db *gorm.DB, tester ConnectionTester) *EmailAccountService {
	return &EmailAccountService{db: db, tester: tester}
}

// List returns the caller's accounts ordered by address, without credentials.
func (s *EmailAccountService) List(ctx context.Context, userID uint) ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("email").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	for i := range accounts {
		accounts[i].Sanitize()
	}
	return accounts, nil
}

// Add stores the account under its address, overwriting any existing
// configuration for that address. The account is always left active.
func (s *EmailAccountService) Add(ctx context.Context, userID uint, in AddEmailAccountInput) (*models.EmailAccount, error) {
	encrypted, err := utils.Encrypt(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	account := models.EmailAccount{
		UserID:     userID,
		Email:      strings.TrimSpace(in.Email),
		Provider:   in.Provider,
		SMTPServer: in.SMTPServer,
		SMTPPort:   in.SMTPPort,
		IMAPServer: in.IMAPServer,
		IMAPPort:   in.IMAPPort,
		UseTLS:     in.UseTLS,
		Password:   encrypted,
		IsActive:   true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "email"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(&account).Error; err != nil {
			return err
		}
		return touchProfile(tx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save email account: %w", err)
	}

	utils.LogEvent("email_account_added", map[string]interface{}{
		"user_id":  userID,
		"provider": account.Provider,
	})

	account.Sanitize()
	return &account, nil
}

// Remove deletes the account stored under email. It returns ErrNotFound
// when the caller has no such account.
func (s *EmailAccountService) Remove(ctx context.Context, userID uint, email string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ? AND email = ?", userID, strings.TrimSpace(email)).
			Delete(&models.EmailAccount{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return touchProfile(tx, userID)
	})
	if err != nil {
		return err
	}

	utils.LogEvent("email_account_removed", map[string]interface{}{
		"user_id": userID,
	})
	return nil
}

// Test dials the account's SMTP and IMAP servers and records the outcome.
func (s *EmailAccountService) Test(ctx context.Context, userID uint, email string) (*ConnectionReport, error) {
	var account models.EmailAccount
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND email = ?", userID, strings.TrimSpace(email)).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.testAccount(ctx, &account)
}

// TestActive runs the connection test for every active account and returns
// how many were tested and how many failed.
func (s *EmailAccountService) TestActive(ctx context.Context) (tested, failed int, err error) {
	var lastID uint
	for {
		var batch []models.EmailAccount
		if err := s.db.WithContext(ctx).
			Where("is_active = ? AND id > ?", true, lastID).
			Order("id").
			Limit(monitorBatchSize).
			Find(&batch).Error; err != nil {
			return tested, failed, err
		}
		if len(batch) == 0 {
			return tested, failed, nil
		}

		for i := range batch {
			if ctx.Err() != nil {
				return tested, failed, ctx.Err()
			}
			report, err := s.testAccount(ctx, &batch[i])
			if err != nil {
				return tested, failed, err
			}
			tested++
			if !report.OK() {
				failed++
			}
		}
		lastID = batch[len(batch)-1].ID
	}
}

func (s *EmailAccountService) testAccount(ctx context.Context, account *models.EmailAccount) (*ConnectionReport, error) {
	var report ConnectionReport

	password, err := utils.Decrypt(account.Password)
	if err != nil {
		utils.LogError("decrypt_failed", err, map[string]interface{}{
			"operation":        "email account password decryption",
			"email_account_id": account.ID,
		})
		msg := fmt.Sprintf("Failed to decrypt password: %v", err)
		report.SMTP.Error = msg
		report.IMAP.Error = msg
	} else {
		report = runConnectionTest(ctx, s.tester, *account, password)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"smtp_verified":  report.SMTP.Success,
		"imap_verified":  report.IMAP.Success,
		"last_tested_at": now,
		"last_error":     nil,
	}
	var lastError *string
	if msg := report.failure(); msg != "" {
		lastError = &msg
		updates["last_error"] = msg
	}

	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record connection test: %w", err)
	}

	account.SMTPVerified = report.SMTP.Success
	account.IMAPVerified = report.IMAP.Success
	account.LastTestedAt = &now
	account.LastError = lastError
	return &report, nil
}

func (r ConnectionReport) failure() string {
	var parts []string
	if r.SMTP.Error != "" {
		parts = append(parts, "smtp: "+r.SMTP.Error)
	}
	if r.IMAP.Error != "" && r.IMAP.Error != r.SMTP.Error {
		parts = append(parts, "imap: "+r.IMAP.Error)
	}
	return strings.Join(parts, "; ")
}

// touchProfile bumps the owner's profile updated_at, since the account set
// is part of the profile as clients see it.
func touchProfile(tx *gorm.DB, userID uint) error {
	return tx.Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("updated_at", time.Now()).Error
}
