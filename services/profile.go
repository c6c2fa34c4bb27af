package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"mailconnect/models"
	"mailconnect/utils"
)

// ProfileData is the flattened user and profile view returned by the
// profile endpoints.
type ProfileData struct {
	ID             uint                           `json:"id"`
	Email          string                         `json:"email"`
	Username       string                         `json:"username"`
	FirstName      string                         `json:"first_name"`
	LastName       string                         `json:"last_name"`
	CompanyName    *string                        `json:"company_name"`
	PhoneNumber    *string                        `json:"phone_number"`
	EmailSignature *string                        `json:"email_signature"`
	EmailAccounts  map[string]models.EmailAccount `json:"email_accounts"`
	CreatedAt      time.Time                      `json:"created_at"`
	UpdatedAt      time.Time                      `json:"updated_at"`
}

// UserData pairs the identity fields with the profile, for GET /user/.
type UserData struct {
	User    *models.User `json:"user"`
	Profile *ProfileData `json:"profile"`
}

// EmailAccountConfig is one entry of a replacement email_accounts mapping.
// A missing password keeps the stored one for an existing address.
type EmailAccountConfig struct {
	Provider   string
	SMTPServer string
	SMTPPort   int
	IMAPServer string
	IMAPPort   int
	UseTLS     *bool
	Password   *string
}

// NullableString is a nullable column in a partial update. Fields with Set
// false are left untouched; Set with a nil Value stores NULL.
type NullableString struct {
	Set   bool
	Value *string
}

// SetString returns a NullableString that stores v.
func SetString(v string) NullableString {
	return NullableString{Set: true, Value: &v}
}

func (n NullableString) column() interface{} {
	if n.Value == nil {
		return nil
	}
	return *n.Value
}

// UpdateProfileInput holds a partial update. Nil name fields are left
// untouched.
type UpdateProfileInput struct {
	FirstName      *string
	LastName       *string
	CompanyName    NullableString
	PhoneNumber    NullableString
	EmailSignature NullableString
	EmailAccounts  map[string]EmailAccountConfig
	// ReplaceAccounts is set when email_accounts was present in the payload,
	// even as an empty or null mapping.
	ReplaceAccounts bool
}

type ProfileService struct {
	db *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{db: db}
}

// Get returns the caller's profile, creating it first if it is missing.
func (s *ProfileService) Get(ctx context.Context, user *models.User) (*ProfileData, error) {
	db := s.db.WithContext(ctx)

	var profile models.UserProfile
	if err := db.Where(models.UserProfile{UserID: user.ID}).FirstOrCreate(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var accounts []models.EmailAccount
	if err := db.Where("user_id = ?", user.ID).Order("email").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to load email accounts: %w", err)
	}

	return &ProfileData{
		ID:             profile.ID,
		Email:          user.Email,
		Username:       user.Username,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		CompanyName:    profile.CompanyName,
		PhoneNumber:    profile.PhoneNumber,
		EmailSignature: profile.EmailSignature,
		EmailAccounts:  models.AccountMap(accounts),
		CreatedAt:      profile.CreatedAt,
		UpdatedAt:      profile.UpdatedAt,
	}, nil
}

// GetUserData returns the identity fields together with the profile.
func (s *ProfileService) GetUserData(ctx context.Context, user *models.User) (*UserData, error) {
	profile, err := s.Get(ctx, user)
	if err != nil {
		return nil, err
	}
	return &UserData{User: user, Profile: profile}, nil
}

// Update applies a partial update in one transaction. user is updated in
// place with the new name fields.
func (s *ProfileService) Update(ctx context.Context, user *models.User, in UpdateProfileInput) (*ProfileData, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userUpdates := map[string]interface{}{}
		if in.FirstName != nil {
			userUpdates["first_name"] = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			userUpdates["last_name"] = strings.TrimSpace(*in.LastName)
		}
		if len(userUpdates) > 0 {
			if err := tx.Model(user).Updates(userUpdates).Error; err != nil {
				return err
			}
			if in.FirstName != nil {
				user.FirstName = userUpdates["first_name"].(string)
			}
			if in.LastName != nil {
				user.LastName = userUpdates["last_name"].(string)
			}
		}

		var profile models.UserProfile
		if err := tx.Where(models.UserProfile{UserID: user.ID}).FirstOrCreate(&profile).Error; err != nil {
			return err
		}

		profileUpdates := map[string]interface{}{
			"updated_at": time.Now(),
		}
		for column, value := range map[string]NullableString{
			"company_name":    in.CompanyName,
			"phone_number":    in.PhoneNumber,
			"email_signature": in.EmailSignature,
		} {
			if value.Set {
				profileUpdates[column] = value.column()
			}
		}
		if err := tx.Model(&profile).Updates(profileUpdates).Error; err != nil {
			return err
		}

		if in.ReplaceAccounts {
			return replaceAccounts(tx, user.ID, in.EmailAccounts)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	utils.LogEvent("profile_updated", map[string]interface{}{
		"user_id": user.ID,
	})

	return s.Get(ctx, user)
}

func replaceAccounts(tx *gorm.DB, userID uint, entries map[string]EmailAccountConfig) error {
	var existing []models.EmailAccount
	if err := tx.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
		return err
	}
	previous := make(map[string]models.EmailAccount, len(existing))
	for _, account := range existing {
		previous[account.Email] = account
	}

	if err := tx.Where("user_id = ?", userID).Delete(&models.EmailAccount{}).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	accounts := make([]models.EmailAccount, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for email, entry := range entries {
		email = strings.TrimSpace(email)
		if _, dup := seen[email]; dup {
			return newValidationError("email_accounts", fmt.Sprintf("Duplicate email account address %q.", email))
		}
		seen[email] = struct{}{}
		account := models.EmailAccount{
			UserID:     userID,
			Email:      email,
			Provider:   entry.Provider,
			SMTPServer: entry.SMTPServer,
			SMTPPort:   entry.SMTPPort,
			IMAPServer: entry.IMAPServer,
			IMAPPort:   entry.IMAPPort,
			UseTLS:     entry.UseTLS == nil || *entry.UseTLS,
			IsActive:   true,
		}

		switch {
		case entry.Password != nil:
			encrypted, err := utils.Encrypt(*entry.Password)
			if err != nil {
				return err
			}
			account.Password = encrypted
		default:
			if prev, ok := previous[email]; ok {
				account.Password = prev.Password
			}
		}
		accounts = append(accounts, account)
	}

	return tx.Create(&accounts).Error
}
