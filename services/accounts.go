package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"mailconnect/models"
	"mailconnect/utils"
)

// unusablePassword marks accounts that can only sign in through OAuth.
const unusablePassword = "!"

type RegisterInput struct {
	Username             string
	Email                string
	Password             string
	PasswordConfirmation string
	FirstName            string
	LastName             string
}

type AuthResult struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    *models.User `json:"user,omitempty"`
}

type GoogleUser struct {
	ID       string
	Email    string
	Name     string
	Verified bool
}

type AccountService struct {
	db *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{db: db}
}

// Register validates the input, creates the user with its profile and
// issues a token pair.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	db := s.db.WithContext(ctx)
	email := utils.NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	errs := utils.FieldErrors{}

	taken, err := s.exists(db, "email = ?", email)
	if err != nil {
		return nil, err
	}
	if taken {
		errs.Add("email", "user with this email already exists.")
	}

	taken, err = s.exists(db, "username = ?", username)
	if err != nil {
		return nil, err
	}
	if taken {
		errs.Add("username", "A user with that username already exists.")
	}

	if in.Password != in.PasswordConfirmation {
		errs.Add("password", "Password fields didn't match.")
	}
	for _, problem := range utils.ValidatePassword(in.Password, username, email, in.FirstName, in.LastName) {
		errs.Add("password", problem)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hashedPassword),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsActive:     true,
	}
	if err := models.CreateUserWithProfile(db, &user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	accessToken, refreshToken, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	utils.LogEvent("user_registered", map[string]interface{}{
		"user_id": user.ID,
	})

	return &AuthResult{
		Access:  accessToken,
		Refresh: refreshToken,
		User:    &user,
	}, nil
}

// Login checks credentials. identifier is matched against email first and
// username second.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("email = ?", utils.NormalizeEmail(identifier)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Where("username = ?", strings.TrimSpace(identifier)).First(&user).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive || user.PasswordHash == unusablePassword {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := db.Model(&user).Update("last_login", time.Now()).Error; err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	return s.issueTokens(&user)
}

// Refresh exchanges a refresh token for a new access token.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := utils.ParseJWTToken(refreshToken, utils.RefreshTokenType)
	if err != nil {
		return "", err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", utils.ErrInvalidToken
		}
		return "", err
	}
	if !user.IsActive {
		return "", utils.ErrInvalidToken
	}

	return utils.GenerateAccessToken(user.ID)
}

// DeleteAccount removes the user, its profile and its email accounts.
func (s *AccountService) DeleteAccount(ctx context.Context, user *models.User) error {
	if err := models.DeleteUser(s.db.WithContext(ctx), user); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	utils.LogEvent("user_deleted", map[string]interface{}{
		"user_id": user.ID,
	})
	return nil
}

// LoginWithGoogle finds the user by Google ID or email, creating one (with
// its profile) on first sign-in.
func (s *AccountService) LoginWithGoogle(ctx context.Context, gu GoogleUser) (*AuthResult, error) {
	if gu.Email == "" {
		return nil, newValidationError("email", "Google account email is required.")
	}
	db := s.db.WithContext(ctx)
	email := utils.NormalizeEmail(gu.Email)

	var user models.User
	err := db.Where("google_id = ?", gu.ID).Or("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		username, err := s.availableUsername(db, email)
		if err != nil {
			return nil, err
		}
		first, last, _ := strings.Cut(gu.Name, " ")
		user = models.User{
			Email:        email,
			Username:     username,
			PasswordHash: unusablePassword,
			GoogleID:     &gu.ID,
			FirstName:    first,
			LastName:     last,
			IsActive:     true,
		}
		if err := models.CreateUserWithProfile(db, &user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		if !user.IsActive {
			return nil, ErrInactiveAccount
		}
		if user.GoogleID == nil || *user.GoogleID != gu.ID {
			// only a verified Google address may claim an existing account
			if !gu.Verified {
				return nil, ErrInvalidCredentials
			}
			if err := db.Model(&user).Update("google_id", gu.ID).Error; err != nil {
				return nil, fmt.Errorf("failed to link google account: %w", err)
			}
		}
	}

	if err := db.Model(&user).Update("last_login", time.Now()).Error; err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	return s.issueTokens(&user)
}

func (s *AccountService) issueTokens(user *models.User) (*AuthResult, error) {
	accessToken, refreshToken, err := utils.GenerateJWTToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	return &AuthResult{Access: accessToken, Refresh: refreshToken}, nil
}

func (s *AccountService) exists(db *gorm.DB, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := db.Model(&models.User{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *AccountService) availableUsername(db *gorm.DB, email string) (string, error) {
	base, _, _ := strings.Cut(email, "@")
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 1; i <= 100; i++ {
		taken, err := s.exists(db, "username = ?", candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", fmt.Errorf("no free username for %s", base)
}

// CreateSuperuser creates a staff superuser unless one with the username
// already exists. It reports whether a user was created. The password
// policy is not applied.
func (s *AccountService) CreateSuperuser(ctx context.Context, username, email, password string) (bool, error) {
	db := s.db.WithContext(ctx)

	taken, err := s.exists(db, "username = ?", username)
	if err != nil || taken {
		return false, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Email:        utils.NormalizeEmail(email),
		Username:     username,
		PasswordHash: string(hashedPassword),
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
	}
	if err := models.CreateUserWithProfile(db, &user); err != nil {
		return false, fmt.Errorf("failed to create superuser: %w", err)
	}
	return true, nil
}
