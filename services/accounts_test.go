package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mailconnect/models"
	"mailconnect/services"
	"mailconnect/testhelpers"
	"mailconnect/utils"
)

const strongPassword = "TestPassword123!"

func setupAccountService(t *testing.T) (*services.AccountService, *gorm.DB) {
	testhelpers.SetupTestConfig(t)
	db := testhelpers.SetupTestDatabase(t)
	return services.NewAccountService(db), db
}

func registerInput(email, username string) services.RegisterInput {
	return services.RegisterInput{
		Username:             username,
		Email:                email,
		Password:             strongPassword,
		PasswordConfirmation: strongPassword,
	}
}

func mustRegister(t *testing.T, svc *services.AccountService, email, username string) *services.AuthResult {
	t.Helper()
	result, err := svc.Register(context.Background(), registerInput(email, username))
	require.NoError(t, err)
	return result
}

func TestRegisterCreatesUserProfileAndTokens(t *testing.T) {
	svc, db := setupAccountService(t)

	in := registerInput("Alice@X.COM", "alice")
	in.FirstName = "Alice"
	result, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Access)
	assert.NotEmpty(t, result.Refresh)
	require.NotNil(t, result.User)
	assert.Equal(t, "Alice@x.com", result.User.Email)
	assert.Equal(t, "Alice", result.User.FirstName)
	assert.NotEqual(t, strongPassword, result.User.PasswordHash)

	var profiles int64
	require.NoError(t, db.Model(&models.UserProfile{}).Where("user_id = ?", result.User.ID).Count(&profiles).Error)
	assert.Equal(t, int64(1), profiles)

	claims, err := utils.ParseJWTToken(result.Access, utils.AccessTokenType)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	svc, db := setupAccountService(t)

	in := registerInput("a@x.com", "alice")
	in.PasswordConfirmation = "SomethingElse123!"
	_, err := svc.Register(context.Background(), in)

	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields["password"], "Password fields didn't match.")

	var users int64
	db.Model(&models.User{}).Count(&users)
	assert.Zero(t, users)
}

func TestRegisterPasswordMismatchReportedWithOtherErrors(t *testing.T) {
	svc, _ := setupAccountService(t)
	mustRegister(t, svc, "a@x.com", "alice")

	in := registerInput("a@x.com", "bob")
	in.PasswordConfirmation = "SomethingElse123!"
	_, err := svc.Register(context.Background(), in)

	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "email")
	assert.Contains(t, validationErr.Fields["password"], "Password fields didn't match.")
}

func TestRegisterDuplicateEmailAndUsername(t *testing.T) {
	svc, db := setupAccountService(t)
	mustRegister(t, svc, "a@x.com", "alice")

	_, err := svc.Register(context.Background(), registerInput("a@X.com", "alice"))

	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"user with this email already exists."}, validationErr.Fields["email"])
	assert.Equal(t, []string{"A user with that username already exists."}, validationErr.Fields["username"])

	var users int64
	db.Model(&models.User{}).Count(&users)
	assert.Equal(t, int64(1), users)
}

func TestRegisterWeakPassword(t *testing.T) {
	svc, _ := setupAccountService(t)

	in := registerInput("a@x.com", "alice")
	in.Password = "12345678"
	in.PasswordConfirmation = "12345678"
	_, err := svc.Register(context.Background(), in)

	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields["password"], "This password is entirely numeric.")
}

func TestLogin(t *testing.T) {
	svc, db := setupAccountService(t)
	registered := mustRegister(t, svc, "a@x.com", "alice")

	result, err := svc.Login(context.Background(), "a@x.com", strongPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Access)
	assert.NotEmpty(t, result.Refresh)
	assert.Nil(t, result.User)

	_, err = svc.Login(context.Background(), "alice", strongPassword)
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.First(&user, registered.User.ID).Error)
	assert.NotNil(t, user.LastLogin)
}

func TestLoginFailures(t *testing.T) {
	svc, db := setupAccountService(t)
	registered := mustRegister(t, svc, "a@x.com", "alice")

	_, err := svc.Login(context.Background(), "a@x.com", "wrong-password")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@x.com", strongPassword)
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", registered.User.ID).Update("is_active", false).Error)
	_, err = svc.Login(context.Background(), "a@x.com", strongPassword)
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	svc, _ := setupAccountService(t)
	registered := mustRegister(t, svc, "a@x.com", "alice")

	access, err := svc.Refresh(context.Background(), registered.Refresh)
	require.NoError(t, err)
	claims, err := utils.ParseJWTToken(access, utils.AccessTokenType)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.UserID)

	_, err = svc.Refresh(context.Background(), registered.Access)
	assert.ErrorIs(t, err, utils.ErrInvalidToken)
}

func TestRefreshForDeletedUser(t *testing.T) {
	svc, _ := setupAccountService(t)
	registered := mustRegister(t, svc, "a@x.com", "alice")

	require.NoError(t, svc.DeleteAccount(context.Background(), registered.User))

	_, err := svc.Refresh(context.Background(), registered.Refresh)
	assert.ErrorIs(t, err, utils.ErrInvalidToken)
}

func TestLoginWithGoogleCreatesUser(t *testing.T) {
	svc, db := setupAccountService(t)
	mustRegister(t, svc, "taken@y.com", "jane")

	result, err := svc.LoginWithGoogle(context.Background(), services.GoogleUser{
		ID:       "google-1",
		Email:    "jane@x.com",
		Name:     "Jane Doe",
		Verified: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Access)

	var user models.User
	require.NoError(t, db.Where("email = ?", "jane@x.com").First(&user).Error)
	assert.Equal(t, "jane1", user.Username)
	assert.Equal(t, "Jane", user.FirstName)
	assert.Equal(t, "Doe", user.LastName)
	require.NotNil(t, user.GoogleID)
	assert.Equal(t, "google-1", *user.GoogleID)

	var profiles int64
	db.Model(&models.UserProfile{}).Where("user_id = ?", user.ID).Count(&profiles)
	assert.Equal(t, int64(1), profiles)

	// A Google-only account cannot sign in with a password.
	_, err = svc.Login(context.Background(), "jane@x.com", "!")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestLoginWithGoogleLinksExistingUser(t *testing.T) {
	svc, db := setupAccountService(t)
	registered := mustRegister(t, svc, "a@x.com", "alice")

	_, err := svc.LoginWithGoogle(context.Background(), services.GoogleUser{ID: "g-2", Email: "a@x.com"})
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = svc.LoginWithGoogle(context.Background(), services.GoogleUser{ID: "g-2", Email: "a@x.com", Verified: true})
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.First(&user, registered.User.ID).Error)
	require.NotNil(t, user.GoogleID)
	assert.Equal(t, "g-2", *user.GoogleID)

	var users int64
	db.Model(&models.User{}).Count(&users)
	assert.Equal(t, int64(1), users)
}

func TestCreateSuperuser(t *testing.T) {
	svc, db := setupAccountService(t)

	created, err := svc.CreateSuperuser(context.Background(), "admin", "admin@example.com", "admin")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.CreateSuperuser(context.Background(), "admin", "admin@example.com", "admin")
	require.NoError(t, err)
	assert.False(t, created)

	var admin models.User
	require.NoError(t, db.Where("username = ?", "admin").First(&admin).Error)
	assert.True(t, admin.IsSuperuser)
	assert.True(t, admin.IsStaff)

	_, err = svc.Login(context.Background(), "admin", "admin")
	assert.NoError(t, err)
}
