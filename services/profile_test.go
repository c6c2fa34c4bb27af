package services_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mailconnect/models"
	"mailconnect/services"
	"mailconnect/testhelpers"
	"mailconnect/utils"
)

func setupProfiles(t *testing.T) (*services.ProfileService, *gorm.DB, *models.User) {
	testhelpers.SetupTestConfig(t)
	db := testhelpers.SetupTestDatabase(t)

	user := &models.User{Email: "a@x.com", Username: "alice", PasswordHash: "hash", IsActive: true}
	require.NoError(t, models.CreateUserWithProfile(db, user))
	return services.NewProfileService(db), db, user
}

func TestGetProfile(t *testing.T) {
	svc, _, user := setupProfiles(t)

	profile, err := svc.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, "alice", profile.Username)
	assert.Nil(t, profile.CompanyName)
	assert.NotNil(t, profile.EmailAccounts)
	assert.Empty(t, profile.EmailAccounts)

	body, err := json.Marshal(profile)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"email_accounts":{}`)
	assert.Contains(t, string(body), `"company_name":null`)
}

func TestGetProfileCreatesMissingProfile(t *testing.T) {
	svc, db, _ := setupProfiles(t)

	orphan := &models.User{Email: "b@x.com", Username: "bob", PasswordHash: "hash", IsActive: true}
	require.NoError(t, db.Omit("Profile", "EmailAccounts").Create(orphan).Error)

	profile, err := svc.Get(context.Background(), orphan)
	require.NoError(t, err)
	assert.NotZero(t, profile.ID)

	var count int64
	db.Model(&models.UserProfile{}).Where("user_id = ?", orphan.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpdateProfileIsPartial(t *testing.T) {
	svc, db, user := setupProfiles(t)

	_, err := svc.Update(context.Background(), user, services.UpdateProfileInput{
		FirstName:   utils.Pointer("Alice"),
		CompanyName: services.SetString("Acme"),
	})
	require.NoError(t, err)

	profile, err := svc.Update(context.Background(), user, services.UpdateProfileInput{
		PhoneNumber: services.SetString("+1 555 0100"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Alice", profile.FirstName)
	require.NotNil(t, profile.CompanyName)
	assert.Equal(t, "Acme", *profile.CompanyName)
	require.NotNil(t, profile.PhoneNumber)
	assert.Equal(t, "+1 555 0100", *profile.PhoneNumber)
	assert.Nil(t, profile.EmailSignature)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, "Alice", stored.FirstName)
	assert.Equal(t, "a@x.com", stored.Email)
}

func TestUpdateProfileClearsNullableFields(t *testing.T) {
	svc, db, user := setupProfiles(t)

	_, err := svc.Update(context.Background(), user, services.UpdateProfileInput{
		CompanyName:    services.SetString("Acme"),
		EmailSignature: services.SetString("-- Alice"),
	})
	require.NoError(t, err)

	profile, err := svc.Update(context.Background(), user, services.UpdateProfileInput{
		CompanyName: services.NullableString{Set: true},
	})
	require.NoError(t, err)
	assert.Nil(t, profile.CompanyName)
	require.NotNil(t, profile.EmailSignature)
	assert.Equal(t, "-- Alice", *profile.EmailSignature)

	var stored models.UserProfile
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	assert.Nil(t, stored.CompanyName)
}

func TestUpdateProfileReplacesEmailAccounts(t *testing.T) {
	svc, db, user := setupProfiles(t)
	accounts := services.NewEmailAccountService(db, new(testhelpers.MockConnectionTester))

	_, err := accounts.Add(context.Background(), user.ID, accountInput("keep@x.com"))
	require.NoError(t, err)
	_, err = accounts.Add(context.Background(), user.ID, accountInput("drop@x.com"))
	require.NoError(t, err)

	profile, err := svc.Update(context.Background(), user, services.UpdateProfileInput{
		ReplaceAccounts: true,
		EmailAccounts: map[string]services.EmailAccountConfig{
			"keep@x.com": {Provider: "gmail", SMTPServer: "smtp.gmail.com", SMTPPort: 587, IMAPServer: "imap.gmail.com", IMAPPort: 993},
			"new@x.com":  {Provider: "custom", SMTPServer: "smtp.x.com", SMTPPort: 25, IMAPServer: "imap.x.com", IMAPPort: 143, UseTLS: utils.Pointer(false), Password: utils.Pointer("fresh")},
		},
	})
	require.NoError(t, err)

	require.Len(t, profile.EmailAccounts, 2)
	assert.NotContains(t, profile.EmailAccounts, "drop@x.com")
	assert.Equal(t, "gmail", profile.EmailAccounts["keep@x.com"].Provider)
	assert.True(t, profile.EmailAccounts["keep@x.com"].UseTLS)
	assert.True(t, profile.EmailAccounts["new@x.com"].IsActive)
	assert.False(t, profile.EmailAccounts["new@x.com"].UseTLS)

	var kept models.EmailAccount
	require.NoError(t, db.Where("user_id = ? AND email = ?", user.ID, "keep@x.com").First(&kept).Error)
	plain, err := utils.Decrypt(kept.Password)
	require.NoError(t, err)
	assert.Equal(t, "app-password", plain)
}

func TestUpdateProfileClearsEmailAccounts(t *testing.T) {
	svc, db, user := setupProfiles(t)
	accounts := services.NewEmailAccountService(db, new(testhelpers.MockConnectionTester))
	_, err := accounts.Add(context.Background(), user.ID, accountInput("smtp@x.com"))
	require.NoError(t, err)

	profile, err := svc.Update(context.Background(), user, services.UpdateProfileInput{ReplaceAccounts: true})
	require.NoError(t, err)
	assert.Empty(t, profile.EmailAccounts)

	profile, err = svc.Update(context.Background(), user, services.UpdateProfileInput{CompanyName: services.SetString("Acme")})
	require.NoError(t, err)
	assert.Empty(t, profile.EmailAccounts)
}

func TestGetUserData(t *testing.T) {
	svc, _, user := setupProfiles(t)

	data, err := svc.GetUserData(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, user.ID, data.User.ID)
	assert.Equal(t, "alice", data.Profile.Username)
}
