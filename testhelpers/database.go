package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailconnect/config"
	"mailconnect/models"
)

const (
	TestJWTSecret     = "test-jwt-secret"
	TestEncryptionKey = "0123456789abcdef0123456789abcdef"
)

// SetupTestDatabase returns a migrated in-memory SQLite database. The pool
// is limited to one connection so every query sees the same database.
func SetupTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, config.MigrateDB(db))
	return db
}

// SetupTestConfig installs a config suitable for tests and restores the
// previous one when the test ends.
func SetupTestConfig(t *testing.T) {
	t.Helper()

	previous := config.AppConfig
	config.AppConfig = config.Config{
		Environment:     "test",
		JWTSecret:       TestJWTSecret,
		EncryptionKey:   TestEncryptionKey,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		MailDialTimeout: time.Second,
	}
	t.Cleanup(func() {
		config.AppConfig = previous
	})
}

// MockConnectionTester stands in for the SMTP/IMAP dialer.
type MockConnectionTester struct {
	mock.Mock
}

func (m *MockConnectionTester) TestSMTP(ctx context.Context, account models.EmailAccount, password string) error {
	args := m.Called(ctx, account, password)
	return args.Error(0)
}

func (m *MockConnectionTester) TestIMAP(ctx context.Context, account models.EmailAccount, password string) error {
	args := m.Called(ctx, account, password)
	return args.Error(0)
}
