package auth

import (
	"testing"

	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupAuthTest(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email, password, role string) *domain.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	u := &domain.User{
		Fullname:     "Test User",
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestLoginUser_Success(t *testing.T) {
	db := setupAuthTest(t)
	seeded := seedUser(t, db, "ops@fleetfi.io", "s3cret-pass", "admin")

	u, err := LoginUser(db, LoginInput{Email: "ops@fleetfi.io", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, seeded.UserID, u.UserID)
	assert.Equal(t, "admin", u.Role)
}

func TestLoginUser_MissingFields(t *testing.T) {
	db := setupAuthTest(t)

	_, err := LoginUser(db, LoginInput{Email: "", Password: "pass"})
	assert.ErrorIs(t, err, ErrEmailPasswordRequired)

	_, err = LoginUser(db, LoginInput{Email: "ops@fleetfi.io", Password: ""})
	assert.ErrorIs(t, err, ErrEmailPasswordRequired)
}

func TestLoginUser_MalformedEmail(t *testing.T) {
	db := setupAuthTest(t)

	_, err := LoginUser(db, LoginInput{Email: "not-an-email", Password: "pass"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestLoginUser_UnknownEmail(t *testing.T) {
	db := setupAuthTest(t)
	seedUser(t, db, "ops@fleetfi.io", "s3cret-pass", "investor")

	_, err := LoginUser(db, LoginInput{Email: "other@fleetfi.io", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestLoginUser_WrongPassword(t *testing.T) {
	db := setupAuthTest(t)
	seedUser(t, db, "ops@fleetfi.io", "s3cret-pass", "investor")

	_, err := LoginUser(db, LoginInput{Email: "ops@fleetfi.io", Password: "wrong"})
	assert.ErrorIs(t, err, ErrIncorrectPassword)
}

func TestVerifyUser(t *testing.T) {
	_, err := VerifyUser(nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = VerifyUser("not-a-map")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = VerifyUser(map[string]interface{}{"fullname": "No ID"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	shape, err := VerifyUser(map[string]interface{}{
		"user_id":  "u-1",
		"fullname": "Test User",
		"email":    "ops@fleetfi.io",
		"role":     "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "u-1", shape.UserID)
	assert.Equal(t, "admin", shape.Role)
}
