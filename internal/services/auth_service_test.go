package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vigil-labs/vigil/backend/internal/config"
	"github.com/vigil-labs/vigil/backend/internal/models"
)

func seedUser(t *testing.T, db *gorm.DB, email, password, role string, enabled bool) *models.User {
	user := &models.User{Email: email, Name: "Test User", Role: role, Enabled: enabled}
	require.NoError(t, user.SetPassword(password))
	require.NoError(t, db.Create(user).Error)
	if !enabled {
		// The column default is true, so GORM drops the zero value on insert;
		// persist the disabled state explicitly.
		require.NoError(t, db.Model(user).Update("enabled", false).Error)
	}
	return user
}

func TestAuthService_Login(t *testing.T) {
	db := setupTestDB(t)
	service := NewAuthService(db, config.Config{JWTSecret: "test-secret"})
	seedUser(t, db, "admin@example.com", "password123", "admin", true)

	// Successful login
	token, user, err := service.Login("admin@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.NotNil(t, user.LastLogin)

	// Wrong password
	_, _, err = service.Login("admin@example.com", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown user gets the same generic error
	_, _, err = service.Login("ghost@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Lockout(t *testing.T) {
	db := setupTestDB(t)
	service := NewAuthService(db, config.Config{JWTSecret: "test-secret"})
	seedUser(t, db, "admin@example.com", "password123", "admin", true)

	for i := 0; i < 5; i++ {
		_, _, err := service.Login("admin@example.com", "wrongpassword")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	var user models.User
	require.NoError(t, db.Where("email = ?", "admin@example.com").First(&user).Error)
	require.NotNil(t, user.LockedUntil)
	assert.True(t, user.LockedUntil.After(time.Now()))

	// Correct password while locked still fails.
	_, _, err := service.Login("admin@example.com", "password123")
	assert.ErrorIs(t, err, ErrAccountLocked)

	// Expired lock clears on the next successful login.
	past := time.Now().Add(-time.Minute)
	user.LockedUntil = &past
	require.NoError(t, db.Save(&user).Error)

	_, loggedIn, err := service.Login("admin@example.com", "password123")
	require.NoError(t, err)
	assert.Nil(t, loggedIn.LockedUntil)
	assert.Equal(t, 0, loggedIn.FailedLoginAttempts)
}

func TestAuthService_DisabledAccount(t *testing.T) {
	db := setupTestDB(t)
	service := NewAuthService(db, config.Config{JWTSecret: "test-secret"})
	seedUser(t, db, "former@example.com", "password123", "viewer", false)

	_, _, err := service.Login("former@example.com", "password123")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAuthService_VerifyToken(t *testing.T) {
	db := setupTestDB(t)
	service := NewAuthService(db, config.Config{JWTSecret: "test-secret"})
	seeded := seedUser(t, db, "admin@example.com", "password123", "admin", true)

	token, _, err := service.Login("admin@example.com", "password123")
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "admin@example.com", claims.Subject)

	_, err = service.VerifyToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Token signed with a different secret is rejected.
	other := NewAuthService(db, config.Config{JWTSecret: "other-secret"})
	foreign, _, err := other.Login("admin@example.com", "password123")
	require.NoError(t, err)
	_, err = service.VerifyToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
