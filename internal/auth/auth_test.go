package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	id := uuid.New()

	tok, err := svc.Generate(id, "yamada@example.jp", RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, id, claims.EmployeeID)
	assert.Equal(t, "yamada@example.jp", claims.Email)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, tok.ID, claims.ID)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	other := NewJWTService("other-secret", time.Hour)

	tok, err := other.Generate(uuid.New(), "a@example.jp", RoleStaff)
	require.NoError(t, err)
	_, err = svc.ValidateToken(tok.Value)
	assert.Error(t, err)

	expired := &Claims{
		EmployeeID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "daicho",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestPasswords(t *testing.T) {
	assert.Error(t, ValidatePassword("short"))
	assert.Error(t, ValidatePassword(strings.Repeat("a", 73)))
	assert.NoError(t, ValidatePassword("パスワード長め長め"))

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("wrong horse", hash))
}

func TestCan(t *testing.T) {
	assert.True(t, Can(RoleAdmin, ActionDelete, ResourceInvoice))
	assert.True(t, Can(RoleAdmin, ActionView, ResourceEmployee))

	assert.True(t, Can(RoleStaff, ActionCreate, ResourceInvoice))
	assert.False(t, Can(RoleStaff, ActionDelete, ResourceInvoice))
	assert.False(t, Can(RoleStaff, ActionDelete, ResourceTemplate))
	assert.False(t, Can(RoleStaff, ActionView, ResourceEmployee))
	assert.False(t, Can(RoleStaff, ActionEdit, ResourceAttendance))
	assert.True(t, Can(RoleStaff, ActionCreate, ResourceAttendance))

	assert.False(t, Can("guest", ActionView, ResourceProject))
}

func TestRedisRevoker_NilClientDisabled(t *testing.T) {
	r := NewRedisRevoker(nil)
	require.NoError(t, r.Revoke(context.Background(), "jti", time.Now().Add(time.Hour)))
	revoked, err := r.IsRevoked(context.Background(), "jti")
	require.NoError(t, err)
	assert.False(t, revoked)
}
