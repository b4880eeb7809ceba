package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestParseExtractsIdentity(t *testing.T) {
	raw := signedToken(t, Claims{
		UserID: "u-123",
		Role:   RoleSchoolTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "u-123", claims.UserID)
	assert.Equal(t, RoleSchoolTeacher, claims.Role)
}

func TestParseFallsBackToSubject(t *testing.T) {
	raw := signedToken(t, Claims{
		Role:             "student",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-sub"},
	})

	claims, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "u-sub", claims.UserID)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-token")
	assert.Error(t, err)
}

func TestCanMonitor(t *testing.T) {
	assert.True(t, CanMonitor(RoleAdmin))
	assert.True(t, CanMonitor(RoleOwner))
	assert.True(t, CanMonitor(RoleSchoolTeacher))
	assert.False(t, CanMonitor("student"))
	assert.False(t, CanMonitor(""))
}
