package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medvault-api/internal/model"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", "medvault", time.Hour)

	token, err := svc.GenerateAccessToken(&model.User{Email: "d@x.com", Role: model.RoleDoctor})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "d@x.com", claims.Email())
	assert.Equal(t, model.RoleDoctor, claims.Role)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := NewJWTService("secret", "medvault", time.Hour)

	other, err := NewJWTService("other", "medvault", time.Hour).
		GenerateAccessToken(&model.User{Email: "p@x.com", Role: model.RolePatient})
	require.NoError(t, err)

	expired, err := svc.(*jwtService).sign(&Claims{
		Role: model.RolePatient,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "p@x.com",
			Issuer:    "medvault",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	require.NoError(t, err)

	badRole, err := svc.(*jwtService).sign(&Claims{
		Role:             "NURSE",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "n@x.com", Issuer: "medvault"},
	})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":   "not-a-token",
		"wrong key": other,
		"expired":   expired,
		"bad role":  badRole,
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
