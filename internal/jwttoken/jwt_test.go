package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "visitid/pkg/domain-errors"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewService("test-signing-key", "visitid", "api")

	token, err := svc.GenerateAssertion(42, "alice123", "USER", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAssertion(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "alice123", claims.UserHandle)
	assert.Equal(t, "USER", claims.Role)
	assert.Equal(t, "visitid", claims.Issuer)
	assert.Contains(t, claims.Audience, "api")
}

func TestValidateExpired(t *testing.T) {
	svc := NewService("test-signing-key", "visitid", "api")

	token, err := svc.GenerateAssertion(42, "alice123", "USER", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateAssertion(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateWrongKey(t *testing.T) {
	svc := NewService("test-signing-key", "visitid", "api")
	other := NewService("another-key", "visitid", "api")

	token, err := svc.GenerateAssertion(42, "alice123", "USER", time.Minute)
	require.NoError(t, err)

	_, err = other.ValidateAssertion(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateGarbage(t *testing.T) {
	svc := NewService("test-signing-key", "visitid", "api")

	_, err := svc.ValidateAssertion("not.a.token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
