package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier(t *testing.T, clk clock.Clock) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(config.Config{
		AuthJWTSecret: "test-secret",
		AuthJWTIssuer: "mystictxt-test",
	}, clk)
	require.NoError(t, err)
	return v
}

func TestIssueAndVerify(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	v := newVerifier(t, clk)

	token, err := v.Issue(Actor{ID: "ada@example.com", Role: RoleAdvisor}, time.Hour)
	require.NoError(t, err)

	actor, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", actor.ID)
	assert.Equal(t, RoleAdvisor, actor.Role)
	assert.True(t, actor.IsStaff())
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	v := newVerifier(t, clk)

	token, err := v.Issue(Actor{ID: "ada@example.com", Role: RoleCustomer}, time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = v.Verify(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsOtherSigningMethodsAndIssuers(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	v := newVerifier(t, clk)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "mallory",
			Issuer:    "mystictxt-test",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewTokenVerifier(config.Config{AuthJWTSecret: "test-secret", AuthJWTIssuer: "someone-else"}, clk)
	require.NoError(t, err)
	foreign, err := other.Issue(Actor{ID: "ada@example.com", Role: RoleCustomer}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsSystemRole(t *testing.T) {
	v := newVerifier(t, clock.NewFakeClock(time.Now()))
	token, err := v.Issue(SystemActor(), time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingSecretInProduction(t *testing.T) {
	_, err := NewTokenVerifier(config.Config{Environment: "production"}, nil)
	assert.ErrorIs(t, err, ErrSecretNotDefined)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
