package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
)

var (
	ErrMissingToken     = errors.New("missing_token")
	ErrInvalidToken     = errors.New("invalid_token")
	ErrSecretNotDefined = errors.New("auth_secret_not_configured")
)

// Claims are the bearer token claims. Subject is the customer or staff id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates and mints HS256 bearer tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

func NewTokenVerifier(cfg config.Config, clk clock.Clock) (*TokenVerifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		if cfg.IsProduction() {
			return nil, ErrSecretNotDefined
		}
		secret = "mystictxt-dev-secret"
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &TokenVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.AuthJWTIssuer),
		clock:  clk,
	}, nil
}

// Verify parses a raw bearer token and returns the actor it identifies.
func (v *TokenVerifier) Verify(raw string) (Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Actor{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	actor := Actor{ID: strings.TrimSpace(claims.Subject), Role: claims.Role}
	if actor.Role == "" {
		actor.Role = RoleCustomer
	}
	if !actor.Valid() || actor.Role == RoleSystem {
		return Actor{}, ErrInvalidToken
	}
	return actor, nil
}

// Issue mints a token for local development and tests.
func (v *TokenVerifier) Issue(actor Actor, ttl time.Duration) (string, error) {
	if !actor.Valid() {
		return "", ErrInvalidToken
	}
	now := v.clock.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
