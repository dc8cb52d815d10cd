package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nimbuslabs/identity-system/internal/core/domain"
)

// tokenClaims embeds the registered claim set plus the user identity. The jti
// is a random uuid, so two tokens minted for the same user in the same second
// are still distinct.
type tokenClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256-signed access and refresh tokens.
// Access and refresh tokens use distinct secrets; verification pins the
// signing algorithm and applies a configurable leeway (zero by default).
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	leeway        time.Duration
}

// TokenCodecConfig carries the signing material and lifetimes for both key
// classes.
type TokenCodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

func NewTokenCodec(cfg TokenCodecConfig) (*TokenCodec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token codec: both signing secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token codec: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("token codec: negative leeway")
	}
	return &TokenCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		leeway:        cfg.Leeway,
	}, nil
}

// AccessTTL reports the configured access-token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *TokenCodec) IssueAccessToken(userID string) (string, error) {
	return c.sign(userID, c.accessSecret, c.accessTTL)
}

func (c *TokenCodec) IssueRefreshToken(userID string) (string, error) {
	return c.sign(userID, c.refreshSecret, c.refreshTTL)
}

func (c *TokenCodec) VerifyAccessToken(token string) (string, error) {
	return c.verify(token, c.accessSecret)
}

func (c *TokenCodec) VerifyRefreshToken(token string) (string, error) {
	return c.verify(token, c.refreshSecret)
}

func (c *TokenCodec) sign(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (c *TokenCodec) verify(token string, secret []byte) (string, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	}, jwt.WithLeeway(c.leeway))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", domain.ErrTokenExpired
	case err != nil, parsed == nil, !parsed.Valid:
		return "", domain.ErrTokenInvalid
	}
	if claims.UserID == "" {
		return "", domain.ErrTokenInvalid
	}
	return claims.UserID, nil
}
