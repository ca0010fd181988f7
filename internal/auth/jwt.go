package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"natours/internal/config"
	"natours/internal/model"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

type contextKey string

const userContextKey contextKey = "auth_user"

// Claims carried by a session token. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs session tokens and validates them on the way back in.
type Issuer struct {
	cfg       config.JWTConfig
	key       []byte
	clockFunc func() time.Time
}

func NewIssuer(cfg config.JWTConfig) (*Issuer, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.ExpiresIn <= 0 {
		return nil, errors.New("jwt lifetime must be positive")
	}
	return &Issuer{
		cfg:       cfg,
		key:       []byte(cfg.Secret),
		clockFunc: time.Now,
	}, nil
}

// Sign issues a token for userID valid for the configured lifetime.
func (i *Issuer) Sign(userID string) (string, error) {
	now := i.clockFunc()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    i.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.ExpiresIn)),
	}}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return token, nil
}

// Validate checks the signature and then the time, issuer and audience
// claims against the issuer's clock with the configured skew.
func (i *Issuer) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := i.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) validateClaims(c *Claims) error {
	now := i.clockFunc().Unix()
	skew := i.cfg.ClockSkewSec
	if skew < 0 {
		skew = 0
	}

	if c.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	if i.cfg.Issuer != "" && c.Issuer != i.cfg.Issuer {
		return fmt.Errorf("%w: issuer", ErrInvalidToken)
	}
	if i.cfg.Audience != "" && !c.VerifyAudience(i.cfg.Audience, true) {
		return fmt.Errorf("%w: audience", ErrInvalidToken)
	}

	if c.ExpiresAt == nil {
		return fmt.Errorf("%w: exp is required", ErrInvalidToken)
	}
	if now > c.ExpiresAt.Unix()+skew {
		return ErrTokenExpired
	}
	if c.NotBefore != nil && now+skew < c.NotBefore.Unix() {
		return fmt.Errorf("%w: not valid yet", ErrInvalidToken)
	}
	if c.IssuedAt == nil {
		return fmt.Errorf("%w: iat is required", ErrInvalidToken)
	}
	if c.IssuedAt.Unix() > now+skew {
		return fmt.Errorf("%w: issued in the future", ErrInvalidToken)
	}
	return nil
}

// IssuedAtTime returns the iat claim, zero when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func WithUser(ctx context.Context, user model.Document) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) (model.Document, bool) {
	user, ok := ctx.Value(userContextKey).(model.Document)
	return user, ok
}
