package auth

import (
	"errors"
	"testing"
	"time"

	"natours/internal/config"

	"github.com/golang-jwt/jwt/v4"
)

func testIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer(config.JWTConfig{
		Secret:    "super-secret-and-long-enough-for-tests",
		Issuer:    "natours",
		Audience:  "natours-api",
		ExpiresIn: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	i.clockFunc = func() time.Time { return now }
	return i
}

func TestSignAndValidate(t *testing.T) {
	now := time.Unix(1730000000, 0)
	i := testIssuer(t, now)

	token, err := i.Sign("user-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	claims, err := i.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected sub: %v", claims.Subject)
	}
	if !claims.IssuedAtTime().Equal(now) {
		t.Fatalf("unexpected iat: %v", claims.IssuedAtTime())
	}
}

func TestValidateTokenExpired(t *testing.T) {
	now := time.Unix(1730000000, 0)
	token, err := testIssuer(t, now).Sign("user-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	later := testIssuer(t, now.Add(2*time.Hour))
	if _, err := later.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	now := time.Unix(1730000000, 0)
	i := testIssuer(t, now)

	other, err := NewIssuer(config.JWTConfig{Secret: "another-secret", Issuer: "natours", Audience: "natours-api", ExpiresIn: time.Hour})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	other.clockFunc = i.clockFunc
	forged, _ := other.Sign("admin")

	if _, err := i.Validate(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if _, err := i.Validate("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid format, got %v", err)
	}
}

func TestValidateRejectsWrongAlgorithm(t *testing.T) {
	now := time.Unix(1730000000, 0)
	i := testIssuer(t, now)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    "natours",
		Audience:  jwt.ClaimStrings{"natours-api"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := i.Validate(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none must be rejected, got %v", err)
	}
}

func TestValidateClaims(t *testing.T) {
	now := time.Unix(1730000000, 0)
	i := testIssuer(t, now)
	i.cfg.ClockSkewSec = 30

	base := func() *Claims {
		return &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			Issuer:    "natours",
			Audience:  jwt.ClaimStrings{"natours-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}}
	}

	cases := []struct {
		name   string
		mutate func(c *Claims)
		ok     bool
	}{
		{"valid", func(c *Claims) {}, true},
		{"expired within skew", func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(now.Add(-10 * time.Second)) }, true},
		{"expired beyond skew", func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute)) }, false},
		{"wrong issuer", func(c *Claims) { c.Issuer = "someone" }, false},
		{"wrong audience", func(c *Claims) { c.Audience = jwt.ClaimStrings{"other"} }, false},
		{"issued in future", func(c *Claims) { c.IssuedAt = jwt.NewNumericDate(now.Add(time.Hour)) }, false},
		{"no subject", func(c *Claims) { c.Subject = "" }, false},
		{"no exp", func(c *Claims) { c.ExpiresAt = nil }, false},
	}
	for _, tc := range cases {
		c := base()
		tc.mutate(c)
		err := i.validateClaims(c)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(config.JWTConfig{ExpiresIn: time.Hour}); err == nil {
		t.Fatalf("expected error without secret")
	}
}
