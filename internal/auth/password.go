package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"natours/internal/model"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor. Tests lower it.
var PasswordCost = 12

// ResetTokenTTL is how long a password reset token stays valid.
const ResetTokenTTL = 10 * time.Minute

func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plain matches the stored hash.
func CheckPassword(hash, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}

// NewResetToken returns a random token for the user and the digest that is
// stored in its place.
func NewResetToken() (plain, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("reset token: %w", err)
	}
	plain = hex.EncodeToString(buf)
	return plain, HashResetToken(plain), nil
}

func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// ChangedPasswordAfter reports whether user changed the password after a
// token issued at iat. Second precision, like the token itself.
func ChangedPasswordAfter(user model.Document, iat time.Time) bool {
	changed, ok := user["passwordChangedAt"].(time.Time)
	if !ok {
		return false
	}
	return changed.Unix() > iat.Unix()
}
