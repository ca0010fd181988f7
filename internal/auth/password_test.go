package auth

import (
	"testing"
	"time"

	"natours/internal/model"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	defer func() { PasswordCost = 12 }()

	hash, err := HashPassword("pass1234")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "pass1234" {
		t.Fatalf("password stored in clear")
	}
	if !CheckPassword(hash, "pass1234") {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword(hash, "pass12345") {
		t.Fatalf("wrong password accepted")
	}
}

func TestResetToken(t *testing.T) {
	plain, digest, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken: %v", err)
	}
	if len(plain) != 64 || plain == digest {
		t.Fatalf("unexpected token %q / %q", plain, digest)
	}
	if HashResetToken(plain) != digest {
		t.Fatalf("digest does not match token")
	}
	other, _, _ := NewResetToken()
	if other == plain {
		t.Fatalf("tokens must be random")
	}
}

func TestChangedPasswordAfter(t *testing.T) {
	iat := time.Unix(1730000000, 0)
	cases := []struct {
		user model.Document
		want bool
	}{
		{model.Document{}, false},
		{model.Document{"passwordChangedAt": iat.Add(-time.Hour)}, false},
		{model.Document{"passwordChangedAt": iat.Add(500 * time.Millisecond)}, false},
		{model.Document{"passwordChangedAt": iat.Add(time.Minute)}, true},
	}
	for _, c := range cases {
		if got := ChangedPasswordAfter(c.user, iat); got != c.want {
			t.Fatalf("ChangedPasswordAfter(%v) = %v, want %v", c.user, got, c.want)
		}
	}
}
