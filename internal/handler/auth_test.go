package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"natours/internal/model"
)

func TestSignupAndLogin(t *testing.T) {
	e := newEnv(t)

	res := e.do(t, http.MethodPost, "/api/v1/users/signup", map[string]any{
		"name":            "Laura Wilson",
		"email":           "Laura@Example.com",
		"password":        "pass1234",
		"passwordConfirm": "pass1234",
		"role":            "admin",
	}, "")
	if res.code != http.StatusCreated {
		t.Fatalf("signup: %d %s", res.code, res.raw)
	}
	if tok, _ := res.body["token"].(string); tok == "" {
		t.Fatalf("no token in signup response")
	}
	user := res.doc(t)
	if user["email"] != "laura@example.com" || user["role"] != "user" {
		t.Fatalf("unexpected user: %v", user)
	}
	for _, hidden := range []string{"password", "passwordConfirm", "active"} {
		if _, ok := user[hidden]; ok {
			t.Fatalf("%s must not be sent", hidden)
		}
	}
	if !strings.Contains(res.header.Get("Set-Cookie"), "jwt=") || !strings.Contains(res.header.Get("Set-Cookie"), "HttpOnly") {
		t.Fatalf("token cookie missing: %q", res.header.Get("Set-Cookie"))
	}
	if msg := e.mail.last(); msg.To != "laura@example.com" || msg.Subject != "Welcome to the Natours Family!" {
		t.Fatalf("welcome mail not sent: %+v", msg)
	}

	res = e.do(t, http.MethodPost, "/api/v1/users/login", map[string]any{"email": "laura@example.com", "password": "pass1234"}, "")
	if res.code != http.StatusOK {
		t.Fatalf("login: %d %s", res.code, res.raw)
	}

	cases := []struct {
		body map[string]any
		code int
		msg  string
	}{
		{map[string]any{"email": "laura@example.com"}, http.StatusBadRequest, "Please provide email and password!"},
		{map[string]any{"email": "laura@example.com", "password": "wrong-pass"}, http.StatusUnauthorized, "Incorrect email or password"},
		{map[string]any{"email": "nobody@example.com", "password": "pass1234"}, http.StatusUnauthorized, "Incorrect email or password"},
	}
	for _, c := range cases {
		res := e.do(t, http.MethodPost, "/api/v1/users/login", c.body, "")
		if res.code != c.code || res.message() != c.msg {
			t.Fatalf("login %v: got %d %q, want %d %q", c.body, res.code, res.message(), c.code, c.msg)
		}
	}
}

func TestSignupValidation(t *testing.T) {
	e := newEnv(t)
	e.user(t, "taken", "user")

	cases := []struct {
		body map[string]any
		msg  string
	}{
		{
			map[string]any{"name": "A", "email": "a@example.com", "password": "pass1234", "passwordConfirm": "pass4321"},
			"Invalid input data. Passwords are not the same!",
		},
		{
			map[string]any{"name": "A", "email": "not-an-email", "password": "short", "passwordConfirm": "short"},
			"Invalid input data. Please provide a valid email. A user password must have more or equal than 8 characters",
		},
		{
			map[string]any{"name": "A", "email": "a@example.com", "password": "pass1234"},
			"Invalid input data. Please confirm your password",
		},
		{
			map[string]any{"name": "A", "email": "taken@example.com", "password": "pass1234", "passwordConfirm": "pass1234"},
			"Duplicate field value: taken@example.com. Please use another value!",
		},
	}
	for _, c := range cases {
		res := e.do(t, http.MethodPost, "/api/v1/users/signup", c.body, "")
		if res.code != http.StatusBadRequest || res.message() != c.msg {
			t.Fatalf("signup %v: got %d %q, want %q", c.body, res.code, res.message(), c.msg)
		}
	}
}

func TestProtect(t *testing.T) {
	e := newEnv(t)
	_, token := e.user(t, "jonas", "user")

	res := e.do(t, http.MethodGet, "/api/v1/users/me", nil, "")
	if res.code != http.StatusUnauthorized || res.message() != "You are not logged in! Please log in to get access." {
		t.Fatalf("no token: %d %s", res.code, res.raw)
	}

	res = e.do(t, http.MethodGet, "/api/v1/users/me", nil, token+"x")
	if res.code != http.StatusUnauthorized || res.message() != "Invalid token. Please log in again!" {
		t.Fatalf("bad token: %d %s", res.code, res.raw)
	}

	res = e.do(t, http.MethodGet, "/api/v1/users/me", nil, token)
	if res.code != http.StatusOK || res.doc(t)["name"] != "jonas" {
		t.Fatalf("me: %d %s", res.code, res.raw)
	}

	// cookie works as well as the header
	req := httpRequest(t, http.MethodGet, "/api/v1/users/me")
	req.AddCookie(&http.Cookie{Name: "jwt", Value: token})
	if rec := serve(e, req); rec.Code != http.StatusOK {
		t.Fatalf("cookie auth: %d %s", rec.Code, rec.Body.String())
	}

	res = e.do(t, http.MethodPost, "/api/v1/tours", map[string]any{}, token)
	if res.code != http.StatusForbidden || res.message() != "You do not have permission to perform this action" {
		t.Fatalf("restrictTo: %d %s", res.code, res.raw)
	}
}

func TestProtectRejectsDeletedUser(t *testing.T) {
	e := newEnv(t)
	_, token := e.user(t, "jonas", "user")

	res := e.do(t, http.MethodDelete, "/api/v1/users/deleteMe", nil, token)
	if res.code != http.StatusNoContent {
		t.Fatalf("deleteMe: %d %s", res.code, res.raw)
	}
	res = e.do(t, http.MethodGet, "/api/v1/users/me", nil, token)
	if res.code != http.StatusUnauthorized || res.message() != "The user belonging to this token does no longer exist." {
		t.Fatalf("inactive user: %d %s", res.code, res.raw)
	}
	res = e.do(t, http.MethodPost, "/api/v1/users/login", map[string]any{"email": "jonas@example.com", "password": "pass1234"}, "")
	if res.code != http.StatusUnauthorized {
		t.Fatalf("inactive login: %d %s", res.code, res.raw)
	}
}

func TestUpdatePassword(t *testing.T) {
	e := newEnv(t)
	_, token := e.user(t, "jonas", "user")

	res := e.do(t, http.MethodPatch, "/api/v1/users/updateMyPassword", map[string]any{
		"passwordCurrent": "wrong-pass", "password": "newpass123", "passwordConfirm": "newpass123",
	}, token)
	if res.code != http.StatusUnauthorized || res.message() != "Your current password is wrong." {
		t.Fatalf("wrong current: %d %s", res.code, res.raw)
	}

	res = e.do(t, http.MethodPatch, "/api/v1/users/updateMyPassword", map[string]any{
		"passwordCurrent": "pass1234", "password": "newpass123", "passwordConfirm": "newpass123",
	}, token)
	if res.code != http.StatusOK {
		t.Fatalf("update: %d %s", res.code, res.raw)
	}
	fresh, _ := res.body["token"].(string)

	res = e.do(t, http.MethodGet, "/api/v1/users/me", nil, fresh)
	if res.code != http.StatusOK {
		t.Fatalf("fresh token rejected: %d %s", res.code, res.raw)
	}
	res = e.do(t, http.MethodPost, "/api/v1/users/login", map[string]any{"email": "jonas@example.com", "password": "newpass123"}, "")
	if res.code != http.StatusOK {
		t.Fatalf("login with new password: %d %s", res.code, res.raw)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	e := newEnv(t)
	e.user(t, "jonas", "user")

	res := e.do(t, http.MethodPost, "/api/v1/users/forgotPassword", map[string]any{"email": "nobody@example.com"}, "")
	if res.code != http.StatusNotFound || res.message() != "There is no user with this email address." {
		t.Fatalf("unknown email: %d %s", res.code, res.raw)
	}

	res = e.do(t, http.MethodPost, "/api/v1/users/forgotPassword", map[string]any{"email": "jonas@example.com"}, "")
	if res.code != http.StatusOK || res.message() != "Token sent to email!" {
		t.Fatalf("forgot: %d %s", res.code, res.raw)
	}
	msg := e.mail.last()
	i := strings.Index(msg.Text, "/resetPassword/")
	if i < 0 {
		t.Fatalf("reset link missing: %q", msg.Text)
	}
	token := strings.Fields(msg.Text[i+len("/resetPassword/"):])[0]

	res = e.do(t, http.MethodPatch, "/api/v1/users/resetPassword/"+token, map[string]any{
		"password": "newpass123", "passwordConfirm": "different1",
	}, "")
	if res.code != http.StatusBadRequest || res.message() != "Invalid input data. Passwords are not the same!" {
		t.Fatalf("mismatch: %d %s", res.code, res.raw)
	}

	res = e.do(t, http.MethodPatch, "/api/v1/users/resetPassword/"+token, map[string]any{
		"password": "newpass123", "passwordConfirm": "newpass123",
	}, "")
	if res.code != http.StatusOK {
		t.Fatalf("reset: %d %s", res.code, res.raw)
	}

	res = e.do(t, http.MethodPatch, "/api/v1/users/resetPassword/"+token, map[string]any{
		"password": "again1234", "passwordConfirm": "again1234",
	}, "")
	if res.code != http.StatusBadRequest || res.message() != "Token is invalid or has expired" {
		t.Fatalf("reused token: %d %s", res.code, res.raw)
	}
}

func TestForgotPasswordMailFailure(t *testing.T) {
	e := newEnv(t)
	user, _ := e.user(t, "jonas", "user")
	e.mail.err = errors.New("smtp down")

	res := e.do(t, http.MethodPost, "/api/v1/users/forgotPassword", map[string]any{"email": "jonas@example.com"}, "")
	if res.code != http.StatusInternalServerError || res.message() != "There was an error sending the email. Try again later!" {
		t.Fatalf("mail failure: %d %s", res.code, res.raw)
	}
	stored, err := e.store.Collection(e.users).FindByID(context.Background(), user[model.IDField].(string))
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if _, ok := stored["passwordResetToken"]; ok {
		t.Fatalf("reset token must be cleared: %v", stored["passwordResetToken"])
	}
}

func TestUpdateMe(t *testing.T) {
	e := newEnv(t)
	_, token := e.user(t, "jonas", "user")

	res := e.do(t, http.MethodPatch, "/api/v1/users/updateMe", map[string]any{"password": "x"}, token)
	if res.code != http.StatusBadRequest || res.message() != "This route is not for password updates. Please use /updateMyPassword." {
		t.Fatalf("password via updateMe: %d %s", res.code, res.raw)
	}

	res = e.do(t, http.MethodPatch, "/api/v1/users/updateMe", map[string]any{"name": "Jonas S", "role": "admin"}, token)
	if res.code != http.StatusOK {
		t.Fatalf("updateMe: %d %s", res.code, res.raw)
	}
	user := res.doc(t)
	if user["name"] != "Jonas S" || user["role"] != "user" {
		t.Fatalf("only name and email may change: %v", user)
	}
}

func TestCreateUserRoute(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodPost, "/api/v1/users", map[string]any{"name": "x"}, "")
	if res.code != http.StatusInternalServerError || res.message() != "This route is not defined! Please use /signup instead" {
		t.Fatalf("unexpected response %d: %s", res.code, res.raw)
	}
	if res.body["status"] != "error" {
		t.Fatalf("5xx must carry status error: %v", res.body["status"])
	}
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodGet, "/api/v1/users/logout", nil, "")
	if res.code != http.StatusOK || !strings.Contains(res.header.Get("Set-Cookie"), "jwt=loggedout") {
		t.Fatalf("logout: %d %q", res.code, res.header.Get("Set-Cookie"))
	}
}
