package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"natours/internal/apperr"
	"natours/internal/auth"
	"natours/internal/logger"
	"natours/internal/mail"
	"natours/internal/model"
	"natours/internal/query"
	"natours/internal/store"

	"github.com/go-chi/chi/v5"
)

const tokenCookie = "jwt"

// Auth serves signup, login and password management, and guards routes.
type Auth struct {
	Store         store.Store
	Users         *model.Model
	Issuer        *auth.Issuer
	Mailer        mail.Mailer
	CookieExpires time.Duration
	SecureCookie  bool
}

func (a *Auth) users() store.Collection {
	return a.Store.Collection(a.Users)
}

// Signup creates an account with role user and logs it in.
func (a *Auth) Signup(w http.ResponseWriter, r *http.Request) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	input := model.Document{}
	for _, k := range []string{"name", "email", "photo", "password"} {
		if v, ok := body[k]; ok {
			input[k] = v
		}
	}

	doc, err := a.Users.Prepare(input, model.Stamp())
	err = checkConfirm(body, err)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(stringField(doc, "password"))
	if err != nil {
		return err
	}
	doc["password"] = hash

	user, err := a.users().Insert(r.Context(), doc)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/me", baseURL(r))
	if err := a.Mailer.Send(r.Context(), mail.Welcome(user, url)); err != nil {
		logger.Warn("welcome_mail_failed", map[string]any{"user": user[model.IDField], "error": err})
	}
	return a.sendToken(w, user, http.StatusCreated)
}

// Login checks the credentials and issues a token.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(stringField(body, "email")))
	password := stringField(body, "password")
	if email == "" || password == "" {
		return apperr.BadRequest("Please provide email and password!")
	}

	user, err := a.users().FindOne(r.Context(), query.Filter{"email": {query.Eq(email)}})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if user == nil || !auth.CheckPassword(stringField(user, "password"), password) {
		return apperr.Unauthorized("Incorrect email or password")
	}
	return a.sendToken(w, user, http.StatusOK)
}

// Logout overwrites the token cookie with a short-lived placeholder.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "loggedout",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
	})
	return writeJSON(w, http.StatusOK, envelope{"status": "success"})
}

// Protect requires a valid token for a user that still exists and has not
// changed its password since the token was issued.
func (a *Auth) Protect(r *http.Request) (*http.Request, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, apperr.Unauthorized("You are not logged in! Please log in to get access.")
	}
	claims, err := a.Issuer.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := a.users().FindByID(r.Context(), claims.Subject)
	if err != nil {
		var invalidID *store.InvalidIDError
		if errors.Is(err, store.ErrNotFound) || errors.As(err, &invalidID) {
			return nil, apperr.Unauthorized("The user belonging to this token does no longer exist.")
		}
		return nil, err
	}
	if auth.ChangedPasswordAfter(user, claims.IssuedAtTime()) {
		return nil, apperr.Unauthorized("User recently changed password! Please log in again.")
	}
	return r.WithContext(auth.WithUser(r.Context(), user)), nil
}

// RestrictTo lets through only users whose role is one of roles. It must
// run after Protect.
func RestrictTo(roles ...string) Middleware {
	return func(r *http.Request) (*http.Request, error) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok || !contains(roles, stringField(user, "role")) {
			return nil, apperr.Forbidden("You do not have permission to perform this action")
		}
		return r, nil
	}
}

// ForgotPassword mails a one-time reset link valid for auth.ResetTokenTTL.
func (a *Auth) ForgotPassword(w http.ResponseWriter, r *http.Request) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(stringField(body, "email")))
	user, err := a.users().FindOne(r.Context(), query.Filter{"email": {query.Eq(email)}})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("There is no user with this email address.")
		}
		return err
	}
	id := stringField(user, model.IDField)

	plain, digest, err := auth.NewResetToken()
	if err != nil {
		return err
	}
	if _, err := a.users().UpdateByID(r.Context(), id, model.Document{
		"passwordResetToken":   digest,
		"passwordResetExpires": model.Stamp().Add(auth.ResetTokenTTL),
	}); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/users/resetPassword/%s", baseURL(r), plain)
	if err := a.Mailer.Send(r.Context(), mail.PasswordReset(user, url)); err != nil {
		if _, cerr := a.users().UpdateByID(r.Context(), id, model.Document{
			"passwordResetToken":   nil,
			"passwordResetExpires": nil,
		}); cerr != nil {
			logger.Error("reset_token_clear_failed", map[string]any{"user": id, "error": cerr})
		}
		return apperr.Wrap(err, "There was an error sending the email. Try again later!", http.StatusInternalServerError)
	}

	return writeJSON(w, http.StatusOK, envelope{"status": "success", "message": "Token sent to email!"})
}

// ResetPassword sets a new password for the holder of a live reset token.
func (a *Auth) ResetPassword(w http.ResponseWriter, r *http.Request) error {
	now := model.Stamp()
	user, err := a.users().FindOne(r.Context(), query.Filter{
		"passwordResetToken":   {query.Eq(auth.HashResetToken(chi.URLParam(r, "token")))},
		"passwordResetExpires": {query.Gt(now)},
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.BadRequest("Token is invalid or has expired")
		}
		return err
	}

	body, err := readBody(r)
	if err != nil {
		return err
	}
	patch, err := a.passwordPatch(body, now)
	if err != nil {
		return err
	}
	patch["passwordResetToken"] = nil
	patch["passwordResetExpires"] = nil

	updated, err := a.users().UpdateByID(r.Context(), stringField(user, model.IDField), patch)
	if err != nil {
		return err
	}
	return a.sendToken(w, updated, http.StatusOK)
}

// UpdatePassword changes the logged-in user's password after checking the
// current one.
func (a *Auth) UpdatePassword(w http.ResponseWriter, r *http.Request) error {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		return apperr.Unauthorized("You are not logged in! Please log in to get access.")
	}
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(stringField(current, "password"), stringField(body, "passwordCurrent")) {
		return apperr.Unauthorized("Your current password is wrong.")
	}

	patch, err := a.passwordPatch(body, model.Stamp())
	if err != nil {
		return err
	}
	updated, err := a.users().UpdateByID(r.Context(), stringField(current, model.IDField), patch)
	if err != nil {
		return err
	}
	return a.sendToken(w, updated, http.StatusOK)
}

// passwordPatch validates password and passwordConfirm from body and
// returns the update storing the new hash. passwordChangedAt is set one
// second back so a token issued right after still validates.
func (a *Auth) passwordPatch(body model.Document, now time.Time) (model.Document, error) {
	patch, err := a.Users.PreparePatch(model.Document{"password": body["password"]})
	err = checkConfirm(body, err)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(stringField(patch, "password"))
	if err != nil {
		return nil, err
	}
	return model.Document{
		"password":          hash,
		"passwordChangedAt": now.Add(-time.Second),
	}, nil
}

// checkConfirm merges the passwordConfirm check into a validation result.
func checkConfirm(body model.Document, err error) error {
	var msg string
	switch confirm, ok := body["passwordConfirm"].(string); {
	case !ok || confirm == "":
		msg = "Please confirm your password"
	case confirm != stringField(body, "password"):
		msg = "Passwords are not the same!"
	default:
		return err
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		if _, exists := verr.Errors["passwordConfirm"]; !exists {
			verr.Errors["passwordConfirm"] = msg
		}
		return err
	}
	if err != nil {
		return err
	}
	return &model.ValidationError{Errors: map[string]string{"passwordConfirm": msg}}
}

func (a *Auth) sendToken(w http.ResponseWriter, user model.Document, status int) error {
	token, err := a.Issuer.Sign(stringField(user, model.IDField))
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.CookieExpires),
		HttpOnly: true,
		Secure:   a.SecureCookie,
	})
	return writeJSON(w, status, envelope{
		"status": "success",
		"token":  token,
		"data":   envelope{"user": a.Users.Public(user)},
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "loggedout" {
		return c.Value
	}
	return ""
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
