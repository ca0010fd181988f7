// Package mail sends account emails: the welcome message and password
// reset links.
package mail

import (
	"context"
	"fmt"
	"strings"

	"natours/internal/logger"
	"natours/internal/model"
)

type Message struct {
	To      string
	Subject string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Welcome greets a new user and links to their account page.
func Welcome(user model.Document, url string) Message {
	return Message{
		To:      email(user),
		Subject: "Welcome to the Natours Family!",
		Text: fmt.Sprintf("Hi %s,\n\nWelcome to Natours, we're glad to have you!\n"+
			"Upload your user photo and start exploring tours: %s\n", firstName(user), url),
	}
}

// PasswordReset carries the reset link, valid for ten minutes.
func PasswordReset(user model.Document, url string) Message {
	return Message{
		To:      email(user),
		Subject: "Your password reset token (valid for only 10 minutes)",
		Text: fmt.Sprintf("Hi %s,\n\nForgot your password? Submit a PATCH request with your new "+
			"password and passwordConfirm to: %s\n\nIf you didn't forget your password, please ignore this email.\n",
			firstName(user), url),
	}
}

func email(user model.Document) string {
	s, _ := user["email"].(string)
	return s
}

func firstName(user model.Document) string {
	name, _ := user["name"].(string)
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return "there"
}

// LogMailer writes messages to the log instead of delivering them. It is
// used when no SMTP host is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	logger.Info("mail_logged", map[string]any{
		"to":      msg.To,
		"subject": msg.Subject,
		"text":    msg.Text,
	})
	return nil
}
