package store

import (
	"testing"

	"natours/internal/model"
)

const userSchema = `
fields:
  name:
    type: string
  email:
    type: string
    unique: true
  role:
    type: string
  active:
    type: boolean
    hidden: true
  photos:
    type: array
  passwordResetToken:
    type: string
  price:
    type: number
  createdAt:
    type: date
scope:
  active:
    ne: false
`

func userModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.ParseModel("users", []byte(userSchema))
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}
	return m
}
