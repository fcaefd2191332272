package domain

import (
	"strings"
	"time"
)

type User struct {
	UserID        string     `json:"id" dynamodbav:"user_id"`
	Email         string     `json:"email" dynamodbav:"email"`
	Name          string     `json:"name" dynamodbav:"name"`
	PasswordHash  string     `json:"-" dynamodbav:"password_hash,omitempty"`
	GoogleSub     string     `json:"-" dynamodbav:"google_sub,omitempty"`
	EmailVerified bool       `json:"email_verified" dynamodbav:"email_verified"`
	CreatedAt     time.Time  `json:"created" dynamodbav:"created_at"`
	LastLoginAt   *time.Time `json:"last_login,omitempty" dynamodbav:"last_login_at,omitempty"`
}

// HasPassword reports whether the account can sign in with email and password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// NormalizeEmail trims and lower-cases an address. Emails are compared and
// stored only in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
