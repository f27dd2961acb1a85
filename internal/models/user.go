package models

import (
	"strings"
	"time"
)

// User is the credential record held by the credential store.
// Email is the identity and is stored normalized.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string // display name
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeIdentity returns the case-insensitive key used for both
// credential records and attempt state.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
