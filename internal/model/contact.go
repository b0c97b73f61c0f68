// internal/model/contact.go
package model

import (
	"strings"
	"time"
)

type ContactStatus string

const (
	ContactPending         ContactStatus = "pending"
	ContactVerifying       ContactStatus = "verifying"
	ContactVerified        ContactStatus = "verified"
	ContactVerifiedGeneric ContactStatus = "verified_generic"
	ContactInvalid         ContactStatus = "invalid"
	ContactBounced         ContactStatus = "bounced"
	ContactUnsubscribed    ContactStatus = "unsubscribed"
)

type Contact struct {
	ID              int64         `db:"id" json:"id"`
	Email           string        `db:"email" json:"email"`
	FirstName       string        `db:"first_name" json:"first_name"`
	LastName        string        `db:"last_name" json:"last_name"`
	Company         string        `db:"company" json:"company"`
	Source          string        `db:"source" json:"source"`
	Status          ContactStatus `db:"status" json:"status"`
	Segments        []string      `db:"segments" json:"segments,omitempty"`
	EngagementScore float64       `db:"engagement_score" json:"engagement_score"`
	LastSent        *time.Time    `db:"last_sent" json:"last_sent,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// Sendable reports whether the contact may receive campaign email right now.
// Status is re-checked at send time, not trusted from enqueue time.
func (c *Contact) Sendable() bool {
	if c.Email == "" {
		return false
	}
	return c.Status == ContactVerified || c.Status == ContactVerifiedGeneric
}

// NormalizeEmail lowercases and trims an address so uniqueness checks are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the part after '@', or "" for malformed addresses.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
