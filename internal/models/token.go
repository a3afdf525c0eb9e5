package models

import "time"

// TokenRecord is one ledger row per issued token. Rows are never physically
// removed: logout flips Deleted, the sweep (or a validation that observes an
// overdue record) flips Expired. Both flags are one-way.
type TokenRecord struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// ClaimSet is the decoded content of a signed token. It is a closed struct
// rather than a claim map so field access is checked at compile time.
type ClaimSet struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Verified  bool      `json:"verified"`
	Roles     []string  `json:"roles,omitempty"`
	Issuer    string    `json:"issuer"`
	Audience  string    `json:"audience"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
