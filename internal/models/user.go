package models

import "time"

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Verified     bool
	Roles        []string
	CreatedAt    time.Time
}
