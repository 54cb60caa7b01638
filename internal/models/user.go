package models

import "time"

// User is the profile of an authenticated identity. It is global, not scoped to a group.
type User struct {
	ID          string    `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	DisplayName string    `db:"display_name" json:"display_name"`
	AvatarURL   string    `db:"avatar_url" json:"avatar_url,omitempty"`
	Online      bool      `db:"online" json:"online"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
