package models

import (
	"strings"
	"time"
)

// Group represents a community chat group.
type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Members   []string  `db:"-" json:"members"`
	Typing    []string  `db:"-" json:"typing"`
}

// HasMember reports whether userID is in the member set.
func (g Group) HasMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// MatchesQuery does a case-insensitive substring match on the group name.
func (g Group) MatchesQuery(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(g.Name), strings.ToLower(q))
}

// ValidateGroupName trims the name and rejects it when empty.
func ValidateGroupName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrEmptyGroupName
	}
	return trimmed, nil
}
