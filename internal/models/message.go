package models

import (
	"sort"
	"strings"
	"time"
)

// Message is an append-only entry in a group's message log.
// CreatedAt is assigned by the server; nil means the write has not resolved yet.
type Message struct {
	ID                string     `db:"id" json:"id"`
	GroupID           string     `db:"group_id" json:"group_id"`
	Text              string     `db:"text" json:"text"`
	SenderID          string     `db:"sender_id" json:"sender_id"`
	SenderEmail       string     `db:"sender_email" json:"sender_email"`
	SenderDisplayName string     `db:"sender_display_name" json:"sender_display_name"`
	SenderAvatarURL   string     `db:"sender_avatar_url" json:"sender_avatar_url,omitempty"`
	AttachmentURL     string     `db:"attachment_url" json:"attachment_url,omitempty"`
	CreatedAt         *time.Time `db:"created_at" json:"created_at"`
	ReadBy            []string   `db:"-" json:"read_by"`
}

// IsReadBy reports whether userID has acknowledged the message.
func (m Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ValidateMessage trims both fields and rejects a message that carries neither.
func ValidateMessage(text, attachmentURL string) (string, string, error) {
	text = strings.TrimSpace(text)
	attachmentURL = strings.TrimSpace(attachmentURL)
	if text == "" && attachmentURL == "" {
		return "", "", ErrEmptyMessage
	}
	return text, attachmentURL, nil
}

// MessageLess orders by server timestamp ascending. Unresolved timestamps sort
// after resolved ones; ties fall back to the id.
func MessageLess(a, b Message) bool {
	switch {
	case a.CreatedAt == nil && b.CreatedAt == nil:
		return a.ID < b.ID
	case a.CreatedAt == nil:
		return false
	case b.CreatedAt == nil:
		return true
	case a.CreatedAt.Equal(*b.CreatedAt):
		return a.ID < b.ID
	default:
		return a.CreatedAt.Before(*b.CreatedAt)
	}
}

// SortMessages sorts msgs in place using MessageLess.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return MessageLess(msgs[i], msgs[j]) })
}
