package models

// Stream event types pushed over live subscriptions.
const (
	EventGroups   = "groups"
	EventGroup    = "group"
	EventUsers    = "users"
	EventSnapshot = "snapshot"
	EventMessage  = "message"
	EventRead     = "read"
)

// StreamEvent is the envelope written to websocket subscribers.
type StreamEvent struct {
	Type      string    `json:"type"`
	Groups    []Group   `json:"groups,omitempty"`
	Group     *Group    `json:"group,omitempty"`
	Users     []User    `json:"users,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
}
