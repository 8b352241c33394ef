package models

import "time"

// PresenceStatus is the value carried by user-status events.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// UserPresence is a point-in-time snapshot of a user's connection state.
type UserPresence struct {
	UserID       string    `json:"userId"`
	Online       bool      `json:"online"`
	Connections  int       `json:"connections"`
	LastActivity time.Time `json:"lastActivity,omitempty"`
	Rooms        []string  `json:"rooms"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	RoomID       string      `json:"roomId"`
	Counterpart  string      `json:"counterpart"`
	LastMessage  ChatMessage `json:"lastMessage"`
	MessageCount int64       `json:"messageCount"`
}
