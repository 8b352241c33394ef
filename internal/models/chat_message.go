package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageKind classifies a ChatMessage.
type MessageKind string

const (
	KindText      MessageKind = "text"
	KindCallEvent MessageKind = "call-event"
	KindSystem    MessageKind = "system"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindCallEvent, KindSystem:
		return true
	}
	return false
}

// ChatMessage is a single immutable message exchanged in a room.
// It is both the wire representation and the durable record.
type ChatMessage struct {
	// ID is time-ordered (UUIDv7) when assigned by the relay.
	ID string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	// RoomID is the pair-derived room identifier.
	RoomID string `gorm:"type:varchar(255);not null;index:idx_room_sent,priority:1" json:"roomId"`
	// Sender is the lowercased identifier of the author.
	Sender string `gorm:"type:varchar(255);not null;index" json:"sender"`
	// Body is the free-text content.
	Body string `gorm:"type:text;not null" json:"message"`
	Kind MessageKind `gorm:"type:varchar(16);not null" json:"kind"`
	// Timestamp orders messages; receivers sort by it, not by arrival.
	Timestamp time.Time `gorm:"column:sent_at;not null;index:idx_room_sent,priority:2" json:"timestamp"`
	// CallDuration is set on call-event messages, in seconds.
	CallDuration *int `gorm:"column:call_duration" json:"callDuration,omitempty"`
}

// NewMessageID returns a unique, roughly time-ordered message identifier.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// BeforeCreate fills in the identifier and timestamp for records created
// outside the relay (admin tooling, fixtures).
func (m *ChatMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = NewMessageID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.Kind == "" {
		m.Kind = KindText
	}
	return
}

// SortByTimestamp orders messages by timestamp, breaking ties by id so the
// result is stable across reloads.
func SortByTimestamp(msgs []ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// DedupeAndSort drops repeated ids (first copy wins) and sorts the rest.
func DedupeAndSort(msgs []ChatMessage) []ChatMessage {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	SortByTimestamp(out)
	return out
}

// FormatCallDuration renders a duration in seconds as "2m 5s".
func FormatCallDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

// CallEndedText is the permanent conversation text recorded when a call ends.
func CallEndedText(seconds int) string {
	return "Video call ended - Duration: " + FormatCallDuration(seconds)
}
