package models

import "errors"

var (
	// ErrInvalidMessage marks a chat message missing its room, sender or body.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrInvalidEvent marks a malformed inbound event.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrIdentityMismatch marks an event naming a user other than the one
	// bound to the connection.
	ErrIdentityMismatch = errors.New("identity mismatch")
	// ErrNotParticipant marks a room-scoped event from a user outside the room.
	ErrNotParticipant = errors.New("user is not a room participant")
	// ErrStoreUnavailable marks a failed or unreachable durable store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrRateLimited marks an event dropped because its connection sent too many.
	ErrRateLimited = errors.New("rate limited")
)

// ErrorCode maps an error to the short code sent in outbound error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "invalid_event"
	}
}
