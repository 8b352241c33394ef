package models

import (
	"sort"
	"strings"
)

// RoomSeparator joins the two participant identifiers of a room.
const RoomSeparator = "_"

// NormalizeUserID returns the canonical form of a user identifier.
// Identifiers are opaque strings compared case-insensitively.
func NormalizeUserID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// NormalizeRoomID returns the canonical form of a room identifier.
func NormalizeRoomID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidUserID reports whether id can take part in a room. The separator is
// not allowed in user ids, otherwise a room id would name more than two
// possible pairs.
func ValidUserID(id string) bool {
	id = NormalizeUserID(id)
	return id != "" && !strings.Contains(id, RoomSeparator)
}

// RoomID derives the room shared by two counterparties. Both sides compute
// the same value independently of argument order and case.
func RoomID(a, b string) string {
	ids := []string{NormalizeUserID(a), NormalizeUserID(b)}
	sort.Strings(ids)
	return strings.Join(ids, RoomSeparator)
}

// OtherParticipant returns the counterpart of user in roomID.
// ok is false when user is not one of the room's participants.
func OtherParticipant(roomID, user string) (string, bool) {
	roomID = NormalizeRoomID(roomID)
	user = NormalizeUserID(user)
	if user == "" {
		return "", false
	}
	if rest, found := strings.CutPrefix(roomID, user+RoomSeparator); found && rest != "" {
		if RoomID(user, rest) == roomID {
			return rest, true
		}
	}
	if rest, found := strings.CutSuffix(roomID, RoomSeparator+user); found && rest != "" {
		if RoomID(user, rest) == roomID {
			return rest, true
		}
	}
	return "", false
}

// RoomIncludes reports whether user is one of the two participants of roomID.
func RoomIncludes(roomID, user string) bool {
	_, ok := OtherParticipant(roomID, user)
	return ok
}
