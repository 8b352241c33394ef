package chathub

import "sort"

// TypingTracker holds the set of users currently typing per room. It never
// expires entries itself; clients send typing-stop after their idle timeout.
type TypingTracker struct {
	rooms map[string]map[string]struct{}
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{rooms: make(map[string]map[string]struct{})}
}

// Start reports whether the user was not already typing in room.
func (t *TypingTracker) Start(room, user string) bool {
	users, ok := t.rooms[room]
	if !ok {
		users = make(map[string]struct{})
		t.rooms[room] = users
	}
	_, already := users[user]
	users[user] = struct{}{}
	return !already
}

// Stop reports whether the user was typing in room.
func (t *TypingTracker) Stop(room, user string) bool {
	users, ok := t.rooms[room]
	if !ok {
		return false
	}
	_, was := users[user]
	delete(users, user)
	if len(users) == 0 {
		delete(t.rooms, room)
	}
	return was
}

func (t *TypingTracker) IsTyping(room, user string) bool {
	_, ok := t.rooms[room][user]
	return ok
}

// Typing returns the users typing in room, sorted.
func (t *TypingTracker) Typing(room string) []string {
	out := make([]string, 0, len(t.rooms[room]))
	for user := range t.rooms[room] {
		out = append(out, user)
	}
	sort.Strings(out)
	return out
}

// ClearUser stops the user in every room and returns those rooms, sorted.
func (t *TypingTracker) ClearUser(user string) []string {
	var rooms []string
	for room, users := range t.rooms {
		if _, ok := users[user]; ok {
			rooms = append(rooms, room)
		}
	}
	sort.Strings(rooms)
	for _, room := range rooms {
		t.Stop(room, user)
	}
	return rooms
}
