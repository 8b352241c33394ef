package chathub

import (
	"dealchat/backend/internal/models"
	"sort"
	"time"
)

type presenceEntry struct {
	conns        map[string]struct{}
	rooms        map[string]struct{}
	lastActivity time.Time
}

// Registry maps users to their live connections. It is the source of truth
// for presence. Registry is owned by the hub goroutine and is not safe for
// concurrent use.
type Registry struct {
	users map[string]*presenceEntry
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*presenceEntry)}
}

func (r *Registry) entry(user string) *presenceEntry {
	e, ok := r.users[user]
	if !ok {
		e = &presenceEntry{
			conns: make(map[string]struct{}),
			rooms: make(map[string]struct{}),
		}
		r.users[user] = e
	}
	return e
}

// MarkOnline adds conn to the user's connection set and reports whether the
// user was offline before.
func (r *Registry) MarkOnline(user, conn string, now time.Time) bool {
	e := r.entry(user)
	wasOffline := len(e.conns) == 0
	e.conns[conn] = struct{}{}
	e.lastActivity = now
	return wasOffline
}

// RemoveConnection drops conn from the user's set. When the set becomes
// empty it reports wentOffline and returns every room the user was known
// in, each exactly once.
func (r *Registry) RemoveConnection(user, conn string) (rooms []string, wentOffline bool) {
	e, ok := r.users[user]
	if !ok {
		return nil, false
	}
	if _, ok := e.conns[conn]; !ok {
		return nil, false
	}
	delete(e.conns, conn)
	if len(e.conns) > 0 {
		return nil, false
	}

	rooms = make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	e.rooms = make(map[string]struct{})
	return rooms, true
}

func (r *Registry) IsOnline(user string) bool {
	e, ok := r.users[user]
	return ok && len(e.conns) > 0
}

// TrackRoom records that an online user joined room.
func (r *Registry) TrackRoom(user, room string) {
	r.entry(user).rooms[room] = struct{}{}
}

// Touch updates the last-activity timestamp of a known user.
func (r *Registry) Touch(user string, now time.Time) {
	if e, ok := r.users[user]; ok {
		e.lastActivity = now
	}
}

func (r *Registry) ConnectionCount(user string) int {
	if e, ok := r.users[user]; ok {
		return len(e.conns)
	}
	return 0
}

// OnlineUsers returns the number of users with at least one connection.
func (r *Registry) OnlineUsers() int {
	n := 0
	for _, e := range r.users {
		if len(e.conns) > 0 {
			n++
		}
	}
	return n
}

func (r *Registry) Snapshot(user string) models.UserPresence {
	p := models.UserPresence{UserID: user, Rooms: []string{}}
	e, ok := r.users[user]
	if !ok {
		return p
	}
	p.Online = len(e.conns) > 0
	p.Connections = len(e.conns)
	p.LastActivity = e.lastActivity
	for room := range e.rooms {
		p.Rooms = append(p.Rooms, room)
	}
	sort.Strings(p.Rooms)
	return p
}
