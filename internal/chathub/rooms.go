package chathub

import "sort"

// RoomDirectory maps rooms to member connections and back. Owned by the hub
// goroutine.
type RoomDirectory struct {
	rooms  map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		rooms:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

func (d *RoomDirectory) Join(room, conn string) {
	members, ok := d.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		d.rooms[room] = members
	}
	members[conn] = struct{}{}

	joined, ok := d.byConn[conn]
	if !ok {
		joined = make(map[string]struct{})
		d.byConn[conn] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes conn from room and reports whether the room is now empty.
func (d *RoomDirectory) Leave(room, conn string) bool {
	if members, ok := d.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(d.rooms, room)
		}
	}
	if joined, ok := d.byConn[conn]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(d.byConn, conn)
		}
	}
	_, stillUsed := d.rooms[room]
	return !stillUsed
}

// LeaveAll removes conn from every room and returns those rooms, sorted.
func (d *RoomDirectory) LeaveAll(conn string) []string {
	rooms := d.RoomsOf(conn)
	for _, room := range rooms {
		d.Leave(room, conn)
	}
	return rooms
}

// Members returns the connections in room, sorted for deterministic fan-out.
func (d *RoomDirectory) Members(room string) []string {
	members := d.rooms[room]
	out := make([]string, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	sort.Strings(out)
	return out
}

func (d *RoomDirectory) MemberCount(room string) int {
	return len(d.rooms[room])
}

func (d *RoomDirectory) Has(room, conn string) bool {
	_, ok := d.rooms[room][conn]
	return ok
}

func (d *RoomDirectory) RoomsOf(conn string) []string {
	joined := d.byConn[conn]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of non-empty rooms.
func (d *RoomDirectory) Len() int {
	return len(d.rooms)
}
