package chathub

// replayGuard remembers the most recent client-supplied message ids per
// room so a resent message is not fanned out twice.
type replayGuard struct {
	size  int
	rooms map[string]*idWindow
}

type idWindow struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newReplayGuard(size int) *replayGuard {
	if size <= 0 {
		size = 256
	}
	return &replayGuard{size: size, rooms: make(map[string]*idWindow)}
}

// Seen records id for room and reports whether it was already recorded.
func (g *replayGuard) Seen(room, id string) bool {
	w, ok := g.rooms[room]
	if !ok {
		w = &idWindow{ids: make(map[string]struct{}, g.size), ring: make([]string, g.size)}
		g.rooms[room] = w
	}
	if _, dup := w.ids[id]; dup {
		return true
	}
	if old := w.ring[w.next]; old != "" {
		delete(w.ids, old)
	}
	w.ring[w.next] = id
	w.ids[id] = struct{}{}
	w.next = (w.next + 1) % g.size
	return false
}

// Forget drops the window of a room nobody is connected to anymore.
func (g *replayGuard) Forget(room string) {
	delete(g.rooms, room)
}
