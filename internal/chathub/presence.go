package chathub

import (
	"context"
	"dealchat/backend/internal/models"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// join adds the connection to room, announces the joiner, tells the joiner
// about the other party, sends the history and schedules one re-check.
func (m *ManagerService) join(c Client, room, user string) {
	conn := c.GetConnID()
	m.registry.MarkOnline(user, conn, m.now())
	m.registry.TrackRoom(user, room)
	m.rooms.Join(room, conn)

	// the joiner gets its own status too
	m.broadcast(room, models.NewUserStatus(user, models.StatusOnline), "")

	if other, ok := m.otherParty(room, user); ok {
		status := models.StatusOffline
		if m.registry.IsOnline(other) {
			status = models.StatusOnline
		}
		m.deliver(c, models.NewUserStatus(other, status))
	}

	if m.dropping(c) {
		return
	}
	m.sendHistory(c, room)
	m.scheduleRecheck(room, user)

	log.Debug().Str("module", "hub").Str("room_id", room).Str("user_id", user).Str("conn_id", conn).Msg("joined room")
}

// leave removes one connection from one room. Presence is unchanged.
func (m *ManagerService) leave(c Client, room, user string) {
	conn := c.GetConnID()
	if !m.rooms.Has(room, conn) {
		return
	}
	if m.rooms.Leave(room, conn) {
		m.roomVacated(room)
	}
	if !m.userInRoom(room, user) && m.typing.Stop(room, user) {
		m.broadcast(room, models.NewTypingEvent(room, user, false), user)
	}
}

// otherParty finds the counterpart of user in room, first among the room's
// connections and then from the room identifier.
func (m *ManagerService) otherParty(room, user string) (string, bool) {
	for _, conn := range m.rooms.Members(room) {
		if u := m.bindings[conn]; u != "" && u != user {
			return u, true
		}
	}
	return models.OtherParticipant(room, user)
}

func (m *ManagerService) userInRoom(room, user string) bool {
	for _, conn := range m.rooms.Members(room) {
		if m.bindings[conn] == user {
			return true
		}
	}
	return false
}

// sendHistory loads the room history off the hub goroutine and sends it to
// the joining connection only. A store failure yields an empty history.
func (m *ManagerService) sendHistory(c Client, room string) {
	if m.history == nil {
		m.deliver(c, models.NewChatHistoryEvent(nil))
		return
	}

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.config.HistoryTimeout)
		defer cancel()

		msgs, err := m.history.CachedHistory(ctx, room)
		if err != nil {
			log.Warn().Str("module", "hub").Str("room_id", room).Err(err).Msg("history unavailable, sending empty history")
			msgs = nil
		}
		if err := c.Send(models.NewChatHistoryEvent(msgs)); errors.Is(err, ErrBackpressure) {
			m.Unregister(c)
		}
	}()
}

// scheduleRecheck covers two parties joining at nearly the same time: after
// the delay the other party's online status is broadcast again if present.
func (m *ManagerService) scheduleRecheck(room, user string) {
	if m.config.RecheckDelay <= 0 {
		return
	}
	time.AfterFunc(m.config.RecheckDelay, func() {
		select {
		case m.recheckCh <- recheck{room: room, user: user}:
		case <-m.done:
		}
	})
}

func (m *ManagerService) handleRecheck(r recheck) {
	other, ok := m.otherParty(r.room, r.user)
	if !ok || !m.registry.IsOnline(other) {
		return
	}
	m.broadcast(r.room, models.NewUserStatus(other, models.StatusOnline), "")
}
