package chathub

import (
	"context"
	"dealchat/backend/internal/models"
	"fmt"

	"github.com/rs/zerolog/log"
)

func (m *ManagerService) setTyping(room, user string, start bool) {
	if start {
		m.typing.Start(room, user)
	} else {
		m.typing.Stop(room, user)
	}
	m.broadcast(room, models.NewTypingEvent(room, user, start), user)
}

// submit relays msg to every member of its room and queues it for
// persistence. A pending typing indicator of the sender is cleared first so
// receivers see typing=false before the message.
func (m *ManagerService) submit(msg models.ChatMessage) error {
	if msg.RoomID == "" || msg.Sender == "" || msg.Body == "" {
		return fmt.Errorf("%w: roomId, sender and message are required", models.ErrInvalidMessage)
	}
	if msg.ID == "" {
		msg.ID = models.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now().UTC()
	}
	if msg.Kind == "" {
		msg.Kind = models.KindText
	}

	if m.typing.Stop(msg.RoomID, msg.Sender) {
		m.broadcast(msg.RoomID, models.NewTypingEvent(msg.RoomID, msg.Sender, false), msg.Sender)
	}

	if m.rooms.MemberCount(msg.RoomID) == 0 {
		m.Stats.RoomEmpty.Add(1)
		log.Debug().Str("module", "hub").Str("room_id", msg.RoomID).Str("message_id", msg.ID).Msg("room empty, message only persisted")
	} else {
		m.broadcast(msg.RoomID, models.NewChatMessageEvent(msg), "")
	}
	m.Stats.MessagesRelayed.Add(1)

	if m.persister != nil {
		m.persister.Enqueue(msg)
	}
	return nil
}

// Submit relays a message produced outside any connection, such as a
// system notice.
func (m *ManagerService) Submit(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	msg.RoomID = models.NormalizeRoomID(msg.RoomID)
	msg.Sender = models.NormalizeUserID(msg.Sender)
	if msg.ID == "" {
		msg.ID = models.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now().UTC()
	}
	if msg.Kind == "" {
		msg.Kind = models.KindSystem
	}
	var submitErr error
	if err := m.do(ctx, func() { submitErr = m.submit(msg) }); err != nil {
		return msg, err
	}
	return msg, submitErr
}
