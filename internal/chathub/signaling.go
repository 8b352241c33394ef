package chathub

import (
	"context"
	"dealchat/backend/internal/models"

	"github.com/rs/zerolog/log"
)

// callState is the hub's view of the call in one room. recorded guards
// against writing the end-of-call artifact twice when both the ended status
// and the video-call-ended event arrive.
type callState struct {
	session  models.CallSession
	recorded bool
}

func (m *ManagerService) callFor(room string) *callState {
	st, ok := m.calls[room]
	if !ok {
		st = &callState{session: models.CallSession{RoomID: room, Status: models.CallIdle, UpdatedAt: m.now()}}
		m.calls[room] = st
	}
	return st
}

// relaySignal forwards an offer, answer or candidate verbatim to the room
// minus the sender.
func (m *ManagerService) relaySignal(e *models.WebRTCSignal) {
	out := models.Outbound{
		Event: e.Kind,
		Data:  models.SignalRelay{Payload: e.Payload, Sender: e.Sender, RoomID: e.RoomID},
	}
	if n := m.broadcast(e.RoomID, out, e.Sender); n == 0 {
		log.Debug().Str("module", "signal").Str("room_id", e.RoomID).Str("event", e.Kind).Msg("no peer connected for signal")
	}
	m.Stats.SignalsRelayed.Add(1)
}

// callStatus passes a status transition through to the whole room. The hub
// does not reject illegal transitions; endpoints do.
func (m *ManagerService) callStatus(e *models.VideoCallStatus) {
	st := m.callFor(e.RoomID)
	if !models.CanTransition(st.session.Status, e.Status) {
		log.Debug().Str("module", "signal").Str("room_id", e.RoomID).
			Str("from", string(st.session.Status)).Str("to", string(e.Status)).
			Msg("call status outside the usual flow, relaying anyway")
	}
	if e.Status == models.CallCalling {
		st.recorded = false
	}
	st.session.Apply(e.Status, e.Sender, m.now())

	m.broadcast(e.RoomID, models.Outbound{
		Event: models.EventVideoCallStatus,
		Data: models.CallStatusEvent{
			Status:       e.Status,
			Sender:       e.Sender,
			RoomID:       e.RoomID,
			Duration:     e.Duration,
			ListingTitle: e.ListingTitle,
		},
	}, "")
	m.Stats.SignalsRelayed.Add(1)

	switch e.Status {
	case models.CallEnded:
		seconds := st.session.TalkSeconds(m.now())
		if e.Duration != nil {
			seconds = *e.Duration
		}
		m.recordCallEnd(st, e.RoomID, e.Sender, seconds)
	case models.CallIdle:
		delete(m.calls, e.RoomID)
	}
}

func (m *ManagerService) callEnded(e *models.VideoCallEnded) {
	st := m.callFor(e.RoomID)
	if st.recorded && st.session.Status == models.CallEnded {
		log.Debug().Str("module", "signal").Str("room_id", e.RoomID).Msg("call end already recorded")
		return
	}
	st.session.Apply(models.CallEnded, e.Sender, m.now())
	m.recordCallEnd(st, e.RoomID, e.Sender, e.Duration)
}

// recordCallEnd turns the end of a call into a permanent call-event message.
func (m *ManagerService) recordCallEnd(st *callState, room, sender string, seconds int) {
	if st.recorded {
		return
	}
	st.recorded = true

	duration := seconds
	msg := models.ChatMessage{
		ID:           models.NewMessageID(),
		RoomID:       room,
		Sender:       sender,
		Body:         models.CallEndedText(seconds),
		Kind:         models.KindCallEvent,
		Timestamp:    m.now().UTC(),
		CallDuration: &duration,
	}
	if err := m.submit(msg); err != nil {
		log.Error().Str("module", "signal").Str("room_id", room).Err(err).Msg("call artifact not recorded")
		return
	}
	m.Stats.CallsRecorded.Add(1)
}

// CallSession returns the current call session of a room; a room without a
// call reports idle.
func (m *ManagerService) CallSession(ctx context.Context, room string) (models.CallSession, error) {
	room = models.NormalizeRoomID(room)
	var s models.CallSession
	err := m.do(ctx, func() {
		if st, ok := m.calls[room]; ok {
			s = st.session
			return
		}
		s = models.CallSession{RoomID: room, Status: models.CallIdle}
	})
	return s, err
}
