package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

// Event names shared by both directions of the wire protocol.
const (
	EventUserOnline      = "user-online"
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventTypingStart     = "typing-start"
	EventTypingStop      = "typing-stop"
	EventChatMessage     = "chat-message"
	EventVideoCallEnded  = "video-call-ended"
	EventWebRTCOffer     = "webrtc-offer"
	EventWebRTCAnswer    = "webrtc-answer"
	EventWebRTCCandidate = "webrtc-ice-candidate"
	EventVideoCallStatus = "video-call-status"

	EventUserStatus  = "user-status"
	EventChatHistory = "chat-history"
	EventTyping      = "typing"
	EventError       = "error"
)

// Envelope is the frame format for every event: {"event": ..., "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InboundEvent is a decoded, validated event received from a connection.
type InboundEvent interface {
	// Name is the wire event name.
	Name() string
	// Actor is the user the event claims to come from.
	Actor() string
	// Room is the room the event targets, or "" for connection-level events.
	Room() string
	Validate() error
}

type UserOnline struct {
	UserID string `json:"userId"`
}

func (e *UserOnline) Name() string  { return EventUserOnline }
func (e *UserOnline) Actor() string { return e.UserID }
func (e *UserOnline) Room() string  { return "" }

func (e *UserOnline) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidEvent)
	}
	return nil
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

func (e *JoinRoom) Name() string  { return EventJoinRoom }
func (e *JoinRoom) Actor() string { return e.UserID }
func (e *JoinRoom) Room() string  { return e.RoomID }

func (e *JoinRoom) Validate() error {
	return requireRoomAndUser(e.RoomID, e.UserID)
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

func (e *LeaveRoom) Name() string  { return EventLeaveRoom }
func (e *LeaveRoom) Actor() string { return e.UserID }
func (e *LeaveRoom) Room() string  { return e.RoomID }

func (e *LeaveRoom) Validate() error {
	return requireRoomAndUser(e.RoomID, e.UserID)
}

// Typing covers both typing-start and typing-stop.
type Typing struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Start  bool   `json:"-"`
}

func (e *Typing) Name() string {
	if e.Start {
		return EventTypingStart
	}
	return EventTypingStop
}
func (e *Typing) Actor() string { return e.UserID }
func (e *Typing) Room() string  { return e.RoomID }

func (e *Typing) Validate() error {
	return requireRoomAndUser(e.RoomID, e.UserID)
}

// ChatMessageIn is a chat message as submitted by a client. ID and
// Timestamp are optional and assigned by the relay when absent.
type ChatMessageIn struct {
	ID        string      `json:"id,omitempty"`
	RoomID    string      `json:"roomId"`
	Message   string      `json:"message"`
	Sender    string      `json:"sender"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	Kind      MessageKind `json:"kind,omitempty"`
}

func (e *ChatMessageIn) Name() string  { return EventChatMessage }
func (e *ChatMessageIn) Actor() string { return e.Sender }
func (e *ChatMessageIn) Room() string  { return e.RoomID }

func (e *ChatMessageIn) Validate() error {
	if e.RoomID == "" || e.Sender == "" || e.Message == "" {
		return fmt.Errorf("%w: roomId, sender and message are required", ErrInvalidMessage)
	}
	if e.Kind != "" && !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, e.Kind)
	}
	return nil
}

// ToMessage builds the relayed ChatMessage, filling in id, timestamp and kind.
func (e *ChatMessageIn) ToMessage(now time.Time) ChatMessage {
	msg := ChatMessage{
		ID:        e.ID,
		RoomID:    e.RoomID,
		Sender:    e.Sender,
		Body:      e.Message,
		Kind:      e.Kind,
		Timestamp: now.UTC(),
	}
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if e.Timestamp != nil && !e.Timestamp.IsZero() {
		msg.Timestamp = e.Timestamp.UTC()
	}
	if msg.Kind == "" {
		msg.Kind = KindText
	}
	return msg
}

type VideoCallEnded struct {
	RoomID   string `json:"roomId"`
	Duration int    `json:"duration"`
	Sender   string `json:"sender"`
}

func (e *VideoCallEnded) Name() string  { return EventVideoCallEnded }
func (e *VideoCallEnded) Actor() string { return e.Sender }
func (e *VideoCallEnded) Room() string  { return e.RoomID }

func (e *VideoCallEnded) Validate() error {
	if err := requireRoomAndUser(e.RoomID, e.Sender); err != nil {
		return err
	}
	if e.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidEvent)
	}
	return nil
}

// WebRTCSignal is an offer, answer or ICE candidate. Payload is relayed
// verbatim; it is only decoded to check its shape.
type WebRTCSignal struct {
	Kind    string          `json:"-"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
	Sender  string          `json:"sender"`
}

func (e *WebRTCSignal) Name() string  { return e.Kind }
func (e *WebRTCSignal) Actor() string { return e.Sender }
func (e *WebRTCSignal) Room() string  { return e.RoomID }

func (e *WebRTCSignal) Validate() error {
	if err := requireRoomAndUser(e.RoomID, e.Sender); err != nil {
		return err
	}
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	}
	switch e.Kind {
	case EventWebRTCOffer:
		return checkSessionDescription(e.Payload, webrtc.SDPTypeOffer)
	case EventWebRTCAnswer:
		return checkSessionDescription(e.Payload, webrtc.SDPTypeAnswer)
	case EventWebRTCCandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(e.Payload, &cand); err != nil {
			return fmt.Errorf("%w: malformed ice candidate: %v", ErrInvalidEvent, err)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown signal %q", ErrInvalidEvent, e.Kind)
}

func checkSessionDescription(raw json.RawMessage, want webrtc.SDPType) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		return fmt.Errorf("%w: malformed session description: %v", ErrInvalidEvent, err)
	}
	if sd.Type != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidEvent, want, sd.Type)
	}
	if sd.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrInvalidEvent)
	}
	return nil
}

// VideoCallStatus reports a call state transition. Duration may accompany
// an ended status; ListingID optionally identifies what the call is about.
type VideoCallStatus struct {
	RoomID    string     `json:"roomId"`
	Status    CallStatus `json:"status"`
	Sender    string     `json:"sender"`
	Duration  *int       `json:"duration,omitempty"`
	ListingID string     `json:"listingId,omitempty"`

	// ListingTitle is filled in server-side from the catalog.
	ListingTitle string `json:"-"`
}

func (e *VideoCallStatus) Name() string  { return EventVideoCallStatus }
func (e *VideoCallStatus) Actor() string { return e.Sender }
func (e *VideoCallStatus) Room() string  { return e.RoomID }

func (e *VideoCallStatus) Validate() error {
	if err := requireRoomAndUser(e.RoomID, e.Sender); err != nil {
		return err
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: unknown call status %q", ErrInvalidEvent, e.Status)
	}
	if e.Duration != nil && *e.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidEvent)
	}
	return nil
}

func requireRoomAndUser(room, user string) error {
	if room == "" {
		return fmt.Errorf("%w: roomId is required", ErrInvalidEvent)
	}
	if user == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidEvent)
	}
	return nil
}

// DecodeInbound parses one frame into its typed event, normalizes user and
// room identifiers and validates required fields.
func DecodeInbound(frame []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	var ev InboundEvent
	switch env.Event {
	case EventUserOnline:
		ev = &UserOnline{}
	case EventJoinRoom:
		ev = &JoinRoom{}
	case EventLeaveRoom:
		ev = &LeaveRoom{}
	case EventTypingStart:
		ev = &Typing{Start: true}
	case EventTypingStop:
		ev = &Typing{}
	case EventChatMessage:
		ev = &ChatMessageIn{}
	case EventVideoCallEnded:
		ev = &VideoCallEnded{}
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate:
		ev = &WebRTCSignal{Kind: env.Event}
	case EventVideoCallStatus:
		ev = &VideoCallStatus{}
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrInvalidEvent)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, env.Event)
	}

	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrInvalidEvent, env.Event)
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		// user-online historically carries the bare user id as its data.
		var id string
		if u, ok := ev.(*UserOnline); ok && json.Unmarshal(env.Data, &id) == nil {
			u.UserID = id
		} else {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, env.Event, err)
		}
	}

	normalize(ev)
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if !ValidUserID(ev.Actor()) {
		return nil, fmt.Errorf("%w: user id %q may not contain %q", ErrInvalidEvent, ev.Actor(), RoomSeparator)
	}
	return ev, nil
}

// EventName returns the event name of a frame, or "" when it cannot tell.
func EventName(frame []byte) string {
	var env Envelope
	if json.Unmarshal(frame, &env) != nil {
		return ""
	}
	return env.Event
}

func normalize(ev InboundEvent) {
	switch e := ev.(type) {
	case *UserOnline:
		e.UserID = NormalizeUserID(e.UserID)
	case *JoinRoom:
		e.RoomID, e.UserID = NormalizeRoomID(e.RoomID), NormalizeUserID(e.UserID)
	case *LeaveRoom:
		e.RoomID, e.UserID = NormalizeRoomID(e.RoomID), NormalizeUserID(e.UserID)
	case *Typing:
		e.RoomID, e.UserID = NormalizeRoomID(e.RoomID), NormalizeUserID(e.UserID)
	case *ChatMessageIn:
		e.RoomID, e.Sender = NormalizeRoomID(e.RoomID), NormalizeUserID(e.Sender)
	case *VideoCallEnded:
		e.RoomID, e.Sender = NormalizeRoomID(e.RoomID), NormalizeUserID(e.Sender)
	case *WebRTCSignal:
		e.RoomID, e.Sender = NormalizeRoomID(e.RoomID), NormalizeUserID(e.Sender)
	case *VideoCallStatus:
		e.RoomID, e.Sender = NormalizeRoomID(e.RoomID), NormalizeUserID(e.Sender)
	}
}

// Outbound is an event queued for delivery to a connection.
type Outbound struct {
	Event string
	Data  any
}

func (o Outbound) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{o.Event, o.Data})
}

type UserStatus struct {
	UserID string         `json:"userId"`
	Status PresenceStatus `json:"status"`
}

type TypingEvent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

type SignalRelay struct {
	Payload json.RawMessage `json:"payload"`
	Sender  string          `json:"sender"`
	RoomID  string          `json:"roomId"`
}

type CallStatusEvent struct {
	Status       CallStatus `json:"status"`
	Sender       string     `json:"sender"`
	RoomID       string     `json:"roomId"`
	Duration     *int       `json:"duration,omitempty"`
	ListingTitle string     `json:"listingTitle,omitempty"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

func NewUserStatus(user string, status PresenceStatus) Outbound {
	return Outbound{Event: EventUserStatus, Data: UserStatus{UserID: user, Status: status}}
}

func NewTypingEvent(room, user string, typing bool) Outbound {
	return Outbound{Event: EventTyping, Data: TypingEvent{RoomID: room, UserID: user, Typing: typing}}
}

func NewChatMessageEvent(msg ChatMessage) Outbound {
	return Outbound{Event: EventChatMessage, Data: msg}
}

// NewChatHistoryEvent never encodes a nil slice, so receivers always get [].
func NewChatHistoryEvent(msgs []ChatMessage) Outbound {
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return Outbound{Event: EventChatHistory, Data: msgs}
}
