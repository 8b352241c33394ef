// Package client is a Go client for the relay's websocket protocol. It keeps
// a Conversation per joined room and implements the endpoint-side rules the
// relay leaves to clients: the typing idle timeout, duplicate suppression
// and call status transitions.
package client

import (
	"context"
	"dealchat/backend/internal/config"
	"dealchat/backend/internal/models"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	// ErrIllegalTransition is returned when a call status does not follow
	// the current one.
	ErrIllegalTransition = errors.New("illegal call status transition")
	// ErrNotJoined is returned for operations on a room that was not joined.
	ErrNotJoined = errors.New("room not joined")
	ErrClosed    = errors.New("client closed")
)

const writeWait = 10 * time.Second

type Options struct {
	// URL of the relay websocket endpoint, e.g. ws://localhost:8080/ws.
	URL   string
	Token string
	Lang  string
	// TypingIdle is how long after the last keystroke typing-stop is sent.
	TypingIdle time.Duration
	Dialer     *websocket.Dialer
}

// Update tells the application that something arrived. Room is empty for
// events that are not tied to one room.
type Update struct {
	Event string
	Room  string
	Data  json.RawMessage
	// Err is set for error events.
	Err *models.ErrorEvent
}

type Client struct {
	User string

	opts    Options
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	rooms  map[string]*Conversation
	typing map[string]*typingTimer

	updates   chan Update
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay as user.
func Dial(ctx context.Context, user string, opts Options) (*Client, error) {
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = config.TypingIdleTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	if opts.Token != "" {
		q.Set("token", opts.Token)
	}
	if opts.Lang != "" {
		q.Set("lang", opts.Lang)
	}
	u.RawQuery = q.Encode()

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		User:    models.NormalizeUserID(user),
		opts:    opts,
		conn:    conn,
		rooms:   make(map[string]*Conversation),
		typing:  make(map[string]*typingTimer),
		updates: make(chan Update, 256),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Updates delivers server events after they were applied to the views. It
// is closed when the connection ends. Updates are dropped when nobody reads.
func (c *Client) Updates() <-chan Update { return c.updates }

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		c.mu.Lock()
		for room, t := range c.typing {
			t.t.Stop()
			delete(c.typing, room)
		}
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Conversation returns the view of a joined room, or nil.
func (c *Client) Conversation(room string) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[models.NormalizeRoomID(room)]
}

// Announce sends user-online.
func (c *Client) Announce() error {
	return c.emit(models.EventUserOnline, models.UserOnline{UserID: c.User})
}

// Join enters the conversation with peer and returns its view.
func (c *Client) Join(peer string) (*Conversation, error) {
	room := models.RoomID(c.User, peer)
	conv := NewConversation(room, c.User)

	c.mu.Lock()
	if existing, ok := c.rooms[room]; ok {
		conv = existing
	} else {
		c.rooms[room] = conv
	}
	c.mu.Unlock()

	if err := c.emit(models.EventJoinRoom, models.JoinRoom{RoomID: room, UserID: c.User}); err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *Client) Leave(room string) error {
	room = models.NormalizeRoomID(room)
	c.mu.Lock()
	delete(c.rooms, room)
	if t, ok := c.typing[room]; ok {
		t.t.Stop()
		delete(c.typing, room)
	}
	c.mu.Unlock()
	return c.emit(models.EventLeaveRoom, models.LeaveRoom{RoomID: room, UserID: c.User})
}

// Send posts a text message and returns its id. The relay clears our typing
// indicator itself, so the idle timer is dropped without a typing-stop.
func (c *Client) Send(room, text string) (string, error) {
	room = models.NormalizeRoomID(room)
	if err := c.joined(room); err != nil {
		return "", err
	}
	c.mu.Lock()
	if t, ok := c.typing[room]; ok {
		t.t.Stop()
		delete(c.typing, room)
	}
	c.mu.Unlock()

	id := models.NewMessageID()
	err := c.emit(models.EventChatMessage, models.ChatMessageIn{ID: id, RoomID: room, Sender: c.User, Message: text})
	return id, err
}

// Typing records a keystroke. The first one sends typing-start; every one
// pushes back the idle timer that sends typing-stop.
func (c *Client) Typing(room string) error {
	room = models.NormalizeRoomID(room)
	if err := c.joined(room); err != nil {
		return err
	}

	c.mu.Lock()
	old, active := c.typing[room]
	if active {
		old.t.Stop()
	}
	tt := &typingTimer{}
	tt.t = time.AfterFunc(c.opts.TypingIdle, func() { c.expireTyping(room, tt) })
	c.typing[room] = tt
	c.mu.Unlock()

	if active {
		return nil
	}
	return c.emit(models.EventTypingStart, models.Typing{RoomID: room, UserID: c.User})
}

// typingTimer is one idle timer; a fired callback only acts while its
// timer is still the room's current one.
type typingTimer struct {
	t *time.Timer
}

func (c *Client) expireTyping(room string, tt *typingTimer) {
	c.mu.Lock()
	if c.typing[room] != tt {
		c.mu.Unlock()
		return
	}
	delete(c.typing, room)
	c.mu.Unlock()

	err := c.emit(models.EventTypingStop, models.Typing{RoomID: room, UserID: c.User})
	if err != nil && !errors.Is(err, ErrClosed) {
		log.Debug().Str("module", "client").Str("room_id", room).Err(err).Msg("typing-stop not sent")
	}
}

// StopTyping sends typing-stop if a typing indicator is active.
func (c *Client) StopTyping(room string) error {
	room = models.NormalizeRoomID(room)
	c.mu.Lock()
	t, ok := c.typing[room]
	if ok {
		t.t.Stop()
		delete(c.typing, room)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.emit(models.EventTypingStop, models.Typing{RoomID: room, UserID: c.User})
}

// SendCallStatus moves the room's call to status. duration is only sent with
// ended; listingID only with calling.
func (c *Client) SendCallStatus(room string, status models.CallStatus, duration *int, listingID string) error {
	room = models.NormalizeRoomID(room)
	conv := c.Conversation(room)
	if conv == nil {
		return fmt.Errorf("%w: %s", ErrNotJoined, room)
	}
	if from := conv.CallStatus(); !models.CanTransition(from, status) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, status)
	}

	ev := models.VideoCallStatus{RoomID: room, Status: status, Sender: c.User}
	if status == models.CallEnded {
		ev.Duration = duration
	}
	if status == models.CallCalling {
		ev.ListingID = listingID
	}
	return c.emit(models.EventVideoCallStatus, ev)
}

// Signal relays an SDP offer or answer, or an ICE candidate, to the peer.
func (c *Client) Signal(room, kind string, payload any) error {
	room = models.NormalizeRoomID(room)
	if err := c.joined(room); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return c.emit(kind, models.WebRTCSignal{RoomID: room, Payload: raw, Sender: c.User})
}

func (c *Client) joined(room string) error {
	if c.Conversation(room) == nil {
		return fmt.Errorf("%w: %s", ErrNotJoined, room)
	}
	return nil
}

func (c *Client) emit(event string, data any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(models.Envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.updates)
	defer close(c.done)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Str("module", "client").Err(err).Msg("read loop ended")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Warn().Str("module", "client").Err(err).Msg("malformed frame")
			continue
		}
		c.dispatch(env)
	}
}

// dispatch applies env to every conversation it may concern and publishes it.
func (c *Client) dispatch(env models.Envelope) {
	u := Update{Event: env.Event, Data: env.Data}

	if env.Event == models.EventError {
		var e models.ErrorEvent
		if err := json.Unmarshal(env.Data, &e); err == nil {
			u.Err = &e
		}
	} else {
		var probe struct {
			RoomID string `json:"roomId"`
		}
		_ = json.Unmarshal(env.Data, &probe)
		u.Room = probe.RoomID

		c.mu.Lock()
		convs := make([]*Conversation, 0, len(c.rooms))
		for _, conv := range c.rooms {
			convs = append(convs, conv)
		}
		c.mu.Unlock()
		for _, conv := range convs {
			if _, err := conv.Apply(env.Event, env.Data); err != nil {
				log.Warn().Str("module", "client").Str("event", env.Event).Err(err).Msg("event not applied")
				break
			}
		}
	}

	select {
	case c.updates <- u:
	default:
		log.Debug().Str("module", "client").Str("event", env.Event).Msg("update dropped, nobody is reading")
	}
}
