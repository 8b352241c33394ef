package client

import (
	"dealchat/backend/internal/models"
	"encoding/json"
	"fmt"
	"sync"
)

// Conversation is the receiving side's view of one room: the message list,
// deduplicated by id and sorted by timestamp, plus the peer's presence and
// typing state and the call status.
type Conversation struct {
	RoomID string
	Self   string
	Peer   string

	mu           sync.RWMutex
	messages     []models.ChatMessage
	ids          map[string]struct{}
	peerOnline   bool
	peerTyping   bool
	call         models.CallStatus
	listingTitle string
}

func NewConversation(room, self string) *Conversation {
	room = models.NormalizeRoomID(room)
	self = models.NormalizeUserID(self)
	peer, _ := models.OtherParticipant(room, self)
	return &Conversation{
		RoomID: room,
		Self:   self,
		Peer:   peer,
		ids:    make(map[string]struct{}),
		call:   models.CallIdle,
	}
}

// Apply folds one server event into the view and reports whether anything
// changed. Events for other rooms or users are ignored.
func (c *Conversation) Apply(event string, data json.RawMessage) (bool, error) {
	switch event {
	case models.EventUserStatus:
		var s models.UserStatus
		if err := json.Unmarshal(data, &s); err != nil {
			return false, fmt.Errorf("decode %s: %w", event, err)
		}
		return c.setPeerStatus(s), nil

	case models.EventChatHistory:
		var msgs []models.ChatMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			return false, fmt.Errorf("decode %s: %w", event, err)
		}
		return c.merge(msgs...), nil

	case models.EventChatMessage:
		var msg models.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return false, fmt.Errorf("decode %s: %w", event, err)
		}
		return c.merge(msg), nil

	case models.EventTyping:
		var t models.TypingEvent
		if err := json.Unmarshal(data, &t); err != nil {
			return false, fmt.Errorf("decode %s: %w", event, err)
		}
		if t.RoomID != c.RoomID || t.UserID != c.Peer {
			return false, nil
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		changed := c.peerTyping != t.Typing
		c.peerTyping = t.Typing
		return changed, nil

	case models.EventVideoCallStatus:
		var s models.CallStatusEvent
		if err := json.Unmarshal(data, &s); err != nil {
			return false, fmt.Errorf("decode %s: %w", event, err)
		}
		if s.RoomID != c.RoomID {
			return false, nil
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.call = s.Status
		if s.Status == models.CallCalling {
			c.listingTitle = s.ListingTitle
		}
		return true, nil
	}
	return false, nil
}

func (c *Conversation) setPeerStatus(s models.UserStatus) bool {
	if s.UserID != c.Peer {
		return false
	}
	online := s.Status == models.StatusOnline
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.peerOnline != online
	c.peerOnline = online
	if !online {
		c.peerTyping = false
	}
	return changed
}

// merge adds messages of this room whose id is not known yet.
func (c *Conversation) merge(msgs ...models.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := false
	for _, m := range msgs {
		if m.RoomID != c.RoomID {
			continue
		}
		if _, dup := c.ids[m.ID]; dup {
			continue
		}
		c.ids[m.ID] = struct{}{}
		c.messages = append(c.messages, m)
		added = true
		if m.Sender == c.Peer {
			c.peerTyping = false
		}
	}
	if added {
		models.SortByTimestamp(c.messages)
	}
	return added
}

func (c *Conversation) Messages() []models.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

func (c *Conversation) PeerOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerOnline
}

func (c *Conversation) PeerTyping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerTyping
}

func (c *Conversation) CallStatus() models.CallStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.call
}

// ListingTitle is the listing the current call was started about, if any.
func (c *Conversation) ListingTitle() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listingTitle
}
