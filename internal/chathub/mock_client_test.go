package chathub_test

import (
	"dealchat/backend/internal/chathub"
	"dealchat/backend/internal/models"
	"sync"
)

// MockClient records every event the hub sends to it.
type MockClient struct {
	connID string
	userID string
	lang   string

	mu      sync.Mutex
	events  []models.Outbound
	closed  bool
	full    bool
	panicky bool
}

func newMockClient(connID string) *MockClient {
	return &MockClient{connID: connID, lang: "en"}
}

func (c *MockClient) GetConnID() string { return c.connID }
func (c *MockClient) GetUserID() string { return c.userID }
func (c *MockClient) GetLang() string   { return c.lang }

func (c *MockClient) Send(ev models.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicky {
		panic("send exploded")
	}
	if c.closed {
		return chathub.ErrClientClosed
	}
	if c.full {
		return chathub.ErrBackpressure
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClient) Events() []models.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Outbound(nil), c.events...)
}

func (c *MockClient) Named(names ...string) []models.Outbound {
	var out []models.Outbound
	for _, ev := range c.Events() {
		for _, n := range names {
			if ev.Event == n {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// Statuses returns how often each "user:status" pair was received.
func (c *MockClient) Statuses() map[string]int {
	counts := make(map[string]int)
	for _, ev := range c.Named(models.EventUserStatus) {
		s := ev.Data.(models.UserStatus)
		counts[s.UserID+":"+string(s.Status)]++
	}
	return counts
}

func (c *MockClient) ChatMessages() []models.ChatMessage {
	var out []models.ChatMessage
	for _, ev := range c.Named(models.EventChatMessage) {
		out = append(out, ev.Data.(models.ChatMessage))
	}
	return out
}

func (c *MockClient) Histories() [][]models.ChatMessage {
	var out [][]models.ChatMessage
	for _, ev := range c.Named(models.EventChatHistory) {
		out = append(out, ev.Data.([]models.ChatMessage))
	}
	return out
}

func (c *MockClient) Errors() []models.ErrorEvent {
	var out []models.ErrorEvent
	for _, ev := range c.Named(models.EventError) {
		out = append(out, ev.Data.(models.ErrorEvent))
	}
	return out
}
