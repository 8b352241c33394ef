package chathub_test

import (
	"context"
	"dealchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStore stands in for the chat store on both the history and the
// persistence side.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CachedHistory(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomID)
	msgs, _ := args.Get(0).([]models.ChatMessage)
	return msgs, args.Error(1)
}

func (m *MockStore) Append(ctx context.Context, msg models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// newHappyStore returns a store with empty histories that accepts every append.
func newHappyStore() *MockStore {
	s := new(MockStore)
	s.On("CachedHistory", mock.Anything, mock.Anything).Return([]models.ChatMessage{}, nil)
	s.On("Append", mock.Anything, mock.Anything).Return(nil)
	return s
}
