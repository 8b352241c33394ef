package storage

import (
	"context"
	"dealchat/backend/internal/models"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxConversationQueries bounds concurrent per-room queries in ConversationsFor.
const maxConversationQueries = 8

// ChatStore reconciles the durable Storage with the per-process HistoryCache.
// Durable storage is authoritative; the cache only saves round-trips on join.
type ChatStore struct {
	store Storage
	cache HistoryCache
	group singleflight.Group

	// rooms holds per-room cache state while a load or an append for the
	// room is in flight; mu guards only the map.
	mu    sync.Mutex
	rooms map[string]*roomState
}

// roomState serializes cache writes of one room. gen counts appends so a
// history load that raced with an append never overwrites the cache with a
// stale snapshot.
type roomState struct {
	mu   sync.Mutex
	gen  uint64
	refs int
}

// NewChatStore creates the adapter. cache may be nil.
func NewChatStore(store Storage, cache HistoryCache) *ChatStore {
	return &ChatStore{
		store:       store,
		cache:       cache,
		rooms: make(map[string]*roomState),
	}
}

// Append writes msg to durable storage and mirrors it into the cache.
// Errors wrap models.ErrStoreUnavailable.
func (s *ChatStore) Append(ctx context.Context, msg models.ChatMessage) error {
	if err := s.store.InsertMessage(ctx, &msg); err != nil {
		return fmt.Errorf("%w: append to room %s: %v", models.ErrStoreUnavailable, msg.RoomID, err)
	}

	st := s.acquire(msg.RoomID)
	defer s.release(msg.RoomID, st)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen++
	if s.cache != nil {
		if err := s.cache.Append(ctx, msg); err != nil {
			log.Warn().Str("module", "storage").Str("room_id", msg.RoomID).Err(err).Msg("history cache append failed, invalidating")
			_ = s.cache.Invalidate(ctx, msg.RoomID)
		}
	}
	return nil
}

// History returns the authoritative, timestamp-ordered history of a room.
func (s *ChatStore) History(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	msgs, err := s.store.FindMessagesByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: history of room %s: %v", models.ErrStoreUnavailable, roomID, err)
	}
	models.SortByTimestamp(msgs)
	return msgs, nil
}

// CachedHistory serves a room's history from the cache when possible and
// falls back to durable storage. Concurrent misses for one room share a
// single load.
func (s *ChatStore) CachedHistory(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	if s.cache != nil {
		msgs, found, err := s.cache.Get(ctx, roomID)
		if err != nil {
			log.Warn().Str("module", "storage").Str("room_id", roomID).Err(err).Msg("history cache read failed")
		} else if found {
			return models.DedupeAndSort(msgs), nil
		}
	}

	v, err, _ := s.group.Do(roomID, func() (any, error) {
		st := s.acquire(roomID)
		defer s.release(roomID, st)

		st.mu.Lock()
		gen := st.gen
		st.mu.Unlock()

		msgs, err := s.History(ctx, roomID)
		if err != nil {
			return nil, err
		}
		s.fill(ctx, roomID, st, gen, msgs)
		return msgs, nil
	})
	if err != nil {
		return nil, err
	}
	return models.DedupeAndSort(v.([]models.ChatMessage)), nil
}

// acquire returns the state of roomID and keeps it alive until release.
func (s *ChatStore) acquire(roomID string) *roomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		st = &roomState{}
		s.rooms[roomID] = st
	}
	st.refs++
	return st
}

func (s *ChatStore) release(roomID string, st *roomState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.refs--
	if st.refs == 0 {
		delete(s.rooms, roomID)
	}
}

// trackedRooms reports how many rooms currently hold cache state.
func (s *ChatStore) trackedRooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *ChatStore) fill(ctx context.Context, roomID string, st *roomState, gen uint64, msgs []models.ChatMessage) {
	if s.cache == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		return
	}
	if err := s.cache.Set(ctx, roomID, msgs); err != nil {
		log.Warn().Str("module", "storage").Str("room_id", roomID).Err(err).Msg("history cache fill failed")
	}
}

// ConversationsFor lists every room the user has participated in with its
// latest message and message count, most recent first.
func (s *ChatStore) ConversationsFor(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	userID = models.NormalizeUserID(userID)
	rooms, err := s.store.DistinctRoomIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: rooms of %s: %v", models.ErrStoreUnavailable, userID, err)
	}

	results := make([]*models.ConversationSummary, len(rooms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConversationQueries)
	for i, roomID := range rooms {
		g.Go(func() error {
			latest, err := s.store.FindLatestMessage(gctx, roomID)
			if err != nil {
				return err
			}
			if latest == nil {
				return nil
			}
			count, err := s.store.CountMessagesByRoom(gctx, roomID)
			if err != nil {
				return err
			}
			counterpart, _ := models.OtherParticipant(roomID, userID)
			results[i] = &models.ConversationSummary{
				RoomID:       roomID,
				Counterpart:  counterpart,
				LastMessage:  *latest,
				MessageCount: count,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: conversations of %s: %v", models.ErrStoreUnavailable, userID, err)
	}

	out := make([]models.ConversationSummary, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.Timestamp.After(out[j].LastMessage.Timestamp)
	})
	return out, nil
}

// Ping checks that durable storage is reachable.
func (s *ChatStore) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// CacheStats returns the cache counters, or zero values without a cache.
func (s *ChatStore) CacheStats() CacheStats {
	if s.cache == nil {
		return CacheStats{}
	}
	return s.cache.Stats()
}
