package chathub_test

import (
	"context"
	"dealchat/backend/internal/chathub"
	"dealchat/backend/internal/localization"
	"dealchat/backend/internal/models"
	"dealchat/backend/internal/storage"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const room = "alice_bob"

func testHubConfig() chathub.HubConfig {
	return chathub.HubConfig{HistoryTimeout: time.Second, ReplayWindow: 16}
}

// startHub runs a hub backed by history and appender until the test ends.
func startHub(t *testing.T, history chathub.HistoryLoader, appender chathub.MessageAppender, cfg chathub.HubConfig) *chathub.ManagerService {
	t.Helper()

	p := chathub.NewPersister(appender, chathub.PersisterConfig{Workers: 1, QueueSize: 64, Timeout: time.Second})
	p.Start()
	messages, err := localization.Default()
	require.NoError(t, err)
	hub := chathub.NewManagerService(history, p, messages, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		_ = p.Stop(context.Background())
	})
	return hub
}

func connect(t *testing.T, hub *chathub.ManagerService, connID string) *MockClient {
	t.Helper()
	c := newMockClient(connID)
	require.True(t, hub.Register(c))
	return c
}

func dispatch(t *testing.T, hub *chathub.ManagerService, c *MockClient, ev models.InboundEvent) {
	t.Helper()
	require.True(t, hub.Dispatch(c, ev))
}

// settle returns once every event dispatched so far has been handled.
func settle(t *testing.T, hub *chathub.ManagerService) {
	t.Helper()
	_, err := hub.Presence(context.Background(), "")
	require.NoError(t, err)
}

func joinRoom(t *testing.T, hub *chathub.ManagerService, c *MockClient, user string) {
	t.Helper()
	dispatch(t, hub, c, &models.JoinRoom{RoomID: room, UserID: user})
}

func say(t *testing.T, hub *chathub.ManagerService, c *MockClient, sender, text string) {
	t.Helper()
	dispatch(t, hub, c, &models.ChatMessageIn{RoomID: room, Sender: sender, Message: text})
}

func TestManager_RegisterUnregister(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())

	c := connect(t, hub, "c1")
	settle(t, hub)
	assert.Equal(t, int64(1), hub.StatsSnapshot().Connections)

	hub.Unregister(c)
	settle(t, hub)
	assert.Equal(t, int64(0), hub.StatsSnapshot().Connections)
	assert.True(t, c.IsClosed())
}

func TestManager_JoinAnnouncesPresence(t *testing.T) {
	// Arrange
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")

	// Act
	joinRoom(t, hub, alice, "alice")
	settle(t, hub)

	// Assert
	assert.Equal(t, 1, alice.Statuses()["alice:online"], "joiner sees its own status")
	assert.Equal(t, 1, alice.Statuses()["bob:offline"])
	assert.Eventually(t, func() bool { return len(alice.Histories()) == 1 }, time.Second, 10*time.Millisecond)

	joinRoom(t, hub, bob, "bob")
	settle(t, hub)

	assert.Equal(t, 1, alice.Statuses()["bob:online"])
	assert.Equal(t, 1, bob.Statuses()["bob:online"])
	assert.Equal(t, 1, bob.Statuses()["alice:online"])
	assert.Eventually(t, func() bool { return len(bob.Histories()) == 1 }, time.Second, 10*time.Millisecond)

	p, err := hub.Presence(context.Background(), "Alice")
	require.NoError(t, err)
	assert.True(t, p.Online)
	assert.Equal(t, []string{room}, p.Rooms)
}

func TestManager_HistoryFailureSendsEmptyHistory(t *testing.T) {
	history := new(MockStore)
	history.On("CachedHistory", mock.Anything, room).Return(nil, models.ErrStoreUnavailable)
	hub := startHub(t, history, newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")

	joinRoom(t, hub, alice, "alice")

	require.Eventually(t, func() bool { return len(alice.Histories()) == 1 }, time.Second, 10*time.Millisecond)
	assert.NotNil(t, alice.Histories()[0])
	assert.Empty(t, alice.Histories()[0])
	assert.Empty(t, alice.Errors())
}

func TestManager_OfflineOncePerRoom(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	a1 := connect(t, hub, "a1")
	a2 := connect(t, hub, "a2")
	bob := connect(t, hub, "b1")

	joinRoom(t, hub, a1, "alice")
	dispatch(t, hub, a2, &models.JoinRoom{RoomID: "alice_carol", UserID: "alice"})
	joinRoom(t, hub, a2, "alice")
	joinRoom(t, hub, bob, "bob")
	dispatch(t, hub, a2, &models.Typing{RoomID: room, UserID: "alice", Start: true})

	hub.Unregister(a1)
	settle(t, hub)
	assert.Zero(t, bob.Statuses()["alice:offline"], "user still has a connection")

	hub.Unregister(a2)
	settle(t, hub)
	assert.Equal(t, 1, bob.Statuses()["alice:offline"])

	typing := bob.Named(models.EventTyping)
	require.Len(t, typing, 2)
	assert.False(t, typing[1].Data.(models.TypingEvent).Typing)

	p, err := hub.Presence(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, p.Online)
}

func TestManager_NearSimultaneousJoin(t *testing.T) {
	cfg := testHubConfig()
	cfg.RecheckDelay = 500 * time.Millisecond
	hub := startHub(t, newHappyStore(), newHappyStore(), cfg)
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")

	start := time.Now()
	joinRoom(t, hub, alice, "alice")
	time.Sleep(400 * time.Millisecond)
	joinRoom(t, hub, bob, "bob")

	assert.Eventually(t, func() bool {
		return alice.Statuses()["bob:online"] > 0 && bob.Statuses()["alice:online"] > 0
	}, time.Until(start.Add(600*time.Millisecond)), 5*time.Millisecond)
}

func TestManager_RecheckRebroadcastsOnlinePeer(t *testing.T) {
	cfg := testHubConfig()
	cfg.RecheckDelay = 50 * time.Millisecond
	hub := startHub(t, newHappyStore(), newHappyStore(), cfg)
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")

	joinRoom(t, hub, alice, "alice")
	joinRoom(t, hub, bob, "bob")

	// alice's re-check sees bob online and tells the room again
	assert.Eventually(t, func() bool { return alice.Statuses()["bob:online"] >= 2 }, time.Second, 10*time.Millisecond)
}

func TestManager_MessageFanOutDespitePersistFailure(t *testing.T) {
	// Arrange
	appender := new(MockStore)
	appender.On("Append", mock.Anything, mock.Anything).Return(errors.New("database is down"))
	hub := startHub(t, newHappyStore(), appender, testHubConfig())
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")
	joinRoom(t, hub, alice, "alice")
	joinRoom(t, hub, bob, "bob")

	// Act
	say(t, hub, alice, "alice", "is the bike still available?")
	settle(t, hub)

	// Assert
	require.Len(t, bob.ChatMessages(), 1)
	require.Len(t, alice.ChatMessages(), 1)
	msg := bob.ChatMessages()[0]
	assert.Equal(t, "is the bike still available?", msg.Body)
	assert.Equal(t, models.KindText, msg.Kind)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, msg.ID, alice.ChatMessages()[0].ID)

	assert.Eventually(t, func() bool { return hub.StatsSnapshot().Persistence.Failed == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, alice.Errors())
}

func TestManager_MessageStopsTypingFirst(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")
	joinRoom(t, hub, alice, "alice")
	joinRoom(t, hub, bob, "bob")

	dispatch(t, hub, alice, &models.Typing{RoomID: room, UserID: "alice", Start: true})
	say(t, hub, alice, "alice", "hi")
	settle(t, hub)

	seq := bob.Named(models.EventTyping, models.EventChatMessage)
	require.Len(t, seq, 3)
	assert.True(t, seq[0].Data.(models.TypingEvent).Typing)
	assert.False(t, seq[1].Data.(models.TypingEvent).Typing)
	assert.Equal(t, models.EventChatMessage, seq[2].Event)

	assert.Empty(t, alice.Named(models.EventTyping), "typing is not echoed to the typist")
}

func TestManager_LeaveKeepsPresence(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")
	joinRoom(t, hub, alice, "alice")
	joinRoom(t, hub, bob, "bob")
	dispatch(t, hub, alice, &models.Typing{RoomID: room, UserID: "alice", Start: true})

	dispatch(t, hub, alice, &models.LeaveRoom{RoomID: room, UserID: "alice"})
	say(t, hub, bob, "bob", "still there?")
	settle(t, hub)

	assert.Zero(t, bob.Statuses()["alice:offline"])
	typing := bob.Named(models.EventTyping)
	require.Len(t, typing, 2)
	assert.False(t, typing[1].Data.(models.TypingEvent).Typing)
	assert.Empty(t, alice.ChatMessages(), "left connection no longer receives room traffic")

	p, err := hub.Presence(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, p.Online)
}

func TestManager_DisconnectWhileTypingClearsIndicator(t *testing.T) {
	// Arrange
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	phone := connect(t, hub, "a1")
	laptop := connect(t, hub, "a2")
	bob := connect(t, hub, "b1")
	dispatch(t, hub, laptop, &models.UserOnline{UserID: "alice"})
	joinRoom(t, hub, phone, "alice")
	joinRoom(t, hub, bob, "bob")
	dispatch(t, hub, phone, &models.Typing{RoomID: room, UserID: "alice", Start: true})

	// Act
	hub.Unregister(phone)
	settle(t, hub)

	// Assert
	typing := bob.Named(models.EventTyping)
	require.Len(t, typing, 2)
	assert.True(t, typing[0].Data.(models.TypingEvent).Typing)
	assert.False(t, typing[1].Data.(models.TypingEvent).Typing)
	assert.Zero(t, bob.Statuses()["alice:offline"], "alice is still online on another connection")

	p, err := hub.Presence(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, p.Online)
}

func TestManager_RejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name     string
		pinned   string
		lang     string
		events   []models.InboundEvent
		wantCode string
	}{
		{
			name: "empty message body",
			events: []models.InboundEvent{
				&models.JoinRoom{RoomID: room, UserID: "alice"},
				&models.ChatMessageIn{RoomID: room, Sender: "alice"},
			},
			wantCode: "invalid_message",
		},
		{
			name: "sender differs from bound user",
			events: []models.InboundEvent{
				&models.JoinRoom{RoomID: room, UserID: "alice"},
				&models.ChatMessageIn{RoomID: room, Sender: "bob", Message: "spoofed"},
			},
			wantCode: "identity_mismatch",
		},
		{
			name:     "connection pinned by token",
			pinned:   "alice",
			events:   []models.InboundEvent{&models.JoinRoom{RoomID: room, UserID: "bob"}},
			wantCode: "identity_mismatch",
		},
		{
			name:     "user outside the room",
			lang:     "uk",
			events:   []models.InboundEvent{&models.JoinRoom{RoomID: room, UserID: "carol"}},
			wantCode: "not_participant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appender := newHappyStore()
			hub := startHub(t, newHappyStore(), appender, testHubConfig())
			c := newMockClient("c1")
			c.userID = tt.pinned
			if tt.lang != "" {
				c.lang = tt.lang
			}
			require.True(t, hub.Register(c))
			bob := connect(t, hub, "b1")
			joinRoom(t, hub, bob, "bob")

			for _, ev := range tt.events {
				dispatch(t, hub, c, ev)
			}
			settle(t, hub)

			errs := c.Errors()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantCode, errs[0].Code)
			assert.NotEmpty(t, errs[0].Message)
			assert.NotEqual(t, "error."+tt.wantCode, errs[0].Message)
			assert.Empty(t, bob.ChatMessages())
			appender.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
			assert.Equal(t, uint64(1), hub.StatsSnapshot().EventsRejected)
		})
	}
}

func TestManager_DuplicateClientIDRelayedOnce(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")
	joinRoom(t, hub, alice, "alice")
	joinRoom(t, hub, bob, "bob")

	for i := 0; i < 2; i++ {
		dispatch(t, hub, alice, &models.ChatMessageIn{ID: "client-1", RoomID: room, Sender: "alice", Message: "resent"})
	}
	settle(t, hub)

	require.Len(t, bob.ChatMessages(), 1)
	assert.Equal(t, "client-1", bob.ChatMessages()[0].ID)
}

func TestManager_MessageToEmptyRoomIsPersisted(t *testing.T) {
	appender := newHappyStore()
	hub := startHub(t, newHappyStore(), appender, testHubConfig())
	alice := connect(t, hub, "a1")

	say(t, hub, alice, "alice", "for later")
	settle(t, hub)

	assert.Equal(t, uint64(1), hub.StatsSnapshot().RoomEmpty)
	assert.Eventually(t, func() bool { return hub.StatsSnapshot().Persistence.Persisted == 1 }, time.Second, 10*time.Millisecond)
	appender.AssertCalled(t, "Append", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.Body == "for later" && m.RoomID == room
	}))
}

func TestManager_OfflineMessageArrivesWithHistory(t *testing.T) {
	// Arrange
	db, err := storage.Open("sqlite", ":memory:", true)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, storage.Migrate(db))
	svc := storage.NewStorageService(db)
	t.Cleanup(func() { _ = svc.Close() })
	chat := storage.NewChatStore(svc, storage.NewMemoryHistoryCache(time.Minute))

	hub := startHub(t, chat, chat, testHubConfig())
	alice := connect(t, hub, "a1")
	joinRoom(t, hub, alice, "alice")

	// Act
	say(t, hub, alice, "alice", "ping me when you're back")
	require.Eventually(t, func() bool { return hub.StatsSnapshot().Persistence.Persisted == 1 }, 2*time.Second, 10*time.Millisecond)

	bob := connect(t, hub, "b1")
	joinRoom(t, hub, bob, "bob")

	// Assert
	require.Eventually(t, func() bool { return len(bob.Histories()) == 1 }, 2*time.Second, 10*time.Millisecond)
	history := bob.Histories()[0]
	require.Len(t, history, 1)
	assert.Equal(t, "ping me when you're back", history[0].Body)
	assert.Equal(t, "alice", history[0].Sender)
	assert.Empty(t, bob.ChatMessages())
}

func TestManager_SignalRelayedToPeerOnly(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")
	joinRoom(t, hub, alice, "alice")
	joinRoom(t, hub, bob, "bob")

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	dispatch(t, hub, alice, &models.WebRTCSignal{Kind: models.EventWebRTCOffer, RoomID: room, Payload: payload, Sender: "alice"})
	settle(t, hub)

	offers := bob.Named(models.EventWebRTCOffer)
	require.Len(t, offers, 1)
	relay := offers[0].Data.(models.SignalRelay)
	assert.JSONEq(t, string(payload), string(relay.Payload))
	assert.Equal(t, "alice", relay.Sender)
	assert.Equal(t, room, relay.RoomID)
	assert.Empty(t, alice.Named(models.EventWebRTCOffer))
}

func TestManager_CallLifecycleRecordsOneArtifact(t *testing.T) {
	// Arrange
	appender := newHappyStore()
	hub := startHub(t, newHappyStore(), appender, testHubConfig())
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")
	joinRoom(t, hub, alice, "alice")
	joinRoom(t, hub, bob, "bob")
	duration := 125

	// Act
	dispatch(t, hub, alice, &models.VideoCallStatus{RoomID: room, Status: models.CallCalling, Sender: "alice"})
	dispatch(t, hub, bob, &models.VideoCallStatus{RoomID: room, Status: models.CallAnswered, Sender: "bob"})
	dispatch(t, hub, alice, &models.VideoCallStatus{RoomID: room, Status: models.CallEnded, Sender: "alice", Duration: &duration})
	dispatch(t, hub, alice, &models.VideoCallEnded{RoomID: room, Duration: duration, Sender: "alice"})
	settle(t, hub)

	// Assert
	assert.Len(t, alice.Named(models.EventVideoCallStatus), 3)
	assert.Len(t, bob.Named(models.EventVideoCallStatus), 3)

	msgs := bob.ChatMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Video call ended - Duration: 2m 5s", msgs[0].Body)
	assert.Equal(t, models.KindCallEvent, msgs[0].Kind)
	require.NotNil(t, msgs[0].CallDuration)
	assert.Equal(t, 125, *msgs[0].CallDuration)
	assert.Equal(t, uint64(1), hub.StatsSnapshot().CallsRecorded)

	session, err := hub.CallSession(context.Background(), room)
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, session.Status)
	assert.Equal(t, "alice", session.Initiator)
	assert.NotNil(t, session.AnsweredAt)

	assert.Eventually(t, func() bool { return hub.StatsSnapshot().Persistence.Persisted == 1 }, time.Second, 10*time.Millisecond)
	appender.AssertNumberOfCalls(t, "Append", 1)
}

func TestManager_CallEndedEventAloneRecords(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	joinRoom(t, hub, alice, "alice")

	dispatch(t, hub, alice, &models.VideoCallEnded{RoomID: room, Duration: 42, Sender: "alice"})
	dispatch(t, hub, alice, &models.VideoCallEnded{RoomID: room, Duration: 42, Sender: "alice"})
	settle(t, hub)

	msgs := alice.ChatMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Video call ended - Duration: 0m 42s", msgs[0].Body)
}

func TestManager_CallEndedWithoutDurationRecordsOnce(t *testing.T) {
	// Arrange
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	bob := connect(t, hub, "b1")
	joinRoom(t, hub, alice, "alice")
	joinRoom(t, hub, bob, "bob")

	// Act
	dispatch(t, hub, alice, &models.VideoCallStatus{RoomID: room, Status: models.CallCalling, Sender: "alice"})
	dispatch(t, hub, bob, &models.VideoCallStatus{RoomID: room, Status: models.CallAnswered, Sender: "bob"})
	dispatch(t, hub, alice, &models.VideoCallStatus{RoomID: room, Status: models.CallEnded, Sender: "alice"})
	dispatch(t, hub, alice, &models.VideoCallEnded{RoomID: room, Duration: 30, Sender: "alice"})
	settle(t, hub)

	// Assert
	msgs := bob.ChatMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.KindCallEvent, msgs[0].Kind)
	assert.Equal(t, "Video call ended - Duration: 0m 0s", msgs[0].Body)
	require.NotNil(t, msgs[0].CallDuration)
	assert.Zero(t, *msgs[0].CallDuration)
	assert.Equal(t, uint64(1), hub.StatsSnapshot().CallsRecorded)
}

func TestManager_UnansweredCallEndedRecordsZero(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	joinRoom(t, hub, alice, "alice")

	dispatch(t, hub, alice, &models.VideoCallStatus{RoomID: room, Status: models.CallCalling, Sender: "alice"})
	dispatch(t, hub, alice, &models.VideoCallStatus{RoomID: room, Status: models.CallEnded, Sender: "alice"})
	settle(t, hub)

	msgs := alice.ChatMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Video call ended - Duration: 0m 0s", msgs[0].Body)
}

func TestManager_CallSessionDefaultsToIdle(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())

	session, err := hub.CallSession(context.Background(), "Alice_Bob")

	require.NoError(t, err)
	assert.Equal(t, models.CallIdle, session.Status)
	assert.Equal(t, room, session.RoomID)
}

func TestManager_SubmitSystemMessage(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	alice := connect(t, hub, "a1")
	joinRoom(t, hub, alice, "alice")

	msg, err := hub.Submit(context.Background(), models.ChatMessage{RoomID: "Alice_Bob", Sender: "System", Body: "Listing reserved"})
	require.NoError(t, err)
	settle(t, hub)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, models.KindSystem, msg.Kind)
	require.Len(t, alice.ChatMessages(), 1)
	assert.Equal(t, msg.ID, alice.ChatMessages()[0].ID)

	_, err = hub.Submit(context.Background(), models.ChatMessage{RoomID: room, Sender: "system"})
	assert.ErrorIs(t, err, models.ErrInvalidMessage)
}

func TestManager_SlowClientDropped(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	slow := newMockClient("a1")
	slow.full = true
	require.True(t, hub.Register(slow))

	joinRoom(t, hub, slow, "alice")
	settle(t, hub)

	assert.True(t, slow.IsClosed())
	stats := hub.StatsSnapshot()
	assert.Equal(t, uint64(1), stats.SlowClientsDropped)
	assert.Equal(t, int64(0), stats.Connections)

	p, err := hub.Presence(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, p.Online)
}

func TestManager_RecoversFromPanic(t *testing.T) {
	hub := startHub(t, newHappyStore(), newHappyStore(), testHubConfig())
	bad := newMockClient("a1")
	bad.panicky = true
	require.True(t, hub.Register(bad))

	joinRoom(t, hub, bad, "alice")
	settle(t, hub)

	assert.Equal(t, uint64(1), hub.StatsSnapshot().Panics)

	bob := connect(t, hub, "b1")
	dispatch(t, hub, bob, &models.JoinRoom{RoomID: "bob_carol", UserID: "bob"})
	settle(t, hub)
	assert.Equal(t, 1, bob.Statuses()["bob:online"], "hub keeps serving after a panic")
}

func TestManager_StopClosesClients(t *testing.T) {
	hub := chathub.NewManagerService(nil, nil, nil, testHubConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := connect(t, hub, "c1")
	cancel()
	<-hub.Done()

	assert.Eventually(t, c.IsClosed, time.Second, 10*time.Millisecond)
	assert.False(t, hub.Dispatch(c, &models.UserOnline{UserID: "alice"}))
	_, err := hub.Presence(context.Background(), "alice")
	assert.ErrorIs(t, err, chathub.ErrHubStopped)
}
