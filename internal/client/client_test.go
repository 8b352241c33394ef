package client_test

import (
	"context"
	"dealchat/backend/internal/api/handler"
	"dealchat/backend/internal/chathub"
	"dealchat/backend/internal/client"
	"dealchat/backend/internal/models"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startRelay serves a hub without durable storage and returns its ws url.
func startRelay(t *testing.T) string {
	t.Helper()

	hub := chathub.NewManagerService(nil, nil, nil, chathub.HubConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	h := handler.NewHandler(hub, nil, nil, nil, chathub.ClientOptions{SendBuffer: 64})
	srv := httptest.NewServer(handler.NewRouter(gin.TestMode, h))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialAs(t *testing.T, url, user string, idle time.Duration) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), user, client.Options{URL: url, TypingIdle: idle})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

const wait = 2 * time.Second
const tick = 10 * time.Millisecond

func TestClient_MessagesAndPresence(t *testing.T) {
	// Arrange
	url := startRelay(t)
	alice := dialAs(t, url, "alice", 0)
	bob := dialAs(t, url, "bob", 0)

	aliceView, err := alice.Join("bob")
	require.NoError(t, err)
	bobView, err := bob.Join("Alice")
	require.NoError(t, err)

	// Act
	require.Eventually(t, func() bool { return aliceView.PeerOnline() && bobView.PeerOnline() }, wait, tick)
	id, err := alice.Send("alice_bob", "is the sofa still for sale?")
	require.NoError(t, err)

	// Assert
	require.Eventually(t, func() bool { return len(bobView.Messages()) == 1 }, wait, tick)
	msg := bobView.Messages()[0]
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "is the sofa still for sale?", msg.Body)
	assert.Eventually(t, func() bool { return len(aliceView.Messages()) == 1 }, wait, tick)

	require.NoError(t, alice.Close())
	assert.Eventually(t, func() bool { return !bobView.PeerOnline() }, wait, tick)
}

func TestClient_TypingStopsAfterIdle(t *testing.T) {
	url := startRelay(t)
	alice := dialAs(t, url, "alice", 150*time.Millisecond)
	bob := dialAs(t, url, "bob", 0)
	_, err := alice.Join("bob")
	require.NoError(t, err)
	bobView, err := bob.Join("alice")
	require.NoError(t, err)
	require.Eventually(t, bobView.PeerOnline, wait, tick)

	require.NoError(t, alice.Typing("alice_bob"))
	require.Eventually(t, bobView.PeerTyping, wait, tick)

	assert.Eventually(t, func() bool { return !bobView.PeerTyping() }, wait, tick)
}

func TestClient_CallFlowRecordsDuration(t *testing.T) {
	url := startRelay(t)
	alice := dialAs(t, url, "alice", 0)
	bob := dialAs(t, url, "bob", 0)
	aliceView, err := alice.Join("bob")
	require.NoError(t, err)
	bobView, err := bob.Join("alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return aliceView.PeerOnline() && bobView.PeerOnline() }, wait, tick)

	err = alice.SendCallStatus("alice_bob", models.CallAnswered, nil, "")
	assert.ErrorIs(t, err, client.ErrIllegalTransition)

	require.NoError(t, alice.SendCallStatus("alice_bob", models.CallCalling, nil, ""))
	require.Eventually(t, func() bool { return bobView.CallStatus() == models.CallCalling }, wait, tick)
	require.NoError(t, bob.Signal("alice_bob", models.EventWebRTCAnswer, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}))
	require.NoError(t, bob.SendCallStatus("alice_bob", models.CallAnswered, nil, ""))
	require.Eventually(t, func() bool { return aliceView.CallStatus() == models.CallAnswered }, wait, tick)

	duration := 125
	require.NoError(t, alice.SendCallStatus("alice_bob", models.CallEnded, &duration, ""))

	require.Eventually(t, func() bool { return len(bobView.Messages()) == 1 }, wait, tick)
	msg := bobView.Messages()[0]
	assert.Equal(t, "Video call ended - Duration: 2m 5s", msg.Body)
	assert.Equal(t, models.KindCallEvent, msg.Kind)
	assert.Equal(t, models.CallEnded, bobView.CallStatus())
}

func TestClient_NotJoined(t *testing.T) {
	url := startRelay(t)
	alice := dialAs(t, url, "alice", 0)

	_, err := alice.Send("alice_bob", "hello?")
	assert.ErrorIs(t, err, client.ErrNotJoined)
	assert.ErrorIs(t, alice.Typing("alice_bob"), client.ErrNotJoined)
	assert.ErrorIs(t, alice.SendCallStatus("alice_bob", models.CallCalling, nil, ""), client.ErrNotJoined)
}

func TestClient_ErrorUpdate(t *testing.T) {
	url := startRelay(t)
	alice := dialAs(t, url, "alice", 0)
	_, err := alice.Join("bob")
	require.NoError(t, err)

	_, err = alice.Send("alice_bob", "")
	require.NoError(t, err)

	deadline := time.After(wait)
	for {
		select {
		case u, ok := <-alice.Updates():
			require.True(t, ok, "connection closed before the error arrived")
			if u.Err == nil {
				continue
			}
			assert.Equal(t, "invalid_message", u.Err.Code)
			assert.Equal(t, models.EventChatMessage, u.Err.Event)
			return
		case <-deadline:
			t.Fatal("no error update received")
		}
	}
}
