package chathub_test

import (
	"dealchat/backend/internal/chathub"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomDirectory_JoinLeave(t *testing.T) {
	d := chathub.NewRoomDirectory()

	d.Join("alice_bob", "c2")
	d.Join("alice_bob", "c1")
	d.Join("alice_bob", "c1")

	assert.Equal(t, []string{"c1", "c2"}, d.Members("alice_bob"))
	assert.Equal(t, 2, d.MemberCount("alice_bob"))
	assert.True(t, d.Has("alice_bob", "c1"))
	assert.Equal(t, 1, d.Len())

	assert.False(t, d.Leave("alice_bob", "c1"))
	assert.True(t, d.Leave("alice_bob", "c2"), "last member leaving empties the room")
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.Members("alice_bob"))
}

func TestRoomDirectory_LeaveAll(t *testing.T) {
	d := chathub.NewRoomDirectory()
	d.Join("alice_bob", "c1")
	d.Join("alice_carol", "c1")
	d.Join("alice_bob", "c2")

	rooms := d.LeaveAll("c1")

	assert.Equal(t, []string{"alice_bob", "alice_carol"}, rooms)
	assert.Empty(t, d.RoomsOf("c1"))
	assert.Equal(t, []string{"c2"}, d.Members("alice_bob"))
	assert.Equal(t, 0, d.MemberCount("alice_carol"))
}

func TestRoomDirectory_LeaveUnknown(t *testing.T) {
	d := chathub.NewRoomDirectory()
	assert.True(t, d.Leave("nowhere", "c1"))
	assert.Empty(t, d.LeaveAll("c1"))
}
