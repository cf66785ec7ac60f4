package server

import (
	"context"
	"testing"
	"time"

	"babelchat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedTranslator blocks calls for the given target language until the
// gate is closed.
type gatedTranslator struct {
	slowTarget string
	gate       chan struct{}
}

func (g *gatedTranslator) TranslateFrom(_ context.Context, text, _, target string) string {
	if target == g.slowTarget {
		<-g.gate
	}
	return "[" + target + "] " + text
}

func Test_addClient(t *testing.T) {
	cs := newTestChatServer(t, nil)
	c := newTestClient(t, cs)
	room, _ := cs.GetRoom(DefaultRoomId)

	assert.True(t, room.addClient(c), "expected first add to succeed")
	assert.Equal(t, 1, room.memberCount(), "expected one member")
	assert.Equal(t, room, c.getRoom(room.id), "expected client to track the room")

	assert.False(t, room.addClient(c), "expected duplicate add to report false")
	assert.Equal(t, 1, room.memberCount(), "expected membership to be unchanged")
}

func Test_removeClient(t *testing.T) {
	cs := newTestChatServer(t, nil)
	c := newTestClient(t, cs)
	room, _ := cs.GetRoom(DefaultRoomId)

	room.addClient(c)
	room.removeClient(c)

	assert.Zero(t, room.memberCount(), "expected no members")
	assert.Nil(t, c.getRoom(room.id), "expected client to no longer track the room")

	// removing a non-member is a no-op
	room.removeClient(c)
	assert.Zero(t, room.memberCount(), "expected no members")
}

func Test_evictAll(t *testing.T) {
	cs := newTestChatServer(t, nil)
	room, _ := cs.GetRoom(DefaultRoomId)

	a := newTestClient(t, cs)
	b := newTestClient(t, cs)
	room.addClient(a)
	room.addClient(b)

	room.evictAll()

	assert.Zero(t, room.memberCount(), "expected membership set to be empty")
	assert.Nil(t, a.getRoom(room.id), "expected first client to be evicted")
	assert.Nil(t, b.getRoom(room.id), "expected second client to be evicted")
	assert.Empty(t, a.send, "expected eviction to be silent")
	assert.Empty(t, b.send, "expected eviction to be silent")
}

func Test_broadcast(t *testing.T) {
	t.Run("per-recipient translation", func(t *testing.T) {
		cs := newTestChatServer(t, nil)
		room, _ := cs.GetRoom(DefaultRoomId)

		alice := newTestClient(t, cs)
		require.NoError(t, cs.presence.Claim(alice.connID, "alice", "en"))
		room.addClient(alice)

		bob := newTestClient(t, cs)
		require.NoError(t, cs.presence.Claim(bob.connID, "bob", "fr"))
		room.addClient(bob)

		carol := newTestClient(t, cs)
		require.NoError(t, cs.presence.Claim(carol.connID, "carol", ""))
		room.addClient(carol)

		room.broadcast(types.Message{
			Author:    "alice",
			Text:      "hello",
			Timestamp: NowMillis(),
			RoomId:    room.id,
		}, "en")

		got := waitForChat(t, alice, "[en] hello")
		assert.Equal(t, "alice", got.Author, "expected author to be preserved")

		waitForChat(t, bob, "[fr] hello")

		// no preferred language means the original text is delivered
		waitForChat(t, carol, "hello")
	})

	t.Run("slow recipient does not delay others", func(t *testing.T) {
		cs := newTestChatServer(t, nil)
		gate := make(chan struct{})
		cs.translator = &gatedTranslator{slowTarget: "fr", gate: gate}
		room, _ := cs.GetRoom(DefaultRoomId)

		fast := newTestClient(t, cs)
		require.NoError(t, cs.presence.Claim(fast.connID, "fast", "en"))
		room.addClient(fast)

		slow := newTestClient(t, cs)
		require.NoError(t, cs.presence.Claim(slow.connID, "slow", "fr"))
		room.addClient(slow)

		room.broadcast(types.Message{Author: "fast", Text: "hi", Timestamp: NowMillis(), RoomId: room.id}, "en")

		// the fast recipient gets its copy while the slow one is stalled
		waitForChat(t, fast, "[en] hi")
		assert.Empty(t, slow.send, "expected stalled recipient to have nothing yet")

		close(gate)
		waitForChat(t, slow, "[fr] hi")
	})

	t.Run("membership snapshot", func(t *testing.T) {
		cs := newTestChatServer(t, nil)
		gate := make(chan struct{})
		cs.translator = &gatedTranslator{slowTarget: "fr", gate: gate}
		room, _ := cs.GetRoom(DefaultRoomId)

		member := newTestClient(t, cs)
		require.NoError(t, cs.presence.Claim(member.connID, "member", "fr"))
		room.addClient(member)

		room.broadcast(types.Message{Author: "member", Text: "hi", Timestamp: NowMillis(), RoomId: room.id}, "en")

		// joining mid-broadcast does not add the late client to this
		// call's recipients
		late := newTestClient(t, cs)
		require.NoError(t, cs.presence.Claim(late.connID, "late", "en"))
		room.addClient(late)

		close(gate)
		waitForChat(t, member, "[fr] hi")

		select {
		case msg := <-late.send:
			t.Errorf("expected no delivery to the late joiner, got %+v", msg)
		case <-time.After(50 * time.Millisecond):
		}
	})
}
