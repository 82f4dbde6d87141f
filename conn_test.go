package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestRoom(t *testing.T, svc *fakeService, username string) *RoomConnection {
	t.Helper()
	svc.addUser(username, "pw")
	conn, err := DialRoom(context.Background(), svc.URL(),
		Session{Username: username, AccessToken: tokenFor(username)}, 1)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestConnDispatchesByFrameType(t *testing.T) {
	svc := newFakeService(t)
	conn := dialTestRoom(t, svc, "alice")

	chats := make(chan Frame, 4)
	typings := make(chan Frame, 4)
	conn.Handle(frameChat, func(f Frame) { chats <- f })
	conn.Handle(frameTyping, func(f Frame) { typings <- f })
	conn.Start()

	svc.inject(Frame{Type: frameChat, Content: "hi", ChatRoomID: 1, MessageID: 7, Username: "bob"})
	f := recv(t, chats, "chat frame")
	assert.Equal(t, "hi", f.Content)
	assert.Equal(t, int64(7), f.MessageID)
	assert.Equal(t, "bob", f.Username)

	svc.inject(Frame{Type: frameTyping, ChatRoomID: 1, Username: "bob"})
	f = recv(t, typings, "typing frame")
	assert.Equal(t, "bob", f.Username)
}

func TestConnIgnoresUnknownFrameTypes(t *testing.T) {
	svc := newFakeService(t)
	conn := dialTestRoom(t, svc, "alice")

	chats := make(chan Frame, 4)
	conn.Handle(frameChat, func(f Frame) { chats <- f })
	conn.Start()

	// a frame type this client has never heard of, then a valid chat; only
	// the chat comes through and the channel survives
	svc.injectRaw([]byte(`{"type":"presence_sync","roster":["a","b"]}`))
	svc.inject(Frame{Type: frameChat, Content: "still here", ChatRoomID: 1, MessageID: 1, Username: "bob"})

	f := recv(t, chats, "chat frame")
	assert.Equal(t, "still here", f.Content)
	select {
	case extra := <-chats:
		t.Fatalf("unexpected extra frame: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnOutboundFramesCarryNoUsername(t *testing.T) {
	svc := newFakeService(t)
	conn := dialTestRoom(t, svc, "alice")
	conn.Start()

	conn.AnnounceJoin("alice has joined the chat.")
	conn.SendTyping()
	conn.SendChat("hello", false)
	conn.SendReaction(3, "👍")

	join := expectFrame(t, svc.received, frameJoin)
	assert.Equal(t, "alice has joined the chat.", join.Content)
	assert.Empty(t, join.Username)

	typing := expectFrame(t, svc.received, frameTyping)
	assert.Equal(t, 1, typing.ChatRoomID)
	assert.Empty(t, typing.Username)
	assert.Empty(t, typing.Content)

	chat := expectFrame(t, svc.received, frameChat)
	assert.Equal(t, "hello", chat.Content)
	assert.False(t, chat.IsAttachment)
	assert.Empty(t, chat.Username)

	reaction := expectFrame(t, svc.received, frameReaction)
	assert.Equal(t, int64(3), reaction.MessageID)
	assert.Equal(t, "👍", reaction.ReactionType)
	assert.Empty(t, reaction.Username)
}

func TestConnCloseIsIdempotent(t *testing.T) {
	svc := newFakeService(t)
	conn := dialTestRoom(t, svc, "alice")
	conn.Start()

	conn.Close()
	conn.Close()
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Close")
	}
	conn.wait()
}
