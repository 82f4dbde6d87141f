package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinRoom(t *testing.T) {
	svc := newFakeService(t)
	svc.addUser("alice", "pw")
	rooms := NewRoomJoinClient(svc.URL(), nil)

	err := rooms.Join(context.Background(), Session{Username: "alice", AccessToken: tokenFor("alice")}, 1)
	require.NoError(t, err)

	svc.mu.Lock()
	joined := svc.members["alice/1"]
	svc.mu.Unlock()
	require.True(t, joined)
}

func TestJoinRejectedSurfacesDetail(t *testing.T) {
	svc := newFakeService(t)
	svc.addUser("alice", "pw")
	svc.failJoin = true
	rooms := NewRoomJoinClient(svc.URL(), nil)

	err := rooms.Join(context.Background(), Session{Username: "alice", AccessToken: tokenFor("alice")}, 1)
	require.Error(t, err)

	var joinErr *JoinError
	require.True(t, errors.As(err, &joinErr))
	require.Equal(t, 403, joinErr.Status)
	require.Contains(t, joinErr.Detail, "Not allowed")
}

func TestJoinWithoutToken(t *testing.T) {
	svc := newFakeService(t)
	rooms := NewRoomJoinClient(svc.URL(), nil)

	err := rooms.Join(context.Background(), Session{}, 1)
	var joinErr *JoinError
	require.True(t, errors.As(err, &joinErr))
	require.Equal(t, 401, joinErr.Status)
}

func TestUpload(t *testing.T) {
	svc := newFakeService(t)
	svc.addUser("alice", "pw")
	up := NewAttachmentUploader(svc.URL(), nil)
	sess := Session{Username: "alice", AccessToken: tokenFor("alice")}

	url, err := up.Upload(context.Background(), sess, "x.png", strings.NewReader("not really a png"))
	require.NoError(t, err)
	require.Equal(t, "/files/x.png", url)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Equal(t, "file", svc.lastUploadField)
	require.Equal(t, "x.png", svc.lastUploadName)
	require.Equal(t, "Bearer "+tokenFor("alice"), svc.lastUploadAuth)
	require.Equal(t, "not really a png", string(svc.lastUploadBody))
}

func TestUploadRejected(t *testing.T) {
	svc := newFakeService(t)
	up := NewAttachmentUploader(svc.URL(), nil)

	// no such user behind the token
	_, err := up.Upload(context.Background(), Session{AccessToken: "tok-ghost"}, "x.png", strings.NewReader("x"))
	require.Error(t, err)

	var upErr *UploadError
	require.True(t, errors.As(err, &upErr))
	require.Equal(t, 401, upErr.Status)
}
