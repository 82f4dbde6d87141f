package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// JoinError means the service refused room membership; the caller must not
// open a channel after seeing one.
type JoinError struct {
	Status int
	Detail string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join room: %d: %s", e.Status, e.Detail)
}

// UploadError means the service rejected an attachment upload.
type UploadError struct {
	Status int
	Detail string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload: %d: %s", e.Status, e.Detail)
}

// RoomJoinClient registers room membership before a channel is opened.
// Join must run strictly after authentication and strictly before dialing;
// the server rejects channel opens for non-members.
type RoomJoinClient struct {
	baseURL string
	http    *http.Client
}

func NewRoomJoinClient(baseURL string, hc *http.Client) *RoomJoinClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &RoomJoinClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *RoomJoinClient) Join(ctx context.Context, sess Session, roomID int) error {
	u := fmt.Sprintf("%s/chat_rooms/%d/join", c.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("join room %d: %w", roomID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &JoinError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	log.Info().Int("room", roomID).Str("user", sess.Username).Msg("[chat] joined room")
	return nil
}

// AttachmentUploader pushes binary payloads out-of-band and returns the
// reference URL the chat frame should carry.
type AttachmentUploader struct {
	baseURL string
	http    *http.Client
}

func NewAttachmentUploader(baseURL string, hc *http.Client) *AttachmentUploader {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &AttachmentUploader{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Upload sends the payload as multipart field "file". The multipart writer
// supplies the content type; nothing overrides it so the boundary survives.
func (u *AttachmentUploader) Upload(ctx context.Context, sess Session, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload/", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UploadError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	var body struct {
		FileURL string `json:"file_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	log.Debug().Str("file", filename).Str("url", body.FileURL).Msg("[chat] attachment uploaded")
	return body.FileURL, nil
}
