package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Session holds the authenticated identity for the lifetime of the client.
type Session struct {
	Username    string
	AccessToken string
}

// AuthReason classifies why authentication failed.
type AuthReason string

const (
	AuthInvalidCredentials AuthReason = "invalid_credentials"
	AuthRegistrationFailed AuthReason = "registration_failed"
	AuthNetworkError       AuthReason = "network_error"
)

// AuthError is returned when the login-or-register flow cannot produce a
// token. Detail carries the server-provided message when one was present.
type AuthError struct {
	Reason AuthReason
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("auth failed: %s", e.Reason)
	}
	return fmt.Sprintf("auth failed: %s: %s", e.Reason, e.Detail)
}

// AuthSession obtains an access token from the chat service. Login is a
// one-shot user action: a failed login falls back to registration followed
// by exactly one login retry, and never loops beyond that.
type AuthSession struct {
	baseURL string
	http    *http.Client
}

func NewAuthSession(baseURL string, hc *http.Client) *AuthSession {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &AuthSession{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Login authenticates username/password against the token endpoint. On a
// rejected login it attempts to register the user and retries the token
// request once.
func (a *AuthSession) Login(ctx context.Context, username, password string) (Session, error) {
	token, detail, err := a.requestToken(ctx, username, password)
	if err != nil {
		return Session{}, &AuthError{Reason: AuthNetworkError, Detail: err.Error()}
	}
	if token == "" {
		log.Debug().Str("user", username).Msg("[chat] login rejected, attempting registration")
		if regDetail, err := a.register(ctx, username, password); err != nil {
			return Session{}, &AuthError{Reason: AuthNetworkError, Detail: err.Error()}
		} else if regDetail != "" {
			return Session{}, &AuthError{Reason: AuthRegistrationFailed, Detail: regDetail}
		}
		token, detail, err = a.requestToken(ctx, username, password)
		if err != nil {
			return Session{}, &AuthError{Reason: AuthNetworkError, Detail: err.Error()}
		}
	}
	if token == "" {
		return Session{}, &AuthError{Reason: AuthInvalidCredentials, Detail: detail}
	}
	log.Info().Str("user", username).Msg("[chat] authenticated")
	return Session{Username: username, AccessToken: token}, nil
}

// requestToken POSTs form-encoded credentials to /token. A rejected request
// returns an empty token plus the server detail; err is transport-level only.
func (a *AuthSession) requestToken(ctx context.Context, username, password string) (token, detail string, err error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", readDetail(resp.Body), nil
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("decode token response: %w", err)
	}
	return body.AccessToken, "", nil
}

// register POSTs a JSON user-creation request to /users/. A rejected request
// returns the server detail; err is transport-level only.
func (a *AuthSession) register(ctx context.Context, username, password string) (detail string, err error) {
	payload, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/users/", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d := readDetail(resp.Body)
		if d == "" {
			d = resp.Status
		}
		return d, nil
	}
	return "", nil
}

// readDetail extracts the {"detail": ...} message FastAPI-style services put
// in error bodies. Falls back to the raw body text.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(raw))
}
