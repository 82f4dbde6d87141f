package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// TransportError wraps channel-level failures. After the channel is open it
// is only ever logged; the session stays up in a degraded state because
// reconnecting is out of scope.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("channel %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// frameHandler consumes one inbound frame kind.
type frameHandler func(Frame)

// RoomConnection owns the persistent channel for one room. It is opened once
// after the join endpoint accepts, sends outbound frames best-effort through
// a buffered channel, and routes inbound frames through a dispatch table
// keyed by frame type. Unknown types are dropped so newer servers can speak
// past older clients.
type RoomConnection struct {
	roomID   int
	conn     *websocket.Conn
	send     chan Frame
	done     chan struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup
	handlers map[string]frameHandler
}

// DialRoom opens the websocket for roomID, deriving the ws(s) endpoint from
// the REST base URL and presenting the access token as a query parameter.
func DialRoom(ctx context.Context, baseURL string, sess Session, roomID int) (*RoomConnection, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/" + strconv.Itoa(roomID)
	u.RawQuery = "token=" + url.QueryEscape(sess.AccessToken)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return &RoomConnection{
		roomID:   roomID,
		conn:     conn,
		send:     make(chan Frame, sendBufferSize),
		done:     make(chan struct{}),
		handlers: make(map[string]frameHandler),
	}, nil
}

// Handle registers the consumer for one inbound frame type. All
// registrations must happen before Start.
func (rc *RoomConnection) Handle(frameType string, fn frameHandler) {
	rc.handlers[frameType] = fn
}

// Start launches the read and write loops.
func (rc *RoomConnection) Start() {
	rc.wg.Add(2)
	go rc.readLoop()
	go rc.writeLoop()
}

func (rc *RoomConnection) readLoop() {
	defer func() {
		rc.Close()
		rc.wg.Done()
	}()
	rc.conn.SetReadLimit(1 << 20)
	_ = rc.conn.SetReadDeadline(time.Now().Add(pongWait))
	rc.conn.SetPongHandler(func(string) error {
		return rc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := rc.conn.ReadMessage()
		if err != nil {
			if !rc.closed.Load() {
				log.Warn().Err(&TransportError{Op: "read", Err: err}).Int("room", rc.roomID).
					Msg("[chat] channel dropped; session degraded until restart")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(payload, &f); err != nil {
			log.Debug().Err(err).Msg("[chat] malformed frame")
			continue
		}
		h, ok := rc.handlers[f.Type]
		if !ok {
			log.Debug().Str("type", f.Type).Msg("[chat] ignoring unknown frame type")
			continue
		}
		h(f)
	}
}

func (rc *RoomConnection) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		rc.Close()
		rc.wg.Done()
	}()
	for {
		select {
		case <-rc.done:
			_ = rc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = rc.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-rc.send:
			_ = rc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := rc.conn.WriteJSON(f); err != nil {
				log.Debug().Err(err).Str("type", f.Type).Msg("[chat] write frame")
				return
			}
		case <-ticker.C:
			_ = rc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := rc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push queues an outbound frame without blocking. If the buffer is full the
// oldest pending frame is dropped; sends are best-effort with no
// backpressure or delivery confirmation.
func (rc *RoomConnection) push(f Frame) {
	if rc.closed.Load() {
		return
	}
	select {
	case rc.send <- f:
	default:
		select {
		case <-rc.send:
		default:
		}
		select {
		case rc.send <- f:
		default:
		}
	}
}

// AnnounceJoin sends the one-time presence announcement after open.
func (rc *RoomConnection) AnnounceJoin(content string) {
	rc.push(Frame{Type: frameJoin, Content: content, ChatRoomID: rc.roomID})
}

// SendChat sends a chat frame. Content is plain text, or the attachment
// reference URL when attachment is true.
func (rc *RoomConnection) SendChat(content string, attachment bool) {
	rc.push(Frame{Type: frameChat, Content: content, IsAttachment: attachment, ChatRoomID: rc.roomID})
}

// SendTyping signals that the local user is composing. Unthrottled; the
// receiving side debounces.
func (rc *RoomConnection) SendTyping() {
	rc.push(Frame{Type: frameTyping, ChatRoomID: rc.roomID})
}

// SendReaction attaches an emoji to a message by server id.
func (rc *RoomConnection) SendReaction(messageID int64, emoji string) {
	rc.push(Frame{Type: frameReaction, MessageID: messageID, ReactionType: emoji, ChatRoomID: rc.roomID})
}

// sendReadReceipt acknowledges receipt of a message, fire-and-forget.
func (rc *RoomConnection) sendReadReceipt(messageID int64) {
	rc.push(Frame{Type: frameReadReceipt, MessageID: messageID, ChatRoomID: rc.roomID})
}

// Done is closed once the channel is down, whether cleanly or not.
func (rc *RoomConnection) Done() <-chan struct{} { return rc.done }

// wait blocks until both loops have finished.
func (rc *RoomConnection) wait() { rc.wg.Wait() }

// Close tears the channel down. Safe to call more than once and from the
// loops themselves.
func (rc *RoomConnection) Close() {
	if rc.closed.Swap(true) {
		return
	}
	close(rc.done)
	_ = rc.conn.Close()
}
