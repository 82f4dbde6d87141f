package main

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// messageLog indexes materialized messages by server-assigned id and
// accumulates their reactions. It replaces scanning rendered output with an
// explicit session-owned mapping, independent of any presentation layer.
type messageLog struct {
	mu    sync.Mutex
	byID  map[int64]*Message
	order []*Message
}

func newMessageLog() *messageLog {
	return &messageLog{byID: make(map[int64]*Message)}
}

// Append materializes an inbound chat message. A duplicate id keeps the
// first record; the server assigns ids uniquely within a room so this only
// guards against replays.
func (l *messageLog) Append(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[m.ID]; ok {
		return
	}
	stored := m
	l.byID[m.ID] = &stored
	l.order = append(l.order, &stored)
}

// Record appends one reaction to the owning message, in receipt order, with
// duplicates retained. A reaction for a message that was never materialized
// locally is dropped: no error, no retained buffer.
func (l *messageLog) Record(messageID int64, username, emoji string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byID[messageID]
	if !ok {
		log.Debug().Int64("message_id", messageID).Str("user", username).
			Msg("[chat] reaction for unknown message dropped")
		return false
	}
	m.Reactions = append(m.Reactions, Reaction{Username: username, Emoji: emoji})
	return true
}

// Get returns a copy of the message with the given id.
func (l *messageLog) Get(id int64) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byID[id]
	if !ok {
		return Message{}, false
	}
	out := *m
	out.Reactions = append([]Reaction(nil), m.Reactions...)
	return out, true
}

// Len reports how many messages have been materialized.
func (l *messageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
