package main

// Frame type names as the chat service speaks them on the channel.
const (
	frameJoin        = "join"
	frameChat        = "chat"
	frameTyping      = "typing"
	frameReaction    = "reaction"
	frameReadReceipt = "read_receipt"
)

// Frame is the envelope for every event sent or received on the channel,
// one JSON object per websocket message. Which fields are populated depends
// on Type; Username is only ever set by the server on inbound frames, the
// client never announces its own identity (the server infers it from the
// authenticated channel).
type Frame struct {
	Type         string `json:"type"`
	Content      string `json:"content,omitempty"`
	IsAttachment bool   `json:"is_attachment"`
	ChatRoomID   int    `json:"chat_room_id,omitempty"`
	MessageID    int64  `json:"message_id,omitempty"`
	Username     string `json:"username,omitempty"`
	ReactionType string `json:"reaction_type,omitempty"`
}

// Message is one chat entry materialized from an inbound chat frame.
// Self-sent messages are not materialized locally; they appear once the
// server echoes them back with a server-assigned id. A Message is immutable
// except for its Reactions slice, which is append-only.
type Message struct {
	ID           int64      `json:"id"`
	Sender       string     `json:"sender"`
	Content      string     `json:"content"`
	IsAttachment bool       `json:"is_attachment,omitempty"`
	Reactions    []Reaction `json:"reactions,omitempty"`
}

// Reaction is one emoji reaction attached to a message. Duplicates from the
// same user are recorded as distinct entries.
type Reaction struct {
	Username string `json:"username"`
	Emoji    string `json:"emoji"`
}
