// Package server defines the wire-level event envelope and payload types
// exchanged between the relay and its clients.
package server

import (
	"encoding/json"
	"time"
)

// Inbound event names accepted from clients.
const (
	EventJoin           = "join"
	EventSendMessage    = "sendMessage"
	EventTyping         = "typing"
	EventPrivateMessage = "privateMessage"
)

// Outbound event names emitted to clients.
const (
	EventUserJoined            = "userJoined"
	EventUserLeft              = "userLeft"
	EventActiveUsers           = "activeUsers"
	EventUserTyping            = "userTyping"
	EventReceiveMessage        = "receiveMessage"
	EventReceivePrivateMessage = "receivePrivateMessage"
)

// Envelope is the frame format for every event in either direction.
// Data holds the event-specific payload, still encoded.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessageKind distinguishes how a chat message was routed.
type MessageKind string

// Message kinds.
const (
	KindBroadcast MessageKind = "broadcast"
	KindPrivate   MessageKind = "private"
	KindSystem    MessageKind = "system"
)

// Message is a routed chat message. It is immutable once constructed and is
// never persisted; the id is time-derived and advisory only.
type Message struct {
	ID        int64       `json:"id"`
	Text      string      `json:"text"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient,omitempty"`
	Timestamp string      `json:"timestamp"`
	Kind      MessageKind `json:"kind"`
}

// ChatPayload is the data of an inbound sendMessage event.
type ChatPayload struct {
	Text string `json:"text"`
}

// PrivatePayload is the data of an inbound privateMessage event.
type PrivatePayload struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// TypingNotice is the data of an outbound userTyping event.
type TypingNotice struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// newMessage builds a broadcast or private message stamped with a fresh
// time-derived id.
func newMessage(kind MessageKind, sender, recipient, text string, at time.Time) Message {
	return Message{
		ID:        at.UnixMilli(),
		Text:      text,
		Sender:    sender,
		Recipient: recipient,
		Timestamp: at.UTC().Format(time.RFC3339),
		Kind:      kind,
	}
}

// encodeEvent marshals a payload and wraps it in an Envelope frame.
func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
