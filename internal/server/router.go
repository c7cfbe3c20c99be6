// Package server validates and fans out chat content events through the
// message router.
package server

import (
	"time"

	"go.uber.org/zap"
)

// Router resolves recipients for broadcast, typing, and private events.
// Failures are suppressed toward the offending peer: the returned errors
// exist for logging and tests, never for negative acknowledgements.
type Router struct {
	registry *Registry
	delivery Delivery
	log      *zap.Logger
	now      func() time.Time
}

// NewRouter creates a message router over the given registry and delivery
// sink.
func NewRouter(registry *Registry, delivery Delivery, log *zap.Logger) *Router {
	return &Router{
		registry: registry,
		delivery: delivery,
		log:      log,
		now:      time.Now,
	}
}

// Broadcast delivers text from the sender to every joined connection,
// including the sender itself, so every UI renders from the same event
// stream. Connections that have not joined receive nothing. Sending a
// broadcast implicitly stops the sender's typing state.
func (rt *Router) Broadcast(senderConnID, text string) error {
	sess, ok := rt.registry.Session(senderConnID)
	if !ok {
		return ErrNoSession
	}
	if text == "" {
		return ErrEmptyMessage
	}

	sess.Typing = false

	msg := newMessage(KindBroadcast, sess.Name, "", text, rt.now())
	frame, err := encodeEvent(EventReceiveMessage, msg)
	if err != nil {
		rt.log.Error("Failed to encode receiveMessage event", zap.Error(err))
		return err
	}
	for _, connID := range rt.registry.ConnIDs() {
		rt.delivery.Deliver(connID, frame)
	}

	rt.log.Debug("Broadcast message routed",
		zap.String("sender", sess.Name),
		zap.Int64("id", msg.ID))
	return nil
}

// SetTyping records the sender's typing state and relays it to every other
// connection. Repeated events are all forwarded; deduplication is the
// client's concern, as is ever sending the stopping event at all.
func (rt *Router) SetTyping(senderConnID string, isTyping bool) error {
	sess, ok := rt.registry.SetTyping(senderConnID, isTyping)
	if !ok {
		return ErrNoSession
	}

	frame, err := encodeEvent(EventUserTyping, TypingNotice{
		Username: sess.Name,
		IsTyping: isTyping,
	})
	if err != nil {
		rt.log.Error("Failed to encode userTyping event", zap.Error(err))
		return err
	}
	rt.delivery.DeliverToAll(frame, senderConnID)
	return nil
}

// SendPrivate delivers text to the first joined session matching
// recipientName and echoes the same message back to the sender. A sender
// whose name matches the recipient receives the message twice; that quirk is
// accepted rather than specially handled.
func (rt *Router) SendPrivate(senderConnID, recipientName, text string) error {
	sess, ok := rt.registry.Session(senderConnID)
	if !ok {
		return ErrNoSession
	}
	if text == "" {
		return ErrEmptyMessage
	}

	recipientConnID, ok := rt.registry.LookupByName(recipientName)
	if !ok {
		rt.log.Debug("Dropping private message for unknown recipient",
			zap.String("sender", sess.Name),
			zap.String("recipient", recipientName))
		return ErrRecipientNotFound
	}

	msg := newMessage(KindPrivate, sess.Name, recipientName, text, rt.now())
	frame, err := encodeEvent(EventReceivePrivateMessage, msg)
	if err != nil {
		rt.log.Error("Failed to encode receivePrivateMessage event", zap.Error(err))
		return err
	}
	rt.delivery.Deliver(recipientConnID, frame)
	rt.delivery.Deliver(senderConnID, frame)

	rt.log.Debug("Private message routed",
		zap.String("sender", sess.Name),
		zap.String("recipient", recipientName),
		zap.Int64("id", msg.ID))
	return nil
}
