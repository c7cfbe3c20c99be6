// Package server announces session lifecycle changes to connected peers via
// the presence broadcaster.
package server

import "go.uber.org/zap"

// Delivery is the hub's outbound interface. Presence and routing components
// never touch the network themselves; all writes funnel through it.
// An empty except id means no connection is excluded.
type Delivery interface {
	Deliver(connID string, frame []byte)
	DeliverToAll(frame []byte, exceptConnID string)
}

// Presence translates registry mutations into userJoined/userLeft/activeUsers
// notifications.
type Presence struct {
	registry *Registry
	delivery Delivery
	log      *zap.Logger
}

// NewPresence creates a presence broadcaster over the given registry and
// delivery sink.
func NewPresence(registry *Registry, delivery Delivery, log *zap.Logger) *Presence {
	return &Presence{registry: registry, delivery: delivery, log: log}
}

// AnnounceJoin tells everyone else that sess joined and sends the joiner a
// roster snapshot taken after the join, so the snapshot includes the joiner.
func (p *Presence) AnnounceJoin(sess *Session) {
	joined, err := encodeEvent(EventUserJoined, sess.Name)
	if err != nil {
		p.log.Error("Failed to encode userJoined event", zap.Error(err))
		return
	}
	p.delivery.DeliverToAll(joined, sess.ConnID)

	roster, err := encodeEvent(EventActiveUsers, p.registry.Roster())
	if err != nil {
		p.log.Error("Failed to encode activeUsers event", zap.Error(err))
		return
	}
	p.delivery.Deliver(sess.ConnID, roster)

	p.log.Info("User joined the chat",
		zap.String("name", sess.Name),
		zap.Int("sessions", p.registry.Len()))
}

// AnnounceLeave tells every remaining connection that sess left. Callers must
// only invoke it for connections that actually had a session; clients derive
// the population incrementally, so no roster snapshot accompanies a leave.
func (p *Presence) AnnounceLeave(sess *Session) {
	left, err := encodeEvent(EventUserLeft, sess.Name)
	if err != nil {
		p.log.Error("Failed to encode userLeft event", zap.Error(err))
		return
	}
	p.delivery.DeliverToAll(left, sess.ConnID)

	p.log.Info("User left the chat",
		zap.String("name", sess.Name),
		zap.Int("sessions", p.registry.Len()))
}
