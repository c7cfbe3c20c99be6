// Package server tracks the binding of connections to display names via the
// session registry, the single source of truth for the roster.
package server

import (
	"errors"
	"strings"
	"time"
)

// Errors surfaced by the registry and router. They are logged server-side and
// deliberately never relayed to the offending client.
var (
	ErrNameRequired      = errors.New("display name must not be empty")
	ErrNoSession         = errors.New("connection has no session")
	ErrRecipientNotFound = errors.New("recipient is not joined")
	ErrEmptyMessage      = errors.New("message text must not be empty")
)

// Session binds one connection to one chosen display name. The typing flag
// follows explicit typing events and is cleared implicitly by a broadcast;
// no timer clears it server-side.
type Session struct {
	ConnID   string
	Name     string
	Typing   bool
	JoinedAt time.Time
}

// Registry holds all live sessions in join order. It performs no locking of
// its own: every call must come from the hub's run loop, which is the single
// writer for all session state.
type Registry struct {
	sessions map[string]*Session
	order    []string
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register creates or overwrites the session for connID. Names are trimmed;
// a name that is empty after trimming fails with ErrNameRequired and leaves
// the registry untouched. Overwriting keeps the session's roster position.
// Display names are not required to be unique.
func (r *Registry) Register(connID, name string) (*Session, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, ErrNameRequired
	}

	if existing, ok := r.sessions[connID]; ok {
		existing.Name = trimmed
		return existing, nil
	}

	sess := &Session{
		ConnID:   connID,
		Name:     trimmed,
		JoinedAt: time.Now(),
	}
	r.sessions[connID] = sess
	r.order = append(r.order, connID)
	return sess, nil
}

// Unregister removes and returns the session for connID. It reports false
// when the connection never joined, in which case nothing changes.
func (r *Registry) Unregister(connID string) (*Session, bool) {
	sess, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}

	delete(r.sessions, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return sess, true
}

// Session returns the current session for connID, if any.
func (r *Registry) Session(connID string) (*Session, bool) {
	sess, ok := r.sessions[connID]
	return sess, ok
}

// LookupByName resolves a display name to a connection id. When several
// sessions share the name, the earliest-joined one wins; the ambiguity is a
// documented limitation, not resolved here.
func (r *Registry) LookupByName(name string) (string, bool) {
	for _, id := range r.order {
		if r.sessions[id].Name == name {
			return id, true
		}
	}
	return "", false
}

// ConnIDs returns a snapshot of all joined connection ids in join order.
func (r *Registry) ConnIDs() []string {
	return append([]string(nil), r.order...)
}

// Roster returns a snapshot of all joined display names in join order.
func (r *Registry) Roster() []string {
	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		names = append(names, r.sessions[id].Name)
	}
	return names
}

// SetTyping records the typing flag for connID's session.
func (r *Registry) SetTyping(connID string, typing bool) (*Session, bool) {
	sess, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	sess.Typing = typing
	return sess, true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}
