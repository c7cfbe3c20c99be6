// Package server coordinates client registration, event dispatch, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// inboundEvent pairs a decoded frame with the connection that produced it.
type inboundEvent struct {
	client   *Client
	envelope Envelope
}

// Hub is the connection gateway. It owns every live Client, the session
// registry, and the presence/router components built on top of it. All
// session and roster mutations happen on the Run goroutine, which serializes
// register/unregister/content events into a linearizable history; the mutex
// only guards the client map for delivery paths.
type Hub struct {
	clients    map[string]*Client
	registry   *Registry
	presence   *Presence
	router     *Router
	inbound    chan inboundEvent
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	cfg        Config
	log        *zap.Logger
}

// NewHub creates a Hub with its registry, presence broadcaster, and message
// router wired together. The returned Hub is ready to accept connections once
// Run is started.
func NewHub(cfg Config, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		registry:   NewRegistry(),
		inbound:    make(chan inboundEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		cfg:        cfg,
		log:        log,
	}
	h.presence = NewPresence(h.registry, h, log)
	h.router = NewRouter(h.registry, h, log)
	return h
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Deliver sends a frame to one connection. The send is non-blocking and
// best-effort: a missing, closed, or saturated client is skipped.
func (h *Hub) Deliver(connID string, frame []byte) {
	h.mutex.RLock()
	client := h.clients[connID]
	h.mutex.RUnlock()

	if client == nil {
		return
	}
	if !h.safeSend(client, frame) {
		h.evictClients([]*Client{client})
	}
}

// DeliverToAll sends a frame to every connection except the one identified by
// exceptConnID (empty means no exclusion). Clients whose send buffers are
// full are evicted so a slow consumer never blocks delivery to the rest.
func (h *Hub) DeliverToAll(frame []byte, exceptConnID string) {
	clients := h.getClientSnapshot()

	var failed []*Client
	for _, client := range clients {
		if exceptConnID != "" && client.id == exceptConnID {
			continue
		}
		if !h.safeSend(client, frame) {
			failed = append(failed, client)
		}
	}
	h.evictClients(failed)
}

func (h *Hub) safeSend(client *Client, frame []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("Recovered from panic in safeSend", zap.Any("panic", r))
		}
	}()

	// Hold the lock during the entire send so unregister cannot close the
	// channel mid-send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

// Run is the hub's main event loop. It must be started in its own goroutine
// and runs until Shutdown cancels it. Every registry mutation and every
// content event is processed here, one at a time.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case evt := <-h.inbound:
			h.dispatch(evt)
		}
	}
}

// addClient places a connection in the Connected state and starts its pumps.
func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.log.Info("Client connected",
		zap.String("conn", client.id),
		zap.String("addr", client.addr),
		zap.Int("clients", clientCount))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// removeClient tears a connection down. If the peer had joined, the remaining
// connections are told it left; a peer that disconnects before joining is
// removed silently.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	h.log.Info("Client disconnected",
		zap.String("conn", client.id),
		zap.String("addr", client.addr),
		zap.Int("clients", clientCount))

	if sess, ok := h.registry.Unregister(client.id); ok {
		h.presence.AnnounceLeave(sess)
	}
}

// evictClients drops clients that failed a delivery, then announces the
// departure of any that had joined.
func (h *Hub) evictClients(clients []*Client) {
	if len(clients) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	var evicted []*Client
	for _, client := range clients {
		if _, exists := h.clients[client.id]; exists {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			evicted = append(evicted, client)
			h.log.Warn("Client removed due to full send buffer",
				zap.String("conn", client.id),
				zap.String("addr", client.addr))
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}

	for _, client := range evicted {
		if sess, ok := h.registry.Unregister(client.id); ok {
			h.presence.AnnounceLeave(sess)
		}
	}
}

// dispatch routes one inbound event. Identity events go to the registry and
// presence broadcaster; content events go to the router, whose session check
// is the single validation layer. Failures are logged and suppressed — no
// error event goes back to the peer.
func (h *Hub) dispatch(evt inboundEvent) {
	client := evt.client
	env := evt.envelope

	switch env.Event {
	case EventJoin:
		var name string
		if err := json.Unmarshal(env.Data, &name); err != nil {
			h.log.Debug("Dropping malformed join payload",
				zap.String("conn", client.id), zap.Error(err))
			return
		}
		sess, err := h.registry.Register(client.id, name)
		if err != nil {
			// Stays Connected; the peer gets no rejection event.
			h.log.Debug("Rejected join",
				zap.String("conn", client.id), zap.Error(err))
			return
		}
		h.presence.AnnounceJoin(sess)

	case EventSendMessage:
		var payload ChatPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.log.Debug("Dropping malformed sendMessage payload",
				zap.String("conn", client.id), zap.Error(err))
			return
		}
		if err := h.router.Broadcast(client.id, payload.Text); err != nil {
			h.log.Debug("Dropped broadcast",
				zap.String("conn", client.id), zap.Error(err))
		}

	case EventTyping:
		var isTyping bool
		if err := json.Unmarshal(env.Data, &isTyping); err != nil {
			h.log.Debug("Dropping malformed typing payload",
				zap.String("conn", client.id), zap.Error(err))
			return
		}
		if err := h.router.SetTyping(client.id, isTyping); err != nil {
			h.log.Debug("Dropped typing event",
				zap.String("conn", client.id), zap.Error(err))
		}

	case EventPrivateMessage:
		var payload PrivatePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.log.Debug("Dropping malformed privateMessage payload",
				zap.String("conn", client.id), zap.Error(err))
			return
		}
		if err := h.router.SendPrivate(client.id, payload.Recipient, payload.Message); err != nil {
			h.log.Debug("Dropped private message",
				zap.String("conn", client.id), zap.Error(err))
		}

	default:
		h.log.Debug("Dropping unknown event",
			zap.String("conn", client.id), zap.String("event", env.Event))
	}
}

func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.log.Warn("Error closing client connection",
						zap.String("addr", client.addr), zap.Error(err))
				}
			}
		}
	}

	h.log.Info("Closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the run loop, closes every connection, and waits for the
// pump goroutines to finish or the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
