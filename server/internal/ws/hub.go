package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/repairstack/server/internal/api"
	"github.com/obsidianstack/repairstack/server/internal/store"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing queue. A client that falls
	// this far behind is dropped.
	sendBufSize = 32

	// eventQueueSize bounds the records waiting for dispatch.
	eventQueueSize = 64

	// maxFilterMessage caps a client filter update.
	maxFilterMessage = 512
)

// Event names.
const (
	// EventSnapshot carries every live record matching the client's filter.
	// It is the first message on a connection and follows each filter change.
	EventSnapshot = "snapshot"

	// EventEvaluation carries one newly stored record.
	EventEvaluation = "evaluation"

	// EventError reports a rejected filter update. The previous filter stays.
	EventError = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxFilterMessage,
	WriteBufferSize: 4096,
	// CORS is applied by the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients. Data is a list of records
// for snapshots, one record for evaluations and a string for errors.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Filter selects the records a client receives. Empty fields match all.
type Filter struct {
	Scenario string `json:"scenario"`
	Kind     string `json:"kind"`
}

func (f Filter) validate() error {
	switch f.Kind {
	case "", store.KindAvailability, store.KindOptimize, store.KindEvaluate:
		return nil
	}
	return fmt.Errorf("unknown kind %q: want availability|optimize|evaluate", f.Kind)
}

// Match reports whether r passes the filter.
func (f Filter) Match(r *api.RecordResponse) bool {
	return (f.Scenario == "" || f.Scenario == r.Scenario) &&
		(f.Kind == "" || f.Kind == r.Kind)
}

func filterFromQuery(q url.Values) (Filter, error) {
	f := Filter{Scenario: q.Get("scenario"), Kind: q.Get("kind")}
	return f, f.validate()
}

// Hub streams evaluation records to WebSocket clients. The API publishes
// each record as it is stored; Run fans it out to the clients whose filter
// matches.
type Hub struct {
	store  *store.Store
	events chan api.RecordResponse

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	filter Filter // guarded by Hub.mu
}

// New creates a Hub serving snapshots from st.
func New(st *store.Store) *Hub {
	return &Hub{
		store:   st,
		events:  make(chan api.RecordResponse, eventQueueSize),
		clients: make(map[*client]struct{}),
	}
}

// Publish queues rec for delivery. It never blocks; when the queue is full
// the record is dropped and clients see it in their next snapshot.
func (h *Hub) Publish(rec api.RecordResponse) {
	select {
	case h.events <- rec:
	default:
		slog.Warn("ws: event queue full, dropping record", "id", rec.ID)
	}
}

// Run dispatches published records until ctx is cancelled, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case rec := <-h.events:
			h.dispatch(rec)
		}
	}
}

// ServeHTTP upgrades the connection, sends the snapshot for the filter given
// by the scenario and kind query parameters, then streams matching records.
// A client may replace its filter by sending {"scenario": ..., "kind": ...}.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufSize)}
	if !h.subscribe(c, f, true) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	go c.writePump()
	h.readFilters(c)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// subscribe sets c's filter and queues the matching snapshot. Holding the
// write lock orders the snapshot before any record dispatched afterwards; a
// record stored just before may appear in both. It returns false once the
// hub has shut down.
func (h *Hub) subscribe(c *client, f Filter, register bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if register {
		h.clients[c] = struct{}{}
	} else if _, ok := h.clients[c]; !ok {
		return false
	}
	c.filter = f

	records := make([]api.RecordResponse, 0)
	for _, rec := range api.BuildEvaluations(h.store) {
		if f.Match(&rec) {
			records = append(records, rec)
		}
	}
	h.queueLocked(c, Message{Event: EventSnapshot, Data: records})
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked must be called with h.mu held for writing.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// queueLocked encodes msg onto c's queue and must be called with h.mu held.
// It reports false when the queue is full.
func (h *Hub) queueLocked(c *client, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws: encode message failed", "event", msg.Event, "err", err)
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) dispatch(rec api.RecordResponse) {
	var (
		data []byte
		slow []*client
	)

	h.mu.RLock()
	for c := range h.clients {
		if !c.filter.Match(&rec) {
			continue
		}
		if data == nil {
			var err error
			if data, err = json.Marshal(Message{Event: EventEvaluation, Data: rec}); err != nil {
				h.mu.RUnlock()
				slog.Error("ws: encode record failed", "id", rec.ID, "err", err)
				return
			}
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		slog.Warn("ws: dropping slow client", "remote", c.conn.RemoteAddr().String())
		h.removeLocked(c)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// readFilters applies filter updates sent by the client until the
// connection closes.
func (h *Hub) readFilters(c *client) {
	c.conn.SetReadLimit(maxFilterMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f Filter
		if err := json.Unmarshal(msg, &f); err == nil {
			err = f.validate()
		}
		if err != nil {
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.queueLocked(c, Message{Event: EventError, Data: "invalid filter: " + err.Error()})
			}
			h.mu.Unlock()
			continue
		}
		if !h.subscribe(c, f, false) {
			return
		}
		slog.Debug("ws: filter changed", "remote", c.conn.RemoteAddr().String(),
			"scenario", f.Scenario, "kind", f.Kind)
	}
}

// writePump forwards queued messages and keeps the connection alive with
// pings. It closes the connection when the queue is closed.
func (c *client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
