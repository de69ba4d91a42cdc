// Package realtime provides the WebSocket channel for collaborative task
// updates.
//
// Clients subscribe to named rooms and receive every task mutation broadcast
// to their room. Mutations are authorized per task against the user bound to
// the socket at handshake time, persisted through the server repository, and
// then rebroadcast verbatim to all room subscribers including the sender.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/glimmerhq/glimpse/internal/storage"
	"github.com/glimmerhq/glimpse/internal/task"
)

// CalendarRoom is the room whose joiners receive a full task-set catch-up.
const CalendarRoom = "calendar"

const writeTimeout = 5 * time.Second

// Event names on the channel.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventTaskUpdate  = "task update"
	EventTaskUpdated = "task updated"
	EventError       = "error"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// roomPayload is the data of join/leave events.
type roomPayload struct {
	Room string `json:"room"`
}

// updatePayload is the data of a task update event. It is either a batch
// ({tasks: [...], room}) or a single task ({id, ...fields, room}); the batch
// form wins when both are present.
type updatePayload struct {
	Room  string       `json:"room"`
	Tasks []*task.Task `json:"tasks,omitempty"`
	task.Task
}

// errorPayload is the data of an error event, sent to the offender only.
type errorPayload struct {
	Message string `json:"message"`
}

// catchupPayload is the task-set push for new calendar-room joiners.
type catchupPayload struct {
	Room  string       `json:"room"`
	Tasks []*task.Task `json:"tasks"`
}

// TokenVerifier authenticates the handshake token. A failed verification
// yields an anonymous socket, not a rejected connection.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// Publisher mirrors persisted mutations to an external stream. Optional.
type Publisher interface {
	TaskMutated(ctx context.Context, action string, t *task.Task)
}

// client is one connected socket. Events from a single client are handled
// sequentially by its read loop, preserving per-socket ordering; no ordering
// is guaranteed across sockets.
type client struct {
	conn   *websocket.Conn
	userID string // empty for anonymous sockets

	writeMu sync.Mutex
}

func (c *client) send(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, data)
}

// Hub manages connected sockets and their room subscriptions.
type Hub struct {
	repo     storage.Repository
	verifier TokenVerifier
	pub      Publisher
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[*client]bool
	rooms   map[string]map[*client]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub over the given repository. verifier authenticates
// handshakes; pub may be nil to disable mutation mirroring. If logger is
// nil, a default logger writing to stderr is used.
func NewHub(repo storage.Repository, verifier TokenVerifier, pub Publisher, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		repo:     repo,
		verifier: verifier,
		pub:      pub,
		logger:   logger,
		clients:  make(map[*client]bool),
		rooms:    make(map[string]map[*client]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, c)
	}
	h.rooms = make(map[string]map[*client]bool)
}

// ClientCount returns the number of connected sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and runs the client's read loop.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}

	// The handshake token binds the socket to a user. Absent or invalid
	// tokens produce an anonymous socket that can watch but not mutate.
	if token := r.URL.Query().Get("token"); token != "" {
		userID, err := h.verifier.Verify(token)
		if err != nil {
			h.logger.Printf("Rejecting handshake token: %v", err)
		} else {
			c.userID = userID
		}
	}

	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Printf("Client connected (user=%q, total=%d)", c.userID, total)

	go h.readLoop(c)
}

// readLoop handles one client's events in receipt order.
func (h *Hub) readLoop(c *client) {
	defer h.removeClient(c)

	for {
		_, data, err := c.conn.Read(h.ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.sendError(c, "malformed message")
			continue
		}

		switch env.Event {
		case EventJoin:
			h.handleJoin(c, env.Data)
		case EventLeave:
			h.handleLeave(c, env.Data)
		case EventTaskUpdate:
			h.handleTaskUpdate(c, env.Data)
		default:
			h.logger.Printf("Ignoring unknown event %q", env.Event)
		}
	}
}

func (h *Hub) handleJoin(c *client, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		h.sendError(c, "join requires a room")
		return
	}

	h.mu.Lock()
	if h.rooms[p.Room] == nil {
		h.rooms[p.Room] = make(map[*client]bool)
	}
	h.rooms[p.Room][c] = true
	h.mu.Unlock()

	h.logger.Printf("Client joined room %q", p.Room)

	// New calendar joiners have no prior state; push them the full
	// current task set, once, on this socket only.
	if p.Room == CalendarRoom {
		tasks, err := h.repo.AllTasks(h.ctx)
		if err != nil {
			h.logger.Printf("Error fetching tasks for new joiner: %v", err)
			return
		}

		data, err := json.Marshal(catchupPayload{Room: CalendarRoom, Tasks: tasks})
		if err != nil {
			h.logger.Printf("Error encoding catch-up payload: %v", err)
			return
		}
		if err := c.send(h.ctx, &Envelope{Event: EventTaskUpdated, Data: data}); err != nil {
			h.logger.Printf("Error sending catch-up: %v", err)
		}
	}
}

func (h *Hub) handleLeave(c *client, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		return
	}

	h.mu.Lock()
	delete(h.rooms[p.Room], c)
	h.mu.Unlock()

	h.logger.Printf("Client left room %q", p.Room)
}

// handleTaskUpdate authorizes, validates, and persists each task in the
// payload, then rebroadcasts the original payload to the room.
func (h *Hub) handleTaskUpdate(c *client, data json.RawMessage) {
	var p updatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(c, "malformed task update")
		return
	}

	if c.userID == "" {
		h.sendError(c, "unauthorized: no user bound to socket")
		return
	}

	if len(p.Tasks) > 0 {
		for _, t := range p.Tasks {
			h.applyTask(c, t)
		}
	} else if p.ID != "" {
		// Single-task form. The storage query is additionally scoped
		// by owner, but check existence first so the sender gets a
		// useful error for stale ids.
		if _, err := h.repo.TaskByID(h.ctx, p.ID, c.userID); err != nil {
			h.sendError(c, "unauthorized or task not found")
			return
		}
		single := p.Task
		h.applyTask(c, &single)
	} else {
		h.sendError(c, "task update requires tasks or an id")
		return
	}

	// Broadcast the original payload, not the persisted result, to every
	// subscriber of the room including the sender.
	h.broadcast(p.Room, &Envelope{Event: EventTaskUpdated, Data: data})
}

// applyTask persists one task from an update payload. Authorization and
// validation failures affect only this task; siblings in the same batch
// continue.
func (h *Hub) applyTask(c *client, t *task.Task) {
	// Per-task ownership check: a batch may mix tasks from different
	// claimed owners.
	if t.UserID != c.userID {
		h.logger.Printf("Unauthorized task update attempt: %q", t.ID)
		return
	}

	if err := t.Validate(); err != nil {
		h.sendError(c, "invalid task: "+err.Error())
		return
	}

	var (
		persisted *task.Task
		action    string
		err       error
	)
	if t.ID == "" {
		persisted, err = h.repo.Create(h.ctx, t)
		action = "created"
	} else {
		persisted, err = h.repo.Update(h.ctx, t)
		action = "updated"
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.sendError(c, "task not found: "+t.ID)
		} else {
			h.logger.Printf("Error persisting task: %v", err)
			h.sendError(c, "failed to update task")
		}
		return
	}

	if h.pub != nil {
		h.pub.TaskMutated(h.ctx, action, persisted)
	}
}

// broadcast sends an envelope to every subscriber of the room.
func (h *Hub) broadcast(room string, env *Envelope) {
	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		if err := c.send(h.ctx, env); err != nil {
			h.logger.Printf("Failed to send to client: %v", err)
			h.removeClient(c)
		}
	}
}

// sendError emits an error event to a single client.
func (h *Hub) sendError(c *client, message string) {
	data, err := json.Marshal(errorPayload{Message: message})
	if err != nil {
		return
	}
	if err := c.send(h.ctx, &Envelope{Event: EventError, Data: data}); err != nil {
		h.logger.Printf("Failed to send error to client: %v", err)
	}
}

// removeClient deregisters a client from the hub and all rooms.
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, exists := h.clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for _, subscribers := range h.rooms {
		delete(subscribers, c)
	}
	total := len(h.clients)
	h.mu.Unlock()

	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Printf("Client disconnected (total: %d)", total)
}
