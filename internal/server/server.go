// Package server exposes the task API and the real-time socket endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	restful "github.com/emicklei/go-restful/v3"

	"github.com/glimmerhq/glimpse/internal/auth"
	"github.com/glimmerhq/glimpse/internal/notify"
	"github.com/glimmerhq/glimpse/internal/realtime"
	"github.com/glimmerhq/glimpse/internal/storage"
	"github.com/glimmerhq/glimpse/internal/task"
)

// Config holds server configuration.
type Config struct {
	// Port to listen on (0 picks a random free port).
	Port int

	// SocketPath is where the websocket endpoint is mounted.
	SocketPath string

	// Credentials maps usernames to passwords for session issuance.
	// Identity-provider integration stays an external concern; this is
	// the same config-backed credential store the test environment uses.
	Credentials map[string]string

	// Logger for server activity.
	Logger *log.Logger
}

// Server ties the REST routes, the realtime hub, and the reminder scheduler
// together over one repository.
type Server struct {
	cfg       Config
	repo      storage.Repository
	issuer    *auth.Issuer
	hub       *realtime.Hub
	scheduler *notify.Scheduler
	logger    *log.Logger

	listener net.Listener
	httpSrv  *http.Server
	wg       sync.WaitGroup

	limiter *rateLimiter
}

// New creates a server. The hub and scheduler are owned by the caller; nil
// disables the corresponding wiring (used by tests that only exercise the
// REST surface).
func New(cfg Config, repo storage.Repository, issuer *auth.Issuer, hub *realtime.Hub, scheduler *notify.Scheduler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/ws"
	}

	return &Server{
		cfg:       cfg,
		repo:      repo,
		issuer:    issuer,
		hub:       hub,
		scheduler: scheduler,
		logger:    cfg.Logger,
		limiter:   newRateLimiter(15*time.Minute, 100),
	}
}

// Handler builds the full HTTP handler: the REST container plus the socket
// endpoint.
func (s *Server) Handler() http.Handler {
	container := restful.NewContainer()

	ws := new(restful.WebService)
	ws.Path("/api").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	ws.Route(ws.GET("/tasks").Filter(s.rateLimit).Filter(s.requireUser).To(s.getWeekTasks))
	ws.Route(ws.POST("/tasks").Filter(s.rateLimit).Filter(s.requireUser).To(s.createTask))
	ws.Route(ws.PUT("/tasks").Filter(s.rateLimit).Filter(s.requireUser).To(s.updateTask))
	ws.Route(ws.DELETE("/tasks").Filter(s.rateLimit).Filter(s.requireUser).To(s.deleteTask))

	ws.Route(ws.POST("/session").Filter(s.rateLimit).To(s.createSession))
	ws.Route(ws.DELETE("/session").Filter(s.rateLimit).To(s.deleteSession))

	container.Add(ws)

	mux := http.NewServeMux()
	mux.Handle("/api/", container)
	mux.HandleFunc("/health", s.handleHealth)
	if s.hub != nil {
		mux.Handle(s.cfg.SocketPath, s.hub)
	}
	return mux
}

// Start begins listening. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	s.listener = ln

	s.httpSrv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Server listening on %s", ln.Addr())
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.scheduler != nil {
		s.scheduler.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf(":%d", s.cfg.Port)
}

const userAttribute = "glimpse.user"

// requireUser authenticates the bearer token and stashes the user id on the
// request.
func (s *Server) requireUser(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	header := req.Request.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		writeError(resp, http.StatusUnauthorized, "Unauthorized", "missing session token")
		return
	}

	userID, err := s.issuer.Verify(header[len(prefix):])
	if err != nil {
		writeError(resp, http.StatusUnauthorized, "Unauthorized", "invalid session token")
		return
	}

	req.SetAttribute(userAttribute, userID)
	chain.ProcessFilter(req, resp)
}

func (s *Server) rateLimit(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	host, _, err := net.SplitHostPort(req.Request.RemoteAddr)
	if err != nil {
		host = req.Request.RemoteAddr
	}
	if !s.limiter.allow(host) {
		writeError(resp, http.StatusTooManyRequests, "TooManyRequests", "rate limit exceeded")
		return
	}
	chain.ProcessFilter(req, resp)
}

func requestUser(req *restful.Request) string {
	userID, _ := req.Attribute(userAttribute).(string)
	return userID
}

type weekRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s *Server) getWeekTasks(req *restful.Request, resp *restful.Response) {
	weekParam := req.QueryParameter("week")
	if weekParam == "" {
		writeError(resp, http.StatusBadRequest, "BadRequest", "week parameter is required")
		return
	}

	var week weekRange
	if err := json.Unmarshal([]byte(weekParam), &week); err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", "week parameter must be JSON with start and end")
		return
	}

	tasks, err := s.repo.TasksInRange(req.Request.Context(), requestUser(req), week.Start, week.End)
	if err != nil {
		s.logger.Printf("Error querying tasks: %v", err)
		writeError(resp, http.StatusInternalServerError, "InternalError", "failed to fetch tasks")
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}

	_ = resp.WriteAsJson(tasks)
}

func (s *Server) createTask(req *restful.Request, resp *restful.Response) {
	var t task.Task
	if err := req.ReadEntity(&t); err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", "malformed task")
		return
	}

	t.UserID = requestUser(req)
	if err := t.Validate(); err != nil {
		writeError(resp, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	created, err := s.repo.Create(req.Request.Context(), &t)
	if err != nil {
		s.logger.Printf("Error creating task: %v", err)
		writeError(resp, http.StatusInternalServerError, "InternalError", "failed to create task")
		return
	}

	if s.scheduler != nil && created.DueDate != nil {
		s.scheduler.Schedule(created.ID, created.UserID, *created.DueDate)
	}

	_ = resp.WriteHeaderAndJson(http.StatusCreated, created, restful.MIME_JSON)
}

func (s *Server) updateTask(req *restful.Request, resp *restful.Response) {
	var t task.Task
	if err := req.ReadEntity(&t); err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", "malformed task")
		return
	}
	if t.ID == "" {
		writeError(resp, http.StatusBadRequest, "BadRequest", "task id is required")
		return
	}

	t.UserID = requestUser(req)
	if err := t.Validate(); err != nil {
		writeError(resp, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	updated, err := s.repo.Update(req.Request.Context(), &t)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(resp, http.StatusNotFound, "NotFound", "task not found")
			return
		}
		s.logger.Printf("Error updating task: %v", err)
		writeError(resp, http.StatusInternalServerError, "InternalError", "failed to update task")
		return
	}

	if s.scheduler != nil && updated.DueDate != nil {
		s.scheduler.Schedule(updated.ID, updated.UserID, *updated.DueDate)
	}

	_ = resp.WriteAsJson(updated)
}

func (s *Server) deleteTask(req *restful.Request, resp *restful.Response) {
	var body struct {
		ID string `json:"id"`
	}
	if err := req.ReadEntity(&body); err != nil || body.ID == "" {
		writeError(resp, http.StatusBadRequest, "BadRequest", "task id is required")
		return
	}

	if err := s.repo.Delete(req.Request.Context(), body.ID, requestUser(req)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(resp, http.StatusNotFound, "NotFound", "task not found")
			return
		}
		s.logger.Printf("Error deleting task: %v", err)
		writeError(resp, http.StatusInternalServerError, "InternalError", "failed to delete task")
		return
	}

	_ = resp.WriteAsJson(map[string]bool{"success": true})
}

type sessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func (s *Server) createSession(req *restful.Request, resp *restful.Response) {
	var body sessionRequest
	if err := req.ReadEntity(&body); err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", "malformed credentials")
		return
	}

	password, ok := s.cfg.Credentials[body.Username]
	if !ok || password != body.Password {
		writeError(resp, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}

	token, err := s.issuer.Issue(body.Username)
	if err != nil {
		s.logger.Printf("Error issuing session: %v", err)
		writeError(resp, http.StatusInternalServerError, "InternalError", "failed to issue session")
		return
	}

	_ = resp.WriteAsJson(sessionResponse{UserID: body.Username, Token: token})
}

func (s *Server) deleteSession(req *restful.Request, resp *restful.Response) {
	// Tokens are stateless; revocation is client-side discard.
	_ = resp.WriteAsJson(map[string]bool{"success": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": clients,
	})
}

func writeError(resp *restful.Response, status int, code, message string) {
	_ = resp.WriteHeaderAndJson(status, map[string]string{"error": code, "message": message}, restful.MIME_JSON)
}
