// Package ws is the daemon's HTTP/WebSocket surface: a REST API over
// the session registry and focus router, plus an event feed that
// pushes every routing transition to connected clients.
//
// The server owns the transport handles.  The session core performs no
// I/O, so every create request establishes its transport here first
// and only then tells the registry about the session; dead transports
// come back in through the OnClose callback as error transitions.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"switchboard/config"
	"switchboard/eventbus"
	"switchboard/focus"
	sberr "switchboard/internal/errors"
	"switchboard/internal/metrics"
	"switchboard/internal/proc"
	"switchboard/internal/retry"
	"switchboard/session"
	"switchboard/tunnel"
	"switchboard/util"
)

// statRemoteAddr is the session stat key carrying a socket session's
// peer address.
const statRemoteAddr = "remoteAddr"

// Connectors groups one connector per session type, so tests can swap
// in fakes for any transport.
type Connectors struct {
	Local  tunnel.Connector
	Remote tunnel.Connector
	Socket tunnel.Connector
}

// Server is the daemon: one registry, one router, one bus, one feed,
// and the live transport handles keyed by session id.
type Server struct {
	cfg      *config.Config
	registry *session.Registry
	router   *focus.Router
	bus      *eventbus.Bus
	feed     *Feed
	conns    Connectors
	logger   *util.Logger
	metrics  *metrics.Collector

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	mu       sync.Mutex
	baseCtx  context.Context
	handles  map[string]tunnel.Handle
	breakers map[string]*retry.CircuitBreaker
}

// NewServer wires the daemon together.  Run starts serving; handlers
// are also usable directly under httptest.
func NewServer(cfg *config.Config, registry *session.Registry, router *focus.Router, bus *eventbus.Bus, conns Connectors, logger *util.Logger, m *metrics.Collector) *Server {
	s := &Server{
		cfg:            cfg,
		registry:       registry,
		router:         router,
		bus:            bus,
		feed:           NewFeed(registry, router, bus, logger, m),
		conns:          conns,
		logger:         logger,
		metrics:        m,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		handles:        make(map[string]tunnel.Handle),
		breakers:       make(map[string]*retry.CircuitBreaker),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// SetupRoutes registers every daemon endpoint on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.guard(s.handleFeed))
	mux.HandleFunc("/api/sessions", s.guard(s.handleSessions))
	mux.HandleFunc("/api/sessions/", s.guard(s.handleSessionRoutes))
	mux.HandleFunc("/api/focus", s.guard(s.handleFocus))
	mux.HandleFunc("/api/contexts/", s.guard(s.handleContextRoutes))
	mux.HandleFunc("/api/stats", s.guard(s.handleStats))
	mux.HandleFunc("/api/profiles", s.guard(s.handleProfiles))
	mux.HandleFunc("/api/profiles/probe", s.guard(s.handleProbe))
}

// Run serves until ctx is cancelled, then drains in-flight requests
// within the shutdown grace period and tears down every live
// transport.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	go s.feed.Run(ctx)

	srv := &http.Server{
		Addr:    util.FormatAddr(s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening on http://%s", srv.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		srv.Close()
	}
	s.closeHandles()
	s.bus.Close()
	return nil
}

// ── session endpoints ────────────────────────────────────────────────

// createSessionRequest is the body of POST /api/sessions.
type createSessionRequest struct {
	Type string `json:"type"`

	// Profile names a configured remote profile (remote-shell only).
	Profile string `json:"profile,omitempty"`

	// Host and Port address a socket session directly; Host may also
	// be a unix socket path.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	WorkingDir  string `json:"workingDir,omitempty"`
	ContextID   string `json:"contextId,omitempty"`
	Interactive *bool  `json:"interactive,omitempty"`
	Persistent  *bool  `json:"persistent,omitempty"`
}

// createPlan is a resolved create request: which connector to dial
// with which profile, and what the registry should record.
type createPlan struct {
	typ        session.Type
	connector  tunnel.Connector
	profile    config.Profile
	cfg        session.Config
	breakerKey string
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.registry.List())
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	// Parse: /api/sessions/{id}[/commands|/attach]
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)

	id, err := url.PathUnescape(parts[0])
	if err != nil || id == "" {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSession(w, id)
		case http.MethodDelete:
			s.handleDeleteSession(w, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "commands":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleCommand(w, r, id)
	case "attach":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleAttach(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	plan, err := s.planCreate(req)
	if err != nil {
		s.fail(w, err)
		return
	}

	// Establish first: the registry only learns about sessions whose
	// transport exists.
	h, err := s.establish(r.Context(), plan.breakerKey, plan.connector, plan.profile)
	if err != nil {
		s.fail(w, err)
		return
	}

	id := s.registry.CreateSession(plan.typ, plan.cfg)
	s.putHandle(id, h)
	s.metrics.SessionStarted()
	if req.ContextID != "" {
		s.router.BindContext(req.ContextID, id)
	}

	// Registration fires the callback synchronously when the transport
	// died between establish and here; sessionDied then removes the
	// session before the transition below runs.
	h.OnClose(func() { s.sessionDied(id) })

	if err := s.registry.Transition(id, session.StateRunning); err != nil {
		// The only way to get here is the transport dying mid-create,
		// so report the lost transport rather than the session lookup.
		s.takeHandle(id)
		h.Close()
		s.fail(w, &sberr.NetworkError{
			Op:        "establish",
			Addr:      h.Addr(),
			Err:       sberr.New("transport closed during session start"),
			Retryable: true,
		})
		return
	}

	s.logger.Info("session %s: %s established on %s", id, plan.typ, h.Addr())

	if plan.typ == session.TypeSocket {
		if err := s.registry.SetStat(id, statRemoteAddr, session.StringStat(h.Addr())); err != nil {
			s.logger.Debug("session %s: %v", id, err)
		}
	}
	if plan.typ == session.TypeLocal && !s.cfg.Session.DisableProcStats {
		// Local commands run as children of the daemon, so the daemon
		// process is the one to watch.
		smp := &proc.Sampler{
			SessionID: id,
			PID:       int32(os.Getpid()),
			Logger:    s.logger,
		}
		go smp.Run(s.baseContext(), s.registry)
	}

	snap, _ := s.registry.Get(id)
	writeJSON(w, http.StatusCreated, snap)
}

// planCreate resolves a create request against the configuration.
func (s *Server) planCreate(req createSessionRequest) (createPlan, error) {
	t, ok := session.ParseType(req.Type)
	if !ok {
		return createPlan{}, &sberr.ConfigError{
			Field:   "type",
			Value:   req.Type,
			Message: "unknown session type",
			Hint:    "one of local, remote-shell, socket",
		}
	}

	plan := createPlan{
		typ: t,
		cfg: session.Config{
			Interactive: req.Interactive,
			Persistent:  req.Persistent,
			ContextID:   req.ContextID,
			WorkingDir:  req.WorkingDir,
		},
	}

	switch t {
	case session.TypeLocal:
		if plan.cfg.WorkingDir == "" {
			plan.cfg.WorkingDir = s.cfg.Session.WorkingDir
		}
		plan.connector = s.localConnector(plan.cfg.WorkingDir)
		plan.breakerKey = "local"

	case session.TypeRemoteShell:
		if req.Profile == "" {
			return createPlan{}, &sberr.ConfigError{
				Field:   "profile",
				Message: "required for remote-shell sessions",
			}
		}
		p, ok := s.cfg.FindProfile(req.Profile)
		if !ok {
			return createPlan{}, &sberr.ConfigError{
				Field:   "profile",
				Value:   req.Profile,
				Message: "no such profile",
			}
		}
		plan.connector = s.conns.Remote
		plan.profile = p
		plan.breakerKey = p.Host
		plan.cfg.Profile = &session.ProfileRef{
			Name: p.Name,
			Host: p.Host,
			User: p.User,
			Port: p.Port,
		}

	case session.TypeSocket:
		if req.Host == "" {
			return createPlan{}, &sberr.ConfigError{
				Field:   "host",
				Message: "required for socket sessions",
			}
		}
		plan.connector = s.conns.Socket
		plan.profile = config.Profile{Host: req.Host, Port: req.Port}
		plan.breakerKey = req.Host
	}
	return plan, nil
}

// localConnector returns the local connector, copied with the request
// working directory when one was asked for.
func (s *Server) localConnector(workdir string) tunnel.Connector {
	c := s.conns.Local
	if workdir == "" {
		return c
	}
	base, ok := c.(*tunnel.LocalConnector)
	if !ok {
		return c
	}
	override := *base
	override.WorkingDir = workdir
	return &override
}

// establish runs the connector under the target's circuit breaker with
// backoff between fresh attempts.  A rejected credential, a bad
// profile, or an open circuit aborts the retry loop immediately.
func (s *Server) establish(ctx context.Context, key string, c tunnel.Connector, p config.Profile) (tunnel.Handle, error) {
	br := s.breakerFor(key)
	backoff := &retry.Backoff{
		InitialDelay: s.cfg.Connect.RetryInitialDelay,
		MaxDelay:     s.cfg.Connect.RetryMaxDelay,
		Multiplier:   2.0,
		MaxAttempts:  s.cfg.Connect.RetryAttempts,
		Jitter:       true,
	}

	var h tunnel.Handle
	err := backoff.Do(ctx, func(attempt int) error {
		err := br.Execute(func() error {
			got, err := c.Establish(ctx, p)
			if err != nil {
				s.metrics.ConnectFailure()
				return err
			}
			h = got
			return nil
		})
		if err == nil {
			return nil
		}
		s.logger.Verbose("establish %s: attempt %d: %v", key, attempt, err)
		if sberr.Is(err, sberr.ErrCircuitOpen) || !sberr.IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.metrics.RecordError(err.Error())
		return nil, err
	}
	return h, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, id string) {
	snap, ok := s.registry.Get(id)
	if !ok {
		s.fail(w, &sberr.UnknownSessionError{ID: id})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, id string) {
	if _, ok := s.registry.Get(id); !ok {
		s.fail(w, &sberr.UnknownSessionError{ID: id})
		return
	}

	// Close the transport first, deliberately, so its OnClose callback
	// stays quiet while the session walks to stopped.
	if h := s.takeHandle(id); h != nil {
		h.Close()
	}

	if err := s.registry.Transition(id, session.StateStopping); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.registry.Transition(id, session.StateStopped); err != nil {
		s.fail(w, err)
		return
	}

	s.metrics.SessionEnded()
	s.logger.Info("session %s: closed", id)
	w.WriteHeader(http.StatusNoContent)
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	SessionID string `json:"sessionId"`
	Output    string `json:"output"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, id string) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		http.Error(w, "command required", http.StatusBadRequest)
		return
	}

	h := s.handleFor(id)
	if h == nil {
		s.fail(w, &sberr.UnknownSessionError{ID: id})
		return
	}

	if err := s.registry.RecordCommand(id, req.Command); err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.CommandExecuted()

	out, err := h.Execute(r.Context(), req.Command)
	if err != nil {
		s.metrics.RecordError(err.Error())
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{SessionID: id, Output: out})
}

// sessionDied is the OnClose callback for every established handle:
// the transport died underneath a session, so the session leaves
// service through the error state.
func (s *Server) sessionDied(id string) {
	s.logger.Warn("session %s: transport died", id)
	s.metrics.RecordError(fmt.Sprintf("session %s: transport died", id))

	if h := s.takeHandle(id); h != nil {
		h.Close()
	}
	if err := s.registry.Transition(id, session.StateError); err != nil {
		s.logger.Debug("session %s: %v", id, err)
		return
	}
	s.metrics.SessionEnded()
}

// ── focus and context endpoints ──────────────────────────────────────

type focusRequest struct {
	SessionID string `json:"sessionId"`
	ContextID string `json:"contextId,omitempty"`
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.router.Snapshot())
	case http.MethodPost:
		var req focusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			http.Error(w, "sessionId required", http.StatusBadRequest)
			return
		}
		// Focus is unconditional: the session may still be starting,
		// or may be gone already.
		s.router.Focus(req.SessionID, req.ContextID)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		s.router.ClearFocus()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type bindRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleContextRoutes(w http.ResponseWriter, r *http.Request) {
	// Parse: /api/contexts/{id}[/bind]
	path := strings.TrimPrefix(r.URL.Path, "/api/contexts/")
	parts := strings.SplitN(path, "/", 2)

	ctxID, err := url.PathUnescape(parts[0])
	if err != nil || ctxID == "" {
		http.Error(w, "invalid context id", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.router.CleanupContext(ctxID)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if parts[1] != "bind" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		http.Error(w, "sessionId required", http.StatusBadRequest)
		return
	}
	s.router.BindContext(ctxID, req.SessionID)
	w.WriteHeader(http.StatusNoContent)
}

// ── diagnostics endpoints ────────────────────────────────────────────

type statsResponse struct {
	Sessions session.Stats    `json:"sessions"`
	Focus    focus.Snapshot   `json:"focus"`
	App      metrics.Snapshot `json:"app"`
	Bus      eventbus.Metrics `json:"bus"`
	Clients  int              `json:"feedClients"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.metrics.RecordHealthCheck()
	writeJSON(w, http.StatusOK, statsResponse{
		Sessions: s.registry.Stats(),
		Focus:    s.router.Snapshot(),
		App:      s.metrics.Snapshot(),
		Bus:      s.bus.Metrics(),
		Clients:  s.feed.ClientCount(),
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Credential material never leaves the daemon.
	refs := make([]session.ProfileRef, 0, len(s.cfg.Profiles))
	for _, p := range s.cfg.Profiles {
		refs = append(refs, session.ProfileRef{
			Name: p.Name,
			Host: p.Host,
			User: p.User,
			Port: p.Port,
		})
	}
	writeJSON(w, http.StatusOK, refs)
}

type probeRequest struct {
	Host  string `json:"host"`
	Ports []int  `json:"ports"`
}

type probeResponse struct {
	Host    string               `json:"host"`
	Results []tunnel.ProbeResult `json:"results"`
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req probeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Host == "" || len(req.Ports) == 0 {
		http.Error(w, "host and ports required", http.StatusBadRequest)
		return
	}
	results := tunnel.Probe(r.Context(), req.Host, req.Ports,
		s.cfg.Connect.ProbeTimeout, s.cfg.Connect.ProbeConcurrency, nil)
	writeJSON(w, http.StatusOK, probeResponse{Host: req.Host, Results: results})
}

// ── event feed endpoint ──────────────────────────────────────────────

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Verbose("feed: upgrade %s: %v", r.RemoteAddr, err)
		return
	}

	s.logger.Info("feed: client connected: %s", r.RemoteAddr)
	c := s.feed.AddClient(conn)

	// Drain (and discard) client frames so close frames and pings are
	// processed; the feed is push-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.feed.RemoveClient(c)
	s.logger.Info("feed: client disconnected: %s", r.RemoteAddr)
}

// ── auth, origins, plumbing ──────────────────────────────────────────

// guard enforces bearer-token auth on an endpoint.
func (s *Server) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	token := s.cfg.Server.AuthToken
	if token == "" {
		return true
	}
	if r.URL.Query().Get("token") == token {
		return true
	}
	if r.Header.Get("X-Switchboard-Token") == token {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}
	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}
	return false
}

// baseContext is the lifetime for background work spawned by handlers
// (proc samplers).  Before Run it falls back to Background, which
// tests rely on.
func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

func (s *Server) putHandle(id string, h tunnel.Handle) {
	s.mu.Lock()
	s.handles[id] = h
	s.mu.Unlock()
}

func (s *Server) handleFor(id string) tunnel.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[id]
}

// takeHandle removes and returns the handle for id, or nil.
func (s *Server) takeHandle(id string) tunnel.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[id]
	delete(s.handles, id)
	return h
}

func (s *Server) closeHandles() {
	s.mu.Lock()
	handles := make([]tunnel.Handle, 0, len(s.handles))
	for id, h := range s.handles {
		handles = append(handles, h)
		delete(s.handles, id)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}

// breakerFor returns the circuit breaker guarding establishment
// against one target, creating it on first use.
func (s *Server) breakerFor(key string) *retry.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	br, ok := s.breakers[key]
	if !ok {
		br = retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
			MaxFailures:  s.cfg.Connect.BreakerThreshold,
			ResetTimeout: s.cfg.Connect.BreakerReset,
			OnStateChange: func(from, to retry.State) {
				s.logger.Warn("breaker %s: %s -> %s", key, from, to)
			},
		})
		s.breakers[key] = br
	}
	return br
}

// fail maps a domain error onto its HTTP status.
func (s *Server) fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	var ne *sberr.NetworkError
	switch {
	case sberr.IsUnknownSession(err):
		return http.StatusNotFound
	case sberr.IsInvalidTransition(err):
		return http.StatusConflict
	case sberr.Is(err, sberr.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case sberr.Is(err, sberr.ErrHandleClosed):
		return http.StatusConflict
	case sberr.IsConfig(err):
		return http.StatusBadRequest
	case sberr.IsAuth(err):
		return http.StatusUnauthorized
	case sberr.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case sberr.As(err, &ne):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // headers are out; nothing left to report
}
