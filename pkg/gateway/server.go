// Package gateway serves the tool catalog over JSON-RPC 2.0, both as
// single-shot HTTP POSTs on /rpc and over authenticated websockets on /ws.
// It also hosts /healthz, /metrics and, when configured, the MCP HTTP transport.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/erptools/internal/observability"
	"github.com/harun/erptools/internal/tracing"
	"github.com/harun/erptools/pkg/toolexecutor"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	TransportHTTP = "rpc-http"
	TransportWS   = "rpc-ws"

	defaultMaxBodyBytes = 1 << 20
	shutdownTimeout     = 10 * time.Second
	limiterIdleTTL      = 10 * time.Minute
)

// Server is the JSON-RPC gateway
type Server struct {
	addr         string
	tickInterval time.Duration
	maxBodyBytes int64
	rateLimit    int
	concurrency  int

	upgrader    websocket.Upgrader
	clients     *ClientRegistry
	router      *RPCRouter
	authHandler *AuthHandler
	broadcaster *EventBroadcaster
	httpLimits  *limiterSet
	executor    *toolexecutor.ToolExecutor
	health      StatusReporter
	mcpHandler  http.Handler
	logger      zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host               string
	Port               int
	SharedSecret       string
	RateLimitPerMinute int
	MaxConcurrent      int
	MaxBodyBytes       int64
	TickInterval       time.Duration
	Executor           *toolexecutor.ToolExecutor
	Health             StatusReporter
	MCPHandler         http.Handler
	Logger             zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	clients := NewClientRegistry()
	s := &Server{
		addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		tickInterval: cfg.TickInterval,
		maxBodyBytes: cfg.MaxBodyBytes,
		rateLimit:    cfg.RateLimitPerMinute,
		concurrency:  cfg.MaxConcurrent,
		clients:      clients,
		router:       NewRPCRouter(),
		authHandler:  NewAuthHandler(cfg.SharedSecret),
		broadcaster:  NewEventBroadcaster(clients, cfg.Logger),
		httpLimits:   newLimiterSet(cfg.RateLimitPerMinute, cfg.MaxConcurrent),
		executor:     cfg.Executor,
		health:       cfg.Health,
		mcpHandler:   cfg.MCPHandler,
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	if !s.authHandler.Enabled() {
		s.logger.Warn().Msg("Gateway shared secret not set; requests are not authenticated")
	}

	s.registerBuiltinMethods()
	return s, nil
}

// Handler returns the gateway's HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", observability.MetricsHandler())
	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.requireSecret(s.mcpHandler))
	}
	return mux
}

// Serve listens on the configured address until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener until ctx is done
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting gateway server")

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go s.runMaintenance(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway server: %w", err)
	case <-ctx.Done():
	}

	return s.shutdown(httpServer)
}

func (s *Server) shutdown(httpServer *http.Server) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	for _, client := range s.clients.All() {
		client.Conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// runMaintenance prunes idle HTTP limiters and emits lifecycle ticks
func (s *Server) runMaintenance(ctx context.Context) {
	prune := time.NewTicker(time.Minute)
	defer prune.Stop()

	var tick <-chan time.Time
	if s.tickInterval > 0 {
		t := time.NewTicker(s.tickInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-prune.C:
			if n := s.httpLimits.prune(limiterIdleTTL); n > 0 {
				s.logger.Debug().Int("removed", n).Msg("Pruned idle rate limiters")
			}
		case <-tick:
			s.broadcaster.BroadcastTyped(EventMessage{
				Event:  "tick",
				Stream: StreamTypeLifecycle,
				Phase:  "tick",
				Data: map[string]interface{}{
					"status": "alive",
				},
			})
		}
	}
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// beginRequest counts a request as in flight unless shutdown has started.
// The check and the Add share shutdownMu so no Add can follow shutdown's Wait.
func (s *Server) beginRequest() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShuttingDown {
		return false
	}
	s.inFlightReqs.Add(1)
	return true
}

// requireSecret rejects HTTP requests without the shared secret
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authHandler.CheckRequest(r) {
			observability.RecordRPCRejected("unauthorized")
			observability.RecordSecurityAudit(r.Context(), "gateway.auth", remoteHost(r), "denied",
				map[string]interface{}{"path": r.URL.Path})
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealthz reports liveness plus the last platform probe
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	report := s.healthReport()
	code := http.StatusOK
	if report["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

// handleRPC handles single-shot HTTP JSON-RPC requests
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.beginRequest() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.inFlightReqs.Done()
	if !s.authHandler.CheckRequest(r) {
		observability.RecordRPCRejected("unauthorized")
		observability.RecordSecurityAudit(r.Context(), "gateway.auth", remoteHost(r), "denied",
			map[string]interface{}{"path": r.URL.Path})
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("", InvalidRequest, "request body too large"))
		return
	}

	req, err := s.router.ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, rpcErrorResponse("", err))
		return
	}

	release, reason := s.httpLimits.forRequest(r).Acquire()
	if release == nil {
		observability.RecordRPCRejected(reason)
		writeJSON(w, http.StatusTooManyRequests, errorResponse(req.ID, rejectionCode(reason), reason))
		return
	}
	defer release()

	ctx := callerContext(r.Context(), TransportHTTP, "http:"+remoteHost(r), r.Header.Get("X-Trace-Id"))
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("request_id", string(req.ID)).
		Str("method", req.Method).
		Msg("Gateway received HTTP RPC request")

	resp := s.router.RouteRequest(ctx, req)
	writeJSON(w, http.StatusOK, resp)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client id")
		conn.Close()
		return
	}
	now := time.Now()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    remoteHost(r),
		RateLimiter:  NewClientRateLimiter(s.rateLimit, s.concurrency),
	}
	conn.SetReadLimit(s.maxBodyBytes)

	s.clients.Add(client)
	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", client.IPAddress).
		Msg("Client connected")

	if err := s.greet(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to send auth challenge")
		conn.Close()
		s.clients.Remove(clientID)
		return
	}

	go s.handleClient(context.Background(), client)
}

// greet sends the auth challenge, or accepts the client outright when no secret is configured
func (s *Server) greet(client *Client) error {
	if !s.authHandler.Enabled() {
		client.markAuthenticated()
		return client.WriteJSON(AuthResult{Event: "auth.success", Success: true})
	}

	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}
	client.beginChallenge(challenge)

	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

// handleClient reads messages from a client until it disconnects.
// Tool calls started on the connection are cancelled when it closes.
func (s *Server) handleClient(parent context.Context, client *Client) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		client.Conn.Close()
		client.setState(StateDisconnected)
		s.clients.Remove(client.ID)
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.Touch(client.ID)
		if !s.handleMessage(ctx, client, message) {
			return
		}
	}
}

// handleMessage handles a single message; it returns false when the connection should close
func (s *Server) handleMessage(ctx context.Context, client *Client, message []byte) bool {
	var authResp AuthResponse
	if err := json.Unmarshal(message, &authResp); err == nil && authResp.Method == "auth.response" {
		return s.handleAuthMessage(client, authResp)
	}

	if !client.IsAuthenticated() {
		s.sendError(client, "", AuthenticationRequired, "Authentication required")
		return true
	}

	req, err := s.router.ParseRequest(message)
	if err != nil {
		s.send(client, rpcErrorResponse("", err))
		return true
	}

	release, reason := client.RateLimiter.Acquire()
	if release == nil {
		observability.RecordRPCRejected(reason)
		s.sendError(client, req.ID, rejectionCode(reason), reason)
		return true
	}
	if !s.beginRequest() {
		release()
		s.sendError(client, req.ID, InternalError, "Server is shutting down")
		return true
	}

	go func() {
		defer release()
		defer s.inFlightReqs.Done()

		reqCtx := callerContext(ctx, TransportWS, "ws:"+client.ID, "")
		s.send(client, s.router.RouteRequest(reqCtx, req))
	}()
	return true
}

// handleAuthMessage handles authentication messages; it returns false after too many failures
func (s *Server) handleAuthMessage(client *Client, authResp AuthResponse) bool {
	result := s.authHandler.HandleAuthResponse(client, authResp.Signature)

	if err := client.WriteJSON(result); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return false
	}

	if result.Success {
		s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
		observability.RecordSecurityAudit(context.Background(), "gateway.auth", "ws:"+client.ID, "success", nil)
		return true
	}

	s.logger.Warn().
		Str("clientId", client.ID).
		Str("reason", result.Message).
		Msg("Authentication failed")
	observability.RecordSecurityAudit(context.Background(), "gateway.auth", "ws:"+client.ID, "denied",
		map[string]interface{}{"reason": result.Message})

	return client.AuthAttempts() < maxAuthAttempts
}

func (s *Server) send(client *Client, resp *RPCResponse) {
	if err := client.WriteJSON(resp); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Str("requestId", string(resp.ID)).
			Msg("Failed to send response")
	}
}

// sendError sends an error response to a client
func (s *Server) sendError(client *Client, requestID RequestID, code int, message string) {
	s.send(client, errorResponse(requestID, code, message))
}

// Broadcast broadcasts an event to all authenticated clients
func (s *Server) Broadcast(event string, data interface{}) {
	s.broadcaster.Broadcast(event, data)
}

// RegisterMethod registers an RPC method handler
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	return s.router.RegisterMethod(name, handler)
}

// Methods returns the registered RPC method names
func (s *Server) Methods() []string {
	return s.router.GetMethods()
}

// Clients describes the open websocket connections
func (s *Server) Clients() []ClientInfo {
	return s.clients.Snapshot()
}

func rpcErrorResponse(id RequestID, err error) *RPCResponse {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return &RPCResponse{ID: id, JSONRPC: "2.0", Error: rpcErr}
	}
	return errorResponse(id, ParseError, err.Error())
}

func rejectionCode(reason string) int {
	if reason == reasonTooConcurrent {
		return TooManyConcurrent
	}
	return RateLimitExceeded
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
