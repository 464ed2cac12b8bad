package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamType identifies typed event streams delivered to websocket clients
type StreamType string

const (
	StreamTypeTool      StreamType = "tool"
	StreamTypeLifecycle StreamType = "lifecycle"
)

// RequestID is a JSON-RPC id. Clients may send strings or numbers; both are kept as text.
type RequestID string

// UnmarshalJSON accepts string and numeric ids
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RequestID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = RequestID(n.String())
	return nil
}

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	ID             RequestID              `json:"id"`
	Method         string                 `json:"method"`
	Params         map[string]interface{} `json:"params,omitempty"`
	JSONRPC        string                 `json:"jsonrpc"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      RequestID   `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// EventMessage represents a server-initiated event
type EventMessage struct {
	Type      string      `json:"type,omitempty"`
	Event     string      `json:"event"`
	Stream    StreamType  `json:"stream,omitempty"`
	Phase     string      `json:"phase,omitempty"`
	Seq       int64       `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// AuthChallenge is sent to a websocket client right after it connects
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse is the client's HMAC answer to a challenge
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClientInfo describes a connected websocket client
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	IPAddress     string    `json:"ipAddress"`
	Idle          bool      `json:"idle"`
}

// ClientState represents the state of a client connection
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// RequestHandler handles one RPC method call
type RequestHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// RPC error codes
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	AuthenticationRequired = -32001
	RateLimitExceeded      = -32005
	TooManyConcurrent      = -32006
)

// Client represents a connected websocket client.
// LastActivity is guarded by the ClientRegistry lock and the auth session by sessionMu.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	RateLimiter  *ClientRateLimiter

	sessionMu     sync.RWMutex
	authenticated bool
	challenge     string
	authAttempts  int
	state         ClientState

	writeMu sync.Mutex
}

// IsAuthenticated reports whether the client completed authentication
func (c *Client) IsAuthenticated() bool {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.authenticated
}

// State returns the connection state
func (c *Client) State() ClientState {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.state
}

// AuthAttempts returns the number of failed signatures so far
func (c *Client) AuthAttempts() int {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.authAttempts
}

func (c *Client) setState(state ClientState) {
	c.sessionMu.Lock()
	c.state = state
	c.sessionMu.Unlock()
}

// beginChallenge records an outstanding challenge
func (c *Client) beginChallenge(challenge string) {
	c.sessionMu.Lock()
	c.challenge = challenge
	c.state = StateAuthenticating
	c.sessionMu.Unlock()
}

func (c *Client) pendingChallenge() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.challenge
}

// markAuthenticated clears the challenge and failure count
func (c *Client) markAuthenticated() {
	c.sessionMu.Lock()
	c.authenticated = true
	c.state = StateAuthenticated
	c.authAttempts = 0
	c.challenge = ""
	c.sessionMu.Unlock()
}

// recordFailedAttempt returns the failure count including this one
func (c *Client) recordFailedAttempt() int {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.authAttempts++
	return c.authAttempts
}

// WriteJSON serializes concurrent writes to the connection
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// WriteMessage serializes concurrent writes to the connection
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}
