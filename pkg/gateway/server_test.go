package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/erptools/internal/health"
	te "github.com/harun/erptools/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "gateway-secret"

type fixedStatus struct{ status health.Status }

func (f fixedStatus) Status() health.Status { return f.status }

func newTestExecutor(t *testing.T) *te.ToolExecutor {
	t.Helper()

	executor := te.New()
	require.NoError(t, executor.RegisterTool(te.ToolDefinition{
		Name:        "get_item",
		Description: "Get an item",
		Category:    te.CategoryStock,
		InputSchema: te.Object([]string{"item_code"}, map[string]*te.Schema{
			"item_code": te.String("Item code"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			if args.String("item_code") == "MISSING" {
				return nil, fmt.Errorf("Item 'MISSING' not found")
			}
			return map[string]interface{}{"item_code": args.String("item_code")}, nil
		},
	}))
	require.NoError(t, executor.RegisterTool(te.ToolDefinition{
		Name:        "list_customers",
		Description: "List customers",
		Category:    te.CategorySales,
		InputSchema: te.Object(nil, nil),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			return map[string]interface{}{"customers": []interface{}{}, "count": 0}, nil
		},
	}))
	return executor
}

func newTestGateway(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()

	if cfg.Executor == nil {
		cfg.Executor = newTestExecutor(t)
	}
	cfg.Logger = zerolog.Nop()

	s, err := NewServer(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func postRPC(t *testing.T, url, secret, body string) (int, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url+"/rpc", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp.StatusCode, decoded
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{Port: 8080})
	assert.ErrorContains(t, err, "tool executor is required")

	_, err = NewServer(Config{Port: 70000, Executor: te.New()})
	assert.ErrorContains(t, err, "invalid port")
}

func TestServer_RegistersBuiltinMethods(t *testing.T) {
	s, _ := newTestGateway(t, Config{})
	assert.Equal(t, []string{"clients.list", "health", "tools.call", "tools.list"}, s.Methods())
}

func TestHandleRPC_Auth(t *testing.T) {
	_, srv := newTestGateway(t, Config{SharedSecret: testSecret})
	body := `{"jsonrpc":"2.0","id":1,"method":"tools.list"}`

	tests := []struct {
		name   string
		secret string
		want   int
	}{
		{name: "missing secret", secret: "", want: http.StatusUnauthorized},
		{name: "wrong secret", secret: "nope", want: http.StatusUnauthorized},
		{name: "valid secret", secret: testSecret, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := postRPC(t, srv.URL, tt.secret, body)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestHandleRPC_MethodNotAllowed(t *testing.T) {
	_, srv := newTestGateway(t, Config{})

	resp, err := http.Get(srv.URL + "/rpc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleRPC_ParseError(t *testing.T) {
	_, srv := newTestGateway(t, Config{})

	code, resp := postRPC(t, srv.URL, "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	rpcErr := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(ParseError), rpcErr["code"])
}

func TestHandleRPC_ToolsList(t *testing.T) {
	_, srv := newTestGateway(t, Config{})

	t.Run("all tools", func(t *testing.T) {
		code, resp := postRPC(t, srv.URL, "", `{"jsonrpc":"2.0","id":"1","method":"tools.list"}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "1", resp["id"])

		result := resp["result"].(map[string]interface{})
		assert.Equal(t, float64(2), result["count"])
		tools := result["tools"].([]interface{})
		first := tools[0].(map[string]interface{})
		assert.Equal(t, "get_item", first["name"])
		assert.Equal(t, "stock", first["category"])
		assert.NotNil(t, first["inputSchema"])
	})

	t.Run("filtered by category", func(t *testing.T) {
		_, resp := postRPC(t, srv.URL, "", `{"jsonrpc":"2.0","id":"2","method":"tools.list","params":{"category":"sales"}}`)
		result := resp["result"].(map[string]interface{})
		assert.Equal(t, float64(1), result["count"])
	})

	t.Run("invalid category", func(t *testing.T) {
		_, resp := postRPC(t, srv.URL, "", `{"jsonrpc":"2.0","id":"3","method":"tools.list","params":{"category":"hr"}}`)
		rpcErr := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(InvalidParams), rpcErr["code"])
	})
}

func TestHandleRPC_ToolsCall(t *testing.T) {
	_, srv := newTestGateway(t, Config{})

	tests := []struct {
		name        string
		params      string
		wantSuccess bool
		wantError   string
		wantRPCCode int
	}{
		{
			name:        "success",
			params:      `{"name":"get_item","arguments":{"item_code":"WIDGET"}}`,
			wantSuccess: true,
		},
		{
			name:      "handler error in payload",
			params:    `{"name":"get_item","arguments":{"item_code":"MISSING"}}`,
			wantError: "Item 'MISSING' not found",
		},
		{
			name:      "schema failure in payload",
			params:    `{"name":"get_item","arguments":{}}`,
			wantError: "item_code",
		},
		{
			name:      "unknown tool in payload",
			params:    `{"name":"delete_everything"}`,
			wantError: "delete_everything",
		},
		{
			name:        "missing name",
			params:      `{"arguments":{}}`,
			wantRPCCode: InvalidParams,
		},
		{
			name:        "arguments not an object",
			params:      `{"name":"get_item","arguments":[1,2]}`,
			wantRPCCode: InvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := fmt.Sprintf(`{"jsonrpc":"2.0","id":"c1","method":"tools.call","params":%s}`, tt.params)
			code, resp := postRPC(t, srv.URL, "", body)
			require.Equal(t, http.StatusOK, code)

			if tt.wantRPCCode != 0 {
				rpcErr := resp["error"].(map[string]interface{})
				assert.Equal(t, float64(tt.wantRPCCode), rpcErr["code"])
				return
			}

			result := resp["result"].(map[string]interface{})
			assert.Equal(t, tt.wantSuccess, result["success"])
			if tt.wantSuccess {
				assert.Equal(t, "WIDGET", result["item_code"])
			} else {
				assert.Contains(t, result["error"], tt.wantError)
			}
		})
	}
}

func TestHandleRPC_RateLimited(t *testing.T) {
	_, srv := newTestGateway(t, Config{RateLimitPerMinute: 2})
	body := `{"jsonrpc":"2.0","id":"1","method":"health"}`

	for i := 0; i < 2; i++ {
		code, _ := postRPC(t, srv.URL, "", body)
		require.Equal(t, http.StatusOK, code)
	}

	code, resp := postRPC(t, srv.URL, "", body)
	assert.Equal(t, http.StatusTooManyRequests, code)
	rpcErr := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(RateLimitExceeded), rpcErr["code"])
}

func TestHandleHealthz(t *testing.T) {
	tests := []struct {
		name       string
		reporter   StatusReporter
		wantCode   int
		wantStatus string
	}{
		{name: "no prober", reporter: nil, wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "platform up", reporter: fixedStatus{health.Status{Up: true, User: "api@example.com"}}, wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "platform down", reporter: fixedStatus{health.Status{Error: "connection refused"}}, wantCode: http.StatusServiceUnavailable, wantStatus: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestGateway(t, Config{Health: tt.reporter})

			resp, err := http.Get(srv.URL + "/healthz")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			var report map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
			assert.Equal(t, tt.wantStatus, report["status"])
			assert.Equal(t, float64(2), report["tools"])
		})
	}
}

func TestMCPRoute_RequiresSecret(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	_, srv := newTestGateway(t, Config{SharedSecret: testSecret, MCPHandler: mcp})

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set(SecretHeader, testSecret)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

// readResponse skips broadcast events until the RPC response with id arrives
func readResponse(t *testing.T, conn *websocket.Conn, id string) map[string]interface{} {
	t.Helper()

	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["id"] == id {
			return msg
		}
	}
}

func TestWebSocket_AuthAndCall(t *testing.T) {
	_, srv := newTestGateway(t, Config{SharedSecret: testSecret})
	conn := dialGateway(t, srv)

	var challenge AuthChallenge
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, "auth.challenge", challenge.Event)
	require.Len(t, challenge.Challenge, 64)

	t.Run("calls before auth are rejected", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": "x", "method": "health"}))
		var resp RPCResponse
		require.NoError(t, conn.ReadJSON(&resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, AuthenticationRequired, resp.Error.Code)
	})

	t.Run("signed challenge authenticates", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(AuthResponse{
			Method:    "auth.response",
			Signature: Sign(testSecret, challenge.Challenge),
		}))
		var result AuthResult
		require.NoError(t, conn.ReadJSON(&result))
		assert.True(t, result.Success)
		assert.Equal(t, "auth.success", result.Event)
	})

	t.Run("tools.call returns payload and broadcasts event", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      "call-1",
			"method":  "tools.call",
			"params": map[string]interface{}{
				"name":      "get_item",
				"arguments": map[string]interface{}{"item_code": "WIDGET"},
			},
		}))

		var sawEvent bool
		var response map[string]interface{}
		for response == nil {
			var msg map[string]interface{}
			require.NoError(t, conn.ReadJSON(&msg))
			switch {
			case msg["event"] == "tool.executed":
				sawEvent = true
				data := msg["data"].(map[string]interface{})
				assert.Equal(t, "get_item", data["tool"])
				assert.True(t, strings.HasPrefix(data["caller"].(string), "ws:"))
			case msg["id"] == "call-1":
				response = msg
			}
		}

		result := response["result"].(map[string]interface{})
		assert.Equal(t, true, result["success"])
		assert.Equal(t, "WIDGET", result["item_code"])

		if !sawEvent {
			var msg map[string]interface{}
			require.NoError(t, conn.ReadJSON(&msg))
			assert.Equal(t, "tool.executed", msg["event"])
		}
	})

	t.Run("client appears in clients.list", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": "list-1", "method": "clients.list"}))
		resp := readResponse(t, conn, "list-1")
		result := resp["result"].(map[string]interface{})
		assert.Equal(t, float64(1), result["count"])
	})
}

func TestWebSocket_TooManyBadSignatures(t *testing.T) {
	_, srv := newTestGateway(t, Config{SharedSecret: testSecret})
	conn := dialGateway(t, srv)

	var challenge AuthChallenge
	require.NoError(t, conn.ReadJSON(&challenge))

	for i := 0; i < maxAuthAttempts; i++ {
		require.NoError(t, conn.WriteJSON(AuthResponse{Method: "auth.response", Signature: "bad"}))
		var result AuthResult
		require.NoError(t, conn.ReadJSON(&result))
		assert.False(t, result.Success)
	}

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocket_NoSecretSkipsChallenge(t *testing.T) {
	_, srv := newTestGateway(t, Config{})
	conn := dialGateway(t, srv)

	var result AuthResult
	require.NoError(t, conn.ReadJSON(&result))
	assert.True(t, result.Success)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": 7, "method": "health"}))
	resp := readResponse(t, conn, "7")
	assert.Nil(t, resp["error"])
}

func TestServeListener_StopsOnCancel(t *testing.T) {
	s, err := NewServer(Config{Executor: newTestExecutor(t), Logger: zerolog.Nop()})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHandleRPC_ToolsCallIdempotency(t *testing.T) {
	var orderCalls atomic.Int32
	executor := newTestExecutor(t)
	require.NoError(t, executor.RegisterTool(te.ToolDefinition{
		Name:        "create_sales_order",
		Description: "Create a sales order",
		Category:    te.CategorySales,
		InputSchema: te.Object(nil, nil),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			if orderCalls.Add(1) == 1 {
				return nil, fmt.Errorf("platform unavailable")
			}
			return map[string]interface{}{"name": "SO-0001"}, nil
		},
	}))
	_, srv := newTestGateway(t, Config{Executor: executor})

	call := func(tool string) map[string]interface{} {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","id":"1","method":"tools.call","idempotencyKey":"k1","params":{"name":%q,"arguments":{"item_code":"WIDGET"}}}`, tool)
		code, resp := postRPC(t, srv.URL, "", body)
		require.Equal(t, http.StatusOK, code)
		return resp["result"].(map[string]interface{})
	}

	first := call("create_sales_order")
	assert.Equal(t, false, first["success"])
	assert.Contains(t, first["error"], "platform unavailable")

	retry := call("create_sales_order")
	assert.Equal(t, true, retry["success"])
	assert.Equal(t, "SO-0001", retry["name"])

	replay := call("create_sales_order")
	assert.Equal(t, "SO-0001", replay["name"])
	assert.Equal(t, int32(2), orderCalls.Load())

	other := call("get_item")
	assert.Equal(t, true, other["success"])
	assert.Equal(t, "WIDGET", other["item_code"])
}

func TestWebSocket_DisconnectCancelsCall(t *testing.T) {
	s, srv := newTestGateway(t, Config{})

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, s.RegisterMethod("test.wait", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
		case <-time.After(5 * time.Second):
		}
		return nil, ctx.Err()
	}))

	conn := dialGateway(t, srv)
	var result AuthResult
	require.NoError(t, conn.ReadJSON(&result))
	require.True(t, result.Success)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": "w1", "method": "test.wait"}))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}

	require.NoError(t, conn.Close())
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler context was not cancelled after disconnect")
	}
}

func TestServer_BeginRequestAfterShutdown(t *testing.T) {
	s, err := NewServer(Config{Executor: newTestExecutor(t), Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.True(t, s.beginRequest())
	s.inFlightReqs.Done()

	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	assert.False(t, s.beginRequest())

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	code, _ := postRPC(t, srv.URL, "", `{"jsonrpc":"2.0","id":"1","method":"health"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
