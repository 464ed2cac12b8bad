package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_Record(t *testing.T) {
	var buf bytes.Buffer
	SetAuditWriter(&buf)

	GetAuditLogger().Record(context.Background(), AuditEvent{
		Type:     "tool",
		Actor:    "agent-1",
		Action:   "create_customer",
		Status:   "success",
		Metadata: map[string]interface{}{"duration_ms": 12},
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tool", entry["type"])
	assert.Equal(t, "agent-1", entry["actor"])
	assert.Equal(t, "create_customer", entry["action"])
	assert.Equal(t, "success", entry["status"])
	assert.Len(t, entry["id"], 21, "nanoid default length")
	assert.NotNil(t, entry["metadata"])
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := newAuditLogger(&buf, nil, false)

	logger.Record(context.Background(), AuditEvent{Type: "tool", Action: "get_item", Status: "success"})

	assert.Zero(t, buf.Len())
}

func TestRecordSecurityAudit(t *testing.T) {
	var buf bytes.Buffer
	SetAuditWriter(&buf)

	RecordSecurityAudit(context.Background(), "auth_failed", "127.0.0.1", "failure", nil)

	assert.Contains(t, buf.String(), `"type":"security"`)
	assert.Contains(t, buf.String(), `"action":"auth_failed"`)
}

func TestInitAuditLogger_File(t *testing.T) {
	path := t.TempDir() + "/audit.log"
	require.NoError(t, InitAuditLogger(path, true))
	t.Cleanup(func() { SetAuditWriter(&bytes.Buffer{}) })

	RecordConfigAudit(context.Background(), "reload", "watcher", nil)
	require.NoError(t, GetAuditLogger().Close())
}

func TestMetricsHandler_ExposesToolMetrics(t *testing.T) {
	RecordToolExecution("get_item", 15*time.Millisecond, true)
	RecordToolExecution("get_item", 5*time.Millisecond, false)
	RecordPlatformRequest("get", 200, 10*time.Millisecond)
	SetPlatformUp(true)
	RecordRPCRequest("tools.call", true)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `erptools_tool_execution_total{status="success",tool="get_item"}`)
	assert.Contains(t, body, `erptools_tool_errors_total{tool="get_item"}`)
	assert.Contains(t, body, `erptools_platform_request_total{code="200",operation="get"}`)
	assert.Contains(t, body, "erptools_platform_up 1")
}
