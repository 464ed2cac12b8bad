package tools

import (
	"context"
	"testing"
	"time"

	"github.com/harun/erptools/pkg/frappe"
	"github.com/harun/erptools/pkg/toolexecutor"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) Insert(ctx context.Context, doctype string, doc frappe.Doc) (frappe.Doc, error) {
	args := m.Called(ctx, doctype, doc)
	return docArg(args, 0), args.Error(1)
}

func (m *mockPlatform) Submit(ctx context.Context, doc frappe.Doc) (frappe.Doc, error) {
	args := m.Called(ctx, doc)
	return docArg(args, 0), args.Error(1)
}

func (m *mockPlatform) Get(ctx context.Context, doctype, name string) (frappe.Doc, error) {
	args := m.Called(ctx, doctype, name)
	return docArg(args, 0), args.Error(1)
}

func (m *mockPlatform) List(ctx context.Context, doctype string, opts frappe.ListOptions) ([]frappe.Doc, error) {
	args := m.Called(ctx, doctype, opts)
	docs, _ := args.Get(0).([]frappe.Doc)
	return docs, args.Error(1)
}

func (m *mockPlatform) Count(ctx context.Context, doctype string, filters []frappe.Filter) (int, error) {
	args := m.Called(ctx, doctype, filters)
	return args.Int(0), args.Error(1)
}

func (m *mockPlatform) Call(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	args := m.Called(ctx, method, params)
	return args.Get(0), args.Error(1)
}

func (m *mockPlatform) RunReport(ctx context.Context, reportName string, filters map[string]interface{}) (*frappe.Report, error) {
	args := m.Called(ctx, reportName, filters)
	report, _ := args.Get(0).(*frappe.Report)
	return report, args.Error(1)
}

func (m *mockPlatform) DefaultCompany(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func docArg(args mock.Arguments, i int) frappe.Doc {
	doc, _ := args.Get(i).(frappe.Doc)
	return doc
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
}

// runTool registers a single tool against p and executes it through the executor,
// so schema validation and defaults apply as in production.
func runTool(t *testing.T, p *mockPlatform, name string, args toolexecutor.Args) toolexecutor.ToolResult {
	t.Helper()
	exec := toolexecutor.New()
	_, err := Register(exec, Env{Platform: p, Now: fixedNow}, []string{name})
	require.NoError(t, err)
	return exec.Execute(context.Background(), name, args, nil)
}

func output(t *testing.T, res toolexecutor.ToolResult) map[string]interface{} {
	t.Helper()
	require.True(t, res.Success, "tool failed: %s", res.Error)
	out, ok := res.Output.(map[string]interface{})
	require.True(t, ok, "unexpected output type %T", res.Output)
	return out
}
