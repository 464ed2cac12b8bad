package tools

import (
	"context"
	"time"

	"github.com/harun/erptools/pkg/frappe"
)

// Platform is the subset of the ERP platform API the tools call.
// *frappe.Client implements it.
type Platform interface {
	Insert(ctx context.Context, doctype string, doc frappe.Doc) (frappe.Doc, error)
	Submit(ctx context.Context, doc frappe.Doc) (frappe.Doc, error)
	Get(ctx context.Context, doctype, name string) (frappe.Doc, error)
	List(ctx context.Context, doctype string, opts frappe.ListOptions) ([]frappe.Doc, error)
	Count(ctx context.Context, doctype string, filters []frappe.Filter) (int, error)
	Call(ctx context.Context, method string, params map[string]interface{}) (interface{}, error)
	RunReport(ctx context.Context, reportName string, filters map[string]interface{}) (*frappe.Report, error)
	DefaultCompany(ctx context.Context) (string, error)
}

var _ Platform = (*frappe.Client)(nil)

// Env carries what tool handlers need from the outside world
type Env struct {
	Platform Platform
	Now      func() time.Time
}

func (e Env) today() string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().Format("2006-01-02")
}
