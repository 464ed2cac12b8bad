package frappe

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Doc is a platform document as returned by the REST API.
// Numeric fields decode as json.Number so amounts keep their precision.
type Doc map[string]interface{}

// Name returns the document's primary key
func (d Doc) Name() string {
	return d.String("name")
}

// String returns the field as a string, or "" when absent or null
func (d Doc) String(field string) string {
	v, ok := d[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Decimal returns a numeric field as a decimal; absent or non-numeric fields are zero
func (d Doc) Decimal(field string) decimal.Decimal {
	switch v := d[field].(type) {
	case json.Number:
		if n, err := decimal.NewFromString(v.String()); err == nil {
			return n
		}
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case string:
		if n, err := decimal.NewFromString(v); err == nil {
			return n
		}
	}
	return decimal.Zero
}

// Children returns a child table as a list of documents
func (d Doc) Children(field string) []Doc {
	switch rows := d[field].(type) {
	case []Doc:
		return rows
	case []interface{}:
		out := make([]Doc, 0, len(rows))
		for _, row := range rows {
			switch r := row.(type) {
			case map[string]interface{}:
				out = append(out, Doc(r))
			case Doc:
				out = append(out, r)
			}
		}
		return out
	case []map[string]interface{}:
		out := make([]Doc, 0, len(rows))
		for _, r := range rows {
			out = append(out, Doc(r))
		}
		return out
	}
	return nil
}

// Filter is a single [field, operator, value] list filter
type Filter struct {
	Field    string
	Operator string
	Value    interface{}
}

// Eq returns an equality filter
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Operator: "=", Value: value}
}

// MarshalJSON encodes the filter in the platform's array form
func (f Filter) MarshalJSON() ([]byte, error) {
	op := f.Operator
	if op == "" {
		op = "="
	}
	return json.Marshal([]interface{}{f.Field, op, f.Value})
}

// ListOptions controls a document list query
type ListOptions struct {
	Filters []Filter
	Fields  []string
	OrderBy string
	Limit   int // 0 returns all rows
	Offset  int
}

// Report is the result of a query report run
type Report struct {
	Columns []interface{} `json:"columns"`
	Result  []interface{} `json:"result"`
	Message interface{}   `json:"message,omitempty"`
}

// Rows returns the report rows that are objects. Total and separator rows
// encoded as arrays or empty objects are skipped.
func (r *Report) Rows() []Doc {
	out := make([]Doc, 0, len(r.Result))
	for _, row := range r.Result {
		if m, ok := row.(map[string]interface{}); ok && len(m) > 0 {
			out = append(out, Doc(m))
		}
	}
	return out
}
