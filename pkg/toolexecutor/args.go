package toolexecutor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Args holds the decoded arguments of a tool invocation
type Args map[string]interface{}

// Value returns the raw value for key; absent and null values report false
func (a Args) Value(key string) (interface{}, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether key is present with a non-null value
func (a Args) Has(key string) bool {
	_, ok := a.Value(key)
	return ok
}

// String returns the string value for key, or "" when absent
func (a Args) String(key string) string {
	v, ok := a.Value(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// StringOr returns the string value for key, or def when absent or blank
func (a Args) StringOr(key, def string) string {
	if s := strings.TrimSpace(a.String(key)); s != "" {
		return s
	}
	return def
}

// Bool returns the boolean value for key, or def when absent
func (a Args) Bool(key string, def bool) bool {
	v, ok := a.Value(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return def
		}
		return parsed
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return def
}

// Int returns the integer value for key, or def when absent or not numeric
func (a Args) Int(key string, def int) int {
	d, ok := a.Decimal(key)
	if !ok {
		return def
	}
	return int(d.IntPart())
}

// Decimal returns the numeric value for key as a decimal
func (a Args) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := a.Value(key)
	if !ok {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Zero, false
}

// Objects returns the list of objects stored under key
func (a Args) Objects(key string) []Args {
	v, ok := a.Value(key)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []Args:
		return list
	case []map[string]interface{}:
		out := make([]Args, 0, len(list))
		for _, m := range list {
			out = append(out, Args(m))
		}
		return out
	case []interface{}:
		out := make([]Args, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, Args(m))
			}
		}
		return out
	}
	return nil
}
