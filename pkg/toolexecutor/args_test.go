package toolexecutor

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestArgs_String(t *testing.T) {
	a := Args{"name": "Acme", "code": 42, "empty": "  ", "null": nil}

	assert.Equal(t, "Acme", a.String("name"))
	assert.Equal(t, "42", a.String("code"))
	assert.Equal(t, "", a.String("missing"))
	assert.Equal(t, "All Territories", a.StringOr("empty", "All Territories"))
	assert.Equal(t, "fallback", a.StringOr("null", "fallback"))
	assert.False(t, a.Has("null"))
	assert.True(t, a.Has("name"))
}

func TestArgs_Bool(t *testing.T) {
	a := Args{"t": true, "s": "false", "n": 1.0, "bad": "maybe"}

	assert.True(t, a.Bool("t", false))
	assert.False(t, a.Bool("s", true))
	assert.True(t, a.Bool("n", false))
	assert.True(t, a.Bool("bad", true))
	assert.True(t, a.Bool("missing", true))
}

func TestArgs_Decimal(t *testing.T) {
	a := Args{
		"float":  12.5,
		"int":    3,
		"number": json.Number("100.25"),
		"string": " 7.10 ",
		"bad":    "abc",
	}

	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"float", "12.5", true},
		{"int", "3", true},
		{"number", "100.25", true},
		{"string", "7.1", true},
		{"bad", "0", false},
		{"missing", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := a.Decimal(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestArgs_Int(t *testing.T) {
	a := Args{"limit": 50.0, "text": "x"}

	assert.Equal(t, 50, a.Int("limit", 20))
	assert.Equal(t, 20, a.Int("text", 20))
	assert.Equal(t, 20, a.Int("missing", 20))
}

func TestArgs_Objects(t *testing.T) {
	a := Args{
		"items": []interface{}{
			map[string]interface{}{"item_code": "A"},
			"ignored",
			map[string]interface{}{"item_code": "B"},
		},
		"typed": []map[string]interface{}{{"account": "Cash"}},
		"wrong": "nope",
	}

	items := a.Objects("items")
	assert.Len(t, items, 2)
	assert.Equal(t, "B", items[1].String("item_code"))
	assert.Len(t, a.Objects("typed"), 1)
	assert.Nil(t, a.Objects("wrong"))
	assert.Nil(t, a.Objects("missing"))
}
