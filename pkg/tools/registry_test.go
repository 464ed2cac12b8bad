package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/harun/erptools/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	catalog := Catalog()
	require.Len(t, catalog, 15)

	env := Env{Platform: &mockPlatform{}, Now: fixedNow}
	seen := map[string]bool{}
	for _, r := range catalog {
		assert.False(t, seen[r.Name], "duplicate tool %s", r.Name)
		seen[r.Name] = true

		def := r.Build(env)
		assert.Equal(t, r.Name, def.Name)
		assert.NotEmpty(t, def.Description, r.Name)
		assert.NotEmpty(t, def.Permission, r.Name)
		assert.NotNil(t, def.Handler, r.Name)
		require.NotNil(t, def.InputSchema, r.Name)

		raw, err := def.InputSchema.JSON()
		require.NoError(t, err)
		assert.True(t, json.Valid(raw))
	}
}

func TestCatalog_Categories(t *testing.T) {
	exec := toolexecutor.New()
	_, err := Register(exec, Env{Platform: &mockPlatform{}}, nil)
	require.NoError(t, err)

	defs := exec.Definitions()
	assert.Len(t, toolexecutor.FilterByCategory(defs, toolexecutor.CategorySales), 6)
	assert.Len(t, toolexecutor.FilterByCategory(defs, toolexecutor.CategoryStock), 5)
	assert.Len(t, toolexecutor.FilterByCategory(defs, toolexecutor.CategoryAccounting), 4)
	assert.Empty(t, toolexecutor.FilterByCategory(defs, toolexecutor.CategoryGeneral))
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		enabled []string
		want    int
		wantErr string
	}{
		{name: "nil enables all", enabled: nil, want: 15},
		{name: "wildcard enables all", enabled: []string{"*"}, want: 15},
		{name: "subset", enabled: []string{"get_item", " list_warehouses "}, want: 2},
		{name: "unknown tool", enabled: []string{"get_item", "delete_everything", "drop_db"}, wantErr: "unknown tools enabled: delete_everything, drop_db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := toolexecutor.New()
			names, err := Register(exec, Env{Platform: &mockPlatform{}}, tt.enabled)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				assert.Zero(t, exec.GetToolCount())
				return
			}
			require.NoError(t, err)
			assert.Len(t, names, tt.want)
			assert.Equal(t, tt.want, exec.GetToolCount())
		})
	}
}

func TestRegister_RequiresDependencies(t *testing.T) {
	_, err := Register(nil, Env{Platform: &mockPlatform{}}, nil)
	assert.Error(t, err)

	_, err = Register(toolexecutor.New(), Env{}, nil)
	assert.Error(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	exec := toolexecutor.New()
	env := Env{Platform: &mockPlatform{}}

	_, err := Register(exec, env, []string{"get_item"})
	require.NoError(t, err)

	_, err = Register(exec, env, []string{"get_item"})
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 15)
	assert.Equal(t, "create_customer", names[0])
	assert.Contains(t, names, "create_payment_entry")
}

func TestPermissionGrants(t *testing.T) {
	p := &mockPlatform{}
	exec := toolexecutor.New()
	_, err := Register(exec, Env{Platform: p, Now: fixedNow}, nil)
	require.NoError(t, err)

	res := exec.Execute(context.Background(), "create_journal_entry", toolexecutor.Args{
		"accounts": []interface{}{map[string]interface{}{"account": "Cash - AC"}},
	}, &toolexecutor.ExecutionContext{CallerID: "agent-1", Grants: []string{"Customer", "Item"}})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Journal Entry")
	assert.Equal(t, "Journal Entry", res.Metadata["permission"])
	p.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

// validArgs fills every required field of s with a value its schema accepts
func validArgs(s *toolexecutor.Schema) interface{} {
	switch s.Type {
	case "object":
		out := map[string]interface{}{}
		for _, field := range s.Required {
			out[field] = validArgs(s.Properties[field])
		}
		return out
	case "array":
		return []interface{}{validArgs(s.Items)}
	case "number", "integer":
		return 1
	case "boolean":
		return true
	default:
		if len(s.Enum) > 0 {
			return s.Enum[0]
		}
		if s.Format == "email" {
			return "ops@example.com"
		}
		return "X-0001"
	}
}

func TestCatalog_RejectsMissingRequiredFields(t *testing.T) {
	required := map[string][]string{
		"create_customer":      {"customer_name"},
		"get_customer":         {"customer"},
		"list_customers":       nil,
		"create_quotation":     {"party_name", "items", "items[].item_code", "items[].qty"},
		"create_sales_order":   {"customer", "items", "items[].item_code", "items[].qty"},
		"get_sales_order":      {"sales_order"},
		"create_item":          {"item_code", "item_name", "item_group"},
		"get_item":             {"item_code"},
		"get_stock_balance":    {"item_code"},
		"list_warehouses":      nil,
		"create_stock_entry":   {"stock_entry_type", "items", "items[].item_code", "items[].qty"},
		"create_journal_entry": {"accounts", "accounts[].account"},
		"create_payment_entry": {"payment_type", "party_type", "party", "paid_amount"},
		"get_balance_sheet":    {"company"},
		"get_profit_loss":      {"company"},
	}

	for _, reg := range Catalog() {
		want, ok := required[reg.Name]
		require.True(t, ok, "no required fields listed for %s", reg.Name)

		schema := reg.Build(Env{Platform: &mockPlatform{}, Now: fixedNow}).InputSchema
		var got []string
		for _, field := range schema.Required {
			got = append(got, field)
			if items := schema.Properties[field].Items; items != nil && items.Type == "object" {
				for _, nested := range items.Required {
					got = append(got, field+"[]."+nested)
				}
			}
		}
		assert.ElementsMatch(t, want, got, reg.Name)

		for _, field := range got {
			t.Run(reg.Name+"/"+field, func(t *testing.T) {
				args := validArgs(schema).(map[string]interface{})
				missing := field
				if parent, nested, isNested := strings.Cut(field, "[]."); isNested {
					delete(args[parent].([]interface{})[0].(map[string]interface{}), nested)
					missing = nested
				} else {
					delete(args, field)
				}

				p := &mockPlatform{}
				res := runTool(t, p, reg.Name, toolexecutor.Args(args))

				assert.False(t, res.Success)
				assert.Contains(t, res.Error, "parameter validation failed")
				assert.Contains(t, res.Error, missing)
				assert.Empty(t, p.Calls)
			})
		}
	}
}
