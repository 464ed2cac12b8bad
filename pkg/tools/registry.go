// Package tools holds the ERP tool handlers. Each tool maps its arguments
// onto one or a few platform calls and shapes the response for the agent.
package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harun/erptools/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
)

// Registration binds a tool name to the constructor of its definition
type Registration struct {
	Name  string
	Build func(Env) toolexecutor.ToolDefinition
}

// Catalog returns every tool this package provides, in registration order
func Catalog() []Registration {
	return []Registration{
		{Name: "create_customer", Build: createCustomer},
		{Name: "get_customer", Build: getCustomer},
		{Name: "list_customers", Build: listCustomers},
		{Name: "create_quotation", Build: createQuotation},
		{Name: "create_sales_order", Build: createSalesOrder},
		{Name: "get_sales_order", Build: getSalesOrder},

		{Name: "create_item", Build: createItem},
		{Name: "get_item", Build: getItem},
		{Name: "get_stock_balance", Build: getStockBalance},
		{Name: "list_warehouses", Build: listWarehouses},
		{Name: "create_stock_entry", Build: createStockEntry},

		{Name: "create_journal_entry", Build: createJournalEntry},
		{Name: "get_balance_sheet", Build: getBalanceSheet},
		{Name: "get_profit_loss", Build: getProfitLoss},
		{Name: "create_payment_entry", Build: createPaymentEntry},
	}
}

// Names returns the catalog tool names
func Names() []string {
	catalog := Catalog()
	names := make([]string, 0, len(catalog))
	for _, r := range catalog {
		names = append(names, r.Name)
	}
	return names
}

// Register builds the enabled tools and registers them with the executor.
// An empty enabled list or "*" enables the whole catalog.
func Register(executor *toolexecutor.ToolExecutor, env Env, enabled []string) ([]string, error) {
	if executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if env.Platform == nil {
		return nil, fmt.Errorf("platform is required")
	}

	selected, err := selectTools(enabled)
	if err != nil {
		return nil, err
	}

	registered := make([]string, 0, len(selected))
	for _, r := range selected {
		def := r.Build(env)
		if err := executor.RegisterTool(def); err != nil {
			return registered, fmt.Errorf("failed to register tool %s: %w", r.Name, err)
		}
		registered = append(registered, r.Name)
	}

	log.Info().Int("count", len(registered)).Msg("ERP tools registered")
	return registered, nil
}

func selectTools(enabled []string) ([]Registration, error) {
	catalog := Catalog()
	if len(enabled) == 0 {
		return catalog, nil
	}

	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		name = strings.TrimSpace(name)
		if name == "*" {
			return catalog, nil
		}
		want[name] = true
	}

	selected := make([]Registration, 0, len(want))
	for _, r := range catalog {
		if want[r.Name] {
			selected = append(selected, r)
			delete(want, r.Name)
		}
	}

	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for name := range want {
			unknown = append(unknown, name)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown tools enabled: %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}
