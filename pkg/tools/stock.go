package tools

import (
	"context"
	"fmt"

	"github.com/harun/erptools/pkg/frappe"
	te "github.com/harun/erptools/pkg/toolexecutor"
	"github.com/shopspring/decimal"
)

const stockBalanceMethod = "erpnext.stock.utils.get_stock_balance"

func createItem(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "create_item",
		Description: "Create a new item (product, service or raw material). Returns the item code.",
		Category:    te.CategoryStock,
		Permission:  "Item",
		InputSchema: te.Object([]string{"item_code", "item_name", "item_group"}, map[string]*te.Schema{
			"item_code":     te.String("Unique item code or SKU"),
			"item_name":     te.String("Item display name"),
			"item_group":    te.String("Item group, e.g. 'Products' or 'Raw Material'"),
			"stock_uom":     te.String("Unit of measure, e.g. 'Nos', 'Kg'").WithDefault("Nos"),
			"is_stock_item": te.Boolean("Whether the item maintains stock").WithDefault(true),
			"standard_rate": te.Number("Standard selling rate").WithDefault(0),
			"description":   te.String("Item description; defaults to the item name"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			itemName := args.String("item_name")
			isStock := 0
			if args.Bool("is_stock_item", true) {
				isStock = 1
			}
			rate, _ := args.Decimal("standard_rate")

			doc := frappe.Doc{
				"item_code":     args.String("item_code"),
				"item_name":     itemName,
				"item_group":    args.String("item_group"),
				"stock_uom":     args.StringOr("stock_uom", "Nos"),
				"is_stock_item": isStock,
				"standard_rate": number(rate),
				"description":   args.StringOr("description", itemName),
			}

			saved, err := env.Platform.Insert(ctx, "Item", doc)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"item_code": saved.String("item_code"),
				"item_name": saved.String("item_name"),
				"message":   fmt.Sprintf("Item '%s' created successfully", saved.String("item_code")),
			}, nil
		},
	}
}

func getItem(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "get_item",
		Description: "Retrieve item details by item code, including pricing and stock settings.",
		Category:    te.CategoryStock,
		Permission:  "Item",
		InputSchema: te.Object([]string{"item_code"}, map[string]*te.Schema{
			"item_code": te.String("Item code"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			doc, err := getDoc(ctx, env, "Item", args.String("item_code"))
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"item": pick(doc, "item_code", "item_name", "item_group", "stock_uom",
					"is_stock_item", "standard_rate", "description", "disabled"),
			}, nil
		},
	}
}

func getStockBalance(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name: "get_stock_balance",
		Description: "Get the current stock balance of an item. With a warehouse, returns that warehouse's balance; " +
			"otherwise returns the total and a per-warehouse breakdown.",
		Category:   te.CategoryStock,
		Permission: "Stock Ledger Entry",
		InputSchema: te.Object([]string{"item_code"}, map[string]*te.Schema{
			"item_code": te.String("Item code"),
			"warehouse": te.String("Warehouse; all warehouses when omitted"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			itemCode := args.String("item_code")

			if warehouse := args.String("warehouse"); warehouse != "" {
				balance, err := env.Platform.Call(ctx, stockBalanceMethod, map[string]interface{}{
					"item_code": itemCode,
					"warehouse": warehouse,
				})
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{
					"item_code": itemCode,
					"warehouse": warehouse,
					"balance":   balance,
				}, nil
			}

			bins, err := env.Platform.List(ctx, "Bin", frappe.ListOptions{
				Filters: []frappe.Filter{frappe.Eq("item_code", itemCode)},
				Fields:  []string{"warehouse", "actual_qty", "reserved_qty", "ordered_qty", "projected_qty"},
			})
			if err != nil {
				return nil, err
			}

			total := decimal.Zero
			for _, bin := range bins {
				total = total.Add(bin.Decimal("actual_qty"))
			}

			return map[string]interface{}{
				"item_code":    itemCode,
				"total_qty":    number(total),
				"by_warehouse": bins,
			}, nil
		},
	}
}

func listWarehouses(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "list_warehouses",
		Description: "List active warehouses, optionally filtered by company or group flag, in tree order.",
		Category:    te.CategoryStock,
		Permission:  "Warehouse",
		InputSchema: te.Object(nil, map[string]*te.Schema{
			"company":  te.String("Filter by company"),
			"is_group": te.Boolean("Filter group (true) or leaf (false) warehouses"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			filters := []frappe.Filter{frappe.Eq("disabled", 0)}
			if company := args.String("company"); company != "" {
				filters = append(filters, frappe.Eq("company", company))
			}
			if args.Has("is_group") {
				isGroup := 0
				if args.Bool("is_group", false) {
					isGroup = 1
				}
				filters = append(filters, frappe.Eq("is_group", isGroup))
			}

			warehouses, err := env.Platform.List(ctx, "Warehouse", frappe.ListOptions{
				Filters: filters,
				Fields:  []string{"name", "warehouse_name", "company", "is_group", "parent_warehouse"},
				OrderBy: "lft",
			})
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"warehouses": warehouses,
				"count":      len(warehouses),
			}, nil
		},
	}
}

func createStockEntry(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "create_stock_entry",
		Description: "Create a stock entry for material movements: receipt, issue, transfer, repack or manufacture.",
		Category:    te.CategoryStock,
		Permission:  "Stock Entry",
		InputSchema: te.Object([]string{"stock_entry_type", "items"}, map[string]*te.Schema{
			"stock_entry_type": te.String("Type of stock entry").
				WithEnum("Material Receipt", "Material Issue", "Material Transfer", "Repack", "Manufacture"),
			"items": te.Array("Items to move", te.Object([]string{"item_code", "qty"}, map[string]*te.Schema{
				"item_code":   te.String("Item code"),
				"qty":         te.Number("Quantity"),
				"s_warehouse": te.String("Source warehouse"),
				"t_warehouse": te.String("Target warehouse"),
				"basic_rate":  te.Number("Rate per unit"),
			})),
			"submit": te.Boolean("Submit the entry after creation").WithDefault(false),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			doc := frappe.Doc{
				"stock_entry_type": args.String("stock_entry_type"),
				"items":            rows(args.Objects("items"), "item_code", "qty", "s_warehouse", "t_warehouse", "basic_rate"),
			}

			saved, err := insertDoc(ctx, env, "Stock Entry", doc, args.Bool("submit", false))
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"stock_entry":      saved.Name(),
				"stock_entry_type": saved["stock_entry_type"],
				"total_value":      saved["total_value"],
				"docstatus":        saved["docstatus"],
				"message":          fmt.Sprintf("Stock Entry %s created", saved.Name()),
			}, nil
		},
	}
}
