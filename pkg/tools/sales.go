package tools

import (
	"context"
	"fmt"

	"github.com/harun/erptools/pkg/frappe"
	te "github.com/harun/erptools/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
)

const customerOutstandingMethod = "erpnext.selling.doctype.customer.customer.get_customer_outstanding"

func createCustomer(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name: "create_customer",
		Description: "Create a new customer. Customer group and territory default to the platform's root groups. " +
			"Returns the customer ID.",
		Category:   te.CategorySales,
		Permission: "Customer",
		InputSchema: te.Object([]string{"customer_name"}, map[string]*te.Schema{
			"customer_name":  te.String("Full name of the customer"),
			"customer_type":  te.String("Company or Individual").WithEnum("Company", "Individual").WithDefault("Company"),
			"customer_group": te.String("Customer group").WithDefault("All Customer Groups"),
			"territory":      te.String("Sales territory").WithDefault("All Territories"),
			"email":          te.String("Primary email address").WithFormat("email"),
			"phone":          te.String("Primary phone number"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			doc := frappe.Doc{
				"customer_name":  args.String("customer_name"),
				"customer_type":  args.StringOr("customer_type", "Company"),
				"customer_group": args.StringOr("customer_group", "All Customer Groups"),
				"territory":      args.StringOr("territory", "All Territories"),
			}
			if email := args.String("email"); email != "" {
				doc["email_ids"] = []frappe.Doc{{"email_id": email, "is_primary": 1}}
			}
			if phone := args.String("phone"); phone != "" {
				doc["phone_nos"] = []frappe.Doc{{"phone": phone, "is_primary_phone": 1}}
			}

			saved, err := env.Platform.Insert(ctx, "Customer", doc)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"customer":      saved.Name(),
				"customer_name": saved.String("customer_name"),
				"message":       fmt.Sprintf("Customer '%s' created successfully", saved.String("customer_name")),
			}, nil
		},
	}
}

func getCustomer(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "get_customer",
		Description: "Retrieve customer details by ID, optionally with the outstanding balance in the default company.",
		Category:    te.CategorySales,
		Permission:  "Customer",
		InputSchema: te.Object([]string{"customer"}, map[string]*te.Schema{
			"customer":            te.String("Customer ID"),
			"include_outstanding": te.Boolean("Include outstanding balance").WithDefault(true),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			name := args.String("customer")
			doc, err := getDoc(ctx, env, "Customer", name)
			if err != nil {
				return nil, err
			}

			customer := pick(doc, "name", "customer_name", "customer_type", "customer_group", "territory", "disabled")

			if !args.Bool("include_outstanding", true) {
				return map[string]interface{}{"customer": customer}, nil
			}

			// Without a company the balance is omitted rather than failing the lookup.
			company, err := env.Platform.DefaultCompany(ctx)
			if err != nil {
				log.Warn().Err(err).Str("customer", doc.Name()).Msg("No default company, outstanding balance omitted")
				return map[string]interface{}{"customer": customer}, nil
			}
			outstanding, err := env.Platform.Call(ctx, customerOutstandingMethod, map[string]interface{}{
				"customer": doc.Name(),
				"company":  company,
			})
			if err != nil {
				return nil, err
			}
			customer["outstanding_amount"] = outstanding

			return map[string]interface{}{"customer": customer}, nil
		},
	}
}

func listCustomers(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "list_customers",
		Description: "List active customers, newest first, filtered by group, territory or type. Supports pagination.",
		Category:    te.CategorySales,
		Permission:  "Customer",
		InputSchema: te.Object(nil, map[string]*te.Schema{
			"customer_group": te.String("Filter by customer group"),
			"territory":      te.String("Filter by territory"),
			"customer_type":  te.String("Filter by type").WithEnum("Company", "Individual"),
			"limit":          te.Integer("Maximum number of results").WithDefault(20),
			"offset":         te.Integer("Number of results to skip").WithDefault(0),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			filters := []frappe.Filter{frappe.Eq("disabled", 0)}
			for _, field := range []string{"customer_group", "territory", "customer_type"} {
				if v := args.String(field); v != "" {
					filters = append(filters, frappe.Eq(field, v))
				}
			}
			limit := args.Int("limit", 20)
			offset := args.Int("offset", 0)

			customers, err := env.Platform.List(ctx, "Customer", frappe.ListOptions{
				Filters: filters,
				Fields:  []string{"name", "customer_name", "customer_type", "customer_group", "territory"},
				OrderBy: "creation desc",
				Limit:   limit,
				Offset:  offset,
			})
			if err != nil {
				return nil, err
			}

			total, err := env.Platform.Count(ctx, "Customer", filters)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"customers": customers,
				"total":     total,
				"limit":     limit,
				"offset":    offset,
			}, nil
		},
	}
}

// lineItems is the item row schema shared by quotations and sales orders
func lineItems(description string) *te.Schema {
	return te.Array(description, te.Object([]string{"item_code", "qty"}, map[string]*te.Schema{
		"item_code": te.String("Item code"),
		"qty":       te.Number("Quantity"),
		"rate":      te.Number("Unit rate; the item price applies when omitted"),
	}))
}

func createQuotation(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "create_quotation",
		Description: "Create a sales quotation for a customer with the given items. Returns the quotation ID and grand total.",
		Category:    te.CategorySales,
		Permission:  "Quotation",
		InputSchema: te.Object([]string{"party_name", "items"}, map[string]*te.Schema{
			"party_name": te.String("Customer ID"),
			"items":      lineItems("Items with quantity and optional rate"),
			"valid_till": te.Date("Quotation validity date (YYYY-MM-DD)"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			party := args.String("party_name")
			doc := frappe.Doc{
				"quotation_to": "Customer",
				"party_name":   party,
				"items":        rows(args.Objects("items"), "item_code", "qty", "rate"),
			}
			setIf(doc, args, "valid_till")

			saved, err := env.Platform.Insert(ctx, "Quotation", doc)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"quotation":   saved.Name(),
				"customer":    party,
				"grand_total": saved["grand_total"],
				"status":      saved["status"],
				"message":     fmt.Sprintf("Quotation %s created for %s", saved.Name(), party),
			}, nil
		},
	}
}

func createSalesOrder(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "create_sales_order",
		Description: "Create a sales order for a customer with the given items, optionally submitting it. Returns the order ID and grand total.",
		Category:    te.CategorySales,
		Permission:  "Sales Order",
		InputSchema: te.Object([]string{"customer", "items"}, map[string]*te.Schema{
			"customer":      te.String("Customer ID"),
			"items":         lineItems("Items with quantity and optional rate"),
			"delivery_date": te.Date("Expected delivery date (YYYY-MM-DD)"),
			"submit":        te.Boolean("Submit the order after creation").WithDefault(false),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			customer := args.String("customer")
			items := rows(args.Objects("items"), "item_code", "qty", "rate")
			doc := frappe.Doc{
				"customer": customer,
				"items":    items,
			}
			if delivery := args.String("delivery_date"); delivery != "" {
				doc["delivery_date"] = delivery
				for _, item := range items {
					item["delivery_date"] = delivery
				}
			}

			saved, err := insertDoc(ctx, env, "Sales Order", doc, args.Bool("submit", false))
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"sales_order": saved.Name(),
				"customer":    customer,
				"grand_total": saved["grand_total"],
				"status":      saved["status"],
				"docstatus":   saved["docstatus"],
				"message":     fmt.Sprintf("Sales Order %s created for %s", saved.Name(), customer),
			}, nil
		},
	}
}

func getSalesOrder(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "get_sales_order",
		Description: "Retrieve a sales order with its items, status and delivery progress.",
		Category:    te.CategorySales,
		Permission:  "Sales Order",
		InputSchema: te.Object([]string{"sales_order"}, map[string]*te.Schema{
			"sales_order": te.String("Sales Order ID"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			doc, err := getDoc(ctx, env, "Sales Order", args.String("sales_order"))
			if err != nil {
				return nil, err
			}

			children := doc.Children("items")
			items := make([]map[string]interface{}, 0, len(children))
			for _, item := range children {
				items = append(items, pick(item, "item_code", "item_name", "qty", "rate", "amount", "delivered_qty"))
			}

			order := pick(doc, "name", "customer", "customer_name", "transaction_date", "delivery_date",
				"status", "grand_total", "per_delivered", "per_billed")
			order["items"] = items

			return map[string]interface{}{"sales_order": order}, nil
		},
	}
}
