package tools

import (
	"context"
	"fmt"

	"github.com/harun/erptools/pkg/frappe"
	te "github.com/harun/erptools/pkg/toolexecutor"
	"github.com/shopspring/decimal"
)

func createJournalEntry(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name: "create_journal_entry",
		Description: "Create a journal entry for manual accounting adjustments and corrections. " +
			"Entries must balance: total debits equal total credits.",
		Category:   te.CategoryAccounting,
		Permission: "Journal Entry",
		InputSchema: te.Object([]string{"accounts"}, map[string]*te.Schema{
			"voucher_type": te.String("Type of journal voucher").
				WithEnum("Journal Entry", "Bank Entry", "Cash Entry", "Credit Card Entry", "Debit Note", "Credit Note").
				WithDefault("Journal Entry"),
			"accounts": te.Array("Account rows; debits and credits must balance", te.Object([]string{"account"}, map[string]*te.Schema{
				"account":                    te.String("Account name"),
				"debit_in_account_currency":  te.Number("Debit amount").WithDefault(0),
				"credit_in_account_currency": te.Number("Credit amount").WithDefault(0),
				"party_type":                 te.String("Party type, e.g. Customer or Supplier"),
				"party":                      te.String("Party name"),
			})),
			"posting_date": te.Date("Posting date (YYYY-MM-DD); defaults to today"),
			"user_remark":  te.String("Reason for the entry"),
			"submit":       te.Boolean("Submit the entry after creation").WithDefault(false),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			accounts := rows(args.Objects("accounts"), "account", "party_type", "party")
			for i, row := range args.Objects("accounts") {
				debit, _ := row.Decimal("debit_in_account_currency")
				credit, _ := row.Decimal("credit_in_account_currency")
				accounts[i]["debit_in_account_currency"] = number(debit)
				accounts[i]["credit_in_account_currency"] = number(credit)
			}

			doc := frappe.Doc{
				"voucher_type": args.StringOr("voucher_type", "Journal Entry"),
				"posting_date": args.StringOr("posting_date", env.today()),
				"accounts":     accounts,
			}
			setIf(doc, args, "user_remark")

			saved, err := insertDoc(ctx, env, "Journal Entry", doc, args.Bool("submit", false))
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"journal_entry": saved.Name(),
				"voucher_type":  saved["voucher_type"],
				"total_debit":   saved["total_debit"],
				"total_credit":  saved["total_credit"],
				"docstatus":     saved["docstatus"],
				"message":       fmt.Sprintf("Journal Entry %s created", saved.Name()),
			}, nil
		},
	}
}

func createPaymentEntry(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "create_payment_entry",
		Description: "Create a payment entry recording a payment received from a customer or made to a supplier.",
		Category:    te.CategoryAccounting,
		Permission:  "Payment Entry",
		InputSchema: te.Object([]string{"payment_type", "party_type", "party", "paid_amount"}, map[string]*te.Schema{
			"payment_type":    te.String("Type of payment").WithEnum("Receive", "Pay", "Internal Transfer"),
			"party_type":      te.String("Party type").WithEnum("Customer", "Supplier", "Employee"),
			"party":           te.String("Party name"),
			"paid_amount":     te.Number("Amount paid"),
			"mode_of_payment": te.String("Payment mode, e.g. 'Cash' or 'Bank Transfer'"),
			"reference_no":    te.String("Payment reference number"),
			"reference_date":  te.Date("Reference date (YYYY-MM-DD); defaults to today"),
			"submit":          te.Boolean("Submit the entry after creation").WithDefault(false),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			amount, ok := args.Decimal("paid_amount")
			if !ok || !amount.GreaterThan(decimal.Zero) {
				return nil, fmt.Errorf("paid_amount must be a positive number")
			}

			company, err := env.Platform.DefaultCompany(ctx)
			if err != nil {
				return nil, fmt.Errorf("resolving company: %w", err)
			}

			doc := frappe.Doc{
				"payment_type":    args.String("payment_type"),
				"party_type":      args.String("party_type"),
				"party":           args.String("party"),
				"company":         company,
				"paid_amount":     number(amount),
				"received_amount": number(amount),
				"reference_date":  args.StringOr("reference_date", env.today()),
			}
			setIf(doc, args, "mode_of_payment")
			setIf(doc, args, "reference_no")

			saved, err := insertDoc(ctx, env, "Payment Entry", doc, args.Bool("submit", false))
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"payment_entry": saved.Name(),
				"payment_type":  saved["payment_type"],
				"party":         saved["party"],
				"paid_amount":   saved["paid_amount"],
				"docstatus":     saved["docstatus"],
				"message":       fmt.Sprintf("Payment Entry %s created for %s", saved.Name(), saved.String("party")),
			}, nil
		},
	}
}
