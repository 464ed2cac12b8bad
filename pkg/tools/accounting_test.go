package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/harun/erptools/pkg/frappe"
	"github.com/harun/erptools/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestCreateJournalEntry(t *testing.T) {
	accounts := []interface{}{
		map[string]interface{}{"account": "Cash - AC", "debit_in_account_currency": 500},
		map[string]interface{}{
			"account":                    "Debtors - AC",
			"credit_in_account_currency": 500,
			"party_type":                 "Customer",
			"party":                      "CUST-0001",
		},
	}

	t.Run("defaults and zero amounts", func(t *testing.T) {
		p := &mockPlatform{}
		p.On("Insert", mock.Anything, "Journal Entry", mock.MatchedBy(func(doc frappe.Doc) bool {
			rows, ok := doc["accounts"].([]frappe.Doc)
			return ok && len(rows) == 2 &&
				doc["voucher_type"] == "Journal Entry" &&
				doc["posting_date"] == "2026-03-15" &&
				doc["user_remark"] == nil &&
				rows[0]["debit_in_account_currency"] == json.Number("500") &&
				rows[0]["credit_in_account_currency"] == json.Number("0") &&
				rows[0]["party"] == nil &&
				rows[1]["credit_in_account_currency"] == json.Number("500") &&
				rows[1]["party_type"] == "Customer"
		})).Return(frappe.Doc{
			"name":         "ACC-JV-2026-00001",
			"voucher_type": "Journal Entry",
			"total_debit":  json.Number("500"),
			"total_credit": json.Number("500"),
			"docstatus":    json.Number("0"),
		}, nil)

		out := output(t, runTool(t, p, "create_journal_entry", toolexecutor.Args{"accounts": accounts}))

		assert.Equal(t, "ACC-JV-2026-00001", out["journal_entry"])
		assert.Equal(t, json.Number("500"), out["total_debit"])
		assert.Equal(t, json.Number("500"), out["total_credit"])
		assert.Equal(t, "Journal Entry ACC-JV-2026-00001 created", out["message"])
		p.AssertExpectations(t)
	})

	t.Run("explicit voucher and submit", func(t *testing.T) {
		p := &mockPlatform{}
		p.On("Insert", mock.Anything, "Journal Entry", mock.MatchedBy(func(doc frappe.Doc) bool {
			return doc["voucher_type"] == "Cash Entry" &&
				doc["posting_date"] == "2026-02-28" &&
				doc["user_remark"] == "Petty cash top-up"
		})).Return(frappe.Doc{"name": "ACC-JV-2026-00002"}, nil)
		p.On("Submit", mock.Anything, frappe.Doc{"name": "ACC-JV-2026-00002"}).
			Return(frappe.Doc{"name": "ACC-JV-2026-00002", "voucher_type": "Cash Entry", "docstatus": json.Number("1")}, nil)

		out := output(t, runTool(t, p, "create_journal_entry", toolexecutor.Args{
			"voucher_type": "Cash Entry",
			"posting_date": "2026-02-28",
			"user_remark":  "Petty cash top-up",
			"accounts":     accounts,
			"submit":       true,
		}))

		assert.Equal(t, json.Number("1"), out["docstatus"])
		p.AssertExpectations(t)
	})

	t.Run("unbalanced entry rejected by platform", func(t *testing.T) {
		p := &mockPlatform{}
		p.On("Insert", mock.Anything, "Journal Entry", mock.Anything).
			Return(nil, &frappe.Error{StatusCode: 417, ExcType: "ValidationError", Message: "Total Debit must be equal to Total Credit. The difference is 100"})

		res := runTool(t, p, "create_journal_entry", toolexecutor.Args{
			"accounts": []interface{}{map[string]interface{}{"account": "Cash - AC", "debit_in_account_currency": 100}},
		})

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "Total Debit must be equal to Total Credit")
	})

	t.Run("account row requires account", func(t *testing.T) {
		p := &mockPlatform{}
		res := runTool(t, p, "create_journal_entry", toolexecutor.Args{
			"accounts": []interface{}{map[string]interface{}{"debit_in_account_currency": 100}},
		})

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "account")
	})
}

func TestCreatePaymentEntry(t *testing.T) {
	t.Run("receive from customer", func(t *testing.T) {
		party := gofakeit.Company()
		p := &mockPlatform{}
		p.On("DefaultCompany", mock.Anything).Return("Acme Ltd", nil)
		p.On("Insert", mock.Anything, "Payment Entry", mock.MatchedBy(func(doc frappe.Doc) bool {
			return doc["company"] == "Acme Ltd" &&
				doc["payment_type"] == "Receive" &&
				doc["party_type"] == "Customer" &&
				doc["party"] == party &&
				doc["paid_amount"] == json.Number("1250.5") &&
				doc["received_amount"] == json.Number("1250.5") &&
				doc["reference_date"] == "2026-03-15" &&
				doc["mode_of_payment"] == "Bank Transfer" &&
				doc["reference_no"] == nil
		})).Return(frappe.Doc{
			"name":         "ACC-PAY-2026-00001",
			"payment_type": "Receive",
			"party":        party,
			"paid_amount":  json.Number("1250.5"),
			"docstatus":    json.Number("0"),
		}, nil)

		out := output(t, runTool(t, p, "create_payment_entry", toolexecutor.Args{
			"payment_type":    "Receive",
			"party_type":      "Customer",
			"party":           party,
			"paid_amount":     1250.5,
			"mode_of_payment": "Bank Transfer",
		}))

		assert.Equal(t, "ACC-PAY-2026-00001", out["payment_entry"])
		assert.Equal(t, json.Number("1250.5"), out["paid_amount"])
		assert.Equal(t, "Payment Entry ACC-PAY-2026-00001 created for "+party, out["message"])
		p.AssertExpectations(t)
	})

	t.Run("non positive amount", func(t *testing.T) {
		p := &mockPlatform{}
		res := runTool(t, p, "create_payment_entry", toolexecutor.Args{
			"payment_type": "Pay",
			"party_type":   "Supplier",
			"party":        "SUP-0001",
			"paid_amount":  0,
		})

		assert.False(t, res.Success)
		assert.Equal(t, "paid_amount must be a positive number", res.Error)
		p.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown party type", func(t *testing.T) {
		p := &mockPlatform{}
		res := runTool(t, p, "create_payment_entry", toolexecutor.Args{
			"payment_type": "Pay",
			"party_type":   "Shareholder",
			"party":        "X",
			"paid_amount":  10,
		})

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "parameter validation failed")
	})

	t.Run("company unresolved", func(t *testing.T) {
		p := &mockPlatform{}
		p.On("DefaultCompany", mock.Anything).Return("", errors.New("no default company configured on the platform"))

		res := runTool(t, p, "create_payment_entry", toolexecutor.Args{
			"payment_type": "Pay",
			"party_type":   "Supplier",
			"party":        "SUP-0001",
			"paid_amount":  10,
		})

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "resolving company")
	})
}
