package tools

import (
	"context"
	"fmt"

	"github.com/harun/erptools/pkg/frappe"
	te "github.com/harun/erptools/pkg/toolexecutor"
)

// MaxReportRows caps the report rows returned to the caller
const MaxReportRows = 50

var periodicities = []string{"Monthly", "Quarterly", "Half-Yearly", "Yearly"}

func getBalanceSheet(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name:        "get_balance_sheet",
		Description: "Retrieve balance sheet data with asset, liability and equity totals as of a date.",
		Category:    te.CategoryAccounting,
		Permission:  "GL Entry",
		InputSchema: te.Object([]string{"company"}, map[string]*te.Schema{
			"company":     te.String("Company name"),
			"to_date":     te.Date("As-of date (YYYY-MM-DD); defaults to today"),
			"periodicity": te.String("Reporting period").WithEnum(periodicities...).WithDefault("Yearly"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			company := args.String("company")
			asOf := args.StringOr("to_date", env.today())

			report, err := env.Platform.RunReport(ctx, "Balance Sheet", map[string]interface{}{
				"company":         company,
				"period_end_date": asOf,
				"periodicity":     args.StringOr("periodicity", "Yearly"),
				"report_date":     asOf,
			})
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"company":    company,
				"as_of_date": asOf,
				"totals":     reportTotals(report, "Total Asset", "Total Liability", "Total Equity"),
				"data":       capRows(report.Result),
				"message":    report.Message,
			}, nil
		},
	}
}

func getProfitLoss(env Env) te.ToolDefinition {
	return te.ToolDefinition{
		Name: "get_profit_loss",
		Description: "Retrieve profit and loss (income statement) data with income, expense and net profit totals. " +
			"Missing dates default to the latest fiscal year.",
		Category:   te.CategoryAccounting,
		Permission: "GL Entry",
		InputSchema: te.Object([]string{"company"}, map[string]*te.Schema{
			"company":     te.String("Company name"),
			"from_date":   te.Date("Period start date (YYYY-MM-DD)"),
			"to_date":     te.Date("Period end date (YYYY-MM-DD)"),
			"periodicity": te.String("Reporting period").WithEnum(periodicities...).WithDefault("Yearly"),
		}),
		Handler: func(ctx context.Context, args te.Args) (interface{}, error) {
			company := args.String("company")
			from := args.String("from_date")
			to := args.String("to_date")

			if from == "" || to == "" {
				fy, err := latestFiscalYear(ctx, env)
				if err != nil {
					return nil, err
				}
				if from == "" {
					from = fy.String("year_start_date")
				}
				if to == "" {
					to = fy.String("year_end_date")
				}
			}

			fromYear, err := fiscalYearName(ctx, env, frappe.Filter{Field: "year_start_date", Operator: "<=", Value: from})
			if err != nil {
				return nil, err
			}
			toYear, err := fiscalYearName(ctx, env, frappe.Filter{Field: "year_end_date", Operator: ">=", Value: to})
			if err != nil {
				return nil, err
			}

			report, err := env.Platform.RunReport(ctx, "Profit and Loss Statement", map[string]interface{}{
				"company":           company,
				"from_fiscal_year":  fromYear,
				"to_fiscal_year":    toYear,
				"periodicity":       args.StringOr("periodicity", "Yearly"),
				"period_start_date": from,
				"period_end_date":   to,
			})
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"company":   company,
				"from_date": from,
				"to_date":   to,
				"totals":    reportTotals(report, "Total Income", "Total Expense", "Net Profit"),
				"data":      capRows(report.Result),
				"message":   report.Message,
			}, nil
		},
	}
}

func latestFiscalYear(ctx context.Context, env Env) (frappe.Doc, error) {
	years, err := env.Platform.List(ctx, "Fiscal Year", frappe.ListOptions{
		Filters: []frappe.Filter{frappe.Eq("disabled", 0)},
		Fields:  []string{"name", "year_start_date", "year_end_date"},
		OrderBy: "year_start_date desc",
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("no enabled fiscal year found; pass from_date and to_date")
	}
	return years[0], nil
}

// fiscalYearName returns the first fiscal year matching filter, or "" when none does
func fiscalYearName(ctx context.Context, env Env, filter frappe.Filter) (string, error) {
	years, err := env.Platform.List(ctx, "Fiscal Year", frappe.ListOptions{
		Filters: []frappe.Filter{filter},
		Fields:  []string{"name"},
		Limit:   1,
	})
	if err != nil {
		return "", err
	}
	if len(years) == 0 {
		return "", nil
	}
	return years[0].Name(), nil
}

// reportTotals collects the "total" column of the rows whose account_name is one of names
func reportTotals(report *frappe.Report, names ...string) map[string]interface{} {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	totals := map[string]interface{}{}
	for _, row := range report.Rows() {
		name := row.String("account_name")
		if !wanted[name] {
			continue
		}
		if v, ok := row["total"]; ok && v != nil {
			totals[name] = v
		} else {
			totals[name] = 0
		}
	}
	return totals
}

func capRows(result []interface{}) []interface{} {
	if result == nil {
		return []interface{}{}
	}
	if len(result) > MaxReportRows {
		return result[:MaxReportRows]
	}
	return result
}
