package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/erptools/pkg/frappe"
	"github.com/harun/erptools/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// insertDoc inserts doc and submits it when submit is set.
// A failed submit leaves the draft in place and says so in the error.
func insertDoc(ctx context.Context, env Env, doctype string, doc frappe.Doc, submit bool) (frappe.Doc, error) {
	saved, err := env.Platform.Insert(ctx, doctype, doc)
	if err != nil {
		return nil, err
	}
	if !submit {
		return saved, nil
	}

	submitted, err := env.Platform.Submit(ctx, saved)
	if err != nil {
		log.Warn().Err(err).Str("doctype", doctype).Str("name", saved.Name()).Msg("Submit failed, draft kept")
		return nil, fmt.Errorf("%s %s was saved as draft but could not be submitted: %w", doctype, saved.Name(), err)
	}
	return submitted, nil
}

// getDoc fetches a document, turning a missing document into a readable error
func getDoc(ctx context.Context, env Env, doctype, name string) (frappe.Doc, error) {
	doc, err := env.Platform.Get(ctx, doctype, name)
	if err != nil {
		if frappe.IsNotFound(err) {
			return nil, fmt.Errorf("%s '%s' not found", doctype, name)
		}
		return nil, err
	}
	return doc, nil
}

// rows copies the named fields of each argument object into child table rows.
// Absent fields are left out so the platform applies its own defaults.
func rows(items []toolexecutor.Args, fields ...string) []frappe.Doc {
	out := make([]frappe.Doc, 0, len(items))
	for _, item := range items {
		row := frappe.Doc{}
		for _, f := range fields {
			if v, ok := item.Value(f); ok {
				row[f] = v
			}
		}
		out = append(out, row)
	}
	return out
}

// pick copies the named fields of doc, using nil for absent fields
func pick(doc frappe.Doc, fields ...string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		out[f] = doc[f]
	}
	return out
}

// setIf sets doc[field] when the argument is present
func setIf(doc frappe.Doc, args toolexecutor.Args, field string) {
	if v, ok := args.Value(field); ok {
		doc[field] = v
	}
}

// number encodes an amount as a bare JSON number
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
